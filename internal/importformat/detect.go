// Package importformat classifies uploaded export files and proposes a
// column-to-canonical-field mapping for each supported source service.
package importformat

import (
	"strings"

	"github.com/jwhitley/stacks/internal/entities"
)

type Format string

const (
	FormatGoodreads      Format = "goodreads"
	FormatStoryGraph     Format = "storygraph"
	FormatLibraryThing   Format = "librarything"
	FormatISBNList       Format = "isbn_list"
	FormatReadingHistory Format = "reading_history"
	FormatUnknown        Format = "unknown"
)

// MinConfidence is the normalized score below which a signature match is
// treated as unknown.
const MinConfidence = 0.3

// isbnListThreshold is the share of sampled lines that must look like bare
// ISBNs for the fallback heuristic to classify a headerless file.
const isbnListThreshold = 0.8

// Detection is the outcome of classifying one uploaded file.
type Detection struct {
	Format     Format
	Confidence float64
	Mapping    []entities.FieldAssignment
}

// HasParseableHeader reports whether at least one header column mapped to a
// usable field. A file that defeats every signature but still has a readable
// header can proceed on the keyword mapping, subject to owner review.
func (d Detection) HasParseableHeader() bool {
	for _, a := range d.Mapping {
		if a.Field != entities.FieldIgnore {
			return true
		}
	}
	return false
}

// signature maps lowercased header names to weights. Headers unique to a
// service carry more weight than ones every export shares.
type signature map[string]float64

var signatures = map[Format]signature{
	FormatGoodreads: {
		"title":                     1,
		"author":                    1,
		"isbn":                      2,
		"isbn13":                    3,
		"my rating":                 3,
		"average rating":            2,
		"bookshelves":               3,
		"exclusive shelf":           3,
		"my review":                 2,
		"date read":                 2,
		"date added":                2,
		"number of pages":           1,
		"year published":            1,
		"original publication year": 2,
		"publisher":                 1,
		"binding":                   1,
	},
	FormatStoryGraph: {
		"title":          1,
		"authors":        2,
		"isbn/uid":       3,
		"format":         1,
		"read status":    3,
		"star rating":    3,
		"moods":          3,
		"pace":           3,
		"owned?":         2,
		"dates read":     2,
		"last date read": 2,
		"read count":     1,
		"review":         1,
		"tags":           1,
	},
	FormatLibraryThing: {
		"book id":          2,
		"title":            1,
		"primary author":   3,
		"secondary author": 2,
		"isbn":             2,
		"rating":           2,
		"entry date":       2,
		"collections":      3,
		"tags":             2,
		"review":           1,
		"publication":      1,
		"copies":           2,
	},
	FormatReadingHistory: {
		"date":         3,
		"book":         2,
		"book title":   2,
		"pages read":   3,
		"minutes read": 3,
		"duration":     1,
		"notes":        1,
	},
}

// DetectFormat classifies a file from its header row plus a sample of data
// rows. Sub-threshold or tied signature scores yield unknown; a headerless or
// unknown file whose sampled lines are mostly bare ISBNs is classified as an
// ISBN list.
func DetectFormat(header []string, sample [][]string) Detection {
	normalized := normalizeHeader(header)

	if len(normalized) > 0 {
		if format, confidence, ok := bestSignature(normalized); ok {
			return Detection{
				Format:     format,
				Confidence: confidence,
				Mapping:    BuildMapping(format, header),
			}
		}
	}

	if looksLikeISBNList(normalized, sample) {
		return Detection{
			Format:     FormatISBNList,
			Confidence: 1,
			Mapping:    []entities.FieldAssignment{{Column: "isbn", Field: entities.FieldISBN}},
		}
	}

	return Detection{
		Format:     FormatUnknown,
		Confidence: 0,
		Mapping:    BuildMapping(FormatUnknown, header),
	}
}

func normalizeHeader(header []string) []string {
	out := make([]string, 0, len(header))
	for _, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			out = append(out, h)
		}
	}
	return out
}

// bestSignature scores every known signature and returns the winner.
// ok is false when the best score is below MinConfidence or tied.
func bestSignature(header []string) (Format, float64, bool) {
	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[h] = true
	}

	var best, second float64
	var bestFormat Format

	for format, sig := range signatures {
		var total, matched float64
		for name, weight := range sig {
			total += weight
			if present[name] {
				matched += weight
			}
		}
		score := matched / total
		if score > best {
			second = best
			best = score
			bestFormat = format
		} else if score > second {
			second = score
		}
	}

	if best < MinConfidence || best == second {
		return FormatUnknown, 0, false
	}
	return bestFormat, best, true
}

// looksLikeISBNList reports whether at least 80% of the sampled rows are
// single 10- or 13-digit tokens. The header row, if any, counts as a sample
// line so a file of bare ISBNs with no real header still qualifies.
func looksLikeISBNList(header []string, sample [][]string) bool {
	total := 0
	isbnish := 0

	consider := func(fields []string) {
		nonEmpty := 0
		first := ""
		for _, f := range fields {
			f = strings.TrimSpace(f)
			if f != "" {
				nonEmpty++
				if first == "" {
					first = f
				}
			}
		}
		if nonEmpty == 0 {
			return
		}
		total++
		if nonEmpty == 1 && isISBNToken(first) {
			isbnish++
		}
	}

	if len(header) > 0 {
		consider(header)
	}
	for _, row := range sample {
		consider(row)
	}

	if total == 0 || isbnish == 0 {
		return false
	}
	return float64(isbnish)/float64(total) >= isbnListThreshold
}

// isISBNToken is a lenient shape check; strict check-digit validation happens
// later in the enrichment batcher.
func isISBNToken(s string) bool {
	s = strings.ToUpper(strings.ReplaceAll(strings.ReplaceAll(s, "-", ""), " ", ""))
	if len(s) != 10 && len(s) != 13 {
		return false
	}
	for i, c := range s {
		if c >= '0' && c <= '9' {
			continue
		}
		if c == 'X' && len(s) == 10 && i == 9 {
			continue
		}
		return false
	}
	return true
}
