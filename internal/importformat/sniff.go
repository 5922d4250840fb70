package importformat

import (
	"bufio"
	"encoding/csv"
	"errors"
	"io"
	"strings"
)

// sampleLines is how many data rows the classifier inspects.
const sampleLines = 20

// SniffDelimiter picks the most frequent candidate separator in the first
// line, defaulting to a comma.
func SniffDelimiter(line string) rune {
	best := ','
	bestCount := strings.Count(line, ",")
	for _, candidate := range []rune{'\t', ';', '|'} {
		if count := strings.Count(line, string(candidate)); count > bestCount {
			best = candidate
			bestCount = count
		}
	}
	return best
}

// DetectReader sniffs the delimiter, reads the header plus a bounded sample
// and classifies the file. The reader is consumed; callers re-open the file
// for the actual import.
func DetectReader(r io.Reader) (Detection, rune, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var lines []string
	for scanner.Scan() && len(lines) <= sampleLines {
		if strings.TrimSpace(scanner.Text()) == "" {
			continue
		}
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return Detection{}, 0, err
	}
	if len(lines) == 0 {
		return Detection{}, 0, errors.New("file is empty")
	}

	delimiter := SniffDelimiter(lines[0])

	reader := csv.NewReader(strings.NewReader(strings.Join(lines, "\n")))
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var records [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Detection{}, 0, err
		}
		records = append(records, record)
	}
	if len(records) == 0 {
		return Detection{}, 0, errors.New("file has no parseable rows")
	}

	return DetectFormat(records[0], records[1:]), delimiter, nil
}

// HasHeader reports whether files of the format carry a header row. Bare
// ISBN lists are the one format where the first line is already data.
func (f Format) HasHeader() bool {
	return f != FormatISBNList
}
