package metadata

import "strings"

// NormalizeISBN strips formatting noise and validates the check digit.
// Returns the bare identifier, or "" if the input is not a valid ISBN-10/13.
func NormalizeISBN(raw string) string {
	isbn := strings.ToUpper(strings.TrimSpace(raw))
	isbn = strings.ReplaceAll(isbn, "-", "")
	isbn = strings.ReplaceAll(isbn, " ", "")

	switch len(isbn) {
	case 10:
		if IsValidISBN10(isbn) {
			return isbn
		}
	case 13:
		if IsValidISBN13(isbn) {
			return isbn
		}
	}
	return ""
}

// IsValidISBN10 checks the mod-11 check digit. The final position may be 'X'.
func IsValidISBN10(isbn string) bool {
	if len(isbn) != 10 {
		return false
	}
	sum := 0
	for i := 0; i < 10; i++ {
		c := isbn[i]
		var v int
		switch {
		case c >= '0' && c <= '9':
			v = int(c - '0')
		case c == 'X' && i == 9:
			v = 10
		default:
			return false
		}
		sum += (10 - i) * v
	}
	return sum%11 == 0
}

// IsValidISBN13 checks the alternating 1/3-weight mod-10 check digit.
func IsValidISBN13(isbn string) bool {
	if len(isbn) != 13 {
		return false
	}
	sum := 0
	for i := 0; i < 13; i++ {
		c := isbn[i]
		if c < '0' || c > '9' {
			return false
		}
		v := int(c - '0')
		if i%2 == 1 {
			v *= 3
		}
		sum += v
	}
	return sum%10 == 0
}

// To13 converts a valid ISBN-10 to its Bookland-978 ISBN-13 form.
func To13(isbn10 string) string {
	if !IsValidISBN10(isbn10) {
		return ""
	}
	body := "978" + isbn10[:9]
	sum := 0
	for i := 0; i < 12; i++ {
		v := int(body[i] - '0')
		if i%2 == 1 {
			v *= 3
		}
		sum += v
	}
	check := (10 - sum%10) % 10
	return body + string(rune('0'+check))
}

// To10 converts a 978-prefixed ISBN-13 back to its ISBN-10 form.
// 979-prefixed identifiers have no ISBN-10 equivalent and yield "".
func To10(isbn13 string) string {
	if !IsValidISBN13(isbn13) || !strings.HasPrefix(isbn13, "978") {
		return ""
	}
	body := isbn13[3:12]
	sum := 0
	for i := 0; i < 9; i++ {
		sum += (10 - i) * int(body[i]-'0')
	}
	check := (11 - sum%11) % 11
	if check == 10 {
		return body + "X"
	}
	return body + string(rune('0'+check))
}

// Forms returns every ISBN form of the same edition that can be derived from
// one identifier: the identifier itself plus its 10/13 counterpart when one
// exists. The input must already be normalized.
func Forms(isbn string) []string {
	switch len(isbn) {
	case 10:
		if other := To13(isbn); other != "" {
			return []string{isbn, other}
		}
	case 13:
		if other := To10(isbn); other != "" {
			return []string{isbn, other}
		}
	}
	if isbn == "" {
		return nil
	}
	return []string{isbn}
}
