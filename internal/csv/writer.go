package csv

import (
	"bufio"
	"io"
	"strings"
)

// NeedsQuotes reports whether a field must be wrapped in double quotes:
// it contains a comma, a double quote or a line break.
func NeedsQuotes(field string) bool {
	return strings.ContainsAny(field, ",\"\r\n")
}

// EscapeField returns field as it appears in a written row.
// Quoted fields have their inner double quotes doubled.
func EscapeField(field string) string {
	if !NeedsQuotes(field) {
		return field
	}
	return `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
}

// Write encodes rows to w, one line per row terminated by "\n".
func Write(w io.Writer, rows [][]string) error {
	bw := bufio.NewWriter(w)
	for _, row := range rows {
		for i, field := range row {
			if i > 0 {
				if err := bw.WriteByte(','); err != nil {
					return err
				}
			}
			if _, err := bw.WriteString(EscapeField(field)); err != nil {
				return err
			}
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Encode is Write into a string.
func Encode(rows [][]string) string {
	var b strings.Builder
	_ = Write(&b, rows)
	return b.String()
}
