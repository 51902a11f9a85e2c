// Package csv implements the lenient delimited-text reader and the matching
// writer used for guest-list files.
//
// The reader never fails. Quoting is honored the way spreadsheet exports
// produce it, and malformed quoting degrades instead of erroring: an
// unterminated quote swallows the rest of its physical line and nothing more.
// encoding/csv is deliberately not used here because its quote handling and
// record splitting differ from this contract (see DESIGN.md).
package csv

import "strings"

// Tokenize splits raw text into rows of trimmed fields.
// Blank lines are dropped and row order is preserved.
func Tokenize(text string) [][]string {
	lines := SplitRows(text)
	rows := make([][]string, 0, len(lines))
	for _, line := range lines {
		rows = append(rows, SplitFields(line))
	}
	return rows
}

// SplitRows splits text on CRLF or LF boundaries, trims every row and drops
// rows that are empty after trimming.
//
// A line break stays inside a field only in the shape Encode writes: the
// quote opened at the start of the field and its closing quote ends the
// field. Any other quote still open at a line break ends the row at that
// physical line, so later lines are still read as rows.
func SplitRows(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var rows []string
	for len(text) > 0 {
		end, next := rowEnd(text)
		if row := strings.TrimSpace(text[:end]); row != "" {
			rows = append(rows, row)
		}
		text = text[next:]
	}
	return rows
}

// rowEnd returns the end offset of the first logical row in text and the
// offset where the next row starts.
func rowEnd(text string) (end, next int) {
	var inQuotes, fieldQuoted bool
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '"':
			if inQuotes && i+1 < len(text) && text[i+1] == '"' {
				i++
				continue
			}
			if !inQuotes {
				fieldQuoted = atFieldStart(text, i)
			}
			inQuotes = !inQuotes
		case '\n':
			if !inQuotes || !fieldQuoted {
				return i, i + 1
			}
			closing, ok := closingQuote(text, i)
			if !ok {
				return i, i + 1
			}
			i = closing
			inQuotes = false
		}
	}
	return len(text), len(text)
}

// atFieldStart reports whether only blanks separate text[i] from the start
// of the row or the preceding comma.
func atFieldStart(text string, i int) bool {
	j := i - 1
	for j >= 0 && (text[j] == ' ' || text[j] == '\t') {
		j--
	}
	return j < 0 || text[j] == ','
}

// closingQuote finds the quote that closes a field continuing past text[from].
// Doubled quotes are skipped. The first single quote must be followed by a
// comma, a line break or the end of text, optionally after blanks.
func closingQuote(text string, from int) (int, bool) {
	for j := from; j < len(text); j++ {
		if text[j] != '"' {
			continue
		}
		if j+1 < len(text) && text[j+1] == '"' {
			j++
			continue
		}
		k := j + 1
		for k < len(text) && (text[k] == ' ' || text[k] == '\t') {
			k++
		}
		if k == len(text) || text[k] == ',' || text[k] == '\n' {
			return j, true
		}
		return 0, false
	}
	return 0, false
}

// SplitFields splits one row into fields.
//
// A double quote toggles quoted state, and a doubled quote inside a quoted
// field yields one literal quote. Commas separate fields only outside quotes.
// The last field is always emitted, even when empty, and every field is
// trimmed after it is rebuilt.
func SplitFields(line string) []string {
	var (
		fields   []string
		cur      strings.Builder
		inQuotes bool
	)

	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '"':
			if inQuotes && i+1 < len(line) && line[i+1] == '"' {
				cur.WriteByte('"')
				i++
				continue
			}
			inQuotes = !inQuotes
		case c == ',' && !inQuotes:
			fields = append(fields, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}

	return append(fields, strings.TrimSpace(cur.String()))
}
