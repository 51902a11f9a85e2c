package schema

import "strings"

// ParsedRow is one tokenized row: raw fields without type guarantees.
type ParsedRow []string

// HeaderIndex maps lower-cased header names to their column position.
type HeaderIndex map[string]int

// MakeHeaderIndex builds a HeaderIndex from a header row.
// When a name repeats, the first column wins.
func MakeHeaderIndex(header ParsedRow) HeaderIndex {
	idx := make(HeaderIndex, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		if _, seen := idx[key]; !seen {
			idx[key] = i
		}
	}
	return idx
}

// IsHeader reports whether row is a header: one of its fields, lower-cased,
// is exactly "name".
func IsHeader(row ParsedRow) bool {
	for _, f := range row {
		if strings.ToLower(strings.TrimSpace(f)) == "name" {
			return true
		}
	}
	return false
}

// Candidate is a mapped row ready for submission.
type Candidate struct {
	Row   int // 1-based position among the non-blank rows of the file
	Guest GuestInput
}

// Mapping is the result of MapRows.
type Mapping struct {
	HasHeader  bool
	Header     HeaderIndex
	Candidates []Candidate
	Dropped    int // rows skipped for an empty required field
}

// MapRows resolves rows into candidates. The first row is consumed as a
// header when IsHeader says so; otherwise every row is mapped positionally
// in GuestFieldSpecs order. Rows with an empty Required field are dropped
// silently.
func MapRows(rows []ParsedRow) Mapping {
	var m Mapping
	if len(rows) == 0 {
		return m
	}

	data := rows
	offset := 1
	if IsHeader(rows[0]) {
		m.HasHeader = true
		m.Header = MakeHeaderIndex(rows[0])
		data = rows[1:]
		offset = 2
	}

	for i, row := range data {
		in, ok := m.mapRow(row)
		if !ok {
			m.Dropped++
			continue
		}
		m.Candidates = append(m.Candidates, Candidate{Row: i + offset, Guest: in})
	}
	return m
}

// mapRow resolves one row and reports false when a Required field is empty.
func (m Mapping) mapRow(row ParsedRow) (GuestInput, bool) {
	values := make(map[string]string, len(GuestFieldSpecs))
	for i, spec := range GuestFieldSpecs {
		pos := i
		if m.HasHeader {
			p, ok := m.Header[spec.Name]
			if !ok {
				continue
			}
			pos = p
		}
		if pos >= len(row) {
			continue
		}
		values[spec.Name] = strings.TrimSpace(row[pos])
	}

	for _, spec := range GuestFieldSpecs {
		if spec.Required && values[spec.Name] == "" {
			return GuestInput{}, false
		}
		if spec.Normalizer != nil {
			values[spec.Name] = spec.Normalizer(values[spec.Name])
		}
	}

	return GuestInput{
		Name:   values["name"],
		Email:  values["email"],
		Phone:  values["phone"],
		Notes:  values["notes"],
		Status: Status(values["status"]),
	}, true
}

// Rows converts tokenizer output into ParsedRows.
func Rows(fields [][]string) []ParsedRow {
	rows := make([]ParsedRow, len(fields))
	for i, f := range fields {
		rows[i] = ParsedRow(f)
	}
	return rows
}
