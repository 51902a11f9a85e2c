package schema

// FieldSpec describes one guest-list column.
type FieldSpec struct {
	Name       string              // Header token, lower-case
	Required   bool                // Rows with an empty value are dropped
	Normalizer func(string) string // Optional transformation applied after trimming
}

// GuestFieldSpecs lists the guest-list columns. The order is both the
// positional layout used for header-less files and the exported column order.
var GuestFieldSpecs = []FieldSpec{
	{Name: "name", Required: true},
	{Name: "email"},
	{Name: "phone"},
	{Name: "notes"},
	{
		Name:       "status",
		Normalizer: func(s string) string { return string(NormalizeStatus(s)) },
	},
}

// Columns returns the column names in GuestFieldSpecs order.
func Columns() []string {
	cols := make([]string, len(GuestFieldSpecs))
	for i, spec := range GuestFieldSpecs {
		cols[i] = spec.Name
	}
	return cols
}

// Row renders a record in Columns order; absent optional values are empty.
func Row(r GuestRecord) []string {
	return []string{r.Name, r.Email, r.Phone, r.Notes, string(r.Status)}
}
