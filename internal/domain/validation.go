package domain

import (
	"sort"
	"strconv"
	"strings"
)

// Custom field input types offered by the record form.
const (
	CustomFieldText     = "text"
	CustomFieldNumber   = "number"
	CustomFieldTextarea = "textarea"
)

// ExportHeader is the fixed column header of exported files. Existing files
// depend on this order and these labels. Custom field labels may not reuse them.
var ExportHeader = []string{
	"No",
	"NIK",
	"Nama Lengkap",
	"Tanggal Lahir",
	"Umur",
	"Alamat",
	"Berat Badan (kg)",
	"Tinggi Badan (cm)",
	"BMI",
	"Status BMI",
	"LILA (cm)",
	"GDS (mg/dL)",
	"AU",
	"Imunisasi",
	"LP (cm)",
	"TD (mmHg)",
	"HB (g/dL)",
	"Kolesterol (mg/dL)",
	"Tanggal Input",
}

// IsReservedLabel reports whether label equals a fixed export header,
// ignoring case and surrounding spaces.
func IsReservedLabel(label string) bool {
	label = strings.TrimSpace(label)
	for _, h := range ExportHeader {
		if strings.EqualFold(h, label) {
			return true
		}
	}
	return false
}

// CustomFieldInput is one dynamically added label/value row of the form.
type CustomFieldInput struct {
	Label string `json:"label"`
	Value string `json:"value"`
	Type  string `json:"type"`
}

// ValidationErrors maps a field name to its message. Empty means valid.
type ValidationErrors map[string]string

func (v ValidationErrors) Error() string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+v[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// ParticipantInput 表单提交的数据
type ParticipantInput struct {
	ParticipantFields
	Custom []CustomFieldInput `json:"custom"`
}

// Validate checks the input against the form rules and returns the cleaned
// field set. today is used to reject birth dates in the future.
func (in ParticipantInput) Validate(today Date) (ParticipantFields, error) {
	errs := ValidationErrors{}
	f := in.ParticipantFields

	f.NIK = strings.TrimSpace(f.NIK)
	f.Name = strings.TrimSpace(f.Name)
	f.Address = strings.TrimSpace(f.Address)
	f.TD = strings.TrimSpace(f.TD)

	if len(f.NIK) != 16 || !isDigits(f.NIK) {
		errs["nik"] = "NIK harus berisi 16 digit"
	}
	if f.Name == "" {
		errs["name"] = "Nama lengkap diperlukan"
	}
	switch {
	case f.DateOfBirth.IsZero():
		errs["date_of_birth"] = "Tanggal lahir diperlukan"
	case today.Before(f.DateOfBirth):
		errs["date_of_birth"] = "Tanggal lahir tidak boleh di masa depan"
	}
	if f.Address == "" {
		errs["address"] = "Alamat lengkap diperlukan"
	}

	nonNegative := []struct {
		key, msg string
		v        float64
	}{
		{"bb", "Berat harus lebih dari 0", f.BB},
		{"tb", "Tinggi harus lebih dari 0", f.TB},
		{"lila", "LILA harus bernilai positif", f.LILA},
		{"gds", "GDS harus bernilai positif", f.GDS},
		{"lp", "LP harus bernilai positif", f.LP},
		{"hb", "HB harus bernilai positif", f.HB},
		{"chol", "Cholesterol harus bernilai positif", f.Chol},
	}
	for _, n := range nonNegative {
		if n.v < 0 {
			errs[n.key] = n.msg
		}
	}

	custom := make(map[string]string, len(f.CustomFields)+len(in.Custom))
	for k, v := range f.CustomFields {
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		if IsReservedLabel(k) {
			errs["custom_fields."+k] = "Label sudah dipakai kolom bawaan"
			continue
		}
		custom[k] = v
	}
	for i, c := range in.Custom {
		key := "custom." + strconv.Itoa(i)
		label, value := strings.TrimSpace(c.Label), strings.TrimSpace(c.Value)
		switch c.Type {
		case "", CustomFieldText, CustomFieldTextarea:
		case CustomFieldNumber:
			if value != "" {
				if _, err := strconv.ParseFloat(value, 64); err != nil {
					errs[key] = "Nilai harus berupa angka"
					continue
				}
			}
		default:
			errs[key] = "Tipe field tidak dikenal"
			continue
		}
		if label == "" || value == "" {
			continue
		}
		if IsReservedLabel(label) {
			errs[key] = "Label sudah dipakai kolom bawaan"
			continue
		}
		custom[label] = value
	}
	f.CustomFields = custom

	if len(errs) > 0 {
		return ParticipantFields{}, errs
	}
	return f, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
