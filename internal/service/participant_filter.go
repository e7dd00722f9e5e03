package service

import (
	"strings"

	"github.com/Rifqin-11/PosyanduKlitikan/internal/domain"

	"golang.org/x/text/cases"
)

// CategoryAll is the category filter that matches every record.
const CategoryAll = "all"

// FilterParticipants keeps the records whose name or NIK contains search
// (case-insensitive) and whose BMI category equals category. An empty search
// and CategoryAll match everything. Input order is preserved and records are
// not modified.
func FilterParticipants(records []*domain.Participant, search, category string) []*domain.Participant {
	fold := cases.Fold()
	query := fold.String(search)

	out := make([]*domain.Participant, 0, len(records))
	for _, p := range records {
		if query != "" &&
			!strings.Contains(fold.String(p.Name), query) &&
			!strings.Contains(fold.String(p.NIK), query) {
			continue
		}
		if category != CategoryAll && domain.CategoryOf(domain.BMI(p.BB, p.TB)) != category {
			continue
		}
		out = append(out, p)
	}
	return out
}
