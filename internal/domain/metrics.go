package domain

import "time"

// BMI 分类标签（顺序即判断顺序）
const (
	CategoryNoData      = "No Data"
	CategoryUnderweight = "Underweight"
	CategoryNormal      = "Normal"
	CategoryOverweight  = "Overweight"
	CategoryObese       = "Obese"
)

// Categories lists every BMI category label in evaluation order.
var Categories = []string{
	CategoryNoData,
	CategoryUnderweight,
	CategoryNormal,
	CategoryOverweight,
	CategoryObese,
}

// IsCategory reports whether label is one of Categories.
func IsCategory(label string) bool {
	for _, c := range Categories {
		if c == label {
			return true
		}
	}
	return false
}

// Age returns whole years between dob and today. A dob after today gives a
// negative result; callers display it as-is.
func Age(dob, today Date) int {
	age := today.Year - dob.Year
	if today.Month < dob.Month || (today.Month == dob.Month && today.Day < dob.Day) {
		age--
	}
	return age
}

// BMI returns weight / height(m)^2, or 0 when either measurement is missing.
func BMI(weightKg, heightCm float64) float64 {
	if weightKg == 0 || heightCm == 0 {
		return 0
	}
	m := heightCm / 100
	return weightKg / (m * m)
}

// CategoryOf maps a BMI to its label. Upper bounds are exclusive.
func CategoryOf(bmi float64) string {
	switch {
	case bmi == 0:
		return CategoryNoData
	case bmi < 18.5:
		return CategoryUnderweight
	case bmi < 25:
		return CategoryNormal
	case bmi < 30:
		return CategoryOverweight
	default:
		return CategoryObese
	}
}

// DerivedMetrics 派生指标（不持久化，每次读取重新计算）
type DerivedMetrics struct {
	AgeYears    int     `json:"age_years"`
	BMI         float64 `json:"bmi"`
	BMICategory string  `json:"bmi_category"`
}

// Derive computes the derived metrics of p as of today.
func Derive(p *Participant, today Date) DerivedMetrics {
	bmi := BMI(p.BB, p.TB)
	return DerivedMetrics{
		AgeYears:    Age(p.DateOfBirth, today),
		BMI:         bmi,
		BMICategory: CategoryOf(bmi),
	}
}

// Today returns the current calendar date in loc.
func Today(now time.Time, loc *time.Location) Date {
	if loc != nil {
		now = now.In(loc)
	}
	return NewDate(now)
}
