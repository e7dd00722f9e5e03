package domain

import (
	"time"
)

// DateLayout is the wire layout of date_of_birth (DATE column, no time part).
const DateLayout = "2006-01-02"

// Participant 参与者健康记录（对应 participants 表）
// 由外部存储拥有，这里只读
type Participant struct {
	ID string `json:"id" db:"id"` // UUID, PRIMARY KEY
	No int    `json:"no" db:"no"` // SERIAL, display number

	NIK  string `json:"nik" db:"nik"`   // CHAR(16)
	Name string `json:"name" db:"name"` // NOT NULL

	DateOfBirth Date   `json:"date_of_birth" db:"date_of_birth"` // DATE
	Address     string `json:"address" db:"address"`

	// Measurements, 0 = not measured
	BB   float64 `json:"bb" db:"bb"`     // weight, kg
	TB   float64 `json:"tb" db:"tb"`     // height, cm
	LILA float64 `json:"lila" db:"lila"` // mid-arm circumference, cm
	GDS  float64 `json:"gds" db:"gds"`   // blood glucose, mg/dL
	LP   float64 `json:"lp" db:"lp"`     // waist circumference, cm
	HB   float64 `json:"hb" db:"hb"`     // hemoglobin, g/dL
	Chol float64 `json:"chol" db:"chol"` // cholesterol, mg/dL

	AU           string `json:"au" db:"au"`
	Immunization string `json:"immunization" db:"immunization"`
	TD           string `json:"td" db:"td"` // blood pressure, e.g. "120/80"

	CustomFields map[string]string `json:"custom_fields,omitempty" db:"custom_fields"` // JSONB

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
	UserID    string    `json:"user_id" db:"user_id"`
}

// ParticipantFields is the writable field set sent on insert/update.
type ParticipantFields struct {
	NIK          string            `json:"nik"`
	Name         string            `json:"name"`
	DateOfBirth  Date              `json:"date_of_birth"`
	Address      string            `json:"address"`
	BB           float64           `json:"bb"`
	TB           float64           `json:"tb"`
	LILA         float64           `json:"lila"`
	GDS          float64           `json:"gds"`
	AU           string            `json:"au"`
	Immunization string            `json:"immunization"`
	LP           float64           `json:"lp"`
	TD           string            `json:"td"`
	HB           float64           `json:"hb"`
	Chol         float64           `json:"chol"`
	CustomFields map[string]string `json:"custom_fields"`
}

// Fields returns the writable part of p, used to prefill the edit form.
func (p *Participant) Fields() ParticipantFields {
	custom := make(map[string]string, len(p.CustomFields))
	for k, v := range p.CustomFields {
		custom[k] = v
	}
	return ParticipantFields{
		NIK:          p.NIK,
		Name:         p.Name,
		DateOfBirth:  p.DateOfBirth,
		Address:      p.Address,
		BB:           p.BB,
		TB:           p.TB,
		LILA:         p.LILA,
		GDS:          p.GDS,
		AU:           p.AU,
		Immunization: p.Immunization,
		LP:           p.LP,
		TD:           p.TD,
		HB:           p.HB,
		Chol:         p.Chol,
		CustomFields: custom,
	}
}

// Date is a calendar date without a time component.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate 从 time.Time 取年月日（按 t 自身的时区）
func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses "2006-01-02". A trailing time part ("2006-01-02T..") is ignored.
func ParseDate(s string) (Date, error) {
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, err
	}
	return NewDate(t), nil
}

func (d Date) IsZero() bool { return d.Year == 0 && d.Month == 0 && d.Day == 0 }

// Time returns midnight of d in loc.
func (d Date) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// Before reports whether d is strictly earlier than o.
func (d Date) Before(o Date) bool {
	if d.Year != o.Year {
		return d.Year < o.Year
	}
	if d.Month != o.Month {
		return d.Month < o.Month
	}
	return d.Day < o.Day
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Time(time.UTC).Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" || s == `""` {
		*d = Date{}
		return nil
	}
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return &time.ParseError{Layout: DateLayout, Value: s, Message: ": date must be a string"}
	}
	parsed, err := ParseDate(s[1 : len(s)-1])
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
