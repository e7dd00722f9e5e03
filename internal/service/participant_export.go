package service

import (
	"fmt"
	"sort"
	"time"

	"github.com/Rifqin-11/PosyanduKlitikan/internal/domain"
)

// ExportDateLayout formats dates in exported files, e.g. "05 Jan 2024".
const ExportDateLayout = "02 Jan 2006"

// ExportSheetName 导出工作表名称
const ExportSheetName = "Data Peserta"

// ExportHeader is the fixed column header of exported files.
var ExportHeader = domain.ExportHeader

// ExportColumnWidths are the spreadsheet widths of the ExportHeader columns.
var ExportColumnWidths = []float64{5, 18, 25, 15, 8, 30, 12, 12, 8, 15, 10, 10, 8, 15, 8, 12, 10, 15, 15}

// CustomHeaderSuffix marks a stored custom label that equals a fixed header.
const CustomHeaderSuffix = " (tambahan)"

// CustomColumnWidth is the width of columns added for custom fields.
const CustomColumnWidth = 18

// ExportTable is the tabular form of an export: the header (fixed columns
// followed by one column per custom field label) and one row per record.
type ExportTable struct {
	FileName string
	Header   []string
	Rows     [][]any
}

// ExportRows projects records into export rows. The first cell is the
// 1-based position in records, independent of the record's own number.
// today drives the age; loc is the zone creation timestamps are shown in.
func ExportRows(records []*domain.Participant, today domain.Date, loc *time.Location) *ExportTable {
	if loc == nil {
		loc = time.UTC
	}
	labels := customLabels(records)

	header := make([]string, 0, len(ExportHeader)+len(labels))
	header = append(header, ExportHeader...)
	for _, l := range labels {
		// 旧数据中与固定列同名的标签加后缀区分
		if domain.IsReservedLabel(l) {
			l += CustomHeaderSuffix
		}
		header = append(header, l)
	}

	rows := make([][]any, 0, len(records))
	for i, p := range records {
		m := domain.Derive(p, today)
		row := []any{
			i + 1,
			p.NIK,
			p.Name,
			formatDate(p.DateOfBirth),
			m.AgeYears,
			p.Address,
			p.BB,
			p.TB,
			fmt.Sprintf("%.1f", m.BMI),
			m.BMICategory,
			p.LILA,
			p.GDS,
			p.AU,
			p.Immunization,
			p.LP,
			p.TD,
			p.HB,
			p.Chol,
			formatTimestamp(p.CreatedAt, loc),
		}
		for _, l := range labels {
			row = append(row, p.CustomFields[l])
		}
		rows = append(rows, row)
	}
	return &ExportTable{Header: header, Rows: rows}
}

// ExportFileName 导出文件名，例如 Data_Peserta_Posyandu_2024-01-05_14-30.xlsx
func ExportFileName(now time.Time) string {
	return "Data_Peserta_Posyandu_" + now.Format("2006-01-02_15-04") + ".xlsx"
}

func customLabels(records []*domain.Participant) []string {
	seen := make(map[string]struct{})
	for _, p := range records {
		for l := range p.CustomFields {
			seen[l] = struct{}{}
		}
	}
	labels := make([]string, 0, len(seen))
	for l := range seen {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

func formatDate(d domain.Date) string {
	if d.IsZero() {
		return ""
	}
	return d.Time(time.UTC).Format(ExportDateLayout)
}

func formatTimestamp(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	return t.In(loc).Format(ExportDateLayout)
}
