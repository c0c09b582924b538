package drawer

import (
	"fmt"
	"io"
	"time"

	"github.com/kiwari-pos/station/internal/model"
	"github.com/tealeg/xlsx"
)

// ContentType is the MIME type of an exported report.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const timeLayout = "2006-01-02 15:04:05"

var sessionHeaders = []string{
	"Session ID", "Status", "Opened By", "Opened At", "Closed At",
	"Opening", "Cash Sales", "Pay Ins", "Pay Outs", "Expected",
	"Closing", "Discrepancy", "Result", "Notes",
}

var operationHeaders = []string{"Session ID", "Operation ID", "Type", "Method", "Amount", "Created By", "Created At", "Notes"}

// ExportSessions writes a shift report workbook with one row per session and
// a second sheet listing every drawer operation.
func ExportSessions(w io.Writer, sessions []model.DrawerSession) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Sessions")
	if err != nil {
		return fmt.Errorf("add sessions sheet: %w", err)
	}
	ops, err := file.AddSheet("Operations")
	if err != nil {
		return fmt.Errorf("add operations sheet: %w", err)
	}

	headerRow := sheet.AddRow()
	for _, h := range sessionHeaders {
		headerRow.AddCell().SetValue(h)
	}
	opsHeader := ops.AddRow()
	for _, h := range operationHeaders {
		opsHeader.AddCell().SetValue(h)
	}

	for _, s := range sessions {
		sum := Summarize(s, nil)

		row := sheet.AddRow()
		row.AddCell().SetValue(s.ID)
		row.AddCell().SetValue(s.Status)
		row.AddCell().SetValue(s.OpenedBy)
		row.AddCell().SetValue(formatTime(s.OpenedAt))
		if s.ClosedAt != nil {
			row.AddCell().SetValue(formatTime(*s.ClosedAt))
		} else {
			row.AddCell().SetValue("")
		}
		row.AddCell().SetValue(sum.Opening.StringFixed(2))
		row.AddCell().SetValue(sum.CashSales.StringFixed(2))
		row.AddCell().SetValue(sum.PayIns.StringFixed(2))
		row.AddCell().SetValue(sum.PayOuts.StringFixed(2))
		row.AddCell().SetValue(sum.Expected.StringFixed(2))
		if sum.Closing != nil {
			row.AddCell().SetValue(sum.Closing.StringFixed(2))
			row.AddCell().SetValue(sum.Discrepancy.StringFixed(2))
			row.AddCell().SetValue(string(sum.Classification))
		} else {
			row.AddCell().SetValue("")
			row.AddCell().SetValue("")
			row.AddCell().SetValue("")
		}
		row.AddCell().SetValue(s.Notes)

		for _, op := range s.Operations {
			r := ops.AddRow()
			r.AddCell().SetValue(s.ID)
			r.AddCell().SetValue(op.ID)
			r.AddCell().SetValue(op.Type)
			r.AddCell().SetValue(op.Method)
			r.AddCell().SetValue(op.Amount.StringFixed(2))
			r.AddCell().SetValue(op.CreatedBy)
			r.AddCell().SetValue(formatTime(op.CreatedAt))
			r.AddCell().SetValue(op.Notes)
		}
	}

	if err := file.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(timeLayout)
}
