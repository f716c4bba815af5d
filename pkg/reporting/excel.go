package reporting

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

// WriteSessionXLSX writes the session report to an Excel workbook with one
// sheet for closed positions and one for risk events.
func WriteSessionXLSX(report SessionReport, path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	fx := excelize.NewFile()
	defer fx.Close()

	const positionsSheet = "Positions"
	const eventsSheet = "Risk Events"

	fx.SetSheetName(fx.GetSheetName(0), positionsSheet)
	fx.NewSheet(eventsSheet)

	headerStyle, err := fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11, Color: "FFFFFF", Family: "Calibri"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"1F4E79"}, Pattern: 1},
	})
	if err != nil {
		return err
	}

	if err := writePositionsSheet(fx, positionsSheet, report, headerStyle); err != nil {
		return err
	}
	if err := writeEventsSheet(fx, eventsSheet, report, headerStyle); err != nil {
		return err
	}
	return fx.SaveAs(path)
}

func writePositionsSheet(fx *excelize.File, sheet string, report SessionReport, headerStyle int) error {
	headers := []interface{}{"ID", "Symbol", "Side", "Quantity", "Entry", "Exit", "Stop", "Fees", "Realized P&L", "Reason", "Opened", "Closed"}
	if err := fx.SetSheetRow(sheet, "A1", &headers); err != nil {
		return err
	}
	if err := fx.SetRowStyle(sheet, 1, 1, headerStyle); err != nil {
		return err
	}

	for i, p := range report.Closed {
		cell := fmt.Sprintf("A%d", i+2)
		row := []interface{}{
			p.ID, p.Symbol, string(p.Side), p.Quantity, p.EntryPrice, p.ExitPrice,
			p.StopPrice, p.Fees, p.RealizedPnL, p.CloseReason,
			p.OpenedAt.Format("2006-01-02 15:04:05"),
			p.ExitTime.Format("2006-01-02 15:04:05"),
		}
		if err := fx.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

func writeEventsSheet(fx *excelize.File, sheet string, report SessionReport, headerStyle int) error {
	headers := []interface{}{"Time", "Limit", "Current", "Threshold", "Resulting State"}
	if err := fx.SetSheetRow(sheet, "A1", &headers); err != nil {
		return err
	}
	if err := fx.SetRowStyle(sheet, 1, 1, headerStyle); err != nil {
		return err
	}

	for i, e := range report.RiskEvents {
		cell := fmt.Sprintf("A%d", i+2)
		row := []interface{}{
			e.Timestamp.Format("2006-01-02 15:04:05"),
			e.LimitType, e.CurrentValue, e.Threshold, e.ResultingState,
		}
		if err := fx.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}
