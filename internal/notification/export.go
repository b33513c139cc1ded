package notification

import (
	"bytes"
	"fmt"
	"time"

	"lifesignal-sync/internal/models"

	"github.com/xuri/excelize/v2"
)

// HistoryExportHeader 导出表头
var HistoryExportHeader = []string{
	"Time",
	"Type",
	"Title",
	"Body",
	"Event ID",
}

const historySheetName = "Notification History"

var historyColumnWidths = []float64{22, 24, 30, 60, 38}

// WriteHistoryWorkbook 通知历史导出为 Excel（.xlsx），按传入顺序逐行写入
func WriteHistoryWorkbook(events []models.NotificationEvent) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(historySheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to drop default sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	header := make([]any, len(HistoryExportHeader))
	for i, h := range HistoryExportHeader {
		header[i] = h
	}
	if err := writeRow(f, 1, header); err != nil {
		return nil, err
	}
	lastCol, err := excelize.CoordinatesToCellName(len(HistoryExportHeader), 1)
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(historySheetName, "A1", lastCol, headerStyle); err != nil {
		return nil, fmt.Errorf("failed to style header: %w", err)
	}

	for i, width := range historyColumnWidths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetColWidth(historySheetName, col, col, width); err != nil {
			return nil, fmt.Errorf("failed to set width of column %s: %w", col, err)
		}
	}

	for i, ev := range events {
		if err := writeRow(f, i+2, []any{
			ev.Timestamp.UTC().Format(time.RFC3339),
			ev.Type.String(),
			ev.Title,
			ev.Body,
			ev.ID,
		}); err != nil {
			return nil, err
		}
	}

	if err := f.SetPanes(historySheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("failed to freeze header row: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// writeRow 从 A 列开始写一行
func writeRow(f *excelize.File, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(historySheetName, cell, &values); err != nil {
		return fmt.Errorf("failed to write row %d: %w", row, err)
	}
	return nil
}
