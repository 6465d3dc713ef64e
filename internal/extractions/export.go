package extractions

import (
	"encoding/json"
	"fmt"
	"io"
	"log"

	"github.com/xuri/excelize/v2"

	"stackdocs-backend/internal/jsonpath"
)

const exportSheet = "Fields"

// ExportXLSX writes one row per extracted leaf value with its confidence.
func ExportXLSX(w io.Writer, ext Extraction) error {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			log.Printf("close xlsx: %v", err)
		}
	}()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	headers := []string{"Path", "Value", "Confidence"}
	for i, header := range headers {
		if err := f.SetCellValue(exportSheet, fmt.Sprintf("%c1", 'A'+i), header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}

	row := 2
	for _, leaf := range jsonpath.Flatten(ext.ExtractedFields) {
		if err := f.SetCellValue(exportSheet, fmt.Sprintf("A%d", row), leaf.Path); err != nil {
			return fmt.Errorf("write row %d: %w", row, err)
		}
		if err := f.SetCellValue(exportSheet, fmt.Sprintf("B%d", row), cellValue(leaf.Value)); err != nil {
			return fmt.Errorf("write row %d: %w", row, err)
		}
		if score, ok := ext.ConfidenceScores[leaf.Path]; ok {
			if err := f.SetCellValue(exportSheet, fmt.Sprintf("C%d", row), score); err != nil {
				return fmt.Errorf("write row %d: %w", row, err)
			}
		}
		row++
	}

	_ = f.SetColWidth(exportSheet, "A", "A", 40)
	_ = f.SetColWidth(exportSheet, "B", "B", 60)
	_ = f.SetColWidth(exportSheet, "C", "C", 12)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

func cellValue(v any) any {
	switch t := v.(type) {
	case nil:
		return ""
	case string, float64, bool:
		return t
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(raw)
	}
}
