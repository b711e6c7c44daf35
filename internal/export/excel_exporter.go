package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"krishimitra/carbon-registry/registry-backend/internal/ledger"
)

const sheetName = "Credits"

var headers = []string{
	"ID", "Owner", "Farmer", "Project", "Carbon (tCO2e)", "Vintage",
	"Location", "Methodology", "Verified", "Standard", "Retired",
	"Expiration", "Minted At",
}

// ExcelExporter writes a registry snapshot to an xlsx workbook.
type ExcelExporter struct {
	timestampFormat string
}

func NewExcelExporter() *ExcelExporter {
	return &ExcelExporter{timestampFormat: "2006-01-02 15:04:05"}
}

// Export renders the credits into a workbook and writes it to w.
func (e *ExcelExporter) Export(credits []ledger.Credit, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF", Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"4472C4"}},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		f.SetCellValue(sheetName, cell, header)
	}
	endHeader, _ := excelize.CoordinatesToCellName(len(headers), 1)
	f.SetCellStyle(sheetName, "A1", endHeader, headerStyle)
	f.SetPanes(sheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	for i, c := range credits {
		row := i + 2
		values := []interface{}{
			uint64(c.ID),
			string(c.Owner),
			string(c.Farmer),
			c.ProjectID,
			float64(c.CarbonAmount) / 10000.0,
			c.VintageYear,
			c.Location,
			c.Methodology,
			c.IsVerified,
			c.VerificationStandard,
			c.IsRetired,
			c.ExpirationDate.Format(e.timestampFormat),
			c.MintedAt.Format(e.timestampFormat),
		}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			f.SetCellValue(sheetName, cell, value)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
