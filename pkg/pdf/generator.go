package pdf

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// CertificateData carries everything printed on a retirement certificate.
type CertificateData struct {
	CertificateNumber string
	CreditID          uint64
	Owner             string
	ProjectID         string
	CarbonAmount      float64 // tonnes CO2e
	VintageYear       int
	Methodology       string
	Reason            string
	RetiredAt         time.Time
}

// Generator renders certificate documents.
type Generator interface {
	RenderCertificate(data CertificateData) ([]byte, error)
}

type fpdfGenerator struct{}

func NewGenerator() Generator {
	return &fpdfGenerator{}
}

func (g *fpdfGenerator) RenderCertificate(data CertificateData) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 25, 20)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 22)
	pdf.SetTextColor(34, 85, 51)
	pdf.CellFormat(0, 14, "Certificate of Carbon Credit Retirement", "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 11)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 8, fmt.Sprintf("Certificate No. %s", data.CertificateNumber), "", 1, "C", false, 0, "")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 12)
	pdf.MultiCell(0, 7, fmt.Sprintf(
		"This certifies that carbon credit #%d, representing %.4f tonnes of CO2e "+
			"(vintage %d, methodology %s, project %s), has been permanently retired "+
			"and removed from circulation.",
		data.CreditID, data.CarbonAmount, data.VintageYear, data.Methodology, data.ProjectID,
	), "", "L", false)
	pdf.Ln(4)

	rows := [][2]string{
		{"Retired by", data.Owner},
		{"Retirement reason", data.Reason},
		{"Retired at", data.RetiredAt.UTC().Format("2006-01-02 15:04:05 MST")},
	}
	for _, row := range rows {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(50, 8, row[0], "1", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.CellFormat(0, 8, row[1], "1", 1, "L", false, 0, "")
	}

	pdf.Ln(12)
	pdf.SetFont("Helvetica", "I", 9)
	pdf.SetTextColor(120, 120, 120)
	pdf.CellFormat(0, 6, "The offset claim associated with this credit is consumed and cannot be transferred or resold.", "", 1, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render certificate: %w", err)
	}
	return buf.Bytes(), nil
}
