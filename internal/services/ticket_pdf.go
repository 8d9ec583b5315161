package services

import (
	"bytes"
	"fmt"

	"tiketi/models"

	"github.com/jung-kurt/gofpdf"
)

// BuildTicketPDF renders a single-page eTicket with the entry QR embedded.
func BuildTicketPDF(ticket *models.Ticket, event *models.Event, qrPNG []byte) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()
	pdf.SetAutoPageBreak(false, 0)

	pdf.SetFont("Helvetica", "B", 22)
	pdf.Cell(0, 15, "TIKETI OFFICIAL eTICKET")
	pdf.Ln(20)

	pdf.SetDrawColor(220, 220, 220)
	pdf.Line(15, pdf.GetY(), 195, pdf.GetY())
	pdf.Ln(8)

	yStart := pdf.GetY()
	pdf.SetFillColor(245, 245, 245)
	pdf.Rect(15, yStart, 120, 55, "F")

	pdf.SetXY(20, yStart+7)
	pdf.SetFont("Helvetica", "B", 14)
	pdf.Cell(0, 8, "TICKET SUMMARY")
	pdf.Ln(10)
	pdf.SetFont("Helvetica", "", 12)
	pdf.SetX(20)
	pdf.Cell(0, 8, fmt.Sprintf("Ticket ID: %s", ticket.ID))
	pdf.Ln(6)
	pdf.SetX(20)
	pdf.Cell(0, 8, fmt.Sprintf("Type: %s", ticket.TicketTypeName))
	pdf.Ln(6)
	pdf.SetX(20)
	pdf.Cell(0, 8, fmt.Sprintf("Quantity: %d", ticket.Quantity))
	pdf.Ln(6)
	pdf.SetX(20)
	pdf.Cell(0, 8, fmt.Sprintf("Total Paid: %s", ticket.TotalPrice.StringFixed(2)))

	if len(qrPNG) > 0 {
		pdf.RegisterImageOptionsReader("qr", gofpdf.ImageOptions{ImageType: "png"}, bytes.NewReader(qrPNG))
		pdf.ImageOptions("qr", 145, yStart+5, 45, 0, false, gofpdf.ImageOptions{ImageType: "png"}, 0, "")
	}

	pdf.SetY(yStart + 63)
	pdf.SetFont("Helvetica", "I", 10)
	pdf.Cell(0, 6, "Scan this QR code for entry verification.")
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "B", 14)
	pdf.Cell(0, 8, "EVENT DETAILS")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 8, fmt.Sprintf("Event: %s", event.Title))
	pdf.Ln(6)
	pdf.Cell(0, 8, fmt.Sprintf("Venue: %s", event.Venue))
	pdf.Ln(6)
	pdf.Cell(0, 8, fmt.Sprintf("Starts: %s", event.StartDate))
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "I", 9)
	pdf.SetTextColor(120, 120, 120)
	pdf.Cell(0, 6, "This ticket admits the named quantity once. Keep the code private.")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
