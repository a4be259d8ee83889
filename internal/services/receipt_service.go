package services

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"temani/internal/domain"
	"temani/internal/domain/models"
	"temani/internal/repositories"
	"temani/internal/utils"

	"github.com/phpdave11/gofpdf"
)

// ReceiptService menghasilkan PDF kuitansi untuk booking yang selesai.
type ReceiptService struct {
	Bookings   repositories.BookingRepository
	Users      repositories.UserRepository
	FeePercent int64
	RequestID  string
}

type receiptData struct {
	BookingID     int64
	ClientName    string
	CompanionName string
	StartAt       time.Time
	EndAt         time.Time
	Address       string
	Total         int64
	PlatformFee   int64
	CompanionPay  int64
	PaymentStatus string
}

// Generate builds the receipt for a completed booking requested by one
// of its two parties.
func (s ReceiptService) Generate(bookingID int64, actor domain.RequestContext) ([]byte, string, error) {
	b, err := s.Bookings.GetByID(bookingID)
	if err != nil {
		return nil, "", err
	}
	if _, ok := b.RoleOf(int64(actor.UserID)); !ok {
		return nil, "", domain.NotFoundError{Resource: "booking"}
	}
	if b.Status != models.BookingCompleted {
		return nil, "", domain.ConflictError{Resource: "booking", Msg: "kuitansi hanya tersedia untuk booking selesai"}
	}

	d := receiptData{
		BookingID:     b.ID,
		StartAt:       b.StartAt,
		EndAt:         b.EndAt,
		Address:       b.MeetingAddress,
		Total:         b.TotalAmount,
		PaymentStatus: string(b.PaymentStatus),
	}
	d.PlatformFee, d.CompanionPay = utils.SplitFee(b.TotalAmount, s.FeePercent)
	if u, err := s.Users.GetByID(b.ClientID); err == nil {
		d.ClientName = u.Name
	}
	if u, err := s.Users.GetByID(b.CompanionID); err == nil {
		d.CompanionName = u.Name
	}

	utils.LogEvent(s.RequestID, "receipt", "generate", fmt.Sprintf("booking_id=%d", bookingID))
	return buildReceiptPDF(d)
}

func buildReceiptPDF(d receiptData) ([]byte, string, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Kuitansi", false)
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "KUITANSI PERTEMUAN")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 12)
	lines := []string{
		fmt.Sprintf("No Kuitansi    : RCP-%d", d.BookingID),
		fmt.Sprintf("Klien          : %s", orDash(d.ClientName)),
		fmt.Sprintf("Companion      : %s", orDash(d.CompanionName)),
		fmt.Sprintf("Waktu          : %s - %s", utils.FormatDateTime(d.StartAt), utils.FormatDateTime(d.EndAt)),
		fmt.Sprintf("Lokasi         : %s", orDash(d.Address)),
		fmt.Sprintf("Total          : %s", utils.FormatRupiah(d.Total)),
		fmt.Sprintf("Biaya Platform : %s", utils.FormatRupiah(d.PlatformFee)),
		fmt.Sprintf("Untuk Companion: %s", utils.FormatRupiah(d.CompanionPay)),
		fmt.Sprintf("Status Bayar   : %s", orDash(d.PaymentStatus)),
		fmt.Sprintf("Dicetak        : %s", time.Now().UTC().Format("2006-01-02 15:04")),
	}
	for _, s := range lines {
		pdf.Cell(0, 7, s)
		pdf.Ln(7)
	}

	pdf.Ln(6)
	pdf.SetFont("Helvetica", "I", 10)
	pdf.MultiCell(0, 6, "Kuitansi ini diterbitkan otomatis setelah pertemuan terverifikasi dan pembayaran diproses.", "", "", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, "", err
	}
	filename := fmt.Sprintf("KUITANSI_%d.pdf", d.BookingID)
	return buf.Bytes(), filename, nil
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
