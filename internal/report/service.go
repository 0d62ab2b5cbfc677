package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/signintech/gopdf"
	"go.uber.org/zap"

	"radiology-ai/internal/sentinel"
)

type TelegramClient interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendDocument(ctx context.Context, chatID int64, fileData []byte, fileName string) error
}

// DefaultFontPaths are tried in order until DejaVuSans loads.
var DefaultFontPaths = []string{
	"/usr/share/fonts/ttf-dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
}

var ErrFontNotFound = errors.New("no usable PDF font")

const (
	fontFamily = "DejaVu"
	lineWidth  = 500
)

type Service struct {
	tgClient  TelegramClient
	chatID    int64
	fontPaths []string
	logger    *zap.Logger
}

// NewService builds a Service. tg may be nil when only rendering is needed.
func NewService(tg TelegramClient, chatID int64, fontPaths []string, logger *zap.Logger) *Service {
	if len(fontPaths) == 0 {
		fontPaths = DefaultFontPaths
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		tgClient:  tg,
		chatID:    chatID,
		fontPaths: fontPaths,
		logger:    logger.Named("report"),
	}
}

// RenderPDF lays out r as a one-column A4 document in the clinical section
// order.
func (s *Service) RenderPDF(r *sentinel.Report) ([]byte, error) {
	pdf := gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.AddPage()

	if err := s.loadFont(&pdf); err != nil {
		return nil, err
	}

	if err := pdf.SetFont(fontFamily, "", 18); err != nil {
		return nil, err
	}
	pdf.Cell(nil, "RADIOLOGY REPORT")
	pdf.Br(28)

	if err := pdf.SetFont(fontFamily, "", 11); err != nil {
		return nil, err
	}
	for _, line := range []string{
		"Study Date: " + r.StudyDate,
		"Study Type: " + r.StudyType,
		"Report ID: " + r.ID,
		fmt.Sprintf("Urgency: %s    AI Confidence: %.0f%%    Status: %s",
			strings.ToUpper(string(r.Urgency)), r.AIConfidence*100, r.Status),
	} {
		pdf.Cell(nil, line)
		pdf.Br(14)
	}
	pdf.Br(10)

	sections := []struct {
		title string
		body  string
	}{
		{"Clinical indication", r.ClinicalIndication},
		{"Technique", r.Technique},
		{"Comparison", r.Comparison},
		{"Findings", r.Findings},
		{"Impression", r.Impression},
	}
	for _, sec := range sections {
		if sec.body == "" {
			continue
		}
		if err := writeSection(&pdf, sec.title, strings.Split(sec.body, "\n")); err != nil {
			return nil, err
		}
	}

	if len(r.Recommendations) > 0 {
		recs := make([]string, len(r.Recommendations))
		for i, rec := range r.Recommendations {
			recs[i] = fmt.Sprintf("%d. %s", i+1, rec)
		}
		if err := writeSection(&pdf, "Recommendations", recs); err != nil {
			return nil, err
		}
	}

	if err := pdf.SetFont(fontFamily, "", 10); err != nil {
		return nil, err
	}
	switch {
	case r.SignedBy != "":
		pdf.Cell(nil, "Electronically signed by: "+r.SignedBy)
	case r.ReviewedBy != "":
		pdf.Cell(nil, "Reviewed by: "+r.ReviewedBy)
	default:
		pdf.Cell(nil, "*** PENDING RADIOLOGIST REVIEW ***")
	}

	var buf bytes.Buffer
	if _, err := pdf.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *Service) loadFont(pdf *gopdf.GoPdf) error {
	var fontErr error
	for _, path := range s.fontPaths {
		if err := pdf.AddTTFFont(fontFamily, path); err != nil {
			fontErr = err
			continue
		}
		s.logger.Debug("loaded font", zap.String("path", path))
		return nil
	}
	return fmt.Errorf("%w: install ttf-dejavu, last error: %v", ErrFontNotFound, fontErr)
}

func writeSection(pdf *gopdf.GoPdf, title string, lines []string) error {
	if err := pdf.SetFont(fontFamily, "", 13); err != nil {
		return err
	}
	pdf.Cell(nil, title+":")
	pdf.Br(16)

	if err := pdf.SetFont(fontFamily, "", 10); err != nil {
		return err
	}
	for _, line := range lines {
		if line == "" {
			pdf.Br(6)
			continue
		}
		wrapped, err := pdf.SplitText(line, lineWidth)
		if err != nil {
			return err
		}
		for _, l := range wrapped {
			pdf.Cell(nil, l)
			pdf.Br(12)
		}
	}
	pdf.Br(10)
	return nil
}

// Notification is the short text sent ahead of the PDF for escalated reports.
func Notification(r *sentinel.Report) string {
	return fmt.Sprintf("%s: %s (AI confidence %.0f%%)\nStudy %s, report %s\n%s",
		strings.ToUpper(string(r.Urgency)), r.Diagnosis, r.AIConfidence*100, r.StudyType, r.ID, r.Impression)
}

// Deliver sends r to the configured chat. Urgent and critical reports get a
// text notification first; every report is then sent as a PDF.
func (s *Service) Deliver(ctx context.Context, r *sentinel.Report) error {
	if s.tgClient == nil {
		return errors.New("deliver report: no telegram client configured")
	}
	log := s.logger.With(zap.String("report_id", r.ID), zap.String("urgency", string(r.Urgency)))

	if r.Urgency.Escalated() {
		if err := s.tgClient.SendMessage(ctx, s.chatID, Notification(r)); err != nil {
			log.Error("failed to send notification", zap.Error(err))
			return fmt.Errorf("deliver report %s: %w", r.ID, err)
		}
	}

	pdf, err := s.RenderPDF(r)
	if err != nil {
		return fmt.Errorf("deliver report %s: %w", r.ID, err)
	}

	fileName := fmt.Sprintf("report_%s.pdf", r.ID)
	log.Info("sending PDF report", zap.Int64("chat_id", s.chatID), zap.Int("bytes", len(pdf)))
	if err := s.tgClient.SendDocument(ctx, s.chatID, pdf, fileName); err != nil {
		log.Error("failed to send PDF report", zap.Error(err))
		return fmt.Errorf("deliver report %s: %w", r.ID, err)
	}
	return nil
}
