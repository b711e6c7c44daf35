package certificates

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"krishimitra/carbon-registry/registry-backend/internal/ledger"
	"krishimitra/carbon-registry/registry-backend/pkg/pdf"
	"krishimitra/carbon-registry/registry-backend/pkg/storage"
)

// carbonAmountScale converts the ledger's fixed-point amounts (4 implied
// decimals) to tonnes for display.
const carbonAmountScale = 10000.0

// Service issues a retirement certificate for every CreditRetired event:
// render the PDF, upload it, persist the record. It implements ledger.Sink.
// The retirement already committed in the ledger when Publish runs, so any
// failure here is logged and never rolled back into the lifecycle.
type Service struct {
	repo      Repository
	generator pdf.Generator
	store     storage.S3Client
	bucket    string
	logger    *zap.Logger
	timeout   time.Duration
}

func NewService(repo Repository, generator pdf.Generator, store storage.S3Client, bucket string, logger *zap.Logger) *Service {
	return &Service{
		repo:      repo,
		generator: generator,
		store:     store,
		bucket:    bucket,
		logger:    logger,
		timeout:   10 * time.Second,
	}
}

// Publish handles a committed domain event. Events other than CreditRetired
// are ignored.
func (s *Service) Publish(ev ledger.Event) {
	if ev.Kind != ledger.EventCreditRetired || ev.CreditID == nil {
		return
	}
	if err := s.issue(ev); err != nil {
		s.logger.Error("failed to issue retirement certificate",
			zap.Uint64("credit_id", uint64(*ev.CreditID)),
			zap.Error(err))
	}
}

func (s *Service) issue(ev ledger.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	number := certificateNumber(ev.OccurredAt)
	data := pdf.CertificateData{
		CertificateNumber: number,
		CreditID:          uint64(*ev.CreditID),
		Owner:             string(ev.Actor),
		ProjectID:         ev.ProjectID,
		CarbonAmount:      float64(ev.CarbonAmount) / carbonAmountScale,
		VintageYear:       ev.VintageYear,
		Reason:            ev.Reason,
		RetiredAt:         ev.OccurredAt,
	}

	document, err := s.generator.RenderCertificate(data)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}

	key := fmt.Sprintf("certificates/%d/%s.pdf", *ev.CreditID, number)
	if err := s.store.Upload(ctx, s.bucket, key, bytes.NewReader(document)); err != nil {
		return fmt.Errorf("upload: %w", err)
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	cert := &RetirementCertificate{
		ID:                uuid.New(),
		CertificateNumber: number,
		CreditID:          int64(*ev.CreditID),
		ProjectID:         ev.ProjectID,
		Owner:             string(ev.Actor),
		CarbonAmount:      data.CarbonAmount,
		VintageYear:       ev.VintageYear,
		Reason:            ev.Reason,
		S3Bucket:          s.bucket,
		S3Key:             key,
		EventPayload:      payload,
		RetiredAt:         ev.OccurredAt,
	}
	if err := s.repo.Create(ctx, cert); err != nil {
		return fmt.Errorf("persist: %w", err)
	}

	s.logger.Info("retirement certificate issued",
		zap.String("certificate_number", number),
		zap.Int64("credit_id", cert.CreditID))
	return nil
}

// Certificate returns the archived certificate for a credit.
func (s *Service) Certificate(ctx context.Context, creditID int64) (*RetirementCertificate, error) {
	return s.repo.GetByCreditID(ctx, creditID)
}

// CertificatesForOwner lists certificates issued to owner.
func (s *Service) CertificatesForOwner(ctx context.Context, owner string) ([]RetirementCertificate, error) {
	return s.repo.ListByOwner(ctx, owner)
}

// presignTTL bounds how long a certificate download link stays valid.
const presignTTL = 15 * time.Minute

// DownloadURL returns a short-lived link to the archived certificate PDF.
func (s *Service) DownloadURL(ctx context.Context, creditID int64) (string, error) {
	cert, err := s.repo.GetByCreditID(ctx, creditID)
	if err != nil {
		return "", fmt.Errorf("lookup certificate: %w", err)
	}
	return s.store.GetPresignedURL(ctx, cert.S3Bucket, cert.S3Key, presignTTL)
}

func certificateNumber(at time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
	return fmt.Sprintf("RET-%d-%s", at.Year(), suffix)
}
