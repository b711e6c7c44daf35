package certificates

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// RetirementCertificate is the archival record issued for every retired
// credit. The live ledger remains the source of truth for retirement state;
// this table exists so certificates survive restarts and can be re-served.
type RetirementCertificate struct {
	ID                uuid.UUID      `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	CertificateNumber string         `json:"certificate_number" gorm:"uniqueIndex;not null"`
	CreditID          int64          `json:"credit_id" gorm:"not null;index"`
	ProjectID         string         `json:"project_id" gorm:"not null;index"`
	Owner             string         `json:"owner" gorm:"not null;index"`
	CarbonAmount      float64        `json:"carbon_amount" gorm:"type:decimal(12,4);not null"`
	VintageYear       int            `json:"vintage_year" gorm:"not null"`
	Reason            string         `json:"reason"`
	S3Bucket          string         `json:"s3_bucket"`
	S3Key             string         `json:"s3_key"`
	EventPayload      datatypes.JSON `json:"event_payload" gorm:"default:'{}'"`
	RetiredAt         time.Time      `json:"retired_at" gorm:"not null"`
	CreatedAt         time.Time      `json:"created_at" gorm:"autoCreateTime"`
}
