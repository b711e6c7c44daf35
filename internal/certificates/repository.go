package certificates

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, cert *RetirementCertificate) error
	GetByCreditID(ctx context.Context, creditID int64) (*RetirementCertificate, error)
	ListByOwner(ctx context.Context, owner string) ([]RetirementCertificate, error)
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) (Repository, error) {
	if err := db.AutoMigrate(&RetirementCertificate{}); err != nil {
		return nil, err
	}
	return &gormRepository{db: db}, nil
}

func (r *gormRepository) Create(ctx context.Context, cert *RetirementCertificate) error {
	return r.db.WithContext(ctx).Create(cert).Error
}

func (r *gormRepository) GetByCreditID(ctx context.Context, creditID int64) (*RetirementCertificate, error) {
	var cert RetirementCertificate
	if err := r.db.WithContext(ctx).Where("credit_id = ?", creditID).First(&cert).Error; err != nil {
		return nil, err
	}
	return &cert, nil
}

func (r *gormRepository) ListByOwner(ctx context.Context, owner string) ([]RetirementCertificate, error) {
	var certs []RetirementCertificate
	if err := r.db.WithContext(ctx).Where("owner = ?", owner).Order("retired_at asc").Find(&certs).Error; err != nil {
		return nil, err
	}
	return certs, nil
}
