package repository

import "github.com/amr-devops/l10n-sa-edi-pos-direct/internal/domain/entity"

// JournalRepository is the persistence port for e-invoicing journals (CSID material).
type JournalRepository interface {
	Create(journal *entity.Journal) error
	GetByID(id string) (*entity.Journal, error)
	GetByCompanyID(companyID string) (*entity.Journal, error)
}

// PosConfigRepository is the persistence port for point-of-sale configurations.
type PosConfigRepository interface {
	Create(cfg *entity.PosConfig) error
	GetByID(id string) (*entity.PosConfig, error)
}
