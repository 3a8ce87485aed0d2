package repository

import "github.com/amr-devops/l10n-sa-edi-pos-direct/internal/domain/entity"

// CompanyRepository is the persistence port for supplier companies.
type CompanyRepository interface {
	Create(company *entity.Company) error
	GetByID(id string) (*entity.Company, error)
}
