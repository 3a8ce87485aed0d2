package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/amr-devops/l10n-sa-edi-pos-direct/internal/domain/entity"
	"github.com/amr-devops/l10n-sa-edi-pos-direct/internal/domain/repository"
)

var _ repository.CompanyRepository = (*CompanyRepo)(nil)

// CompanyRepo implements the CompanyRepository port over PostgreSQL.
type CompanyRepo struct {
	q Querier
}

// NewCompanyRepository builds the adapter. Pass pool or tx (Querier).
func NewCompanyRepository(q Querier) *CompanyRepo {
	return &CompanyRepo{q: q}
}

// Create persists a new company.
func (r *CompanyRepo) Create(company *entity.Company) error {
	if company.ID == "" {
		company.ID = uuid.New().String()
	}
	query := `
		INSERT INTO companies (id, name, vat, commercial_registration, street, building_number, additional_number, district, city, state, zip, country_code, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := r.q.Exec(context.Background(), query,
		company.ID, company.Name, company.VAT, nullIfEmpty(company.CommercialRegistration),
		nullIfEmpty(company.Street), nullIfEmpty(company.BuildingNumber),
		nullIfEmpty(company.AdditionalNumber), nullIfEmpty(company.District),
		nullIfEmpty(company.City), nullIfEmpty(company.State), nullIfEmpty(company.Zip),
		company.CountryCode, company.CreatedAt, company.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("company VAT already registered: %w", err)
		}
		return fmt.Errorf("insert company: %w", err)
	}
	return nil
}

// GetByID returns one company, or nil when it does not exist.
func (r *CompanyRepo) GetByID(id string) (*entity.Company, error) {
	query := `
		SELECT id, name, vat, commercial_registration, street, building_number,
		       additional_number, district, city, state, zip, country_code,
		       created_at, updated_at
		FROM companies WHERE id = $1`
	var c entity.Company
	var crn, street, building, additional, district, city, state, zip *string
	err := r.q.QueryRow(context.Background(), query, id).Scan(
		&c.ID, &c.Name, &c.VAT, &crn, &street, &building, &additional,
		&district, &city, &state, &zip, &c.CountryCode,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get company: %w", err)
	}
	c.CommercialRegistration = derefStr(crn)
	c.Street = derefStr(street)
	c.BuildingNumber = derefStr(building)
	c.AdditionalNumber = derefStr(additional)
	c.District = derefStr(district)
	c.City = derefStr(city)
	c.State = derefStr(state)
	c.Zip = derefStr(zip)
	return &c, nil
}
