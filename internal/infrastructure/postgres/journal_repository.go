package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/amr-devops/l10n-sa-edi-pos-direct/internal/domain/entity"
	"github.com/amr-devops/l10n-sa-edi-pos-direct/internal/domain/repository"
)

var _ repository.JournalRepository = (*JournalRepo)(nil)

// JournalRepo implements the JournalRepository port over PostgreSQL.
// The CSID private key is stored as persisted by the onboarding process;
// secrets management is outside this adapter.
type JournalRepo struct {
	q Querier
}

// NewJournalRepository builds the adapter. Pass pool or tx (Querier).
func NewJournalRepository(q Querier) *JournalRepo {
	return &JournalRepo{q: q}
}

// Create persists a new journal.
func (r *JournalRepo) Create(journal *entity.Journal) error {
	if journal.ID == "" {
		journal.ID = uuid.New().String()
	}
	query := `
		INSERT INTO journals (id, company_id, certificate_pem, private_key_pem, csid_secret, issuer_name, serial_number, onboarded, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.q.Exec(context.Background(), query,
		journal.ID, journal.CompanyID,
		nullIfEmpty(journal.CertificatePEM), nullIfEmpty(journal.PrivateKeyPEM),
		nullIfEmpty(journal.CSIDSecret), nullIfEmpty(journal.IssuerName),
		nullIfEmpty(journal.SerialNumber), journal.Onboarded,
		journal.CreatedAt, journal.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("journal already exists for company: %w", err)
		}
		return fmt.Errorf("insert journal: %w", err)
	}
	return nil
}

// GetByID returns one journal, or nil when it does not exist.
func (r *JournalRepo) GetByID(id string) (*entity.Journal, error) {
	query := journalSelect + ` WHERE id = $1`
	return r.getOne(query, id)
}

// GetByCompanyID returns the company's journal, or nil when none exists.
func (r *JournalRepo) GetByCompanyID(companyID string) (*entity.Journal, error) {
	query := journalSelect + ` WHERE company_id = $1`
	return r.getOne(query, companyID)
}

const journalSelect = `
	SELECT id, company_id, certificate_pem, private_key_pem, csid_secret,
	       issuer_name, serial_number, onboarded, created_at, updated_at
	FROM journals`

func (r *JournalRepo) getOne(query string, arg any) (*entity.Journal, error) {
	journal, err := scanJournal(r.q.QueryRow(context.Background(), query, arg))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get journal: %w", err)
	}
	return journal, nil
}

func scanJournal(row pgx.Row) (*entity.Journal, error) {
	var j entity.Journal
	var certPEM, keyPEM, secret, issuer, serial *string
	err := row.Scan(
		&j.ID, &j.CompanyID, &certPEM, &keyPEM, &secret, &issuer, &serial,
		&j.Onboarded, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	j.CertificatePEM = derefStr(certPEM)
	j.PrivateKeyPEM = derefStr(keyPEM)
	j.CSIDSecret = derefStr(secret)
	j.IssuerName = derefStr(issuer)
	j.SerialNumber = derefStr(serial)
	return &j, nil
}
