package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/amr-devops/l10n-sa-edi-pos-direct/internal/domain/entity"
	"github.com/amr-devops/l10n-sa-edi-pos-direct/internal/domain/repository"
)

var _ repository.PosConfigRepository = (*PosConfigRepo)(nil)

// PosConfigRepo implements the PosConfigRepository port over PostgreSQL.
type PosConfigRepo struct {
	q Querier
}

// NewPosConfigRepository builds the adapter. Pass pool or tx (Querier).
func NewPosConfigRepository(q Querier) *PosConfigRepo {
	return &PosConfigRepo{q: q}
}

// Create persists a new point-of-sale configuration.
func (r *PosConfigRepo) Create(cfg *entity.PosConfig) error {
	if cfg.ID == "" {
		cfg.ID = uuid.New().String()
	}
	query := `
		INSERT INTO pos_configs (id, company_id, name, direct_mode_enabled, journal_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.q.Exec(context.Background(), query,
		cfg.ID, cfg.CompanyID, cfg.Name, cfg.DirectModeEnabled,
		nullIfEmpty(cfg.JournalID), cfg.CreatedAt, cfg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert pos config: %w", err)
	}
	return nil
}

// GetByID returns one configuration, or nil when it does not exist.
func (r *PosConfigRepo) GetByID(id string) (*entity.PosConfig, error) {
	query := `
		SELECT id, company_id, name, direct_mode_enabled, journal_id, created_at, updated_at
		FROM pos_configs WHERE id = $1`
	var c entity.PosConfig
	var journalID *string
	err := r.q.QueryRow(context.Background(), query, id).Scan(
		&c.ID, &c.CompanyID, &c.Name, &c.DirectModeEnabled, &journalID,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get pos config: %w", err)
	}
	c.JournalID = derefStr(journalID)
	return &c, nil
}
