package entity

import "time"

// PosConfig is a point of sale. Direct mode routes its simplified invoices
// through the reporting pipeline instead of the standard accounting flow.
type PosConfig struct {
	ID                string
	CompanyID         string
	Name              string
	DirectModeEnabled bool
	JournalID         string // journal carrying the CSID for this point of sale
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
