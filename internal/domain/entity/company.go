package entity

import "time"

// Company represents a selling organization (the invoice supplier).
// Address fields follow the Saudi national address format required on the XML.
type Company struct {
	ID                     string
	Name                   string
	VAT                    string // VAT registration number (15 digits, starts/ends with 3)
	CommercialRegistration string // CRN / additional identification
	Street                 string
	BuildingNumber         string
	AdditionalNumber       string // plot identification
	District               string
	City                   string
	State                  string
	Zip                    string
	CountryCode            string // ISO 3166-1 alpha-2; "SA" enables direct reporting
	CreatedAt              time.Time
	UpdatedAt              time.Time
}
