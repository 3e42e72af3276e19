package models

import "time"

// Bank is a linked aggregator item. AccessToken never leaves the server.
type Bank struct {
	ID               string    `json:"id"`
	UserID           int64     `json:"user_id"`
	ItemID           string    `json:"item_id"`
	AccountID        string    `json:"account_id"`
	AccessToken      string    `json:"-"`
	InstitutionID    string    `json:"institution_id"`
	FundingSourceURL string    `json:"funding_source_url"`
	ShareableID      string    `json:"shareable_id"`
	CreatedAt        time.Time `json:"created_at"`
}
