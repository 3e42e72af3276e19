package models

type Account struct {
	ID               string  `json:"id"`
	AvailableBalance float64 `json:"available_balance"`
	CurrentBalance   float64 `json:"current_balance"`
	InstitutionID    string  `json:"institution_id"`
	InstitutionName  string  `json:"institution_name"`
	Name             string  `json:"name"`
	OfficialName     string  `json:"official_name"`
	Mask             string  `json:"mask"`
	Type             string  `json:"type"`
	Subtype          string  `json:"subtype"`
	BankID           string  `json:"bank_id"`
	ShareableID      string  `json:"shareable_id"`
}

type AccountsSummary struct {
	Data                []Account `json:"data"`
	TotalBanks          int       `json:"total_banks"`
	TotalCurrentBalance float64   `json:"total_current_balance"`
}

type AccountDetail struct {
	Data *Account `json:"data"`
	TransactionPage
}

// TransactionHistory holds one page of the merged view per linked bank, in
// the order the banks were linked.
type TransactionHistory struct {
	Data       []AccountDetail `json:"data"`
	TotalBanks int             `json:"total_banks"`
}
