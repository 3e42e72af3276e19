package models

import "time"

type Direction string

const (
	DirectionDebit  Direction = "debit"
	DirectionCredit Direction = "credit"
)

const (
	SourceAggregator = "aggregator"
	SourceTransfer   = "transfer"
)

// Transaction is a record fetched from the aggregator sync feed.
type Transaction struct {
	ID              string    `json:"id"`
	AccountID       string    `json:"account_id"`
	Name            string    `json:"name"`
	Amount          float64   `json:"amount"`
	PaymentChannel  string    `json:"payment_channel"`
	Pending         bool      `json:"pending"`
	PrimaryCategory *string   `json:"primary_category,omitempty"`
	Date            time.Time `json:"date"`
	LogoURL         *string   `json:"logo_url,omitempty"`
}

// Transfer is a money movement between two bank items recorded by this server.
type Transfer struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Amount         float64   `json:"amount"`
	Channel        string    `json:"channel"`
	Category       string    `json:"category"`
	Email          string    `json:"email"`
	SenderID       int64     `json:"sender_id"`
	SenderBankID   string    `json:"sender_bank_id"`
	ReceiverID     int64     `json:"receiver_id"`
	ReceiverBankID string    `json:"receiver_bank_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// TransactionView is the common shape both sources are normalized to.
// Direction is empty for aggregator records; the sign of Amount carries it there.
type TransactionView struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Amount         float64   `json:"amount"`
	PaymentChannel string    `json:"payment_channel"`
	Category       string    `json:"category"`
	Date           time.Time `json:"date"`
	Direction      Direction `json:"type,omitempty"`
	Pending        bool      `json:"pending"`
	Image          string    `json:"image,omitempty"`
	Source         string    `json:"source"`
}

type TransactionPage struct {
	Transactions []TransactionView `json:"transactions"`
	Page         int               `json:"page"`
	PageSize     int               `json:"page_size"`
	TotalPages   int               `json:"total_pages"`
	Total        int               `json:"total"`
	From         int               `json:"from"`
	To           int               `json:"to"`
}

type CategoryCount struct {
	Name       string `json:"name"`
	Count      int    `json:"count"`
	TotalCount int    `json:"total_count"`
}

type CreateTransferRequest struct {
	SenderBankID string `json:"sender_bank_id"`
	ShareableID  string `json:"shareable_id"`
	Amount       string `json:"amount"`
	Name         string `json:"name"`
	Email        string `json:"email"`
}
