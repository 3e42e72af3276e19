package models

import "time"

type User struct {
	ID                  int64     `json:"id"`
	Email               string    `json:"email"`
	FirstName           string    `json:"first_name"`
	LastName            string    `json:"last_name"`
	PasswordHash        []byte    `json:"-"`
	PaymentsCustomerID  string    `json:"payments_customer_id"`
	PaymentsCustomerURL string    `json:"payments_customer_url"`
	CreatedAt           time.Time `json:"created_at"`
}

// RegisterRequest carries the identity fields the payments processor needs
// to open a personal customer alongside the local user.
type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Address1    string `json:"address1"`
	City        string `json:"city"`
	State       string `json:"state"`
	PostalCode  string `json:"postal_code"`
	DateOfBirth string `json:"date_of_birth"`
	SSN         string `json:"ssn"`
}
