package db

import (
	"context"
	"fmt"

	"horizon-server/src/models"
)

type TransferStore struct {
	db DBTX
}

func NewTransferStore(db DBTX) *TransferStore {
	return &TransferStore{db: db}
}

// ListByBank returns transfers where bankID is the sender or the receiver.
func (s *TransferStore) ListByBank(ctx context.Context, bankID string) ([]models.Transfer, error) {
	query := `
		SELECT id, name, amount::float8, channel, category, email,
		       sender_id, sender_bank_id, receiver_id, receiver_bank_id, created_at
		FROM transfers
		WHERE sender_bank_id = $1 OR receiver_bank_id = $1
		ORDER BY created_at DESC
	`

	rows, err := s.db.Query(ctx, query, bankID)
	if err != nil {
		return nil, fmt.Errorf("query transfers: %w", err)
	}
	defer rows.Close()

	transfers := []models.Transfer{}
	for rows.Next() {
		var t models.Transfer
		err := rows.Scan(
			&t.ID,
			&t.Name,
			&t.Amount,
			&t.Channel,
			&t.Category,
			&t.Email,
			&t.SenderID,
			&t.SenderBankID,
			&t.ReceiverID,
			&t.ReceiverBankID,
			&t.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, t)
	}

	return transfers, rows.Err()
}

// Create inserts t and fills in its creation time.
func (s *TransferStore) Create(ctx context.Context, t *models.Transfer) error {
	query := `
		INSERT INTO transfers (id, name, amount, channel, category, email, sender_id, sender_bank_id, receiver_id, receiver_bank_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`

	err := s.db.QueryRow(ctx, query,
		t.ID,
		t.Name,
		t.Amount,
		t.Channel,
		t.Category,
		t.Email,
		t.SenderID,
		t.SenderBankID,
		t.ReceiverID,
		t.ReceiverBankID,
	).Scan(&t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create transfer: %w", err)
	}
	return nil
}
