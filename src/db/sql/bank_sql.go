package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"horizon-server/src/models"
)

type BankStore struct {
	db DBTX
}

func NewBankStore(db DBTX) *BankStore {
	return &BankStore{db: db}
}

const bankColumns = `id, user_id, item_id, account_id, access_token, institution_id, funding_source_url, shareable_id, created_at`

func scanBank(row pgx.Row) (*models.Bank, error) {
	var bank models.Bank
	err := row.Scan(
		&bank.ID,
		&bank.UserID,
		&bank.ItemID,
		&bank.AccountID,
		&bank.AccessToken,
		&bank.InstitutionID,
		&bank.FundingSourceURL,
		&bank.ShareableID,
		&bank.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &bank, nil
}

// ListByUser returns the user's banks in the order they were linked.
func (s *BankStore) ListByUser(ctx context.Context, userID int64) ([]models.Bank, error) {
	query := `SELECT ` + bankColumns + ` FROM banks WHERE user_id = $1 ORDER BY created_at, id`

	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query banks: %w", err)
	}
	defer rows.Close()

	banks := []models.Bank{}
	for rows.Next() {
		bank, err := scanBank(rows)
		if err != nil {
			return nil, err
		}
		banks = append(banks, *bank)
	}

	return banks, rows.Err()
}

func (s *BankStore) Get(ctx context.Context, id string) (*models.Bank, error) {
	return s.getBy(ctx, "id", id)
}

func (s *BankStore) GetByAccountID(ctx context.Context, accountID string) (*models.Bank, error) {
	return s.getBy(ctx, "account_id", accountID)
}

func (s *BankStore) GetByItemID(ctx context.Context, itemID string) (*models.Bank, error) {
	return s.getBy(ctx, "item_id", itemID)
}

// getBy is only called with fixed column names.
func (s *BankStore) getBy(ctx context.Context, column, value string) (*models.Bank, error) {
	query := `SELECT ` + bankColumns + ` FROM banks WHERE ` + column + ` = $1`

	bank, err := scanBank(s.db.QueryRow(ctx, query, value))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &models.ErrNotFound{Resource: "bank", ID: value}
		}
		return nil, fmt.Errorf("query bank: %w", err)
	}
	return bank, nil
}

// Save inserts bank and fills in its creation time.
func (s *BankStore) Save(ctx context.Context, bank *models.Bank) error {
	query := `
		INSERT INTO banks (id, user_id, item_id, account_id, access_token, institution_id, funding_source_url, shareable_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`

	err := s.db.QueryRow(ctx, query,
		bank.ID,
		bank.UserID,
		bank.ItemID,
		bank.AccountID,
		bank.AccessToken,
		bank.InstitutionID,
		bank.FundingSourceURL,
		bank.ShareableID,
	).Scan(&bank.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return &models.ErrConflict{Message: "bank account already linked"}
		}
		return fmt.Errorf("failed to save bank: %w", err)
	}
	return nil
}
