package transactions

import (
	"horizon-server/src/categories"
	"horizon-server/src/models"
)

// FromAggregator normalizes fetched records, mapping their category codes.
func FromAggregator(txns []models.Transaction, mapper *categories.Mapper) []models.TransactionView {
	views := make([]models.TransactionView, 0, len(txns))
	for _, t := range txns {
		v := models.TransactionView{
			ID:             t.ID,
			Name:           t.Name,
			Amount:         t.Amount,
			PaymentChannel: t.PaymentChannel,
			Category:       mapper.Map(t.PrimaryCategory),
			Date:           t.Date,
			Pending:        t.Pending,
			Source:         models.SourceAggregator,
		}
		if t.LogoURL != nil {
			v.Image = *t.LogoURL
		}
		views = append(views, v)
	}
	return views
}

// MergeTransfers normalizes transfers as seen from bankID: debit when bankID
// sent the money, credit otherwise.
func MergeTransfers(bankID string, transfers []models.Transfer) []models.TransactionView {
	views := make([]models.TransactionView, 0, len(transfers))
	for _, t := range transfers {
		views = append(views, models.TransactionView{
			ID:             t.ID,
			Name:           t.Name,
			Amount:         t.Amount,
			PaymentChannel: t.Channel,
			Category:       t.Category,
			Date:           t.CreatedAt,
			Direction:      DirectionFor(bankID, t),
			Source:         models.SourceTransfer,
		})
	}
	return views
}

func DirectionFor(bankID string, t models.Transfer) models.Direction {
	if t.SenderBankID == bankID {
		return models.DirectionDebit
	}
	return models.DirectionCredit
}
