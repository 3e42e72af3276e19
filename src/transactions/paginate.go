package transactions

import "horizon-server/src/models"

const DefaultPageSize = 10

// Paginate returns the 1-indexed page of views. Pages below 1 are treated as 1;
// pages past the end come back empty with the totals still filled in.
func Paginate(views []models.TransactionView, page, pageSize int) models.TransactionPage {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if page < 1 {
		page = 1
	}

	total := len(views)
	totalPages := (total + pageSize - 1) / pageSize

	p := models.TransactionPage{
		Transactions: []models.TransactionView{},
		Page:         page,
		PageSize:     pageSize,
		TotalPages:   totalPages,
		Total:        total,
	}

	start := (page - 1) * pageSize
	if start >= total {
		return p
	}
	end := min(start+pageSize, total)

	p.Transactions = views[start:end]
	p.From = start + 1
	p.To = end
	return p
}
