package transactions

import (
	"sort"

	"horizon-server/src/models"
)

// Combine concatenates fetched then transfer views, keeps the first record for
// each id and orders the result by date, newest first. Equal dates keep their
// input order.
func Combine(fetched, transfers []models.TransactionView) []models.TransactionView {
	out := make([]models.TransactionView, 0, len(fetched)+len(transfers))
	seen := make(map[string]struct{}, cap(out))
	for _, group := range [][]models.TransactionView{fetched, transfers} {
		for _, v := range group {
			if _, dup := seen[v.ID]; dup {
				continue
			}
			seen[v.ID] = struct{}{}
			out = append(out, v)
		}
	}

	SortByDateDesc(out)
	return out
}

func SortByDateDesc(views []models.TransactionView) {
	sort.SliceStable(views, func(i, j int) bool {
		return views[i].Date.After(views[j].Date)
	})
}
