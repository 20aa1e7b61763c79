package rewards

import (
	"fmt"
	"log/slog"

	"github.com/korelia/storefront-backend/internal/models"
)

type BackfillResult struct {
	Credited int `json:"credited"`
	Orders   int `json:"orders"`
}

// Backfill credits the user for paid orders placed under email that were
// never credited, and marks each of them done. Running it again is a no-op.
//
// The orders file lock is taken before the users file lock; every caller
// holding both must use the same order.
func (l *Ledger) Backfill(email, userID string) (BackfillResult, error) {
	var res BackfillResult
	email = NormalizeEmail(email)
	if email == "" {
		return res, nil
	}

	err := l.orders.Update(func(orders []models.Order) ([]models.Order, bool, error) {
		var matched []int
		for i := range orders {
			o := &orders[i]
			if !o.IsPaid() || o.RewardsSettled() || NormalizeEmail(o.Email) != email {
				continue
			}
			matched = append(matched, i)
		}
		if len(matched) == 0 {
			return orders, false, nil
		}

		awarded := make(map[int]int, len(matched))
		found := false
		err := l.users.Update(func(users []models.User) ([]models.User, bool, error) {
			u := findUser(users, Target{UserID: userID, Email: email})
			if u < 0 {
				return users, false, nil
			}
			found = true

			changed := false
			at := l.now()
			for _, i := range matched {
				o := &orders[i]
				pts := PointsForAmount(o.RewardsBase())
				e := NewEntry(pts, ReasonOrderBackfill, map[string]string{"order_id": o.ID}, at)
				if applyEntry(&users[u], e) {
					awarded[i] = pts
					changed = true
				}
			}
			return users, changed, nil
		})
		if err != nil {
			return nil, false, fmt.Errorf("credit backfill: %w", err)
		}
		if !found {
			return orders, false, nil
		}

		for _, i := range matched {
			pts := awarded[i]
			orders[i].RewardsBackfillDone = true
			orders[i].RewardsBackfillPoints = &pts
			orders[i].RewardsPendingEmail = ""
			res.Credited += pts
		}
		res.Orders = len(matched)
		return orders, true, nil
	})
	if err != nil {
		return BackfillResult{}, err
	}

	if res.Orders > 0 {
		slog.Info("rewards backfilled", "email", email, "user_id", userID, "orders", res.Orders, "points", res.Credited)
	}
	return res, nil
}
