// Package rewards keeps the loyalty points ledger stored on each user:
// earning on purchases, signup and reviews, retroactive backfill by email,
// and redemption of points for single-use discount codes.
package rewards

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/korelia/storefront-backend/internal/metrics"
	"github.com/korelia/storefront-backend/internal/models"
	"github.com/korelia/storefront-backend/internal/payments"
	"github.com/korelia/storefront-backend/internal/store"
)

const (
	ReasonSignup        = "signup"
	ReasonOrder         = "order"
	ReasonOrderBackfill = "order_backfill"
	ReasonReview        = "review"
	reasonRedeemPrefix  = "redeem:"
)

const (
	SignupBonus = 50
	ReviewBonus = 10
)

var (
	ErrUnknownTier        = errors.New("unknown reward tier")
	ErrInsufficientPoints = errors.New("not enough points")
	ErrUserNotFound       = errors.New("user not found")
	ErrGateway            = errors.New("discount could not be created")
)

// Target identifies the user to credit. UserID wins when set; Email is only
// consulted when UserID is empty.
type Target struct {
	UserID string
	Email  string
}

type Ledger struct {
	users     *store.File[models.User]
	orders    *store.File[models.Order]
	discounts payments.DiscountCreator
	currency  string
	now       func() time.Time

	redeemMu sync.Mutex
}

func NewLedger(s *store.Stores, discounts payments.DiscountCreator, currency string) *Ledger {
	return &Ledger{
		users:     s.Users,
		orders:    s.Orders,
		discounts: discounts,
		currency:  currency,
		now:       time.Now,
	}
}

// PointsForAmount converts minor units to points: one point per whole unit, truncated.
func PointsForAmount(minor int64) int {
	if minor <= 0 {
		return 0
	}
	return int(minor / 100)
}

func NewEntry(delta int, reason string, extra map[string]string, at time.Time) models.RewardsHistoryEntry {
	return models.RewardsHistoryEntry{
		ID:     ulid.Make().String(),
		At:     at.UTC(),
		Delta:  delta,
		Reason: reason,
		Extra:  extra,
	}
}

// AddPoints applies delta to the target's balance, clamped at zero, and
// prepends a history entry. It reports false when no user matches.
func (l *Ledger) AddPoints(t Target, delta int, reason string, extra map[string]string) (bool, error) {
	id, err := l.addPoints(t, delta, reason, extra)
	return id != "", err
}

// addPoints returns the id of the credited user, or "" when none matched.
func (l *Ledger) addPoints(t Target, delta int, reason string, extra map[string]string) (string, error) {
	var matched string
	err := l.users.Update(func(users []models.User) ([]models.User, bool, error) {
		i := findUser(users, t)
		if i < 0 {
			return users, false, nil
		}
		matched = users[i].ID
		changed := applyEntry(&users[i], NewEntry(delta, reason, extra, l.now()))
		return users, changed, nil
	})
	if err != nil {
		return "", fmt.Errorf("add points: %w", err)
	}
	return matched, nil
}

// CreditOrder credits purchase points for o, trying the order's user id first
// and the order email second, and stamps the outcome on o. The caller persists o.
func (l *Ledger) CreditOrder(o *models.Order) error {
	if o.RewardsSettled() {
		return nil
	}

	points := PointsForAmount(o.RewardsBase())
	extra := map[string]string{"order_id": o.ID}

	var credited string
	if o.UserID != "" {
		id, err := l.addPoints(Target{UserID: o.UserID}, points, ReasonOrder, extra)
		if err != nil {
			return err
		}
		credited = id
	}
	if credited == "" && o.Email != "" {
		id, err := l.addPoints(Target{Email: o.Email}, points, ReasonOrder, extra)
		if err != nil {
			return err
		}
		credited = id
	}

	if credited == "" {
		o.RewardsPendingEmail = NormalizeEmail(o.Email)
		return nil
	}

	at := l.now().UTC()
	o.RewardsPoints = &points
	o.RewardsCreditedUserID = credited
	o.RewardsCreditedAt = &at
	o.RewardsPendingEmail = ""
	return nil
}

// Summary is the balance view served to the account page.
type Summary struct {
	Points  int                          `json:"points"`
	History []models.RewardsHistoryEntry `json:"history"`
	Tiers   []Tier                       `json:"tiers"`
}

func (l *Ledger) Summary(userID string, limit int) (*Summary, error) {
	users, err := l.users.Load()
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	i := findUser(users, Target{UserID: userID})
	if i < 0 {
		return nil, ErrUserNotFound
	}

	history := users[i].RewardsHistory
	if limit > 0 && len(history) > limit {
		history = history[:limit]
	}
	if history == nil {
		history = []models.RewardsHistoryEntry{}
	}
	return &Summary{Points: users[i].Points, History: history, Tiers: Tiers}, nil
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func findUser(users []models.User, t Target) int {
	if t.UserID != "" {
		for i := range users {
			if users[i].ID == t.UserID {
				return i
			}
		}
		return -1
	}
	email := NormalizeEmail(t.Email)
	if email == "" {
		return -1
	}
	for i := range users {
		if NormalizeEmail(users[i].Email) == email {
			return i
		}
	}
	return -1
}

// applyEntry folds e into u's balance and history. Order credits already
// present in the history for the same order id are skipped. A zero delta
// leaves the user untouched.
func applyEntry(u *models.User, e models.RewardsHistoryEntry) bool {
	if e.Delta == 0 {
		return false
	}
	if orderID := e.Extra["order_id"]; orderID != "" && isOrderCredit(e.Reason) {
		for _, h := range u.RewardsHistory {
			if isOrderCredit(h.Reason) && h.Extra["order_id"] == orderID {
				return false
			}
		}
	}

	u.Points += e.Delta
	if u.Points < 0 {
		u.Points = 0
	}
	u.RewardsHistory = append([]models.RewardsHistoryEntry{e}, u.RewardsHistory...)
	metrics.RecordPoints(e.Reason, e.Delta)
	return true
}

func isOrderCredit(reason string) bool {
	return reason == ReasonOrder || reason == ReasonOrderBackfill
}
