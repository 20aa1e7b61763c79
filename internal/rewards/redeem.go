package rewards

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"

	"github.com/korelia/storefront-backend/internal/metrics"
	"github.com/korelia/storefront-backend/internal/models"
	"github.com/korelia/storefront-backend/internal/payments"
)

const (
	codePrefix   = "KOR-"
	codeLength   = 8
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

type Redemption struct {
	Code   string                     `json:"code"`
	Tier   Tier                       `json:"tier"`
	Points int                        `json:"points"`
	Entry  models.RewardsHistoryEntry `json:"entry"`
}

// Redeem exchanges tier.Cost points for a single-use discount code. The
// balance is debited only after the gateway has issued the code.
func (l *Ledger) Redeem(ctx context.Context, userID, tierKey string) (*Redemption, error) {
	tier, ok := Lookup(tierKey)
	if !ok {
		return nil, ErrUnknownTier
	}

	// Redemptions never interleave, so the balance read below still holds at debit time.
	l.redeemMu.Lock()
	defer l.redeemMu.Unlock()

	users, err := l.users.Load()
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	i := findUser(users, Target{UserID: userID})
	if i < 0 {
		return nil, ErrUserNotFound
	}
	if users[i].Points < tier.Cost {
		metrics.RecordRedemption(tier.Key, "insufficient")
		return nil, ErrInsufficientPoints
	}

	code, err := newCode()
	if err != nil {
		return nil, err
	}

	d, err := l.discounts.CreateDiscount(ctx, payments.DiscountRequest{
		Code:          code,
		Name:          "Korelia rewards " + tier.Key,
		AmountOff:     tier.AmountOff,
		Currency:      l.currency,
		MinimumAmount: tier.MinimumAmount,
		Metadata:      map[string]string{"user_id": userID, "tier": tier.Key},
	})
	if err != nil {
		metrics.RecordRedemption(tier.Key, "gateway_error")
		slog.Error("reward discount creation failed", "user_id", userID, "tier", tier.Key, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}

	entry := NewEntry(-tier.Cost, reasonRedeemPrefix+tier.Key, map[string]string{
		"code":              d.Code,
		"coupon_id":         d.CouponID,
		"promotion_code_id": d.PromotionCodeID,
	}, l.now())

	var balance int
	err = l.users.Update(func(users []models.User) ([]models.User, bool, error) {
		i := findUser(users, Target{UserID: userID})
		if i < 0 {
			return users, false, ErrUserNotFound
		}
		if users[i].Points < tier.Cost {
			return users, false, ErrInsufficientPoints
		}
		applyEntry(&users[i], entry)
		balance = users[i].Points
		return users, true, nil
	})
	if err != nil {
		// The code exists upstream but was not paid for; the promotion code id is logged for manual cleanup.
		slog.Error("reward debit failed after discount creation", "user_id", userID, "tier", tier.Key,
			"promotion_code_id", d.PromotionCodeID, "error", err)
		return nil, fmt.Errorf("debit points: %w", err)
	}

	metrics.RecordRedemption(tier.Key, "ok")
	slog.Info("reward redeemed", "user_id", userID, "tier", tier.Key, "code", d.Code)
	return &Redemption{Code: d.Code, Tier: tier, Points: balance, Entry: entry}, nil
}

func newCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	out := make([]byte, codeLength)
	for i, b := range buf {
		out[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return codePrefix + string(out), nil
}
