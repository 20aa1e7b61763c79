package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/korelia/storefront-backend/internal/catalog"
	"github.com/korelia/storefront-backend/internal/dto"
	"github.com/korelia/storefront-backend/internal/rewards"
)

func TestReviews_CreateCreditsBonusOnce(t *testing.T) {
	env := newTestEnv(t)
	user := registerUser(t, env, "mina.park@example.com")

	r, err := env.reviews.Create(user, "snail-essence", &dto.CreateReviewRequest{Rating: 5, Comment: " Glowy skin! "})
	require.NoError(t, err)
	assert.Equal(t, "p1", r.ProductID)
	assert.Equal(t, "mina.park", r.Name)
	assert.Equal(t, "Glowy skin!", r.Comment)

	_, err = env.reviews.Create(user, "snail-essence", &dto.CreateReviewRequest{Rating: 3})
	assert.ErrorIs(t, err, ErrAlreadyReviewed)

	u, err := env.auth.GetUser(user.ID)
	require.NoError(t, err)
	assert.Equal(t, rewards.SignupBonus+rewards.ReviewBonus, u.Points)
	assert.Equal(t, rewards.ReasonReview, u.RewardsHistory[0].Reason)
	assert.Equal(t, "p1", u.RewardsHistory[0].Extra["product_id"])

	// A different product earns its own bonus.
	_, err = env.reviews.Create(user, "cica-cream", &dto.CreateReviewRequest{Rating: 4})
	require.NoError(t, err)
	u, err = env.auth.GetUser(user.ID)
	require.NoError(t, err)
	assert.Equal(t, rewards.SignupBonus+2*rewards.ReviewBonus, u.Points)
}

func TestReviews_Rejections(t *testing.T) {
	env := newTestEnv(t)
	user := registerUser(t, env, "a@example.com")

	_, err := env.reviews.Create(user, "snail-essence", &dto.CreateReviewRequest{Rating: 6})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.reviews.Create(user, "no-such-product", &dto.CreateReviewRequest{Rating: 4})
	assert.ErrorIs(t, err, catalog.ErrProductNotFound)

	_, err = env.reviews.List("no-such-product")
	assert.ErrorIs(t, err, catalog.ErrProductNotFound)
}

func TestReviews_ListNewestFirst(t *testing.T) {
	env := newTestEnv(t)
	a := registerUser(t, env, "a@example.com")
	b := registerUser(t, env, "b@example.com")
	_, err := env.auth.UpdateProfile(b.ID, &dto.UpdateProfileRequest{Name: "Bea"})
	require.NoError(t, err)
	b, err = env.auth.GetUser(b.ID)
	require.NoError(t, err)

	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	env.reviews.now = func() time.Time { return now }
	_, err = env.reviews.Create(a, "rice-toner", &dto.CreateReviewRequest{Rating: 4})
	require.NoError(t, err)
	now = now.Add(time.Hour)
	_, err = env.reviews.Create(b, "rice-toner", &dto.CreateReviewRequest{Rating: 2})
	require.NoError(t, err)
	_, err = env.reviews.Create(b, "snail-essence", &dto.CreateReviewRequest{Rating: 5})
	require.NoError(t, err)

	list, err := env.reviews.List("rice-toner")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Bea", list[0].Name)
	assert.Equal(t, 4, list[1].Rating)
}
