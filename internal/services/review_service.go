package services

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/korelia/storefront-backend/internal/catalog"
	"github.com/korelia/storefront-backend/internal/dto"
	"github.com/korelia/storefront-backend/internal/models"
	"github.com/korelia/storefront-backend/internal/rewards"
	"github.com/korelia/storefront-backend/internal/store"
)

var ErrAlreadyReviewed = errors.New("you have already reviewed this product")

type ReviewService struct {
	reviews *store.File[models.Review]
	catalog *catalog.Catalog
	ledger  *rewards.Ledger
	now     func() time.Time
}

func NewReviewService(reviews *store.File[models.Review], cat *catalog.Catalog, ledger *rewards.Ledger) *ReviewService {
	return &ReviewService{reviews: reviews, catalog: cat, ledger: ledger, now: time.Now}
}

// List returns the reviews of the product with slug, newest first.
func (s *ReviewService) List(slug string) ([]models.Review, error) {
	p, ok := s.catalog.BySlug(slug)
	if !ok {
		return nil, catalog.ErrProductNotFound
	}
	all, err := s.reviews.Load()
	if err != nil {
		return nil, fmt.Errorf("load reviews: %w", err)
	}
	out := []models.Review{}
	for _, r := range all {
		if r.ProductID == p.ID {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Create stores one review per user and product and credits the review bonus.
func (s *ReviewService) Create(user *models.User, slug string, req *dto.CreateReviewRequest) (*models.Review, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	p, ok := s.catalog.BySlug(slug)
	if !ok {
		return nil, catalog.ErrProductNotFound
	}

	review := models.Review{
		ID:        uuid.NewString(),
		ProductID: p.ID,
		UserID:    user.ID,
		Name:      displayName(user),
		Rating:    req.Rating,
		Comment:   strings.TrimSpace(req.Comment),
		CreatedAt: s.now().UTC(),
	}
	err := s.reviews.Update(func(reviews []models.Review) ([]models.Review, bool, error) {
		for _, r := range reviews {
			if r.ProductID == p.ID && r.UserID == user.ID {
				return nil, false, ErrAlreadyReviewed
			}
		}
		return append(reviews, review), true, nil
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.ledger.AddPoints(rewards.Target{UserID: user.ID}, rewards.ReviewBonus, rewards.ReasonReview,
		map[string]string{"product_id": p.ID}); err != nil {
		slog.Error("review bonus failed", "user_id", user.ID, "product_id", p.ID, "error", err)
	}
	return &review, nil
}

func displayName(u *models.User) string {
	if n := strings.TrimSpace(u.Name); n != "" {
		return n
	}
	if at := strings.IndexByte(u.Email, '@'); at > 0 {
		return u.Email[:at]
	}
	return "Customer"
}
