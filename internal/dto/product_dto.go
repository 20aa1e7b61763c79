package dto

type CreateReviewRequest struct {
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment" validate:"max=2000"`
}

// StockRequest sets an absolute value with Stock, or a relative one with Delta.
// Untrack clears tracking.
type StockRequest struct {
	Stock   *int `json:"stock" validate:"omitempty,min=0"`
	Delta   *int `json:"delta"`
	Untrack bool `json:"untrack"`
}
