package dto

type RedeemRequest struct {
	Tier string `json:"tier" validate:"required"`
}
