package dto

type CheckoutItem struct {
	ID       string `json:"id" validate:"required"`
	Quantity int    `json:"quantity" validate:"required,min=1,max=10"`
}

type CheckoutRequest struct {
	Items []CheckoutItem `json:"items" validate:"required,min=1,max=50,dive"`
	Email string         `json:"email" validate:"omitempty,email"`
}

type CheckoutResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type TrackingRequest struct {
	Carrier string `json:"carrier" validate:"max=100"`
	Number  string `json:"number" validate:"max=100"`
	URL     string `json:"url" validate:"omitempty,url"`
}

type UpdateOrderStatusRequest struct {
	Status   string           `json:"status" validate:"required,oneof=paid preparing shipped delivered canceled"`
	Note     string           `json:"note" validate:"max=500"`
	Tracking *TrackingRequest `json:"tracking"`
}
