package dto

import (
	"time"

	"github.com/korelia/storefront-backend/internal/models"
	"github.com/korelia/storefront-backend/internal/rewards"
)

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=128"`
	Name     string `json:"name" validate:"max=100"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type TokenRequest struct {
	Token string `json:"token" validate:"required"`
}

type EmailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=128"`
}

type UpdateProfileRequest struct {
	Name string `json:"name" validate:"max=100"`
}

type AuthResponse struct {
	Token           string                  `json:"token"`
	User            UserResponse            `json:"user"`
	RewardsBackfill *rewards.BackfillResult `json:"rewards_backfill,omitempty"`
}

type UserResponse struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	Role          string    `json:"role"`
	EmailVerified bool      `json:"email_verified"`
	Points        int       `json:"points"`
	CreatedAt     time.Time `json:"created_at"`
}

func NewUserResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		Role:          u.Role,
		EmailVerified: u.EmailVerified,
		Points:        u.Points,
		CreatedAt:     u.CreatedAt,
	}
}

type CSRFResponse struct {
	CSRFToken string `json:"csrf_token"`
}

type ErrorResponse struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Products  int    `json:"products"`
	Outbox    string `json:"outbox"`
}
