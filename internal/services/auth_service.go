package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/korelia/storefront-backend/internal/config"
	"github.com/korelia/storefront-backend/internal/dto"
	"github.com/korelia/storefront-backend/internal/metrics"
	"github.com/korelia/storefront-backend/internal/models"
	"github.com/korelia/storefront-backend/internal/notify"
	"github.com/korelia/storefront-backend/internal/rewards"
	"github.com/korelia/storefront-backend/internal/store"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrUserNotFound       = errors.New("user not found")
	ErrAccountLocked      = errors.New("too many failed attempts, try again later")
	ErrAlreadyVerified    = errors.New("email already verified")
)

const (
	verifyTokenTTL = 24 * time.Hour
	resetTokenTTL  = time.Hour
)

type AuthService struct {
	cfg       *config.Config
	users     *store.File[models.User]
	ledger    *rewards.Ledger
	notifier  Notifier
	templates notify.Templates
	lockout   *Lockout
	now       func() time.Time
}

func NewAuthService(cfg *config.Config, users *store.File[models.User], ledger *rewards.Ledger, notifier Notifier, lockout *Lockout) *AuthService {
	return &AuthService{
		cfg:       cfg,
		users:     users,
		ledger:    ledger,
		notifier:  notifier,
		templates: notify.Templates{ShopName: cfg.ShopName, FrontendURL: cfg.FrontendURL},
		lockout:   lockout,
		now:       time.Now,
	}
}

// AuthResult is returned by flows that start a session.
type AuthResult struct {
	Token    string
	User     *models.User
	Backfill rewards.BackfillResult
}

func (s *AuthService) Register(ctx context.Context, req *dto.RegisterRequest) (*AuthResult, error) {
	req.Email = strings.TrimSpace(req.Email)
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	email := rewards.NormalizeEmail(req.Email)

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	rawVerify, verifyHash, err := newOpaqueToken()
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	verifyExpires := now.Add(verifyTokenTTL)
	user := models.User{
		ID:                 uuid.NewString(),
		Email:              email,
		Name:               strings.TrimSpace(req.Name),
		PasswordHash:       string(hash),
		Role:               models.RoleUser,
		CreatedAt:          now,
		EmailVerifyHash:    verifyHash,
		EmailVerifyExpires: &verifyExpires,
		Points:             rewards.SignupBonus,
		RewardsHistory: []models.RewardsHistoryEntry{
			rewards.NewEntry(rewards.SignupBonus, rewards.ReasonSignup, nil, now),
		},
	}

	err = s.users.Update(func(users []models.User) ([]models.User, bool, error) {
		for _, u := range users {
			if rewards.NormalizeEmail(u.Email) == email {
				return nil, false, ErrEmailTaken
			}
		}
		return append(users, user), true, nil
	})
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	metrics.RecordPoints(rewards.ReasonSignup, rewards.SignupBonus)
	slog.Info("user registered", "user_id", user.ID)

	enqueue(ctx, s.notifier, s.templates.EmailVerification(email, user.Name, rawVerify))
	return s.startSession(user.ID, email)
}

func (s *AuthService) Login(ctx context.Context, req *dto.LoginRequest) (*AuthResult, error) {
	req.Email = strings.TrimSpace(req.Email)
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	email := rewards.NormalizeEmail(req.Email)

	if locked, _ := s.lockout.Locked(email); locked {
		metrics.RecordLogin("locked")
		return nil, ErrAccountLocked
	}

	user, err := s.findByEmail(email)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		if s.lockout.RecordFailure(email) {
			slog.Warn("login locked after repeated failures", "email", email)
		}
		metrics.RecordLogin("invalid")
		return nil, ErrInvalidCredentials
	}

	s.lockout.Reset(email)
	metrics.RecordLogin("success")
	return s.startSession(user.ID, email)
}

// startSession runs the guest-order backfill and issues a token for the
// refreshed user record.
func (s *AuthService) startSession(userID, email string) (*AuthResult, error) {
	backfill, err := s.ledger.Backfill(email, userID)
	if err != nil {
		slog.Error("rewards backfill failed", "user_id", userID, "error", err)
	}

	user, err := s.GetUser(userID)
	if err != nil {
		return nil, err
	}
	token, err := s.IssueToken(user)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, User: user, Backfill: backfill}, nil
}

func (s *AuthService) VerifyEmail(req *dto.TokenRequest) (*models.User, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	hash := hashToken(req.Token)
	now := s.now()

	var verified *models.User
	err := s.users.Update(func(users []models.User) ([]models.User, bool, error) {
		for i := range users {
			u := &users[i]
			if u.EmailVerifyHash == "" || u.EmailVerifyHash != hash {
				continue
			}
			if u.EmailVerifyExpires == nil || now.After(*u.EmailVerifyExpires) {
				return nil, false, ErrInvalidToken
			}
			u.EmailVerified = true
			u.EmailVerifyHash = ""
			u.EmailVerifyExpires = nil
			cp := *u
			verified = &cp
			return users, true, nil
		}
		return nil, false, ErrInvalidToken
	})
	if err != nil {
		return nil, err
	}
	return verified, nil
}

func (s *AuthService) ResendVerification(ctx context.Context, userID string) error {
	raw, hash, err := newOpaqueToken()
	if err != nil {
		return err
	}
	expires := s.now().UTC().Add(verifyTokenTTL)

	var user models.User
	err = s.users.Update(func(users []models.User) ([]models.User, bool, error) {
		i := indexByID(users, userID)
		if i < 0 {
			return nil, false, ErrUserNotFound
		}
		if users[i].EmailVerified {
			return nil, false, ErrAlreadyVerified
		}
		users[i].EmailVerifyHash = hash
		users[i].EmailVerifyExpires = &expires
		user = users[i]
		return users, true, nil
	})
	if err != nil {
		return err
	}

	enqueue(ctx, s.notifier, s.templates.EmailVerification(user.Email, user.Name, raw))
	return nil
}

// ForgotPassword mails a reset link when the account exists. Unknown emails
// are not reported to the caller.
func (s *AuthService) ForgotPassword(ctx context.Context, req *dto.EmailRequest) error {
	req.Email = strings.TrimSpace(req.Email)
	if err := validateStruct(req); err != nil {
		return err
	}
	email := rewards.NormalizeEmail(req.Email)

	raw, hash, err := newOpaqueToken()
	if err != nil {
		return err
	}
	expires := s.now().UTC().Add(resetTokenTTL)

	var user *models.User
	err = s.users.Update(func(users []models.User) ([]models.User, bool, error) {
		for i := range users {
			if rewards.NormalizeEmail(users[i].Email) != email {
				continue
			}
			users[i].ResetHash = hash
			users[i].ResetExpires = &expires
			cp := users[i]
			user = &cp
			return users, true, nil
		}
		return users, false, nil
	})
	if err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}
	if user == nil {
		slog.Info("password reset requested for unknown email")
		return nil
	}

	enqueue(ctx, s.notifier, s.templates.PasswordReset(user.Email, user.Name, raw))
	return nil
}

// ResetPassword sets a new password from a reset token and revokes every
// existing session.
func (s *AuthService) ResetPassword(req *dto.ResetPasswordRequest) error {
	if err := validateStruct(req); err != nil {
		return err
	}
	newHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	hash := hashToken(req.Token)
	now := s.now()

	var email string
	err = s.users.Update(func(users []models.User) ([]models.User, bool, error) {
		for i := range users {
			u := &users[i]
			if u.ResetHash == "" || u.ResetHash != hash {
				continue
			}
			if u.ResetExpires == nil || now.After(*u.ResetExpires) {
				return nil, false, ErrInvalidToken
			}
			u.PasswordHash = string(newHash)
			u.ResetHash = ""
			u.ResetExpires = nil
			u.TokenVersion++
			email = u.Email
			return users, true, nil
		}
		return nil, false, ErrInvalidToken
	})
	if err != nil {
		return err
	}

	s.lockout.Reset(rewards.NormalizeEmail(email))
	return nil
}

// ChangePassword verifies the current password, stores the new one and
// returns a fresh token; tokens issued before the change stop working.
func (s *AuthService) ChangePassword(userID string, req *dto.ChangePasswordRequest) (string, error) {
	if err := validateStruct(req); err != nil {
		return "", err
	}
	newHash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), s.cfg.BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	var updated models.User
	err = s.users.Update(func(users []models.User) ([]models.User, bool, error) {
		i := indexByID(users, userID)
		if i < 0 {
			return nil, false, ErrUserNotFound
		}
		if bcrypt.CompareHashAndPassword([]byte(users[i].PasswordHash), []byte(req.CurrentPassword)) != nil {
			return nil, false, ErrInvalidCredentials
		}
		users[i].PasswordHash = string(newHash)
		users[i].TokenVersion++
		updated = users[i]
		return users, true, nil
	})
	if err != nil {
		return "", err
	}
	return s.IssueToken(&updated)
}

func (s *AuthService) UpdateProfile(userID string, req *dto.UpdateProfileRequest) (*models.User, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	var updated models.User
	err := s.users.Update(func(users []models.User) ([]models.User, bool, error) {
		i := indexByID(users, userID)
		if i < 0 {
			return nil, false, ErrUserNotFound
		}
		users[i].Name = strings.TrimSpace(req.Name)
		updated = users[i]
		return users, true, nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *AuthService) GetUser(userID string) (*models.User, error) {
	users, err := s.users.Load()
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	i := indexByID(users, userID)
	if i < 0 {
		return nil, ErrUserNotFound
	}
	return &users[i], nil
}

// PromoteAdmin grants the admin role to the account registered under email.
func (s *AuthService) PromoteAdmin(email string) (*models.User, error) {
	email = rewards.NormalizeEmail(email)
	var updated models.User
	err := s.users.Update(func(users []models.User) ([]models.User, bool, error) {
		for i := range users {
			if rewards.NormalizeEmail(users[i].Email) == email {
				changed := users[i].Role != models.RoleAdmin
				users[i].Role = models.RoleAdmin
				updated = users[i]
				return users, changed, nil
			}
		}
		return nil, false, ErrUserNotFound
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *AuthService) findByEmail(email string) (*models.User, error) {
	users, err := s.users.Load()
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	for i := range users {
		if rewards.NormalizeEmail(users[i].Email) == email {
			return &users[i], nil
		}
	}
	return nil, ErrUserNotFound
}

// IssueToken signs a session JWT. The tv claim pins the token to the user's
// current token version.
func (s *AuthService) IssueToken(user *models.User) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"sub":   user.ID,
		"email": user.Email,
		"role":  user.Role,
		"tv":    user.TokenVersion,
		"iat":   now.Unix(),
		"exp":   now.Add(s.cfg.JWTExpiry).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func indexByID(users []models.User, id string) int {
	for i := range users {
		if users[i].ID == id {
			return i
		}
	}
	return -1
}

// newOpaqueToken returns a random URL-safe token and the hash that is stored.
func newOpaqueToken() (raw, hash string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	raw = base64.RawURLEncoding.EncodeToString(b)
	return raw, hashToken(raw), nil
}

func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return fmt.Sprintf("%x", h)
}
