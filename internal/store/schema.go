package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/korelia/storefront-backend/internal/models"
)

const SchemaFile = "schema_version.json"

type schemaState struct {
	Version   int       `json:"version"`
	AppliedAt time.Time `json:"applied_at"`
}

type migration struct {
	version int
	name    string
	apply   func(s *Stores) error
}

// migrations run in order, once each. Append only.
var migrations = []migration{
	{1, "normalize users", migrateUsers},
	{2, "seed order status history", migrateOrders},
	{3, "product prices to cents", migrateProducts},
}

// LatestVersion is the schema version written after all migrations ran.
func LatestVersion() int {
	return migrations[len(migrations)-1].version
}

type MigrationResult struct {
	From    int
	To      int
	Applied []string
}

// Migrate brings the data directory up to LatestVersion.
func Migrate(s *Stores) (MigrationResult, error) {
	current, err := s.SchemaVersion()
	if err != nil {
		return MigrationResult{}, err
	}

	result := MigrationResult{From: current, To: current}
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := m.apply(s); err != nil {
			return result, fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
		if err := s.setSchemaVersion(m.version); err != nil {
			return result, err
		}
		result.To = m.version
		result.Applied = append(result.Applied, m.name)
		slog.Info("schema migration applied", "version", m.version, "name", m.name)
	}
	return result, nil
}

// SchemaVersion returns 0 for a data directory that was never migrated.
func (s *Stores) SchemaVersion() (int, error) {
	data, err := os.ReadFile(filepath.Join(s.Dir, SchemaFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	var state schemaState
	if err := json.Unmarshal(data, &state); err != nil {
		return 0, fmt.Errorf("parse schema version: %w", err)
	}
	return state.Version, nil
}

func (s *Stores) setSchemaVersion(v int) error {
	data, err := json.MarshalIndent(schemaState{Version: v, AppliedAt: time.Now().UTC()}, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(filepath.Join(s.Dir, SchemaFile), append(data, '\n'))
}

func migrateUsers(s *Stores) error {
	return s.Users.Update(func(users []models.User) ([]models.User, bool, error) {
		changed := false
		for i := range users {
			u := &users[i]
			email := strings.ToLower(strings.TrimSpace(u.Email))
			if email != u.Email {
				u.Email = email
				changed = true
			}
			if u.Role == "" {
				u.Role = models.RoleUser
				changed = true
			}
			if u.RewardsHistory == nil {
				u.RewardsHistory = []models.RewardsHistoryEntry{}
				changed = true
			}
			if u.Points < 0 {
				u.Points = 0
				changed = true
			}
		}
		return users, changed, nil
	})
}

func migrateOrders(s *Stores) error {
	return s.Orders.Update(func(orders []models.Order) ([]models.Order, bool, error) {
		changed := false
		for i := range orders {
			o := &orders[i]
			if o.Status == "" {
				o.Status = models.OrderStatusPaid
				changed = true
			}
			if len(o.StatusHistory) == 0 {
				o.StatusHistory = []models.StatusHistoryEntry{{Status: o.Status, At: o.CreatedAt}}
				changed = true
			}
			if lower := strings.ToLower(o.Currency); lower != o.Currency {
				o.Currency = lower
				changed = true
			}
			if email := strings.ToLower(o.Email); email != o.Email {
				o.Email = email
				changed = true
			}
		}
		return orders, changed, nil
	})
}

func migrateProducts(s *Stores) error {
	return s.Products.Update(func(products []models.Product) ([]models.Product, bool, error) {
		changed := false
		for i := range products {
			p := &products[i]
			if p.PriceCents == 0 && p.Price != nil {
				p.PriceCents = p.Price.Shift(2).Round(0).IntPart()
				changed = true
			}
		}
		return products, changed, nil
	})
}
