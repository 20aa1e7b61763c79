package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/korelia/storefront-backend/internal/models"
)

const (
	UsersFile    = "users.json"
	OrdersFile   = "orders.json"
	ProductsFile = "products.json"
	ReviewsFile  = "reviews.json"
)

// Stores groups the data files living under one data directory.
type Stores struct {
	Dir      string
	Users    *File[models.User]
	Orders   *File[models.Order]
	Products *File[models.Product]
	Reviews  *File[models.Review]
}

func Open(dir string) (*Stores, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Stores{
		Dir:      dir,
		Users:    NewFile[models.User](filepath.Join(dir, UsersFile)),
		Orders:   NewFile[models.Order](filepath.Join(dir, OrdersFile)),
		Products: NewFile[models.Product](filepath.Join(dir, ProductsFile)),
		Reviews:  NewFile[models.Review](filepath.Join(dir, ReviewsFile)),
	}, nil
}
