// Package catalog owns the in-memory product cache backed by products.json.
package catalog

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/korelia/storefront-backend/internal/metrics"
	"github.com/korelia/storefront-backend/internal/models"
	"github.com/korelia/storefront-backend/internal/store"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrStockUntracked  = errors.New("stock is not tracked for this product")
	ErrInvalidStock    = errors.New("stock cannot be negative")
)

type Catalog struct {
	file  *store.File[models.Product]
	group singleflight.Group

	mu       sync.RWMutex
	products []models.Product
	byID     map[string]int
	bySlug   map[string]int
}

func New(file *store.File[models.Product]) *Catalog {
	return &Catalog{file: file, byID: map[string]int{}, bySlug: map[string]int{}}
}

// Reload replaces the cache with the file contents. Concurrent callers share
// a single read.
func (c *Catalog) Reload() error {
	_, err, _ := c.group.Do("reload", func() (interface{}, error) {
		products, err := c.file.Load()
		if err != nil {
			return nil, err
		}
		c.replace(products)
		return nil, nil
	})
	metrics.RecordCatalogReload(err)
	if err != nil {
		return fmt.Errorf("reload catalog: %w", err)
	}
	return nil
}

func (c *Catalog) replace(products []models.Product) {
	byID := make(map[string]int, len(products))
	bySlug := make(map[string]int, len(products))
	for i, p := range products {
		byID[p.ID] = i
		if p.Slug != "" {
			bySlug[p.Slug] = i
		}
	}

	c.mu.Lock()
	c.products = products
	c.byID = byID
	c.bySlug = bySlug
	c.mu.Unlock()
}

// List returns the products in file order, optionally filtered by category.
func (c *Catalog) List(category string) []models.Product {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]models.Product, 0, len(c.products))
	for _, p := range c.products {
		if category != "" && !strings.EqualFold(p.Category, category) {
			continue
		}
		out = append(out, clone(p))
	}
	return out
}

func (c *Catalog) ByID(id string) (models.Product, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.byID[id]
	if !ok {
		return models.Product{}, false
	}
	return clone(c.products[i]), true
}

func (c *Catalog) BySlug(slug string) (models.Product, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.bySlug[slug]
	if !ok {
		return models.Product{}, false
	}
	return clone(c.products[i]), true
}

func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.products)
}

// DecrementStock subtracts ordered quantities from tracked products, never
// going below zero. The file is written only when some stock changed.
func (c *Catalog) DecrementStock(items []models.OrderItem) (bool, error) {
	if len(items) == 0 {
		return false, nil
	}

	var changed bool
	var updated []models.Product
	err := c.file.Update(func(products []models.Product) ([]models.Product, bool, error) {
		index := make(map[string]int, len(products))
		for i, p := range products {
			index[p.ID] = i
		}
		for _, it := range items {
			i, ok := index[it.ProductID]
			if !ok || products[i].Stock == nil || it.Quantity <= 0 {
				continue
			}
			cur := *products[i].Stock
			next := cur - it.Quantity
			if next < 0 {
				next = 0
			}
			if next != cur {
				products[i].Stock = &next
				changed = true
			}
		}
		updated = products
		return products, changed, nil
	})
	if err != nil {
		return false, fmt.Errorf("decrement stock: %w", err)
	}
	if changed {
		c.replace(updated)
	}
	return changed, nil
}

// SetStock sets an absolute stock level. A nil stock stops tracking.
func (c *Catalog) SetStock(id string, stock *int) (models.Product, error) {
	if stock != nil && *stock < 0 {
		return models.Product{}, ErrInvalidStock
	}
	return c.mutate(id, func(p *models.Product) error {
		if stock == nil {
			p.Stock = nil
			return nil
		}
		v := *stock
		p.Stock = &v
		return nil
	})
}

// AdjustStock adds delta to a tracked product's stock, flooring at zero.
func (c *Catalog) AdjustStock(id string, delta int) (models.Product, error) {
	return c.mutate(id, func(p *models.Product) error {
		if p.Stock == nil {
			return ErrStockUntracked
		}
		v := *p.Stock + delta
		if v < 0 {
			v = 0
		}
		p.Stock = &v
		return nil
	})
}

func (c *Catalog) mutate(id string, fn func(p *models.Product) error) (models.Product, error) {
	var out models.Product
	var updated []models.Product
	err := c.file.Update(func(products []models.Product) ([]models.Product, bool, error) {
		for i := range products {
			if products[i].ID != id {
				continue
			}
			if err := fn(&products[i]); err != nil {
				return nil, false, err
			}
			out = clone(products[i])
			updated = products
			return products, true, nil
		}
		return nil, false, ErrProductNotFound
	})
	if err != nil {
		return models.Product{}, err
	}
	c.replace(updated)
	slog.Info("product stock updated", "product_id", id, "stock", stockValue(out.Stock))
	return out, nil
}

func clone(p models.Product) models.Product {
	if p.Stock != nil {
		v := *p.Stock
		p.Stock = &v
	}
	if p.Price != nil {
		v := *p.Price
		p.Price = &v
	}
	p.SkinTypes = append([]string(nil), p.SkinTypes...)
	p.Tags = append([]string(nil), p.Tags...)
	return p
}

func stockValue(s *int) interface{} {
	if s == nil {
		return "untracked"
	}
	return *s
}
