// Package store persists the storefront's flat JSON datasets (users, orders,
// products, reviews). Each file holds one JSON array and is rewritten whole on
// every mutation through a temp file and an atomic rename.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// renameFn is swapped in tests to simulate a crash before the rename lands.
var renameFn = os.Rename

// File is one JSON array on disk. Update serializes read-modify-write cycles
// on the same File so concurrent mutators cannot overwrite each other.
type File[T any] struct {
	path string
	mu   sync.Mutex
}

func NewFile[T any](path string) *File[T] {
	return &File[T]{path: path}
}

func (f *File[T]) Path() string {
	return f.path
}

// Load reads the whole array. A missing file yields an empty slice.
func (f *File[T]) Load() ([]T, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []T{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", filepath.Base(f.path), err)
	}

	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(f.path), err)
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

// Save replaces the file contents with items.
func (f *File[T]) Save(items []T) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.write(items)
}

// Update loads the array, hands it to fn and writes the result back when fn
// reports a change. The file lock is held for the whole cycle.
func (f *File[T]) Update(fn func(items []T) ([]T, bool, error)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	items, err := f.Load()
	if err != nil {
		return err
	}

	next, changed, err := fn(items)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	return f.write(next)
}

func (f *File[T]) write(items []T) error {
	if items == nil {
		items = []T{}
	}

	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(f.path), err)
	}
	data = append(data, '\n')

	return writeAtomic(f.path, data)
}

// writeAtomic writes data to a temp file next to path and renames it over
// path, so readers see either the old or the new contents.
func writeAtomic(path string, data []byte) error {
	name := filepath.Base(path)
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+name+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", name, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := renameFn(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}
