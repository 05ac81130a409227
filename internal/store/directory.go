package store

import (
	"context"
	"log"
	"strings"
	"sync"
)

// Directory maps "@handle" to a display name, loaded from the users sheet
// (columns: Username, Имя). Unknown handles resolve to themselves.
type Directory struct {
	src RowStore

	mu    sync.RWMutex
	names map[string]string
}

func NewDirectory(src RowStore) *Directory {
	return &Directory{src: src, names: make(map[string]string)}
}

// Refresh reloads the mapping. A failed read keeps the previous mapping.
func (d *Directory) Refresh(ctx context.Context) error {
	rows, err := d.src.Rows(ctx)
	if err != nil {
		return err
	}

	names := make(map[string]string, len(rows))
	for _, r := range rows {
		if len(r) < 2 {
			continue
		}
		handle := strings.TrimSpace(r[0])
		name := strings.TrimSpace(r[1])
		if handle == "" || name == "" || !strings.HasPrefix(handle, "@") {
			continue
		}
		names[handle] = name
	}

	d.mu.Lock()
	d.names = names
	d.mu.Unlock()
	log.Printf("[directory] loaded %d users", len(names))
	return nil
}

// Resolve returns the display name for a handle, or the raw handle when the
// directory does not know it.
func (d *Directory) Resolve(handle string) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if name, ok := d.names[handle]; ok {
		return name
	}
	return handle
}

// Known reports whether the handle has a directory entry.
func (d *Directory) Known(handle string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.names[handle]
	return ok
}
