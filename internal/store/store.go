// Package store adapts the external row-oriented task table. Rows are
// addressed by 1-indexed column, matching the spreadsheet the tracker's
// operators edit by hand; the tracker is never the only writer.
package store

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// RowStore is the raw table contract: whole-table reads, row appends and
// single-cell updates. Row and column indexes are 1-based.
type RowStore interface {
	Rows(ctx context.Context) ([][]string, error)
	Append(ctx context.Context, row []string) error
	UpdateCell(ctx context.Context, row, col int, value string) error
	ColValues(ctx context.Context, col int) ([]string, error)
}

// FileStore keeps the table in a local CSV file. It honors the same
// column-index contract a spreadsheet backend would, so the rest of the
// tracker does not care which one is wired in.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) Rows(ctx context.Context) ([][]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.load()
}

func (f *FileStore) Append(ctx context.Context, row []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	rows, err := f.load()
	if err != nil {
		return err
	}
	rows = append(rows, row)
	return f.save(rows)
}

func (f *FileStore) UpdateCell(ctx context.Context, row, col int, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	rows, err := f.load()
	if err != nil {
		return err
	}
	if row < 1 || row > len(rows) {
		return fmt.Errorf("update cell: row %d out of range (have %d rows)", row, len(rows))
	}
	if col < 1 {
		return fmt.Errorf("update cell: column %d out of range", col)
	}
	r := rows[row-1]
	for len(r) < col {
		r = append(r, "")
	}
	r[col-1] = value
	rows[row-1] = r
	return f.save(rows)
}

func (f *FileStore) ColValues(ctx context.Context, col int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rows, err := f.load()
	if err != nil {
		return nil, err
	}
	return columnOf(rows, col), nil
}

func (f *FileStore) load() ([][]string, error) {
	file, err := os.Open(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open store file: %w", err)
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read store file: %w", err)
	}
	return rows, nil
}

func (f *FileStore) save(rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	tmp := f.path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create store file: %w", err)
	}
	w := csv.NewWriter(file)
	if err := w.WriteAll(rows); err != nil {
		file.Close()
		return fmt.Errorf("write store file: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		file.Close()
		return fmt.Errorf("flush store file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close store file: %w", err)
	}
	return os.Rename(tmp, f.path)
}

func columnOf(rows [][]string, col int) []string {
	vals := make([]string, 0, len(rows))
	for _, r := range rows {
		if col >= 1 && col <= len(r) {
			vals = append(vals, r[col-1])
		} else {
			vals = append(vals, "")
		}
	}
	return vals
}
