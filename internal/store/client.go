package store

import (
	"context"
	"sync"
	"time"

	"github.com/rpz-tools/taskbot/internal/clock"
)

// Client fronts a RowStore with a short-TTL read cache. Summary and command
// reads tolerate the TTL's staleness; state-mutating callers use the Fresh*
// methods, which always read through. Writes invalidate the cache.
type Client struct {
	inner RowStore
	ttl   time.Duration
	clk   clock.Clock

	mu        sync.Mutex
	rows      [][]string
	fetchedAt time.Time
	valid     bool
}

func NewClient(inner RowStore, ttl time.Duration, clk clock.Clock) *Client {
	return &Client{inner: inner, ttl: ttl, clk: clk}
}

// Rows returns the cached table snapshot, refreshing it when the TTL lapsed.
func (c *Client) Rows(ctx context.Context) ([][]string, error) {
	c.mu.Lock()
	if c.valid && c.clk.Now().Sub(c.fetchedAt) < c.ttl {
		rows := c.rows
		c.mu.Unlock()
		return rows, nil
	}
	c.mu.Unlock()
	return c.FreshRows(ctx)
}

// FreshRows bypasses the cache and repopulates it.
func (c *Client) FreshRows(ctx context.Context) ([][]string, error) {
	rows, err := c.inner.Rows(ctx)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.rows = rows
	c.fetchedAt = c.clk.Now()
	c.valid = true
	c.mu.Unlock()
	return rows, nil
}

func (c *Client) ColValues(ctx context.Context, col int) ([]string, error) {
	rows, err := c.Rows(ctx)
	if err != nil {
		return nil, err
	}
	return columnOf(rows, col), nil
}

// FreshColValues reads the column through to the authoritative store.
func (c *Client) FreshColValues(ctx context.Context, col int) ([]string, error) {
	rows, err := c.FreshRows(ctx)
	if err != nil {
		return nil, err
	}
	return columnOf(rows, col), nil
}

func (c *Client) Append(ctx context.Context, row []string) error {
	err := c.inner.Append(ctx, row)
	if err == nil {
		c.Invalidate()
	}
	return err
}

func (c *Client) UpdateCell(ctx context.Context, row, col int, value string) error {
	err := c.inner.UpdateCell(ctx, row, col, value)
	if err == nil {
		c.Invalidate()
	}
	return err
}

func (c *Client) Invalidate() {
	c.mu.Lock()
	c.rows = nil
	c.valid = false
	c.mu.Unlock()
}
