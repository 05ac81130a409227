package task

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Counter hands out sequential TASK-%04d ids. It is seeded once per process
// from the highest numeric suffix already in the table, so restarts never
// reuse an id even when rows were added by hand.
type Counter struct {
	mu sync.Mutex
	n  int
}

func NewCounter() *Counter {
	return &Counter{}
}

// Seed scans existing id column values (header included, junk tolerated).
func (c *Counter) Seed(ids []string) {
	max := 0
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if !strings.HasPrefix(id, "TASK-") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(id, "TASK-"))
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	c.mu.Lock()
	if max > c.n {
		c.n = max
	}
	c.mu.Unlock()
}

func (c *Counter) Next() string {
	c.mu.Lock()
	c.n++
	n := c.n
	c.mu.Unlock()
	return fmt.Sprintf("TASK-%04d", n)
}

// Peek returns the next id without consuming it.
func (c *Counter) Peek() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fmt.Sprintf("TASK-%04d", c.n+1)
}
