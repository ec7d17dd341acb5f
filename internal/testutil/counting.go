// Package testutil holds instrumented Engine Handles shared by tests, the
// scenario harness and the profile command.
package testutil

import (
	"sync"

	"github.com/roach88/flexstream/internal/lazy"
)

// CountingHandle wraps an Engine Handle and counts calls made directly on
// it. Handles it returns are not wrapped, so counts describe passes over
// the root dataset only.
//
// Thread-safety: safe for concurrent use.
type CountingHandle struct {
	lazy.Handle

	mu    sync.Mutex
	calls map[string]int
}

var _ lazy.Handle = (*CountingHandle)(nil)

// NewCountingHandle wraps h.
func NewCountingHandle(h lazy.Handle) *CountingHandle {
	return &CountingHandle{Handle: h, calls: make(map[string]int)}
}

func (c *CountingHandle) record(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[name]++
}

// Calls returns how many times name was invoked on the root.
func (c *CountingHandle) Calls(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[name]
}

// Total returns the number of calls of every kind.
func (c *CountingHandle) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.calls {
		n += v
	}
	return n
}

func (c *CountingHandle) Map(fn lazy.MapFunc) (lazy.Handle, error) {
	c.record(lazy.OpMap)
	return c.Handle.Map(fn)
}

func (c *CountingHandle) Filter(fn lazy.FilterFunc) (lazy.Handle, error) {
	c.record(lazy.OpFilter)
	return c.Handle.Filter(fn)
}

func (c *CountingHandle) Count() (int64, error) {
	c.record(lazy.OpCount)
	return c.Handle.Count()
}

func (c *CountingHandle) Aggregate(zero lazy.Value, seqOp, combOp lazy.CombineFunc) (lazy.Value, error) {
	c.record(lazy.OpAggregate)
	return c.Handle.Aggregate(zero, seqOp, combOp)
}

func (c *CountingHandle) Cache() (lazy.Handle, error) {
	c.record(lazy.OpCache)
	return c.Handle.Cache()
}

func (c *CountingHandle) Invoke(name string, args []lazy.Value, kwargs map[string]lazy.Value) (lazy.Value, error) {
	c.record(name)
	return c.Handle.Invoke(name, args, kwargs)
}

func (c *CountingHandle) Attr(name string) (lazy.Value, bool) {
	c.record("attr:" + name)
	return c.Handle.Attr(name)
}
