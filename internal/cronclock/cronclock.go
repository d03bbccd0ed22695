// Package cronclock provides the default cron trigger clock: a cron
// trigger clock is a pluggable external collaborator, but a scheduler has
// to ship with one to be runnable at all. This default parses each
// cron-scheduled job's expression with robfig/cron and invokes a supplied
// callback when it fires.
package cronclock

import (
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/ethanzhu/shardsched/pkg/model"
)

var log = slog.Default()

// Clock runs one robfig/cron scheduler and maps job keys to entries so
// they can be individually unscheduled (on job deletion) or rescheduled
// (on cron-expression update).
type Clock struct {
	mu      sync.Mutex
	cron    *cron.Cron
	entries map[model.JobKey]cron.EntryID
}

// New creates a stopped Clock. Call Start to begin firing.
func New() *Clock {
	return &Clock{
		cron:    cron.New(),
		entries: make(map[model.JobKey]cron.EntryID),
	}
}

// Start begins running scheduled entries in a background goroutine.
func (c *Clock) Start() {
	c.cron.Start()
}

// Stop halts the clock and waits for any in-flight firing to complete.
func (c *Clock) Stop() {
	<-c.cron.Stop().Done()
}

// Schedule registers key to fire onFire(key) according to expr,
// replacing any existing schedule for key.
func (c *Clock) Schedule(key model.JobKey, expr string, onFire func(model.JobKey)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id, ok := c.entries[key]; ok {
		c.cron.Remove(id)
	}

	id, err := c.cron.AddFunc(expr, func() {
		log.Debug("cron fired", "job", key)
		onFire(key)
	})
	if err != nil {
		return err
	}
	c.entries[key] = id
	return nil
}

// Unschedule removes key's entry, if any.
func (c *Clock) Unschedule(key model.JobKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := c.entries[key]; ok {
		c.cron.Remove(id)
		delete(c.entries, key)
	}
}
