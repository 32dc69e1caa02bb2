// Package buckets aggregates finished classification requests in memory and
// flushes them to the database on a timer, so the request path never waits
// on an insert.
package buckets

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"landuse-api/internal/database"
	"landuse-api/internal/metrics"
	"landuse-api/internal/shared"
)

type StatsCache struct {
	buckets map[string]*bucket
	mu      sync.Mutex
	log     *zap.SugaredLogger
	db      *sql.DB
}

type bucket struct {
	label   string
	records map[string]*database.ClassificationRecord
	timer   *time.Timer
}

// NewStatsCache creates the aggregation cache. db may be nil, in which case
// flushes only clear memory and feed metrics.
func NewStatsCache(log *zap.SugaredLogger, db *sql.DB) *StatsCache {
	return &StatsCache{
		db:      db,
		log:     log,
		buckets: map[string]*bucket{},
	}
}

// AddRequest records one finished request under its label bucket and arms
// the flush timer for fresh buckets.
func (c *StatsCache) AddRequest(rec *database.ClassificationRecord) {
	label := rec.Label
	if label == "" {
		label = "__error__"
	}

	status := "success"
	if rec.StatusCode >= 400 {
		status = "error"
	}
	metrics.RequestCount.WithLabelValues(label, status).Inc()
	metrics.ClassifyDuration.WithLabelValues(label).Observe(rec.Duration.Seconds())

	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.buckets[label]
	if !ok {
		b = &bucket{label: label, records: map[string]*database.ClassificationRecord{}}
		c.buckets[label] = b
	}
	b.records[rec.RequestID] = rec

	if b.timer == nil {
		b.timer = time.AfterFunc(shared.BucketFlushInterval, func() {
			c.Flush(label)
		})
	}
}

// Flush drains one label bucket to the database. Retries the insert a few
// times before giving the records up.
func (c *StatsCache) Flush(label string) {
	c.mu.Lock()
	b, ok := c.buckets[label]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.buckets, label)
	c.mu.Unlock()

	if b.timer != nil {
		b.timer.Stop()
	}
	if c.db == nil {
		return
	}

	var err error
	for range shared.MaxFlushRetries {
		err = database.SaveClassifications(context.Background(), c.db, b.records, c.log)
		if err == nil {
			c.log.Infow("Flushed bucket", "label", label, "requests", len(b.records))
			return
		}
		c.log.Errorw("Failed to insert records", "error", err)
		time.Sleep(5 * time.Second)
	}

	c.log.Errorw(fmt.Sprintf("Failed %d times with error", shared.MaxFlushRetries), "error", err)
	metrics.ErrorCount.WithLabelValues("save_classifications").Inc()
}

// Shutdown stops the timers and flushes everything that is still buffered.
func (c *StatsCache) Shutdown() {
	c.log.Info("Shutting down stats cache")
	c.mu.Lock()
	pending := make([]string, 0, len(c.buckets))
	for label, b := range c.buckets {
		if b.timer != nil {
			b.timer.Stop()
		}
		pending = append(pending, label)
	}
	c.mu.Unlock()

	wg := sync.WaitGroup{}
	for _, label := range pending {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Flush(label)
		}()
	}
	wg.Wait()
}
