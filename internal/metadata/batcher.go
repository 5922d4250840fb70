package metadata

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jwhitley/stacks/internal/config"
)

// Batcher fetches metadata for a whole file's worth of identifiers through a
// bounded worker pool. Per-identifier failures are logged and absent from the
// result; the batch itself never fails.
type Batcher struct {
	provider   Provider
	workers    int
	maxWorkers int
	jitterMin  time.Duration
	jitterMax  time.Duration
}

// NewBatcher creates a Batcher sized by the enrichment configuration.
func NewBatcher(provider Provider, cfg config.Enrichment) *Batcher {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 3
	}
	maxWorkers := cfg.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 8
	}
	return &Batcher{
		provider:   provider,
		workers:    workers,
		maxWorkers: maxWorkers,
		jitterMin:  cfg.JitterMin,
		jitterMax:  cfg.JitterMax,
	}
}

// FetchAll normalizes, validates and deduplicates the raw identifiers, then
// fetches them concurrently. Each result is indexed under every ISBN form of
// the edition, so a later lookup by either the 10- or 13-digit form hits the
// same record.
func (b *Batcher) FetchAll(ctx context.Context, raw []string) map[string]*Record {
	ids := b.normalize(raw)
	results := make(map[string]*Record, len(ids)*2)
	if len(ids) == 0 {
		return results
	}

	workers := b.workers
	if len(ids) < workers {
		workers = len(ids)
	}
	if workers > b.maxWorkers {
		workers = b.maxWorkers
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, isbn := range ids {
		isbn := isbn
		g.Go(func() error {
			b.jitter(ctx)

			record, err := b.provider.LookupByISBN(ctx, isbn)
			if err != nil {
				log.Printf("Enrichment lookup failed for %s: %v", isbn, err)
				return nil
			}
			if !record.Usable() {
				log.Printf("Enrichment returned no usable data for %s", isbn)
				return nil
			}

			mu.Lock()
			defer mu.Unlock()
			b.index(results, record, isbn)
			return nil
		})
	}

	// Workers swallow their own errors; Wait only fails on context cancellation
	_ = g.Wait()
	return results
}

// normalize validates and deduplicates, preserving first-seen order.
func (b *Batcher) normalize(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		isbn := NormalizeISBN(r)
		if isbn == "" {
			if r != "" {
				log.Printf("Discarding invalid identifier %q", r)
			}
			continue
		}
		if seen[isbn] {
			continue
		}
		seen[isbn] = true
		out = append(out, isbn)
	}
	return out
}

// index stores the record under every ISBN form the provider returned plus
// every form derivable from the queried identifier.
func (b *Batcher) index(results map[string]*Record, record *Record, queried string) {
	for _, isbn := range record.ISBNs() {
		for _, form := range Forms(isbn) {
			results[form] = record
		}
	}
	for _, form := range Forms(queried) {
		results[form] = record
	}
}

// jitter sleeps a short random interval so pooled requests do not burst.
func (b *Batcher) jitter(ctx context.Context) {
	if b.jitterMax <= 0 || b.jitterMax < b.jitterMin {
		return
	}
	span := b.jitterMax - b.jitterMin
	d := b.jitterMin
	if span > 0 {
		d += time.Duration(rand.Int63n(int64(span)))
	}
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}
