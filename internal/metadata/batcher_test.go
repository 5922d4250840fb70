package metadata

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/jwhitley/stacks/internal/config"
)

type fakeProvider struct {
	mu      sync.Mutex
	calls   []string
	records map[string]*Record
	fail    map[string]bool
}

func (f *fakeProvider) LookupByISBN(ctx context.Context, isbn string) (*Record, error) {
	f.mu.Lock()
	f.calls = append(f.calls, isbn)
	f.mu.Unlock()

	if f.fail[isbn] {
		return nil, fmt.Errorf("provider unavailable")
	}
	if rec, ok := f.records[isbn]; ok {
		return rec, nil
	}
	return nil, fmt.Errorf("not found: %s", isbn)
}

func (f *fakeProvider) SearchByTitle(ctx context.Context, title string, max int) ([]Record, error) {
	return nil, fmt.Errorf("not implemented")
}

func newTestBatcher(p Provider) *Batcher {
	return NewBatcher(p, config.Enrichment{Workers: 2, MaxWorkers: 4})
}

func TestFetchAll_IndexesEveryForm(t *testing.T) {
	provider := &fakeProvider{
		records: map[string]*Record{
			"9780306406157": {Title: "Classical Mechanics", ISBN13: "9780306406157"},
		},
	}

	results := newTestBatcher(provider).FetchAll(context.Background(), []string{"978-0-306-40615-7"})

	by13, ok13 := results["9780306406157"]
	by10, ok10 := results["0306406152"]
	if !ok13 || !ok10 {
		t.Fatalf("expected lookups by both forms to hit, got keys %v", keys(results))
	}
	if by13 != by10 {
		t.Error("both ISBN forms should resolve to the identical record")
	}
}

func TestFetchAll_DedupesAndDiscardsInvalid(t *testing.T) {
	provider := &fakeProvider{
		records: map[string]*Record{
			"9780306406157": {Title: "Classical Mechanics", ISBN13: "9780306406157"},
		},
	}

	batcher := newTestBatcher(provider)
	results := batcher.FetchAll(context.Background(), []string{
		"9780306406157",
		"978-0-306-40615-7", // same edition, formatted differently
		"0306406152",        // same edition, ISBN-10 form... still one fetch per distinct normalized id
		"garbage",
		"",
		"1234567890123", // bad check digit
	})

	if _, ok := results["9780306406157"]; !ok {
		t.Fatal("expected the valid identifier to resolve")
	}
	// The two 13-digit spellings normalize to one identifier; the 10-digit
	// form is distinct pre-fetch, so at most two calls happen.
	if len(provider.calls) > 2 {
		t.Errorf("expected at most 2 provider calls after dedup, got %d: %v", len(provider.calls), provider.calls)
	}
	for _, c := range provider.calls {
		if c == "garbage" || c == "" || c == "1234567890123" {
			t.Errorf("invalid identifier %q reached the provider", c)
		}
	}
}

func TestFetchAll_FailuresAreAbsentNotFatal(t *testing.T) {
	provider := &fakeProvider{
		records: map[string]*Record{
			"9780306406157": {Title: "Classical Mechanics", ISBN13: "9780306406157"},
		},
		fail: map[string]bool{"080442957X": true},
	}

	results := newTestBatcher(provider).FetchAll(context.Background(), []string{
		"9780306406157",
		"080442957X",
	})

	if _, ok := results["9780306406157"]; !ok {
		t.Error("successful lookup should be present")
	}
	if _, ok := results["080442957X"]; ok {
		t.Error("failed lookup should simply be absent")
	}
}

func TestFetchAll_EmptyInput(t *testing.T) {
	provider := &fakeProvider{}
	results := newTestBatcher(provider).FetchAll(context.Background(), nil)
	if len(results) != 0 {
		t.Errorf("expected empty result map, got %d entries", len(results))
	}
	if len(provider.calls) != 0 {
		t.Errorf("no provider calls expected, got %v", provider.calls)
	}
}

func keys(m map[string]*Record) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
