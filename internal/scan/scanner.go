// Package scan computes the per-type fetch delta: which bill numbers exist
// at the source but have not been processed yet.
package scan

import (
	"context"
	"fmt"
	"sync"
)

// Lister enumerates bill numbers available at the remote source.
type Lister interface {
	ListBillNumbers(ctx context.Context, session, billType string) ([]int, error)
}

// Watermarks reports the highest bill number already persisted for a type.
type Watermarks interface {
	MaxBillNumber(ctx context.Context, billType string) (int, error)
}

// Scanner caches remote directory listings for the duration of one job run;
// the remote tree does not change mid-run, so each type is enumerated at
// most once. Call Reset between runs.
type Scanner struct {
	lister Lister
	bills  Watermarks

	mu    sync.Mutex
	cache map[string][]int
}

// NewScanner creates a Scanner over the given transport and store.
func NewScanner(lister Lister, bills Watermarks) *Scanner {
	return &Scanner{
		lister: lister,
		bills:  bills,
		cache:  make(map[string][]int),
	}
}

// Available returns all bill numbers of the type that exist at the source,
// sorted ascending. Listings are served from the run-scoped cache after the
// first call.
func (s *Scanner) Available(ctx context.Context, session, billType string) ([]int, error) {
	key := session + "/" + billType

	s.mu.Lock()
	cached, ok := s.cache[key]
	s.mu.Unlock()
	if ok {
		return cached, nil
	}

	numbers, err := s.lister.ListBillNumbers(ctx, session, billType)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate %s bills: %w", billType, err)
	}

	s.mu.Lock()
	s.cache[key] = numbers
	s.mu.Unlock()
	return numbers, nil
}

// Delta returns the bill numbers to fetch: everything available above both
// the persisted watermark and the caller's floor (a job's own progress
// watermark), sorted ascending. An empty delta means the type is exhausted.
func (s *Scanner) Delta(ctx context.Context, session, billType string, floor int) ([]int, error) {
	available, err := s.Available(ctx, session, billType)
	if err != nil {
		return nil, err
	}

	persisted, err := s.bills.MaxBillNumber(ctx, billType)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s watermark: %w", billType, err)
	}
	if persisted > floor {
		floor = persisted
	}

	var delta []int
	for _, n := range available {
		if n > floor {
			delta = append(delta, n)
		}
	}
	return delta, nil
}

// Reset clears the listing cache. Run it between job runs so a fresh run
// sees the source's current tree.
func (s *Scanner) Reset() {
	s.mu.Lock()
	s.cache = make(map[string][]int)
	s.mu.Unlock()
}
