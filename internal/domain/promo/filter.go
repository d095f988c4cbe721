package promo

import (
	"context"
	"strings"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
)

// CodeFilter is a bloom-filter prefilter over every known promo code,
// active or not. The validate endpoint is public and gets hammered with
// junk codes; the filter answers "definitely not a code" without touching
// the database. It guards existence only, so inactive or expired codes
// still reach the lookup and fail with their real reason. False positives
// fall through to a normal lookup.
type CodeFilter struct {
	mu     sync.RWMutex
	filter *bloom.BloomFilter
}

const (
	filterCapacity = 100_000
	filterFPR      = 0.01
)

func buildFilter(ctx context.Context, repo Repository) (*bloom.BloomFilter, error) {
	codes, err := repo.ListCodes(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list promo codes")
	}
	f := bloom.NewWithEstimates(filterCapacity, filterFPR)
	for _, c := range codes {
		f.AddString(strings.ToUpper(c))
	}
	return f, nil
}

// LoadCodeFilter builds a CodeFilter from all stored codes.
func LoadCodeFilter(ctx context.Context, repo Repository) (*CodeFilter, error) {
	f, err := buildFilter(ctx, repo)
	if err != nil {
		return nil, err
	}
	return &CodeFilter{filter: f}, nil
}

// MayContain reports whether the code might exist. A false return is
// definitive; a true return must be confirmed by a lookup.
func (cf *CodeFilter) MayContain(code string) bool {
	cf.mu.RLock()
	defer cf.mu.RUnlock()
	return cf.filter.TestString(code)
}

// Add registers a newly created code so it is immediately resolvable
// without a full reload.
func (cf *CodeFilter) Add(code string) {
	cf.mu.Lock()
	defer cf.mu.Unlock()
	cf.filter.AddString(strings.ToUpper(code))
}

// Reload rebuilds the filter from the repository, picking up codes
// ingested by other processes since the last load.
func (cf *CodeFilter) Reload(ctx context.Context, repo Repository) error {
	f, err := buildFilter(ctx, repo)
	if err != nil {
		return err
	}
	cf.mu.Lock()
	cf.filter = f
	cf.mu.Unlock()
	return nil
}
