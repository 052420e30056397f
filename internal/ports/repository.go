package ports

import (
	"context"
	"time"

	"mt5dash/internal/domain"
)

// DealRepository defines the interface for the local deal history cache.
// The cache mirrors deals fetched from the terminal so analytics can be
// served when the bridge is unreachable and full-history queries do not
// hammer the terminal.
type DealRepository interface {
	// UpsertDeals inserts or replaces deals for an account. Deal tickets
	// are unique per account, so replays of overlapping ranges are safe.
	UpsertDeals(ctx context.Context, login int64, deals []domain.Deal) error

	// DealsInRange retrieves cached deals with execution time in
	// [from, to], inclusive, ordered by time ascending.
	DealsInRange(ctx context.Context, login int64, from, to time.Time) ([]domain.Deal, error)

	// FirstDealTime returns the earliest cached deal time for an account.
	// Returns ErrNoHistory when the cache holds nothing for the login.
	FirstDealTime(ctx context.Context, login int64) (time.Time, error)
}
