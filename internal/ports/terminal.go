package ports

import (
	"context"
	"time"

	"mt5dash/internal/domain"
)

// AccountCredentials identifies and authenticates one brokerage account
// against the terminal bridge.
type AccountCredentials struct {
	Name     string // descriptive label, presentation only
	Login    int64
	Password string
	Server   string
}

// TerminalSession is an authenticated connection to the terminal for one
// account. Sessions are explicit objects rather than process-wide state so
// analytics for several accounts can run without cross-account leakage.
type TerminalSession interface {
	// Login returns the account login the session is bound to.
	Login() int64

	// AccountSnapshot retrieves the current balance/equity view of the account.
	AccountSnapshot(ctx context.Context) (*domain.AccountSnapshot, error)

	// OpenPositions retrieves all currently open positions.
	OpenPositions(ctx context.Context) ([]domain.Position, error)

	// PendingOrders retrieves all pending orders.
	PendingOrders(ctx context.Context) ([]domain.Order, error)

	// Deals retrieves every deal (trading and balance operations) with
	// execution time in [from, to], inclusive.
	Deals(ctx context.Context, from, to time.Time) ([]domain.Deal, error)

	// StreamSnapshots starts a push stream of account snapshots.
	// Returns channels to observe termination (doneCh) and request a stop
	// (stopCh), or an error if the stream cannot be established.
	StreamSnapshots(ctx context.Context, handler func(*domain.AccountSnapshot), errHandler func(error)) (doneCh chan struct{}, stopCh chan struct{}, err error)

	// Close releases the session.
	Close() error
}

// TerminalClient connects accounts to the terminal bridge.
type TerminalClient interface {
	// Connect authenticates the account and returns a bound session.
	Connect(ctx context.Context, creds AccountCredentials) (TerminalSession, error)

	// Ping checks connectivity to the terminal bridge.
	Ping(ctx context.Context) error
}
