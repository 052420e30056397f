package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mt5dash/config"
	"mt5dash/internal/analytics"
	"mt5dash/internal/domain"
	"mt5dash/internal/ports"
)

// Service orchestrates terminal sessions, the deal cache and the analytics
// core for every configured account.
type Service struct {
	cfg      *config.Config
	logger   ports.Logger
	terminal ports.TerminalClient
	deals    ports.DealRepository

	mu       sync.Mutex // protects sessions
	sessions map[int64]ports.TerminalSession
}

// NewService creates a new application service instance.
func NewService(cfg *config.Config, logger ports.Logger, terminal ports.TerminalClient, deals ports.DealRepository) (*Service, error) {
	if cfg == nil || logger == nil || terminal == nil || deals == nil {
		return nil, fmt.Errorf("missing required dependencies for Service")
	}
	if len(cfg.Accounts) == 0 {
		return nil, fmt.Errorf("%w: no accounts configured", ports.ErrConfigurationError)
	}
	return &Service{
		cfg:      cfg,
		logger:   logger,
		terminal: terminal,
		deals:    deals,
		sessions: make(map[int64]ports.TerminalSession),
	}, nil
}

// Accounts lists the configured accounts.
func (s *Service) Accounts() []config.Account {
	return s.cfg.Accounts
}

// session returns the cached terminal session for an account, connecting
// lazily on first use.
func (s *Service) session(ctx context.Context, login int64) (ports.TerminalSession, error) {
	acc, ok := s.cfg.AccountByLogin(login)
	if !ok {
		return nil, fmt.Errorf("account %d is not configured: %w", login, ports.ErrNotFound)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[login]; ok {
		return sess, nil
	}

	sess, err := s.terminal.Connect(ctx, ports.AccountCredentials{
		Name:     acc.Name,
		Login:    acc.Login,
		Password: acc.Password,
		Server:   acc.Server,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting account %d: %w", login, err)
	}
	s.sessions[login] = sess
	s.logger.Info(ctx, "Terminal session established", map[string]interface{}{"login": login})
	return sess, nil
}

// dropSession evicts a cached session so the next call reconnects.
func (s *Service) dropSession(login int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[login]; ok {
		sess.Close()
		delete(s.sessions, login)
	}
}

// AccountSnapshot returns the live balance/equity view of an account.
func (s *Service) AccountSnapshot(ctx context.Context, login int64) (*domain.AccountSnapshot, error) {
	sess, err := s.session(ctx, login)
	if err != nil {
		return nil, err
	}
	snap, err := sess.AccountSnapshot(ctx)
	if err != nil {
		s.dropSession(login)
		return nil, err
	}
	return snap, nil
}

// OpenPositions returns the currently open positions of an account.
func (s *Service) OpenPositions(ctx context.Context, login int64) ([]domain.Position, error) {
	sess, err := s.session(ctx, login)
	if err != nil {
		return nil, err
	}
	positions, err := sess.OpenPositions(ctx)
	if err != nil {
		s.dropSession(login)
		return nil, err
	}
	return positions, nil
}

// PendingOrders returns the pending orders of an account.
func (s *Service) PendingOrders(ctx context.Context, login int64) ([]domain.Order, error) {
	sess, err := s.session(ctx, login)
	if err != nil {
		return nil, err
	}
	orders, err := sess.PendingOrders(ctx)
	if err != nil {
		s.dropSession(login)
		return nil, err
	}
	return orders, nil
}

// fetchDeals retrieves the deal history for a range, preferring the live
// terminal and mirroring results into the cache. When the terminal is
// unreachable the cache serves the request instead.
func (s *Service) fetchDeals(ctx context.Context, login int64, from, to time.Time) ([]domain.Deal, error) {
	sess, err := s.session(ctx, login)
	if err == nil {
		var deals []domain.Deal
		deals, err = sess.Deals(ctx, from, to)
		if err == nil {
			if upsertErr := s.deals.UpsertDeals(ctx, login, deals); upsertErr != nil {
				s.logger.Warn(ctx, "Failed to mirror deals into cache", map[string]interface{}{
					"login": login,
					"error": upsertErr.Error(),
				})
			}
			return deals, nil
		}
		s.dropSession(login)
	}

	s.logger.Warn(ctx, "Terminal unavailable, serving deals from cache", map[string]interface{}{
		"login": login,
		"error": err.Error(),
	})
	cached, cacheErr := s.deals.DealsInRange(ctx, login, from, to)
	if cacheErr != nil {
		return nil, fmt.Errorf("terminal fetch failed (%v) and cache fallback failed: %w", err, cacheErr)
	}
	return cached, nil
}

// historyWindow resolves an explicit range, defaulting to the configured
// history window ending now.
func (s *Service) historyWindow(from, to time.Time) (time.Time, time.Time) {
	if to.IsZero() {
		to = time.Now().UTC()
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -s.cfg.HistoryDays)
	}
	return from, to
}

// ClosedTrades aggregates the deal history of a range into closed trades,
// ordered by close time descending.
func (s *Service) ClosedTrades(ctx context.Context, login int64, from, to time.Time) ([]domain.ClosedTrade, error) {
	from, to = s.historyWindow(from, to)
	deals, err := s.fetchDeals(ctx, login, from, to)
	if err != nil {
		return nil, err
	}
	return analytics.AggregateClosedTrades(deals), nil
}

// KPIs computes performance metrics over the closed trades of a range.
// The drawdown basis is the balance the account had at the start of the
// range, derived from the current balance and the range's net profit; when
// the live balance is unavailable the metric falls back to peak equity.
func (s *Service) KPIs(ctx context.Context, login int64, from, to time.Time) (analytics.KPISnapshot, error) {
	trades, err := s.ClosedTrades(ctx, login, from, to)
	if err != nil {
		return analytics.KPISnapshot{}, err
	}
	return analytics.ComputeKPIs(trades, s.rangeStartBalance(ctx, login, trades)), nil
}

// KPIsForStrategy computes performance metrics restricted to one strategy's
// trades within a range. The drawdown basis stays the whole-account range
// start balance so the figure is comparable across strategies.
func (s *Service) KPIsForStrategy(ctx context.Context, login int64, tag domain.StrategyTag, from, to time.Time) (analytics.KPISnapshot, error) {
	trades, err := s.ClosedTrades(ctx, login, from, to)
	if err != nil {
		return analytics.KPISnapshot{}, err
	}
	balance := s.rangeStartBalance(ctx, login, trades)
	return analytics.ComputeKPIs(analytics.FilterByStrategy(trades, tag), balance), nil
}

func (s *Service) rangeStartBalance(ctx context.Context, login int64, trades []domain.ClosedTrade) float64 {
	snap, err := s.AccountSnapshot(ctx, login)
	if err != nil {
		s.logger.Warn(ctx, "Cannot derive range start balance, falling back to peak equity", map[string]interface{}{
			"login": login,
			"error": err.Error(),
		})
		return 0
	}
	var net float64
	for _, t := range trades {
		net += t.NetProfit
	}
	return snap.Balance - net
}

// StrategyComparison pairs a strategy with its KPI snapshot.
type StrategyComparison struct {
	Strategy domain.StrategyTag
	KPIs     analytics.KPISnapshot
}

// CompareStrategies computes per-strategy KPIs over the closed trades of a
// range, ordered by strategy tag ascending.
func (s *Service) CompareStrategies(ctx context.Context, login int64, from, to time.Time) ([]StrategyComparison, error) {
	from, to = s.historyWindow(from, to)
	deals, err := s.fetchDeals(ctx, login, from, to)
	if err != nil {
		return nil, err
	}
	trades := analytics.AggregateClosedTrades(deals)
	balance := s.rangeStartBalance(ctx, login, trades)

	comparisons := make([]StrategyComparison, 0)
	for _, tag := range analytics.ObservedStrategies(deals) {
		comparisons = append(comparisons, StrategyComparison{
			Strategy: tag,
			KPIs:     analytics.ComputeKPIs(analytics.FilterByStrategy(trades, tag), balance),
		})
	}
	return comparisons, nil
}

// SeriesOptions parametrizes TrackRecord.
type SeriesOptions struct {
	Grouping analytics.Grouping
	From, To time.Time
	Selected []analytics.SeriesKey
}

// TrackRecord is the full performance view of one account: summary figures
// over the whole history plus the selected performance curves.
type TrackRecord struct {
	Summary    analytics.AccountSummary
	Points     []analytics.PeriodPoint
	Strategies []domain.StrategyTag
}

// TrackRecord builds the track-record view over the account's whole cached
// and live history. When no series are selected the account balance curve
// plus every observed strategy curve are produced.
func (s *Service) TrackRecord(ctx context.Context, login int64, opts SeriesOptions) (*TrackRecord, error) {
	acc, ok := s.cfg.AccountByLogin(login)
	if !ok {
		return nil, fmt.Errorf("account %d is not configured: %w", login, ports.ErrNotFound)
	}

	to := opts.To
	if to.IsZero() {
		to = time.Now().UTC()
	}
	// The summary and the curves always run over the whole history so the
	// normalization basis stays anchored at the configured initial balance.
	deals, err := s.fetchDeals(ctx, login, time.UnixMilli(0).UTC(), to)
	if err != nil {
		return nil, err
	}

	summary, err := analytics.ComputeSummary(deals, acc.InitialBalance, to)
	if err != nil {
		return nil, err
	}

	strategies := analytics.ObservedStrategies(deals)
	selected := opts.Selected
	if len(selected) == 0 {
		selected = append(selected, analytics.AccountBalanceSeries())
		for _, tag := range strategies {
			selected = append(selected, analytics.StrategySeries(tag))
		}
	}
	grouping := opts.Grouping
	if grouping == "" {
		grouping = analytics.GroupDaily
	}

	points, err := analytics.BuildSeries(deals, analytics.SeriesConfig{
		InitialBalance: acc.InitialBalance,
		Grouping:       grouping,
		From:           opts.From,
		To:             to,
		Selected:       selected,
	})
	if err != nil {
		return nil, err
	}

	return &TrackRecord{
		Summary:    summary,
		Points:     points,
		Strategies: strategies,
	}, nil
}

// WatchSnapshots starts the terminal's snapshot push stream for an account.
func (s *Service) WatchSnapshots(ctx context.Context, login int64, handler func(*domain.AccountSnapshot), errHandler func(error)) (doneCh chan struct{}, stopCh chan struct{}, err error) {
	sess, err := s.session(ctx, login)
	if err != nil {
		return nil, nil, err
	}
	return sess.StreamSnapshots(ctx, handler, errHandler)
}

// Backfill mirrors the full deal history of every configured account into
// the cache. Used by the backfill command and at startup.
func (s *Service) Backfill(ctx context.Context, to time.Time) error {
	if to.IsZero() {
		to = time.Now().UTC()
	}
	for _, acc := range s.cfg.Accounts {
		sess, err := s.session(ctx, acc.Login)
		if err != nil {
			return err
		}
		deals, err := sess.Deals(ctx, time.UnixMilli(0).UTC(), to)
		if err != nil {
			s.dropSession(acc.Login)
			return fmt.Errorf("backfilling account %d: %w", acc.Login, err)
		}
		if err := s.deals.UpsertDeals(ctx, acc.Login, deals); err != nil {
			return fmt.Errorf("caching backfill for account %d: %w", acc.Login, err)
		}
		s.logger.Info(ctx, "Account history backfilled", map[string]interface{}{
			"login": acc.Login,
			"deals": len(deals),
		})
	}
	return nil
}

// Close releases every open terminal session.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for login, sess := range s.sessions {
		sess.Close()
		delete(s.sessions, login)
	}
}
