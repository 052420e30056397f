package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"mt5dash/config"
	"mt5dash/internal/domain"
	"mt5dash/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLogger struct{}

func (mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type mockSession struct {
	login    int64
	deals    []domain.Deal
	dealsErr error
	snapshot *domain.AccountSnapshot
	snapErr  error
	closed   bool
}

func (m *mockSession) Login() int64 { return m.login }

func (m *mockSession) AccountSnapshot(ctx context.Context) (*domain.AccountSnapshot, error) {
	return m.snapshot, m.snapErr
}

func (m *mockSession) OpenPositions(ctx context.Context) ([]domain.Position, error) {
	return nil, nil
}

func (m *mockSession) PendingOrders(ctx context.Context) ([]domain.Order, error) {
	return nil, nil
}

func (m *mockSession) Deals(ctx context.Context, from, to time.Time) ([]domain.Deal, error) {
	if m.dealsErr != nil {
		return nil, m.dealsErr
	}
	out := make([]domain.Deal, 0)
	for _, d := range m.deals {
		if !d.Time.Before(from) && !d.Time.After(to) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *mockSession) StreamSnapshots(ctx context.Context, handler func(*domain.AccountSnapshot), errHandler func(error)) (chan struct{}, chan struct{}, error) {
	return make(chan struct{}), make(chan struct{}), nil
}

func (m *mockSession) Close() error {
	m.closed = true
	return nil
}

type mockTerminal struct {
	session    *mockSession
	connectErr error
	connects   int
}

func (m *mockTerminal) Connect(ctx context.Context, creds ports.AccountCredentials) (ports.TerminalSession, error) {
	m.connects++
	if m.connectErr != nil {
		return nil, m.connectErr
	}
	m.session.login = creds.Login
	return m.session, nil
}

func (m *mockTerminal) Ping(ctx context.Context) error { return nil }

type mockDealRepo struct {
	byLogin   map[int64][]domain.Deal
	upsertErr error
}

func newMockDealRepo() *mockDealRepo {
	return &mockDealRepo{byLogin: make(map[int64][]domain.Deal)}
}

func (m *mockDealRepo) UpsertDeals(ctx context.Context, login int64, deals []domain.Deal) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	existing := make(map[int64]bool)
	for _, d := range m.byLogin[login] {
		existing[d.ID] = true
	}
	for _, d := range deals {
		if !existing[d.ID] {
			m.byLogin[login] = append(m.byLogin[login], d)
		}
	}
	return nil
}

func (m *mockDealRepo) DealsInRange(ctx context.Context, login int64, from, to time.Time) ([]domain.Deal, error) {
	out := make([]domain.Deal, 0)
	for _, d := range m.byLogin[login] {
		if !d.Time.Before(from) && !d.Time.After(to) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *mockDealRepo) FirstDealTime(ctx context.Context, login int64) (time.Time, error) {
	if len(m.byLogin[login]) == 0 {
		return time.Time{}, ports.ErrNoHistory
	}
	first := m.byLogin[login][0].Time
	for _, d := range m.byLogin[login] {
		if d.Time.Before(first) {
			first = d.Time
		}
	}
	return first, nil
}

const testLogin = int64(12345)

func testConfig() *config.Config {
	return &config.Config{
		HistoryDays: 365,
		Accounts: []config.Account{
			{Name: "Main", Login: testLogin, Server: "Broker-Demo", InitialBalance: 10000},
		},
	}
}

func tradingPair(position int64, strategy domain.StrategyTag, open time.Time, profit float64) []domain.Deal {
	return []domain.Deal{
		{ID: position * 10, PositionID: position, Strategy: strategy, Time: open, Type: domain.DealBuy, Entry: domain.EntryIn},
		{ID: position*10 + 1, PositionID: position, Strategy: strategy, Time: open.Add(time.Hour), Type: domain.DealSell, Entry: domain.EntryOut, Profit: profit},
	}
}

func newTestService(t *testing.T, terminal *mockTerminal, repo *mockDealRepo) *Service {
	t.Helper()
	svc, err := NewService(testConfig(), mockLogger{}, terminal, repo)
	require.NoError(t, err)
	return svc
}

func TestNewService(t *testing.T) {
	t.Run("rejects missing dependencies", func(t *testing.T) {
		_, err := NewService(nil, mockLogger{}, &mockTerminal{}, newMockDealRepo())
		assert.Error(t, err)
	})

	t.Run("rejects empty account list", func(t *testing.T) {
		cfg := testConfig()
		cfg.Accounts = nil
		_, err := NewService(cfg, mockLogger{}, &mockTerminal{}, newMockDealRepo())
		assert.ErrorIs(t, err, ports.ErrConfigurationError)
	})
}

func TestServiceSessions(t *testing.T) {
	ctx := context.Background()

	t.Run("sessions are cached per login", func(t *testing.T) {
		terminal := &mockTerminal{session: &mockSession{snapshot: &domain.AccountSnapshot{Login: testLogin}}}
		svc := newTestService(t, terminal, newMockDealRepo())

		_, err := svc.AccountSnapshot(ctx, testLogin)
		require.NoError(t, err)
		_, err = svc.AccountSnapshot(ctx, testLogin)
		require.NoError(t, err)
		assert.Equal(t, 1, terminal.connects)
	})

	t.Run("failed snapshot evicts the session", func(t *testing.T) {
		terminal := &mockTerminal{session: &mockSession{snapErr: ports.ErrTerminalUnavailable}}
		svc := newTestService(t, terminal, newMockDealRepo())

		_, err := svc.AccountSnapshot(ctx, testLogin)
		require.Error(t, err)
		assert.True(t, terminal.session.closed)

		_, err = svc.AccountSnapshot(ctx, testLogin)
		require.Error(t, err)
		assert.Equal(t, 2, terminal.connects)
	})

	t.Run("unknown login is not found", func(t *testing.T) {
		svc := newTestService(t, &mockTerminal{session: &mockSession{}}, newMockDealRepo())
		_, err := svc.AccountSnapshot(ctx, 99999)
		assert.ErrorIs(t, err, ports.ErrNotFound)
	})

	t.Run("close releases sessions", func(t *testing.T) {
		terminal := &mockTerminal{session: &mockSession{snapshot: &domain.AccountSnapshot{}}}
		svc := newTestService(t, terminal, newMockDealRepo())
		_, err := svc.AccountSnapshot(ctx, testLogin)
		require.NoError(t, err)

		svc.Close()
		assert.True(t, terminal.session.closed)
	})
}

func TestServiceClosedTrades(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	t.Run("live deals are aggregated and mirrored", func(t *testing.T) {
		repo := newMockDealRepo()
		terminal := &mockTerminal{session: &mockSession{deals: tradingPair(1, 7, base, 50)}}
		svc := newTestService(t, terminal, repo)

		trades, err := svc.ClosedTrades(ctx, testLogin, base.Add(-time.Hour), base.AddDate(0, 0, 1))
		require.NoError(t, err)
		require.Len(t, trades, 1)
		assert.InDelta(t, 50, trades[0].NetProfit, 1e-9)

		// Deals must have been mirrored into the cache.
		cached, err := repo.DealsInRange(ctx, testLogin, base.Add(-time.Hour), base.AddDate(0, 0, 1))
		require.NoError(t, err)
		assert.Len(t, cached, 2)
	})

	t.Run("cache serves the request when the terminal is down", func(t *testing.T) {
		repo := newMockDealRepo()
		require.NoError(t, repo.UpsertDeals(ctx, testLogin, tradingPair(1, 0, base, 25)))
		terminal := &mockTerminal{connectErr: ports.ErrConnectionFailed}
		svc := newTestService(t, terminal, repo)

		trades, err := svc.ClosedTrades(ctx, testLogin, base.Add(-time.Hour), base.AddDate(0, 0, 1))
		require.NoError(t, err)
		require.Len(t, trades, 1)
		assert.InDelta(t, 25, trades[0].NetProfit, 1e-9)
	})
}

func TestServiceKPIs(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	deals := tradingPair(1, 7, base, 100)
	deals = append(deals, tradingPair(2, 7, base.Add(3*time.Hour), -40)...)

	terminal := &mockTerminal{session: &mockSession{
		deals:    deals,
		snapshot: &domain.AccountSnapshot{Login: testLogin, Balance: 10060},
	}}
	svc := newTestService(t, terminal, newMockDealRepo())

	snap, err := svc.KPIs(ctx, testLogin, base.Add(-time.Hour), base.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 2, snap.NumTrades)
	assert.InDelta(t, 60, snap.TotalNetProfit, 1e-9)
	// Range start balance derives as 10060 - 60 = 10000; the 40 drawdown is 0.4%.
	assert.InDelta(t, 0.4, snap.MaxDrawdownPercent, 1e-9)
}

func TestServiceKPIsForStrategy(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	deals := tradingPair(1, 0, base, 100)
	deals = append(deals, tradingPair(2, 7, base.Add(3*time.Hour), -40)...)

	terminal := &mockTerminal{session: &mockSession{
		deals:    deals,
		snapshot: &domain.AccountSnapshot{Login: testLogin, Balance: 10060},
	}}
	svc := newTestService(t, terminal, newMockDealRepo())

	snap, err := svc.KPIsForStrategy(ctx, testLogin, 7, base.Add(-time.Hour), base.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, snap.NumTrades)
	assert.InDelta(t, -40, snap.TotalNetProfit, 1e-9)
	// The drawdown basis stays the whole-account range start balance, 10000.
	assert.InDelta(t, 0.4, snap.MaxDrawdownPercent, 1e-9)
}

func TestServiceCompareStrategies(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	deals := tradingPair(1, 0, base, 100)
	deals = append(deals, tradingPair(2, 7, base.Add(3*time.Hour), -40)...)
	deals = append(deals, tradingPair(3, 7, base.Add(6*time.Hour), 10)...)

	terminal := &mockTerminal{session: &mockSession{
		deals:    deals,
		snapshot: &domain.AccountSnapshot{Login: testLogin, Balance: 10070},
	}}
	svc := newTestService(t, terminal, newMockDealRepo())

	comparisons, err := svc.CompareStrategies(ctx, testLogin, base.Add(-time.Hour), base.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, comparisons, 2)

	assert.Equal(t, domain.ManualTrading, comparisons[0].Strategy)
	assert.Equal(t, 1, comparisons[0].KPIs.NumTrades)
	assert.InDelta(t, 100, comparisons[0].KPIs.TotalNetProfit, 1e-9)

	assert.Equal(t, domain.StrategyTag(7), comparisons[1].Strategy)
	assert.Equal(t, 2, comparisons[1].KPIs.NumTrades)
	assert.InDelta(t, -30, comparisons[1].KPIs.TotalNetProfit, 1e-9)
}

func TestServiceTrackRecord(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	t.Run("defaults to balance plus every strategy curve", func(t *testing.T) {
		deals := tradingPair(1, 0, base, 100)
		deals = append(deals, tradingPair(2, 7, base.Add(3*time.Hour), 50)...)
		terminal := &mockTerminal{session: &mockSession{deals: deals}}
		svc := newTestService(t, terminal, newMockDealRepo())

		tr, err := svc.TrackRecord(ctx, testLogin, SeriesOptions{To: base.AddDate(0, 0, 1)})
		require.NoError(t, err)

		assert.Equal(t, []domain.StrategyTag{0, 7}, tr.Strategies)
		assert.InDelta(t, 150, tr.Summary.NetProfit, 1e-9)
		assert.InDelta(t, 1.5, tr.Summary.TotalGainPercent, 1e-9)

		// 2 buckets (Mon 2nd, Tue 3rd) times 3 curves.
		assert.Len(t, tr.Points, 6)
	})

	t.Run("unknown login is not found", func(t *testing.T) {
		svc := newTestService(t, &mockTerminal{session: &mockSession{}}, newMockDealRepo())
		_, err := svc.TrackRecord(ctx, 99999, SeriesOptions{})
		assert.ErrorIs(t, err, ports.ErrNotFound)
	})
}

func TestServiceBackfill(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	t.Run("mirrors full history", func(t *testing.T) {
		repo := newMockDealRepo()
		terminal := &mockTerminal{session: &mockSession{deals: tradingPair(1, 0, base, 10)}}
		svc := newTestService(t, terminal, repo)

		require.NoError(t, svc.Backfill(ctx, base.AddDate(0, 0, 1)))
		assert.Len(t, repo.byLogin[testLogin], 2)
	})

	t.Run("propagates terminal errors", func(t *testing.T) {
		terminal := &mockTerminal{session: &mockSession{dealsErr: errors.New("boom")}}
		svc := newTestService(t, terminal, newMockDealRepo())
		assert.Error(t, svc.Backfill(ctx, base))
	})
}
