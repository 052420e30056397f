package web

import (
	"context"
	"net/http"
	"time"

	"mt5dash/config"
	"mt5dash/internal/analytics"
	"mt5dash/internal/app"
	"mt5dash/internal/domain"
	"mt5dash/internal/ports"

	"github.com/gin-gonic/gin"
)

// Dashboard is the slice of the application service the HTTP layer needs.
type Dashboard interface {
	Accounts() []config.Account
	AccountSnapshot(ctx context.Context, login int64) (*domain.AccountSnapshot, error)
	OpenPositions(ctx context.Context, login int64) ([]domain.Position, error)
	PendingOrders(ctx context.Context, login int64) ([]domain.Order, error)
	ClosedTrades(ctx context.Context, login int64, from, to time.Time) ([]domain.ClosedTrade, error)
	KPIs(ctx context.Context, login int64, from, to time.Time) (analytics.KPISnapshot, error)
	KPIsForStrategy(ctx context.Context, login int64, tag domain.StrategyTag, from, to time.Time) (analytics.KPISnapshot, error)
	CompareStrategies(ctx context.Context, login int64, from, to time.Time) ([]app.StrategyComparison, error)
	TrackRecord(ctx context.Context, login int64, opts app.SeriesOptions) (*app.TrackRecord, error)
	WatchSnapshots(ctx context.Context, login int64, handler func(*domain.AccountSnapshot), errHandler func(error)) (doneCh chan struct{}, stopCh chan struct{}, err error)
}

// AccountInfo is the account list entry exposed by the API. Credentials
// never leave the server.
type AccountInfo struct {
	Name  string `json:"name"`
	Login int64  `json:"login"`
}

// Server hosts the dashboard JSON API.
type Server struct {
	httpServer *http.Server
	logger     ports.Logger
}

// Config holds configuration for the web server.
type Config struct {
	Addr      string
	Dashboard Dashboard
	Logger    ports.Logger
}

// NewServer builds the HTTP server and its routes.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Dashboard == nil || cfg.Logger == nil {
		return nil, ports.ErrConfigurationError
	}
	addr := cfg.Addr
	if addr == "" {
		addr = ":8080"
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	h := &handlers{dashboard: cfg.Dashboard, logger: cfg.Logger}

	api := engine.Group("/api")
	{
		api.GET("/accounts", h.listAccounts)
		acc := api.Group("/accounts/:login")
		{
			acc.GET("/summary", h.accountSummary)
			acc.GET("/positions", h.openPositions)
			acc.GET("/orders", h.pendingOrders)
			acc.GET("/trades", h.closedTrades)
			acc.GET("/kpis", h.kpis)
			acc.GET("/strategies", h.compareStrategies)
			acc.GET("/track-record", h.trackRecord)
			acc.GET("/stream", h.streamSnapshots)
		}
	}

	return &Server{
		httpServer: &http.Server{Addr: addr, Handler: engine},
		logger:     cfg.Logger,
	}, nil
}

// Start serves HTTP until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info(context.Background(), "HTTP server listening", map[string]interface{}{"addr": s.httpServer.Addr})
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "HTTP server shutting down")
	return s.httpServer.Shutdown(ctx)
}
