package web

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"mt5dash/internal/analytics"
	"mt5dash/internal/app"
	"mt5dash/internal/domain"
	"mt5dash/internal/ports"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type handlers struct {
	dashboard Dashboard
	logger    ports.Logger
}

// abortWithError maps application sentinel errors onto HTTP statuses.
func (h *handlers) abortWithError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ports.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ports.ErrInvalidRequest), errors.Is(err, ports.ErrConfigurationError):
		status = http.StatusBadRequest
	case errors.Is(err, ports.ErrTerminalUnavailable),
		errors.Is(err, ports.ErrConnectionFailed),
		errors.Is(err, ports.ErrAuthenticationFailed),
		errors.Is(err, ports.ErrAccountMismatch):
		status = http.StatusBadGateway
	case errors.Is(err, ports.ErrTimeout):
		status = http.StatusGatewayTimeout
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error(c.Request.Context(), err, "request failed", map[string]interface{}{
			"path": c.FullPath(),
		})
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func (h *handlers) login(c *gin.Context) (int64, bool) {
	login, err := strconv.ParseInt(c.Param("login"), 10, 64)
	if err != nil || login <= 0 {
		h.abortWithError(c, fmt.Errorf("%w: invalid login %q", ports.ErrInvalidRequest, c.Param("login")))
		return 0, false
	}
	return login, true
}

// parseRange reads optional from/to query params as RFC 3339 timestamps.
// Zero values are returned when absent; the service applies its defaults.
func (h *handlers) parseRange(c *gin.Context) (from, to time.Time, ok bool) {
	var err error
	if raw := c.Query("from"); raw != "" {
		if from, err = time.Parse(time.RFC3339, raw); err != nil {
			h.abortWithError(c, fmt.Errorf("%w: invalid 'from' timestamp %q", ports.ErrInvalidRequest, raw))
			return
		}
	}
	if raw := c.Query("to"); raw != "" {
		if to, err = time.Parse(time.RFC3339, raw); err != nil {
			h.abortWithError(c, fmt.Errorf("%w: invalid 'to' timestamp %q", ports.ErrInvalidRequest, raw))
			return
		}
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		h.abortWithError(c, fmt.Errorf("%w: 'to' precedes 'from'", ports.ErrInvalidRequest))
		return
	}
	return from, to, true
}

// FormatStrategy renders a strategy tag for display. Tag zero is manual
// trading; everything else is an expert advisor keyed by its magic number.
func FormatStrategy(tag domain.StrategyTag) string {
	if tag.IsManual() {
		return "manual"
	}
	return fmt.Sprintf("EA %d", int64(tag))
}

// parseSeries decodes the series selector: a comma list of "balance" and
// "strategy:<tag>" entries.
func parseSeries(raw string) ([]analytics.SeriesKey, error) {
	if raw == "" {
		return nil, nil
	}
	var keys []analytics.SeriesKey
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		switch {
		case part == "balance":
			keys = append(keys, analytics.AccountBalanceSeries())
		case strings.HasPrefix(part, "strategy:"):
			tag, err := strconv.ParseInt(strings.TrimPrefix(part, "strategy:"), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: invalid series selector %q", ports.ErrInvalidRequest, part)
			}
			keys = append(keys, analytics.StrategySeries(domain.StrategyTag(tag)))
		default:
			return nil, fmt.Errorf("%w: unknown series selector %q", ports.ErrInvalidRequest, part)
		}
	}
	return keys, nil
}

// --- Response shapes ---

type positionJSON struct {
	Ticket       int64     `json:"ticket"`
	OpenTime     time.Time `json:"open_time"`
	Type         string    `json:"type"`
	Strategy     string    `json:"strategy"`
	Symbol       string    `json:"symbol"`
	Volume       float64   `json:"volume"`
	OpenPrice    float64   `json:"open_price"`
	StopLoss     float64   `json:"stop_loss"`
	TakeProfit   float64   `json:"take_profit"`
	CurrentPrice float64   `json:"current_price"`
	Profit       float64   `json:"profit"`
}

type orderJSON struct {
	Ticket     int64     `json:"ticket"`
	SetupTime  time.Time `json:"setup_time"`
	Type       string    `json:"type"`
	Strategy   string    `json:"strategy"`
	Symbol     string    `json:"symbol"`
	Volume     float64   `json:"volume"`
	OpenPrice  float64   `json:"open_price"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
}

type tradeJSON struct {
	PositionID  int64     `json:"position_id"`
	Symbol      string    `json:"symbol"`
	Strategy    string    `json:"strategy"`
	Side        string    `json:"side"`
	OpenTime    time.Time `json:"open_time"`
	OpenPrice   float64   `json:"open_price"`
	CloseTime   time.Time `json:"close_time"`
	ClosePrice  float64   `json:"close_price"`
	Volume      float64   `json:"volume"`
	GrossProfit float64   `json:"gross_profit"`
	Commission  float64   `json:"commission"`
	Swap        float64   `json:"swap"`
	NetProfit   float64   `json:"net_profit"`
}

// kpiJSON carries a KPI snapshot over JSON. The profit factor is null when
// undefined (no trades) and flagged infinite when the period has no losses;
// JSON has no encoding for NaN or infinity.
type kpiJSON struct {
	NumTrades            int      `json:"num_trades"`
	WinRate              float64  `json:"win_rate"`
	TotalNetProfit       float64  `json:"total_net_profit"`
	GrossProfit          float64  `json:"gross_profit"`
	GrossLoss            float64  `json:"gross_loss"`
	ProfitFactor         *float64 `json:"profit_factor"`
	ProfitFactorInfinite bool     `json:"profit_factor_infinite"`
	MaxDrawdownValue     float64  `json:"max_drawdown_value"`
	MaxDrawdownPercent   float64  `json:"max_drawdown_percent"`
	MaxConsecutiveWins   int      `json:"max_consecutive_wins"`
	MaxConsecutiveLosses int      `json:"max_consecutive_losses"`
}

func toKPIJSON(snap analytics.KPISnapshot) kpiJSON {
	out := kpiJSON{
		NumTrades:            snap.NumTrades,
		WinRate:              snap.WinRate,
		TotalNetProfit:       snap.TotalNetProfit,
		GrossProfit:          snap.GrossProfit,
		GrossLoss:            snap.GrossLoss,
		MaxDrawdownValue:     snap.MaxDrawdownValue,
		MaxDrawdownPercent:   snap.MaxDrawdownPercent,
		MaxConsecutiveWins:   snap.MaxConsecutiveWins,
		MaxConsecutiveLosses: snap.MaxConsecutiveLosses,
	}
	switch {
	case math.IsNaN(snap.ProfitFactor):
	case math.IsInf(snap.ProfitFactor, 1):
		out.ProfitFactorInfinite = true
	default:
		pf := snap.ProfitFactor
		out.ProfitFactor = &pf
	}
	return out
}

func toTradeJSON(t domain.ClosedTrade) tradeJSON {
	return tradeJSON{
		PositionID:  t.PositionID,
		Symbol:      t.Symbol,
		Strategy:    FormatStrategy(t.Strategy),
		Side:        string(t.Side),
		OpenTime:    t.OpenTime,
		OpenPrice:   t.OpenPrice,
		CloseTime:   t.CloseTime,
		ClosePrice:  t.ClosePrice,
		Volume:      t.Volume,
		GrossProfit: t.GrossProfit,
		Commission:  t.Commission,
		Swap:        t.Swap,
		NetProfit:   t.NetProfit,
	}
}

// --- Handlers ---

func (h *handlers) listAccounts(c *gin.Context) {
	accounts := h.dashboard.Accounts()
	out := make([]AccountInfo, 0, len(accounts))
	for _, acc := range accounts {
		out = append(out, AccountInfo{Name: acc.Name, Login: acc.Login})
	}
	c.JSON(http.StatusOK, gin.H{"accounts": out})
}

func (h *handlers) accountSummary(c *gin.Context) {
	login, ok := h.login(c)
	if !ok {
		return
	}
	snap, err := h.dashboard.AccountSnapshot(c.Request.Context(), login)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *handlers) openPositions(c *gin.Context) {
	login, ok := h.login(c)
	if !ok {
		return
	}
	positions, err := h.dashboard.OpenPositions(c.Request.Context(), login)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	out := make([]positionJSON, 0, len(positions))
	for _, p := range positions {
		out = append(out, positionJSON{
			Ticket:       p.Ticket,
			OpenTime:     p.OpenTime,
			Type:         string(p.Type),
			Strategy:     FormatStrategy(p.Strategy),
			Symbol:       p.Symbol,
			Volume:       p.Volume,
			OpenPrice:    p.OpenPrice,
			StopLoss:     p.StopLoss,
			TakeProfit:   p.TakeProfit,
			CurrentPrice: p.CurrentPrice,
			Profit:       p.Profit,
		})
	}
	c.JSON(http.StatusOK, gin.H{"positions": out})
}

func (h *handlers) pendingOrders(c *gin.Context) {
	login, ok := h.login(c)
	if !ok {
		return
	}
	orders, err := h.dashboard.PendingOrders(c.Request.Context(), login)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	out := make([]orderJSON, 0, len(orders))
	for _, o := range orders {
		out = append(out, orderJSON{
			Ticket:     o.Ticket,
			SetupTime:  o.SetupTime,
			Type:       string(o.Type),
			Strategy:   FormatStrategy(o.Strategy),
			Symbol:     o.Symbol,
			Volume:     o.Volume,
			OpenPrice:  o.OpenPrice,
			StopLoss:   o.StopLoss,
			TakeProfit: o.TakeProfit,
		})
	}
	c.JSON(http.StatusOK, gin.H{"orders": out})
}

func (h *handlers) closedTrades(c *gin.Context) {
	login, ok := h.login(c)
	if !ok {
		return
	}
	from, to, ok := h.parseRange(c)
	if !ok {
		return
	}
	trades, err := h.dashboard.ClosedTrades(c.Request.Context(), login, from, to)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	out := make([]tradeJSON, 0, len(trades))
	for _, t := range trades {
		out = append(out, toTradeJSON(t))
	}
	c.JSON(http.StatusOK, gin.H{"trades": out})
}

func (h *handlers) kpis(c *gin.Context) {
	login, ok := h.login(c)
	if !ok {
		return
	}
	from, to, ok := h.parseRange(c)
	if !ok {
		return
	}
	var snap analytics.KPISnapshot
	var err error
	if raw := c.Query("strategy"); raw != "" {
		tag, parseErr := strconv.ParseInt(raw, 10, 64)
		if parseErr != nil {
			h.abortWithError(c, fmt.Errorf("%w: invalid strategy tag %q", ports.ErrInvalidRequest, raw))
			return
		}
		snap, err = h.dashboard.KPIsForStrategy(c.Request.Context(), login, domain.StrategyTag(tag), from, to)
	} else {
		snap, err = h.dashboard.KPIs(c.Request.Context(), login, from, to)
	}
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toKPIJSON(snap))
}

func (h *handlers) compareStrategies(c *gin.Context) {
	login, ok := h.login(c)
	if !ok {
		return
	}
	from, to, ok := h.parseRange(c)
	if !ok {
		return
	}
	comparisons, err := h.dashboard.CompareStrategies(c.Request.Context(), login, from, to)
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	type comparisonJSON struct {
		Strategy string  `json:"strategy"`
		KPIs     kpiJSON `json:"kpis"`
	}
	out := make([]comparisonJSON, 0, len(comparisons))
	for _, cmp := range comparisons {
		out = append(out, comparisonJSON{
			Strategy: FormatStrategy(cmp.Strategy),
			KPIs:     toKPIJSON(cmp.KPIs),
		})
	}
	c.JSON(http.StatusOK, gin.H{"strategies": out})
}

func (h *handlers) trackRecord(c *gin.Context) {
	login, ok := h.login(c)
	if !ok {
		return
	}
	from, to, ok := h.parseRange(c)
	if !ok {
		return
	}

	grouping := analytics.Grouping(c.DefaultQuery("grouping", string(analytics.GroupDaily)))
	selected, err := parseSeries(c.Query("series"))
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	record, err := h.dashboard.TrackRecord(c.Request.Context(), login, app.SeriesOptions{
		Grouping: grouping,
		From:     from,
		To:       to,
		Selected: selected,
	})
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	strategies := make([]string, 0, len(record.Strategies))
	for _, tag := range record.Strategies {
		strategies = append(strategies, FormatStrategy(tag))
	}
	c.JSON(http.StatusOK, gin.H{
		"summary":    record.Summary,
		"points":     record.Points,
		"strategies": strategies,
	})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// streamSnapshots upgrades the request to a WebSocket and forwards live
// account snapshots until either side disconnects.
func (h *handlers) streamSnapshots(c *gin.Context) {
	login, ok := h.login(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.abortWithError(c, fmt.Errorf("%w: websocket upgrade failed: %w", ports.ErrInvalidRequest, err))
		return
	}
	defer conn.Close()

	snapshots := make(chan *domain.AccountSnapshot, 8)
	doneCh, stopCh, err := h.dashboard.WatchSnapshots(ctx,
		login,
		func(snap *domain.AccountSnapshot) {
			select {
			case snapshots <- snap:
			default: // drop when the client cannot keep up
			}
		},
		func(streamErr error) {
			h.logger.Warn(ctx, "snapshot stream error", map[string]interface{}{
				"login": login,
				"error": streamErr.Error(),
			})
		},
	)
	if err != nil {
		conn.WriteJSON(gin.H{"error": err.Error()})
		return
	}
	defer func() {
		select {
		case stopCh <- struct{}{}:
		default:
		}
	}()

	// Reader goroutine to observe client disconnects.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, readErr := conn.ReadMessage(); readErr != nil {
				return
			}
		}
	}()

	for {
		select {
		case snap := <-snapshots:
			if writeErr := conn.WriteJSON(snap); writeErr != nil {
				return
			}
		case <-doneCh:
			return
		case <-clientGone:
			return
		case <-ctx.Done():
			return
		}
	}
}
