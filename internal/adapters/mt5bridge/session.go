package mt5bridge

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"mt5dash/internal/domain"
	"mt5dash/internal/ports"

	"github.com/gorilla/websocket"
)

// session implements ports.TerminalSession for one authenticated account.
type session struct {
	client *Client
	login  int64
	token  string
}

func (s *session) Login() int64 { return s.login }

func (s *session) path(suffix string) string {
	return fmt.Sprintf("/accounts/%d%s", s.login, suffix)
}

func (s *session) query() url.Values {
	q := url.Values{}
	q.Set("token", s.token)
	return q
}

// AccountSnapshot retrieves the current balance/equity view of the account.
func (s *session) AccountSnapshot(ctx context.Context) (*domain.AccountSnapshot, error) {
	op := "AccountSnapshot"
	var raw accountJSON
	if err := s.client.doJSON(ctx, http.MethodGet, s.path("/summary"), s.query(), nil, &raw); err != nil {
		return nil, s.client.handleError(ctx, err, op)
	}
	if raw.Login != s.login {
		err := fmt.Errorf("%w: session bound to %d but terminal reports %d",
			ports.ErrAccountMismatch, s.login, raw.Login)
		return nil, s.client.handleError(ctx, err, op)
	}
	return translateAccount(raw), nil
}

// OpenPositions retrieves all currently open positions.
func (s *session) OpenPositions(ctx context.Context) ([]domain.Position, error) {
	op := "OpenPositions"
	var raw []positionJSON
	if err := s.client.doJSON(ctx, http.MethodGet, s.path("/positions"), s.query(), nil, &raw); err != nil {
		return nil, s.client.handleError(ctx, err, op)
	}
	positions := make([]domain.Position, 0, len(raw))
	for _, p := range raw {
		positions = append(positions, translatePosition(p))
	}
	return positions, nil
}

// PendingOrders retrieves all pending orders.
func (s *session) PendingOrders(ctx context.Context) ([]domain.Order, error) {
	op := "PendingOrders"
	var raw []orderJSON
	if err := s.client.doJSON(ctx, http.MethodGet, s.path("/orders"), s.query(), nil, &raw); err != nil {
		return nil, s.client.handleError(ctx, err, op)
	}
	orders := make([]domain.Order, 0, len(raw))
	for _, o := range raw {
		orders = append(orders, translateOrder(o))
	}
	return orders, nil
}

// Deals retrieves every deal with execution time in [from, to], inclusive.
func (s *session) Deals(ctx context.Context, from, to time.Time) ([]domain.Deal, error) {
	op := "Deals"
	q := s.query()
	q.Set("from_msc", strconv.FormatInt(from.UnixMilli(), 10))
	q.Set("to_msc", strconv.FormatInt(to.UnixMilli(), 10))

	var raw []dealJSON
	if err := s.client.doJSON(ctx, http.MethodGet, s.path("/deals"), q, nil, &raw); err != nil {
		return nil, s.client.handleError(ctx, err, op)
	}
	deals := make([]domain.Deal, 0, len(raw))
	for _, d := range raw {
		deals = append(deals, translateDeal(d))
	}
	s.client.logger.Debug(ctx, op+" successful", map[string]interface{}{
		"login": s.login,
		"count": len(deals),
	})
	return deals, nil
}

// Close releases the session on the bridge. Errors are logged but not
// surfaced; a stale bridge session expires on its own.
func (s *session) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.client.doJSON(ctx, http.MethodDelete, s.path("/session"), s.query(), nil, nil); err != nil {
		s.client.logger.Warn(ctx, "session close failed", map[string]interface{}{
			"login": s.login,
			"error": err.Error(),
		})
	}
	return nil
}

// StreamSnapshots starts a WebSocket stream of account snapshots with
// automatic reconnection and exponential backoff. The returned doneCh closes
// when the stream goroutine exits; sending on stopCh requests a stop.
func (s *session) StreamSnapshots(ctx context.Context, handler func(*domain.AccountSnapshot), errHandler func(error)) (doneCh chan struct{}, stopCh chan struct{}, err error) {
	op := "StreamSnapshots"
	wsCtx, cancelWs := context.WithCancel(ctx)

	wsURL := *s.client.baseURL
	switch wsURL.Scheme {
	case "https":
		wsURL.Scheme = "wss"
	default:
		wsURL.Scheme = "ws"
	}
	wsURL.Path = s.path("/stream")
	wsURL.RawQuery = s.query().Encode()

	fields := map[string]interface{}{"login": s.login}

	go func() {
		defer cancelWs()

		attempt := 0
		for {
			select {
			case <-wsCtx.Done():
				s.client.logger.Info(wsCtx, op+": context cancelled, stopping connection attempts", fields)
				return
			default:
				s.client.logger.Info(wsCtx, op+": attempting WebSocket connection", map[string]interface{}{
					"login":   s.login,
					"attempt": attempt + 1,
				})
				conn, _, connectErr := websocket.DefaultDialer.DialContext(wsCtx, wsURL.String(), nil)
				if connectErr != nil {
					errHandler(s.client.handleError(wsCtx, connectErr, op+" connection attempt"))
					attempt++
					if attempt >= s.client.maxReconnectAttempts {
						s.client.logger.Error(wsCtx, connectErr, op+": max reconnection attempts exceeded, giving up", map[string]interface{}{
							"login":       s.login,
							"maxAttempts": s.client.maxReconnectAttempts,
						})
						return
					}

					delay := s.client.reconnectDelay * time.Duration(1<<uint(attempt-1))
					s.client.logger.Info(wsCtx, op+": connection failed, retrying", map[string]interface{}{
						"login":   s.login,
						"attempt": attempt + 1,
						"delay":   delay.String(),
					})
					select {
					case <-time.After(delay):
						continue
					case <-wsCtx.Done():
						return
					}
				}

				s.client.logger.Info(wsCtx, op+": WebSocket connection established", fields)
				attempt = 0

				readDone := make(chan struct{})
				go func() {
					defer close(readDone)
					for {
						var raw accountJSON
						if readErr := conn.ReadJSON(&raw); readErr != nil {
							if wsCtx.Err() == nil {
								errHandler(s.client.handleError(wsCtx, readErr, op+" read"))
							}
							return
						}
						handler(translateAccount(raw))
					}
				}()

				select {
				case <-readDone:
					conn.Close()
					s.client.logger.Warn(wsCtx, op+": WebSocket connection closed unexpectedly, reconnecting", fields)
				case <-wsCtx.Done():
					s.client.logger.Info(wsCtx, op+": context cancelled, stopping WebSocket", fields)
					conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
						time.Now().Add(time.Second))
					conn.Close()
					<-readDone
					return
				}
			}
		}
	}()

	doneCh = make(chan struct{})
	stopCh = make(chan struct{})

	go func() {
		select {
		case <-stopCh:
			s.client.logger.Info(ctx, op+": received external stop signal, cancelling stream", fields)
			cancelWs()
		case <-wsCtx.Done():
		}
	}()

	go func() {
		<-wsCtx.Done()
		close(doneCh)
	}()

	return doneCh, stopCh, nil
}

var _ ports.TerminalSession = (*session)(nil)

// --- Wire types and translation helpers ---

// Numeric type/entry codes follow the terminal's own enumerations.
const (
	wireDealBuy     = 0
	wireDealSell    = 1
	wireDealBalance = 2
	wireDealCredit  = 3

	wireEntryIn    = 0
	wireEntryOut   = 1
	wireEntryInOut = 2
	wireEntryOutBy = 3
)

type accountJSON struct {
	Login      int64   `json:"login"`
	Name       string  `json:"name"`
	Server     string  `json:"server"`
	Currency   string  `json:"currency"`
	Balance    float64 `json:"balance"`
	Equity     float64 `json:"equity"`
	MarginFree float64 `json:"margin_free"`
	Profit     float64 `json:"profit"`
}

type positionJSON struct {
	Ticket       int64   `json:"ticket"`
	TimeMsc      int64   `json:"time_msc"`
	Type         int     `json:"type"`
	Magic        int64   `json:"magic"`
	Symbol       string  `json:"symbol"`
	Volume       float64 `json:"volume"`
	PriceOpen    float64 `json:"price_open"`
	StopLoss     float64 `json:"sl"`
	TakeProfit   float64 `json:"tp"`
	PriceCurrent float64 `json:"price_current"`
	Profit       float64 `json:"profit"`
}

type orderJSON struct {
	Ticket       int64   `json:"ticket"`
	TimeSetupMsc int64   `json:"time_setup_msc"`
	Type         int     `json:"type"`
	Magic        int64   `json:"magic"`
	Symbol       string  `json:"symbol"`
	Volume       float64 `json:"volume_current"`
	PriceOpen    float64 `json:"price_open"`
	StopLoss     float64 `json:"sl"`
	TakeProfit   float64 `json:"tp"`
}

type dealJSON struct {
	Ticket     int64   `json:"ticket"`
	Order      int64   `json:"order"`
	PositionID int64   `json:"position_id"`
	TimeMsc    int64   `json:"time_msc"`
	Symbol     string  `json:"symbol"`
	Magic      int64   `json:"magic"`
	Type       int     `json:"type"`
	Entry      int     `json:"entry"`
	Volume     float64 `json:"volume"`
	Price      float64 `json:"price"`
	Profit     float64 `json:"profit"`
	Commission float64 `json:"commission"`
	Swap       float64 `json:"swap"`
}

func translateAccount(raw accountJSON) *domain.AccountSnapshot {
	return &domain.AccountSnapshot{
		Login:          raw.Login,
		Name:           raw.Name,
		Server:         raw.Server,
		Currency:       raw.Currency,
		Balance:        raw.Balance,
		Equity:         raw.Equity,
		MarginFree:     raw.MarginFree,
		FloatingProfit: raw.Profit,
	}
}

func translatePosition(raw positionJSON) domain.Position {
	posType := domain.DealBuy
	if raw.Type == wireDealSell {
		posType = domain.DealSell
	}
	return domain.Position{
		Ticket:       raw.Ticket,
		OpenTime:     time.UnixMilli(raw.TimeMsc).UTC(),
		Type:         posType,
		Strategy:     domain.StrategyTag(raw.Magic),
		Symbol:       raw.Symbol,
		Volume:       raw.Volume,
		OpenPrice:    raw.PriceOpen,
		StopLoss:     raw.StopLoss,
		TakeProfit:   raw.TakeProfit,
		CurrentPrice: raw.PriceCurrent,
		Profit:       raw.Profit,
	}
}

var orderTypes = map[int]domain.OrderType{
	0: domain.OrderBuy,
	1: domain.OrderSell,
	2: domain.OrderBuyLimit,
	3: domain.OrderSellLimit,
	4: domain.OrderBuyStop,
	5: domain.OrderSellStop,
	6: domain.OrderBuyStopLimit,
	7: domain.OrderSellStopLimit,
}

func translateOrder(raw orderJSON) domain.Order {
	orderType, ok := orderTypes[raw.Type]
	if !ok {
		orderType = domain.OrderType(fmt.Sprintf("TYPE %d", raw.Type))
	}
	return domain.Order{
		Ticket:     raw.Ticket,
		SetupTime:  time.UnixMilli(raw.TimeSetupMsc).UTC(),
		Type:       orderType,
		Strategy:   domain.StrategyTag(raw.Magic),
		Symbol:     raw.Symbol,
		Volume:     raw.Volume,
		OpenPrice:  raw.PriceOpen,
		StopLoss:   raw.StopLoss,
		TakeProfit: raw.TakeProfit,
	}
}

func translateDeal(raw dealJSON) domain.Deal {
	var dealType domain.DealType
	switch raw.Type {
	case wireDealBuy:
		dealType = domain.DealBuy
	case wireDealSell:
		dealType = domain.DealSell
	case wireDealBalance:
		dealType = domain.DealBalance
	case wireDealCredit:
		dealType = domain.DealCredit
	default:
		dealType = domain.DealOther
	}

	var entry domain.DealEntry
	switch raw.Entry {
	case wireEntryIn:
		entry = domain.EntryIn
	case wireEntryOut:
		entry = domain.EntryOut
	case wireEntryInOut:
		entry = domain.EntryInOut
	case wireEntryOutBy:
		entry = domain.EntryOutBy
	default:
		entry = domain.EntryNone
	}
	// Balance operations report entry 0 but carry no position; treat them
	// as entry-less so they never look like round-trip deals.
	if !dealType.IsMarketSide() {
		entry = domain.EntryNone
	}

	return domain.Deal{
		ID:         raw.Ticket,
		PositionID: raw.PositionID,
		OrderID:    raw.Order,
		Time:       time.UnixMilli(raw.TimeMsc).UTC(),
		Symbol:     raw.Symbol,
		Strategy:   domain.StrategyTag(raw.Magic),
		Type:       dealType,
		Entry:      entry,
		Volume:     raw.Volume,
		Price:      raw.Price,
		Profit:     raw.Profit,
		Commission: raw.Commission,
		Swap:       raw.Swap,
	}
}
