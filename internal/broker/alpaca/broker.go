// Package alpaca implements core.Broker over the Alpaca trading REST API
package alpaca

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"walkforward/internal/core"
	"walkforward/internal/trading/fill"
	wfhttp "walkforward/pkg/http"

	"github.com/shopspring/decimal"
)

type accountResponse struct {
	Cash        decimal.Decimal `json:"cash"`
	BuyingPower decimal.Decimal `json:"buying_power"`
	Status      string          `json:"status"`
}

type positionResponse struct {
	Symbol        string          `json:"symbol"`
	Qty           decimal.Decimal `json:"qty"`
	AvgEntryPrice decimal.Decimal `json:"avg_entry_price"`
}

type orderRequest struct {
	Symbol        string `json:"symbol"`
	Qty           string `json:"qty"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	TimeInForce   string `json:"time_in_force"`
	ClientOrderID string `json:"client_order_id,omitempty"`
}

type orderResponse struct {
	ID             string              `json:"id"`
	ClientOrderID  string              `json:"client_order_id"`
	Symbol         string              `json:"symbol"`
	Side           string              `json:"side"`
	Qty            decimal.Decimal     `json:"qty"`
	FilledAvgPrice decimal.NullDecimal `json:"filled_avg_price"`
	Status         string              `json:"status"`
	CreatedAt      time.Time           `json:"created_at"`
}

// Broker talks to a live or paper Alpaca account.
type Broker struct {
	client     *wfhttp.Client
	classifier fill.Classifier
	logger     core.ILogger
}

// NewBroker wraps a signed client pointed at the trading API base URL.
func NewBroker(client *wfhttp.Client, classifier fill.Classifier, logger core.ILogger) *Broker {
	return &Broker{
		client:     client,
		classifier: classifier,
		logger:     logger.WithField("component", "alpaca_broker"),
	}
}

func (b *Broker) Account(ctx context.Context) (core.AccountInfo, error) {
	var resp accountResponse
	if err := b.client.GetJSON(ctx, "/v2/account", nil, &resp); err != nil {
		return core.AccountInfo{}, fmt.Errorf("get account: %w", err)
	}
	return core.AccountInfo{Cash: resp.Cash, BuyingPower: resp.BuyingPower}, nil
}

// Position returns a zero quantity when the account holds nothing in symbol.
func (b *Broker) Position(ctx context.Context, symbol string) (core.PositionInfo, error) {
	var resp positionResponse
	err := b.client.GetJSON(ctx, "/v2/positions/"+url.PathEscape(positionSymbol(symbol)), nil, &resp)
	if wfhttp.IsNotFound(err) {
		return core.PositionInfo{Symbol: symbol}, nil
	}
	if err != nil {
		return core.PositionInfo{}, fmt.Errorf("get position %s: %w", symbol, err)
	}
	return core.PositionInfo{Symbol: symbol, Quantity: resp.Qty, AvgEntryPrice: resp.AvgEntryPrice}, nil
}

func (b *Broker) SubmitMarketOrder(ctx context.Context, req core.OrderRequest) (*core.Order, error) {
	tif := "day"
	if b.classifier.Class(req.Symbol) == core.AssetCrypto {
		tif = "gtc"
	}
	body := orderRequest{
		Symbol:        req.Symbol,
		Qty:           req.Quantity.String(),
		Side:          strings.ToLower(string(req.Side)),
		Type:          "market",
		TimeInForce:   tif,
		ClientOrderID: req.ClientOrderID,
	}

	raw, err := b.client.Post(ctx, "/v2/orders", body)
	if err != nil {
		return nil, fmt.Errorf("submit %s %s: %w", req.Side, req.Symbol, err)
	}
	var resp orderResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode order: %w", err)
	}

	b.logger.Info("Order accepted",
		"symbol", resp.Symbol,
		"side", resp.Side,
		"qty", resp.Qty.String(),
		"status", resp.Status,
		"order_id", resp.ID,
	)
	return &core.Order{
		ID:            resp.ID,
		ClientOrderID: resp.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Quantity:      resp.Qty,
		Price:         resp.FilledAvgPrice.Decimal,
		Status:        resp.Status,
		CreatedAt:     resp.CreatedAt,
	}, nil
}

// positionSymbol drops the slash Alpaca omits from crypto position symbols.
func positionSymbol(symbol string) string {
	return strings.ReplaceAll(symbol, "/", "")
}
