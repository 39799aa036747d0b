// Package provider is the signed-request client for the fulfillment provider.
package provider

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"orderbridge/internal/config"
	"orderbridge/internal/errs"
	"orderbridge/internal/model"
	"orderbridge/internal/transport"
)

// Adapter talks to the downstream logistics network.
type Adapter struct {
	client *transport.Client
}

func New(creds config.Credentials, retry config.Retry, cfg config.Config) *Adapter {
	return &Adapter{client: transport.NewClient("provider", creds, retry, cfg.RequestTimeout, cfg.SmoothingQPS)}
}

// NewWithClient injects a prebuilt transport client (tests).
func NewWithClient(c *transport.Client) *Adapter { return &Adapter{client: c} }

// CreateAck acknowledges order creation.
type CreateAck struct {
	ProviderOrderID string `json:"fulfillmentOrderId"`
	Status          string `json:"status,omitempty"`
}

// CreateFulfillmentOrder submits a ready request. The request id makes
// resubmission idempotent on the provider side.
func (a *Adapter) CreateFulfillmentOrder(ctx context.Context, req model.ProviderOrderRequest) (CreateAck, error) {
	if len(req.Items) == 0 {
		return CreateAck{}, errs.New(model.StageCreateOrder, errs.KindMalformedInput, "zero-item request")
	}
	var ack CreateAck
	err := a.client.Do(ctx, transport.Call{
		Op: "createFulfillmentOrder", Stage: model.StageCreateOrder,
		Method: http.MethodPost, Path: "/fba/outbound/fulfillmentOrders", Body: req,
	}, &ack)
	if err != nil {
		return CreateAck{}, err
	}
	if ack.ProviderOrderID == "" {
		// Providers that key purely on request id echo nothing back.
		ack.ProviderOrderID = req.RequestID
	}
	return ack, nil
}

// GetFulfillmentOrder fetches order detail including shipments.
func (a *Adapter) GetFulfillmentOrder(ctx context.Context, providerOrderID string) (model.ProviderOrderDetail, error) {
	if providerOrderID == "" {
		return model.ProviderOrderDetail{}, errs.New(model.StageFetch, errs.KindMalformedInput, "provider order id required")
	}
	var detail model.ProviderOrderDetail
	err := a.client.Do(ctx, transport.Call{
		Op: "getFulfillmentOrder", Stage: model.StageFetch,
		Method: http.MethodGet, Path: "/fba/outbound/fulfillmentOrders/" + url.PathEscape(providerOrderID),
	}, &detail)
	if err != nil {
		return model.ProviderOrderDetail{}, err
	}
	if detail.ProviderOrderID == "" {
		detail.ProviderOrderID = providerOrderID
	}
	return detail, nil
}

// InventorySummary is the provider's per-SKU quantity breakdown.
type InventorySummary struct {
	SKU           string `json:"sellerSku"`
	Fulfillable   int    `json:"fulfillableQuantity"`
	Total         int    `json:"totalQuantity"`
	Reserved      int    `json:"reservedQuantity"`
	Inbound       int    `json:"inboundQuantity"`
	Unfulfillable int    `json:"unfulfillableQuantity"`
}

// GetInventorySummaries queries quantities for the given SKUs. SKUs the
// provider does not echo back are simply absent from the result.
func (a *Adapter) GetInventorySummaries(ctx context.Context, skus []string) ([]InventorySummary, error) {
	if len(skus) == 0 {
		return nil, nil
	}
	q := url.Values{"sellerSkus": {strings.Join(skus, ",")}}
	var out struct {
		Summaries []InventorySummary `json:"inventorySummaries"`
	}
	err := a.client.Do(ctx, transport.Call{
		Op: "getInventorySummaries", Stage: model.StageInventory,
		Method: http.MethodGet, Path: "/fba/inventory/summaries", Query: q,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Summaries, nil
}
