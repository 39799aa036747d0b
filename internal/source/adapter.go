// Package source is the signed-request client for the order-source platform.
package source

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"orderbridge/internal/config"
	"orderbridge/internal/errs"
	"orderbridge/internal/model"
	"orderbridge/internal/transport"
)

// Adapter talks to the order-source marketplace.
type Adapter struct {
	client *transport.Client
	// PageCap bounds how many pages a full listing walk may fetch.
	PageCap int
}

func New(creds config.Credentials, retry config.Retry, cfg config.Config) *Adapter {
	return &Adapter{
		client:  transport.NewClient("source", creds, retry, cfg.RequestTimeout, cfg.SmoothingQPS),
		PageCap: cfg.PageCap,
	}
}

// NewWithClient injects a prebuilt transport client (tests).
func NewWithClient(c *transport.Client, pageCap int) *Adapter {
	return &Adapter{client: c, PageCap: pageCap}
}

// ListFilters narrows an order listing.
type ListFilters struct {
	Status   string
	PageSize int
}

// OrderPage is one page of an order listing.
type OrderPage struct {
	Orders        []model.RawOrder `json:"orders"`
	HasMore       bool             `json:"has_more"`
	NextPageToken string           `json:"next_page_token"`
}

// ListOrders fetches a single page.
func (a *Adapter) ListOrders(ctx context.Context, filters ListFilters, pageToken string) (OrderPage, error) {
	q := url.Values{}
	if filters.Status != "" {
		q.Set("order_status", filters.Status)
	}
	if filters.PageSize > 0 {
		q.Set("page_size", strconv.Itoa(filters.PageSize))
	}
	if pageToken != "" {
		q.Set("page_token", pageToken)
	}
	var page OrderPage
	err := a.client.Do(ctx, transport.Call{
		Op: "listOrders", Stage: model.StageFetch,
		Method: http.MethodGet, Path: "/api/orders/search", Query: q,
	}, &page)
	if err != nil {
		return OrderPage{}, err
	}
	return page, nil
}

// ListPendingOrders walks the cursor until the platform reports no more pages
// or the safety page cap is hit.
func (a *Adapter) ListPendingOrders(ctx context.Context, filters ListFilters) ([]model.RawOrder, error) {
	if filters.Status == "" {
		filters.Status = "AWAITING_SHIPMENT"
	}
	var all []model.RawOrder
	token := ""
	cap := a.PageCap
	if cap <= 0 {
		cap = 20
	}
	for page := 0; page < cap; page++ {
		p, err := a.ListOrders(ctx, filters, token)
		if err != nil {
			return nil, err
		}
		all = append(all, p.Orders...)
		if !p.HasMore || p.NextPageToken == "" {
			return all, nil
		}
		token = p.NextPageToken
	}
	return all, nil
}

// GetOrderDetail fetches the full raw payload for one order.
func (a *Adapter) GetOrderDetail(ctx context.Context, orderID string) (model.RawOrder, error) {
	if orderID == "" {
		return model.RawOrder{}, errs.New(model.StageFetch, errs.KindMalformedInput, "order id required")
	}
	q := url.Values{"order_id": {orderID}}
	var out struct {
		Order model.RawOrder `json:"order"`
	}
	err := a.client.Do(ctx, transport.Call{
		Op: "getOrderDetail", Stage: model.StageFetch,
		Method: http.MethodGet, Path: "/api/orders/detail", Query: q,
	}, &out)
	if err != nil {
		return model.RawOrder{}, errs.AsEngine(err, model.StageFetch).WithOrder(orderID)
	}
	if out.Order.OrderID == "" {
		out.Order.OrderID = orderID
	}
	return out.Order, nil
}

// TrackingUpdate is the payload pushed back to the source platform once a
// shipment has a tracking number.
type TrackingUpdate struct {
	TrackingNumber string `json:"tracking_number"`
	CarrierID      string `json:"carrier_id,omitempty"`
	CarrierName    string `json:"carrier_name,omitempty"`
}

// UpdateTracking reports carrier + tracking number for a package.
func (a *Adapter) UpdateTracking(ctx context.Context, packageID string, upd TrackingUpdate) error {
	if packageID == "" {
		return errs.New(model.StageFetch, errs.KindMalformedInput, "package id required")
	}
	if upd.TrackingNumber == "" {
		return errs.New(model.StageFetch, errs.KindMalformedInput, "tracking number required")
	}
	body := map[string]any{
		"package_id":      packageID,
		"tracking_number": upd.TrackingNumber,
		"carrier_id":      upd.CarrierID,
		"carrier_name":    upd.CarrierName,
	}
	return a.client.Do(ctx, transport.Call{
		Op: "updateTracking", Stage: model.StageFetch,
		Method: http.MethodPost, Path: "/api/fulfillment/tracking", Body: body,
	}, nil)
}
