// Package transform maps canonical orders into the fulfillment provider's
// request shape.
package transform

import (
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"

	"orderbridge/internal/errs"
	"orderbridge/internal/model"
)

// requestNamespace seeds the deterministic request-id derivation. Fixed
// forever: changing it would break idempotent resubmission of old orders.
var requestNamespace = uuid.MustParse("7a3c92f4-1f0b-4bfd-9a3e-5c8d20f1b6aa")

// maxCommentLen is the provider's displayable-comment limit.
const maxCommentLen = 250

const truncationMarker = "..."

// SKUMap is the source-SKU -> provider-SKU registry. Exact match only;
// re-registering a source SKU overwrites the previous mapping.
type SKUMap struct {
	mu sync.RWMutex
	m  map[string]string
}

func NewSKUMap(initial map[string]string) *SKUMap {
	m := make(map[string]string, len(initial))
	for k, v := range initial {
		m[k] = v
	}
	return &SKUMap{m: m}
}

func (s *SKUMap) Register(sourceSKU, providerSKU string) {
	s.mu.Lock()
	s.m[sourceSKU] = providerSKU
	s.mu.Unlock()
}

func (s *SKUMap) Resolve(sourceSKU string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[sourceSKU]
	return v, ok
}

// Options tunes the transformer.
type Options struct {
	DefaultSpeed model.ShippingSpeed
	Policy       string
	NotifyEmails []string
	// StrictSKUMapping makes an unmapped SKU a hard error instead of a
	// pass-through warning.
	StrictSKUMapping bool
}

// Transformer is safe for concurrent use.
type Transformer struct {
	skus *SKUMap
	opts Options
}

func New(skus *SKUMap, opts Options) *Transformer {
	if opts.DefaultSpeed == "" {
		opts.DefaultSpeed = model.ShippingStandard
	}
	if opts.Policy == "" {
		opts.Policy = "FillOrKill"
	}
	return &Transformer{skus: skus, opts: opts}
}

// Result carries the request plus non-blocking warnings.
type Result struct {
	Request  model.ProviderOrderRequest
	Warnings []string
}

// Order builds the provider request for one canonical order. The request id
// depends only on the order id, so transforming the same order twice yields
// an identical id.
func (t *Transformer) Order(order model.CanonicalOrder, addr model.NormalizedAddress) (Result, error) {
	var warnings []string

	items := make([]model.RequestItem, 0, len(order.Items))
	for _, it := range order.Items {
		providerSKU, ok := t.skus.Resolve(it.SKU)
		if !ok {
			if t.opts.StrictSKUMapping {
				return Result{}, errs.New(model.StageTransform, errs.KindMalformedInput,
					"no provider SKU mapped for "+it.SKU).WithOrder(order.ID)
			}
			providerSKU = it.SKU
			warnings = append(warnings, "no mapping for SKU "+it.SKU+"; passing source SKU through")
		}
		item := model.RequestItem{
			SellerSKU: providerSKU,
			SourceSKU: it.SKU,
			Quantity:  it.Quantity,
		}
		if it.UnitPrice > 0 && it.Currency != "" {
			item.DeclaredValue = &model.Money{Amount: it.UnitPrice, Currency: it.Currency}
		}
		items = append(items, item)
	}
	if len(items) == 0 {
		return Result{}, errs.New(model.StageTransform, errs.KindMalformedInput,
			"transformation produced no items").WithOrder(order.ID)
	}

	return Result{
		Request: model.ProviderOrderRequest{
			RequestID:         RequestID(order.ID),
			DisplayableID:     order.ID,
			ShippingSpeed:     t.shippingSpeed(order),
			FulfillmentPolicy: t.opts.Policy,
			Destination:       addr,
			Comment:           buildComment(order.BuyerMessage, order.SellerNote),
			Items:             items,
			NotifyEmails:      t.opts.NotifyEmails,
		},
		Warnings: warnings,
	}, nil
}

// RequestID derives the deterministic provider request id for an order.
func RequestID(orderID string) string {
	return uuid.NewSHA1(requestNamespace, []byte(orderID)).String()
}

// explicit shipping-type field values, per the source platform's enum.
var shippingTypeSpeeds = map[string]model.ShippingSpeed{
	"STANDARD": model.ShippingStandard,
	"EXPRESS":  model.ShippingExpedited,
	"PRIORITY": model.ShippingPriority,
}

func (t *Transformer) shippingSpeed(order model.CanonicalOrder) model.ShippingSpeed {
	if s, ok := shippingTypeSpeeds[strings.ToUpper(order.ShippingType)]; ok {
		return s
	}
	opt := strings.ToUpper(order.DeliveryOption)
	switch {
	case strings.Contains(opt, "PRIORITY"), strings.Contains(opt, "NEXT"):
		return model.ShippingPriority
	case strings.Contains(opt, "EXPRESS"):
		return model.ShippingExpedited
	}
	return t.opts.DefaultSpeed
}

func buildComment(buyerMessage, sellerNote string) string {
	parts := make([]string, 0, 2)
	if buyerMessage != "" {
		parts = append(parts, buyerMessage)
	}
	if sellerNote != "" {
		parts = append(parts, sellerNote)
	}
	c := strings.Join(parts, " | ")
	if len(c) > maxCommentLen {
		cut := maxCommentLen - len(truncationMarker)
		for cut > 0 && !utf8.RuneStart(c[cut]) {
			cut--
		}
		c = c[:cut] + truncationMarker
	}
	return c
}
