// Package validate normalizes raw marketplace orders into the engine's
// canonical shape. Pure: no network, no clock beyond the payload's own
// timestamps.
package validate

import (
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"orderbridge/internal/errs"
	"orderbridge/internal/model"
)

// Provider field-length constraints. Anything longer is truncated (cosmetic
// fields) or rejected (identity fields are never truncated here; they are
// required verbatim).
const (
	maxName  = 50
	maxLine  = 60
	maxCity  = 50
	maxState = 50
	maxZip   = 20
	maxPhone = 20
)

// Result is a validated order ready for transformation.
type Result struct {
	Order    model.CanonicalOrder
	Address  model.NormalizedAddress
	Warnings []string
}

// Order validates and normalizes one raw order. Field errors are hard
// failures; warnings ride along on the result.
func Order(raw model.RawOrder) (Result, []errs.FieldError) {
	var ferrs []errs.FieldError
	var warnings []string

	if strings.TrimSpace(raw.OrderID) == "" {
		ferrs = append(ferrs, errs.FieldError{Field: "order_id", Code: "required", Msg: "order id is required"})
	}
	if len(raw.Items) == 0 {
		ferrs = append(ferrs, errs.FieldError{Field: "item_list", Code: "required", Msg: "order has no line items"})
	}

	currency := strings.ToUpper(strings.TrimSpace(raw.PaymentCurrency))
	items := make([]model.LineItem, 0, len(raw.Items))
	for i, it := range raw.Items {
		sku := strings.TrimSpace(it.SKU)
		if sku == "" {
			ferrs = append(ferrs, errs.FieldError{Field: field("item_list", i, "seller_sku"), Code: "required", Msg: "line item is missing a SKU"})
			continue
		}
		if it.Quantity <= 0 {
			ferrs = append(ferrs, errs.FieldError{Field: field("item_list", i, "quantity"), Code: "invalid", Msg: "quantity must be positive"})
			continue
		}
		cur := strings.ToUpper(strings.TrimSpace(it.Currency))
		if cur == "" {
			cur = currency
		}
		items = append(items, model.LineItem{
			SKU:       sku,
			Name:      strings.TrimSpace(it.Name),
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			Currency:  cur,
		})
	}

	addr, addrErrs, addrWarnings := address(raw.Recipient)
	ferrs = append(ferrs, addrErrs...)
	warnings = append(warnings, addrWarnings...)

	if len(ferrs) > 0 {
		return Result{}, ferrs
	}

	created := time.Time{}
	if raw.CreateTime > 0 {
		created = time.Unix(raw.CreateTime, 0).UTC()
	}
	return Result{
		Order: model.CanonicalOrder{
			ID:              strings.TrimSpace(raw.OrderID),
			Items:           items,
			BuyerMessage:    strings.TrimSpace(raw.BuyerMessage),
			SellerNote:      strings.TrimSpace(raw.SellerNote),
			PaymentCurrency: currency,
			ShippingType:    strings.TrimSpace(raw.ShippingType),
			DeliveryOption:  strings.TrimSpace(raw.DeliveryOption),
			PackageID:       strings.TrimSpace(raw.PackageID),
			CreatedAt:       created,
		},
		Address:  addr,
		Warnings: warnings,
	}, nil
}

func address(r *model.RawRecipient) (model.NormalizedAddress, []errs.FieldError, []string) {
	if r == nil {
		return model.NormalizedAddress{}, []errs.FieldError{{Field: "recipient_address", Code: "required", Msg: "recipient address is required"}}, nil
	}
	var ferrs []errs.FieldError
	var warnings []string

	required := func(field, value string) string {
		v := strings.TrimSpace(value)
		if v == "" {
			ferrs = append(ferrs, errs.FieldError{Field: "recipient_address." + field, Code: "required", Msg: field + " is required"})
		}
		return v
	}
	clamp := func(field, value string, max int) string {
		if len(value) > max {
			warnings = append(warnings, "recipient_address."+field+" truncated to "+strconv.Itoa(max)+" characters")
			return truncate(value, max)
		}
		return value
	}

	addr := model.NormalizedAddress{
		Name:       clamp("name", required("name", r.Name), maxName),
		Line1:      clamp("address_line1", required("address_line1", r.Line1), maxLine),
		Line2:      clamp("address_line2", strings.TrimSpace(r.Line2), maxLine),
		City:       clamp("city", required("city", r.City), maxCity),
		Region:     clamp("state", required("state", r.Region), maxState),
		PostalCode: clamp("zipcode", required("zipcode", r.PostalCode), maxZip),
		Country:    strings.ToUpper(required("region_code", r.Country)),
		Phone:      clamp("phone", strings.TrimSpace(r.Phone), maxPhone),
	}
	if addr.Country != "" && len(addr.Country) != 2 {
		ferrs = append(ferrs, errs.FieldError{Field: "recipient_address.region_code", Code: "invalid", Msg: "country must be ISO 3166-1 alpha-2"})
	}
	return addr, ferrs, warnings
}

func field(base string, idx int, name string) string {
	return base + "[" + strconv.Itoa(idx) + "]." + name
}

// truncate cuts s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
