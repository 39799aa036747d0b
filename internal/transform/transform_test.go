package transform

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"orderbridge/internal/errs"
	"orderbridge/internal/model"
)

func canonical(items ...model.LineItem) model.CanonicalOrder {
	return model.CanonicalOrder{ID: "o-1", Items: items, PaymentCurrency: "USD"}
}

func addr() model.NormalizedAddress {
	return model.NormalizedAddress{Name: "J", Line1: "1 Main", City: "X", Region: "Y", PostalCode: "1", Country: "US"}
}

func TestOrderMappedAndUnmappedSKU(t *testing.T) {
	tr := New(NewSKUMap(map[string]string{"SRC-A": "PROV-A"}), Options{})
	res, err := tr.Order(canonical(
		model.LineItem{SKU: "SRC-A", Quantity: 1, UnitPrice: 3, Currency: "USD"},
		model.LineItem{SKU: "SRC-B", Quantity: 2},
	), addr())
	require.NoError(t, err)
	require.Len(t, res.Request.Items, 2)
	require.Equal(t, "PROV-A", res.Request.Items[0].SellerSKU)
	// unmapped SKU passes through verbatim with a warning
	require.Equal(t, "SRC-B", res.Request.Items[1].SellerSKU)
	require.Len(t, res.Warnings, 1)
	require.Contains(t, res.Warnings[0], "SRC-B")
}

func TestOrderStrictModeRejectsUnmapped(t *testing.T) {
	tr := New(NewSKUMap(nil), Options{StrictSKUMapping: true})
	_, err := tr.Order(canonical(model.LineItem{SKU: "SRC-B", Quantity: 1}), addr())
	require.Error(t, err)
	require.Equal(t, errs.KindMalformedInput, errs.KindOf(err))
	require.Equal(t, model.StageTransform, errs.StageOf(err))
}

func TestOrderEmptyItemsHardError(t *testing.T) {
	tr := New(NewSKUMap(nil), Options{})
	_, err := tr.Order(canonical(), addr())
	require.Error(t, err)
	require.Equal(t, model.StageTransform, errs.StageOf(err))
}

func TestRequestIDDeterministic(t *testing.T) {
	tr := New(NewSKUMap(nil), Options{})
	o := canonical(model.LineItem{SKU: "A", Quantity: 1})
	r1, err := tr.Order(o, addr())
	require.NoError(t, err)
	r2, err := tr.Order(o, addr())
	require.NoError(t, err)
	require.Equal(t, r1.Request.RequestID, r2.Request.RequestID)
	require.NotEqual(t, r1.Request.RequestID, RequestID("o-2"))
}

func TestLastRegisteredMappingWins(t *testing.T) {
	m := NewSKUMap(map[string]string{"A": "P1"})
	m.Register("A", "P2")
	got, ok := m.Resolve("A")
	require.True(t, ok)
	require.Equal(t, "P2", got)
	_, ok = m.Resolve("a") // exact match only
	require.False(t, ok)
}

func TestShippingSpeedResolution(t *testing.T) {
	tr := New(NewSKUMap(nil), Options{DefaultSpeed: model.ShippingStandard})
	item := model.LineItem{SKU: "A", Quantity: 1}

	cases := []struct {
		shippingType, deliveryOption string
		want                         model.ShippingSpeed
	}{
		{"EXPRESS", "", model.ShippingExpedited},              // explicit type wins
		{"express", "", model.ShippingExpedited},              // case-insensitive
		{"", "EXPRESS DELIVERY", model.ShippingExpedited},     // keyword match
		{"", "PRIORITY OVERNIGHT", model.ShippingPriority},
		{"", "NEXT DAY", model.ShippingPriority},
		{"", "ground", model.ShippingStandard},                // default
		{"", "", model.ShippingStandard},
	}
	for _, c := range cases {
		o := canonical(item)
		o.ShippingType = c.shippingType
		o.DeliveryOption = c.deliveryOption
		res, err := tr.Order(o, addr())
		require.NoError(t, err)
		require.Equal(t, c.want, res.Request.ShippingSpeed, "type=%q option=%q", c.shippingType, c.deliveryOption)
	}
}

func TestCommentConcatenationAndTruncation(t *testing.T) {
	tr := New(NewSKUMap(nil), Options{})
	o := canonical(model.LineItem{SKU: "A", Quantity: 1})
	o.BuyerMessage = "leave at door"
	o.SellerNote = "fragile"
	res, err := tr.Order(o, addr())
	require.NoError(t, err)
	require.Equal(t, "leave at door | fragile", res.Request.Comment)

	o.BuyerMessage = strings.Repeat("m", 300)
	res, err = tr.Order(o, addr())
	require.NoError(t, err)
	require.Len(t, res.Request.Comment, maxCommentLen)
	require.True(t, strings.HasSuffix(res.Request.Comment, truncationMarker))
}

func TestCommentTruncationKeepsRunesIntact(t *testing.T) {
	tr := New(NewSKUMap(nil), Options{})
	o := canonical(model.LineItem{SKU: "A", Quantity: 1})
	// 3-byte runes: the byte limit lands mid-rune
	o.BuyerMessage = strings.Repeat("配", 100)
	res, err := tr.Order(o, addr())
	require.NoError(t, err)
	require.True(t, utf8.ValidString(res.Request.Comment))
	require.LessOrEqual(t, len(res.Request.Comment), maxCommentLen)
	require.True(t, strings.HasSuffix(res.Request.Comment, truncationMarker))
}

func TestDeclaredValueOnlyWithPriceAndCurrency(t *testing.T) {
	tr := New(NewSKUMap(nil), Options{})
	res, err := tr.Order(canonical(
		model.LineItem{SKU: "A", Quantity: 1, UnitPrice: 5, Currency: "USD"},
		model.LineItem{SKU: "B", Quantity: 1},
	), addr())
	require.NoError(t, err)
	require.NotNil(t, res.Request.Items[0].DeclaredValue)
	require.Equal(t, 5.0, res.Request.Items[0].DeclaredValue.Amount)
	require.Nil(t, res.Request.Items[1].DeclaredValue)
}
