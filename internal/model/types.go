package model

import "time"

// RawOrder is the order-source platform's native payload. Only the fields the
// validator reads are typed; everything else rides along in Extra.
type RawOrder struct {
	OrderID         string        `json:"order_id"`
	Status          string        `json:"order_status,omitempty"`
	Items           []RawLineItem `json:"item_list"`
	Recipient       *RawRecipient `json:"recipient_address"`
	BuyerMessage    string        `json:"message_to_seller,omitempty"`
	SellerNote      string        `json:"note,omitempty"`
	PaymentCurrency string        `json:"currency,omitempty"`
	ShippingType    string        `json:"shipping_type,omitempty"`
	DeliveryOption  string        `json:"delivery_option,omitempty"`
	CreateTime      int64         `json:"create_time,omitempty"`
	PackageID       string        `json:"package_id,omitempty"`
	Extra           map[string]any `json:"-"`
}

type RawLineItem struct {
	SKU       string  `json:"seller_sku"`
	Name      string  `json:"item_name,omitempty"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"item_price,omitempty"`
	Currency  string  `json:"currency,omitempty"`
}

type RawRecipient struct {
	Name       string `json:"name"`
	Phone      string `json:"phone,omitempty"`
	Line1      string `json:"address_line1"`
	Line2      string `json:"address_line2,omitempty"`
	City       string `json:"city"`
	Region     string `json:"state"`
	PostalCode string `json:"zipcode"`
	Country    string `json:"region_code"`
}

// CanonicalOrder is the engine's platform-neutral order. Immutable once built.
type CanonicalOrder struct {
	ID              string     `json:"id"`
	Items           []LineItem `json:"items"`
	BuyerMessage    string     `json:"buyerMessage,omitempty"`
	SellerNote      string     `json:"sellerNote,omitempty"`
	PaymentCurrency string     `json:"paymentCurrency"`
	ShippingType    string     `json:"shippingType,omitempty"`
	DeliveryOption  string     `json:"deliveryOption,omitempty"`
	PackageID       string     `json:"packageId,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

type LineItem struct {
	SKU       string  `json:"sku"`
	Name      string  `json:"name,omitempty"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
	Currency  string  `json:"currency"`
}

// NormalizedAddress has passed provider length/format constraints by the time
// it reaches the transformer.
type NormalizedAddress struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	Region     string `json:"region"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"` // ISO 3166-1 alpha-2
	Phone      string `json:"phone,omitempty"`
}

// ShippingSpeed is the provider's shipping-speed category.
type ShippingSpeed string

const (
	ShippingStandard  ShippingSpeed = "Standard"
	ShippingExpedited ShippingSpeed = "Expedited"
	ShippingPriority  ShippingSpeed = "Priority"
)

// ProviderOrderRequest is the ready-to-submit fulfillment request. RequestID is
// derived from the canonical order id, so resubmitting the same order reuses it.
type ProviderOrderRequest struct {
	RequestID         string            `json:"requestId"`
	DisplayableID     string            `json:"displayableId"`
	ShippingSpeed     ShippingSpeed     `json:"shippingSpeed"`
	FulfillmentPolicy string            `json:"fulfillmentPolicy"`
	Destination       NormalizedAddress `json:"destination"`
	Comment           string            `json:"comment,omitempty"`
	Items             []RequestItem     `json:"items"`
	NotifyEmails      []string          `json:"notifyEmails,omitempty"`
}

type RequestItem struct {
	SellerSKU     string `json:"sellerSku"`
	SourceSKU     string `json:"sourceSku"`
	Quantity      int    `json:"quantity"`
	DeclaredValue *Money `json:"declaredValue,omitempty"`
}

type Money struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// InventorySnapshot is a per-SKU cached view of provider inventory.
type InventorySnapshot struct {
	SKU           string    `json:"sku"`
	Fulfillable   int       `json:"fulfillable"`
	Total         int       `json:"total"`
	Reserved      int       `json:"reserved"`
	Inbound       int       `json:"inbound"`
	Unfulfillable int       `json:"unfulfillable"`
	CapturedAt    time.Time `json:"capturedAt"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

func (s InventorySnapshot) Expired(now time.Time) bool { return now.After(s.ExpiresAt) }

// Stage names the pipeline step an order is in when something happens to it.
type Stage string

const (
	StageFetch       Stage = "fetch"
	StageValidate    Stage = "validate"
	StageTransform   Stage = "transform"
	StageInventory   Stage = "check_inventory"
	StageCreateOrder Stage = "create_order"
)

// ProviderOrderDetail is the enrichment fetched after a successful submission.
type ProviderOrderDetail struct {
	ProviderOrderID string     `json:"providerOrderId"`
	Status          string     `json:"status,omitempty"`
	Shipments       []Shipment `json:"shipments,omitempty"`
}

type Shipment struct {
	ShipmentID     string `json:"shipmentId"`
	CarrierCode    string `json:"carrierCode,omitempty"`
	CarrierName    string `json:"carrierName,omitempty"`
	TrackingNumber string `json:"trackingNumber,omitempty"`
}

// RoutingOutcome is the terminal per-order, per-attempt record. Exactly one is
// produced for every attempted order; it is never mutated afterwards.
type RoutingOutcome struct {
	OrderID         string `json:"orderId"`
	Success         bool   `json:"success"`
	ProviderOrderID string `json:"providerOrderId,omitempty"`
	RequestID       string `json:"requestId,omitempty"`
	Warnings        []string `json:"warnings,omitempty"`
	// Detail is nil with DetailError set when submission succeeded but the
	// best-effort enrichment fetch did not.
	Detail      *ProviderOrderDetail `json:"detail,omitempty"`
	DetailError string               `json:"detailError,omitempty"`
	FailedStage Stage                `json:"failedStage,omitempty"`
	ErrorCode   string               `json:"errorCode,omitempty"`
	ErrorMsg    string               `json:"errorMessage,omitempty"`
	CompletedAt time.Time            `json:"completedAt"`
}

// TrackingRecord is per-order sync state. Mutated in place on each sync
// attempt; never auto-deleted.
type TrackingRecord struct {
	SourceOrderID   string    `json:"sourceOrderId"`
	PackageID       string    `json:"packageId,omitempty"`
	ProviderOrderID string    `json:"providerOrderId"`
	SyncAttempts    int       `json:"syncAttempts"`
	LastAttemptAt   time.Time `json:"lastAttemptAt,omitempty"`
	Synced          bool      `json:"synced"`
	TrackingNumber  string    `json:"trackingNumber,omitempty"`
	CarrierName     string    `json:"carrierName,omitempty"`
	LastError       string    `json:"lastError,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// BatchRoutingResult aggregates one RouteBatch run.
type BatchRoutingResult struct {
	TotalOrders  int              `json:"totalOrders"`
	SuccessCount int              `json:"successCount"`
	FailureCount int              `json:"failureCount"`
	Results      []RoutingOutcome `json:"results"`
	Errors       []string         `json:"errors,omitempty"`
}

// BatchTrackingSyncResult aggregates one SyncAll run.
type BatchTrackingSyncResult struct {
	TotalRecords int      `json:"totalRecords"`
	SyncedCount  int      `json:"syncedCount"`
	FailureCount int      `json:"failureCount"`
	SkippedCount int      `json:"skippedCount"` // shipment exists but carries no tracking number yet
	Errors       []string `json:"errors,omitempty"`
}
