package services

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"vendor-desk/models"
)

const (
	DefaultImageBase = "https://weprettify.com/Images/"

	defaultItemName = "Unknown Service"
	defaultPrice    = "0"
	defaultQuantity = "1"
	defaultAddress  = "Not provided"
	defaultStatus   = "Pending"
	defaultHubName  = "Unknown Hub"
	defaultLocation = "Location not available"
)

// schemeRegexp recognises an absolute URL such as https://, http:// or s3://.
var schemeRegexp = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.\-]*://`)

// Normalizer maps raw gateway records onto canonical shapes. It never fails:
// every missing or unparseable field falls back to a documented default.
type Normalizer struct {
	imageBase string
}

// NewNormalizer creates a Normalizer resolving bare image filenames against imageBase.
func NewNormalizer(imageBase string) *Normalizer {
	if imageBase == "" {
		imageBase = DefaultImageBase
	}
	if !strings.HasSuffix(imageBase, "/") {
		imageBase += "/"
	}
	return &Normalizer{imageBase: imageBase}
}

// Normalize builds the LineItem of one raw record.
func (n *Normalizer) Normalize(raw models.RawOrderRecord) models.LineItem {
	name := field(raw, "ItemName")
	if name == "" {
		name = field(raw, "ServiceName")
	}

	return models.LineItem{
		ItemName:  orDefault(name, defaultItemName),
		OrderType: field(raw, "OrderType"),
		Price:     parseAmount(orDefault(field(raw, "Price"), defaultPrice)).InexactFloat64(),
		Quantity:  parseQuantity(orDefault(field(raw, "Quantity"), defaultQuantity)),
		ImageURL:  n.resolveImage(field(raw, "ItemImages")),
	}
}

// NormalizeHeader extracts the order-level fields of one raw record.
func (n *Normalizer) NormalizeHeader(raw models.RawOrderRecord) models.OrderHeader {
	otp := field(raw, "OTP")
	if otp == "" {
		otp = field(raw, "otp")
	}

	return models.OrderHeader{
		OrderID:       field(raw, "OrderID"),
		UserID:        field(raw, "UserID"),
		Status:        orDefault(field(raw, "Status"), defaultStatus),
		Address:       orDefault(field(raw, "Address"), defaultAddress),
		Slot:          field(raw, "Slot"),
		SlotDatetime:  field(raw, "SlotDatetime"),
		OrderDatetime: field(raw, "OrderDatetime"),
		CompletedAt:   field(raw, "CompletedAt"),
		OTP:           otp,
		PaymentMethod: field(raw, "PaymentMethod"),
		Coupon:        field(raw, "Coupon"),
		FinalPrice:    parseAmount(field(raw, "FinalPrice")).InexactFloat64(),
	}
}

// NormalizeHub builds a NearbyHub row from a raw NearBy record.
func (n *Normalizer) NormalizeHub(raw map[string]any) models.NearbyHub {
	distance, err := strconv.ParseFloat(field(raw, "DistanceKm"), 64)
	if err != nil || math.IsNaN(distance) || math.IsInf(distance, 0) {
		distance = 0
	}

	return models.NearbyHub{
		LoginID:     field(raw, "LoginID"),
		InventoryID: field(raw, "InventoryID"),
		HubName:     orDefault(field(raw, "hubName"), defaultHubName),
		ProductName: field(raw, "ProductName"),
		Quantity:    field(raw, "Quantity"),
		Location:    orDefault(field(raw, "Location"), defaultLocation),
		DistanceKm:  distance,
	}
}

func (n *Normalizer) resolveImage(raw string) string {
	if raw == "" {
		return ""
	}
	if schemeRegexp.MatchString(raw) {
		return raw
	}
	return n.imageBase + strings.TrimLeft(raw, "/")
}

// field renders a scalar raw value as trimmed text. Null, objects and lists become "".
func field(raw map[string]any, key string) string {
	v, ok := raw[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// parseAmount reads a money amount such as "100", "₹1,200.50" or "2.5e2".
// Unparseable, negative or out-of-range input yields zero.
func parseAmount(raw string) decimal.Decimal {
	raw = strings.TrimSpace(raw)
	d, err := decimal.NewFromString(raw)
	if err != nil {
		cleaned := strings.Map(func(r rune) rune {
			if (r >= '0' && r <= '9') || r == '.' || r == '-' {
				return r
			}
			return -1
		}, raw)
		if cleaned == "" {
			return decimal.Zero
		}
		if d, err = decimal.NewFromString(cleaned); err != nil {
			return decimal.Zero
		}
	}
	if d.IsNegative() {
		return decimal.Zero
	}
	if f := d.InexactFloat64(); math.IsInf(f, 0) || math.IsNaN(f) {
		return decimal.Zero
	}
	return d
}

// parseQuantity reads a non-negative whole quantity. "2.0" counts as 2.
func parseQuantity(raw string) int {
	if n, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
		if n < 0 {
			return 0
		}
		return n
	}
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil || d.IsNegative() || d.GreaterThan(decimal.NewFromInt(math.MaxInt32)) {
		return 0
	}
	return int(d.IntPart())
}
