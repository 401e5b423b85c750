package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"vendor-desk/models"
	"vendor-desk/utils"
)

const maxReplyBytes = 4 << 20

// Options configures a Client.
type Options struct {
	BaseURL        string
	Token          string
	Timeout        time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
	HTTPClient     *http.Client
}

// Client talks to the remote order gateway. Every call carries the shared token.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *utils.Logger
	retry   *utils.RetryConfig
}

// New creates a ready-to-use gateway Client.
func New(opts Options, logger *utils.Logger) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		token:   opts.Token,
		http:    hc,
		logger:  logger,
		retry: &utils.RetryConfig{
			MaxAttempts: opts.MaxRetries,
			BaseDelay:   opts.RetryBaseDelay,
			Logger:      logger,
			Retryable:   func(err error) bool { return errors.Is(err, ErrTransport) },
		},
	}
}

// OrderQuery filters ShowOrders. Empty fields are sent as empty strings.
type OrderQuery struct {
	OrderID     string
	UserID      string
	VendorPhone string
	Status      string
}

// StatusUpdate is the payload of UpdateOrderStatus.
type StatusUpdate struct {
	OrderID       string
	Price         string
	Quantity      string
	Status        string
	VendorPhone   string
	BeforVideo    string
	AfterVideo    string
	OTP           string
	PaymentMethod string
}

// NearbyQuery searches hubs stocking a product around a point.
type NearbyQuery struct {
	ProductName string
	Lat         float64
	Lon         float64
}

// HubRequest asks a hub to supply an item.
type HubRequest struct {
	HubLoginID  string
	VendorPhone string
	ItemID      string
	ItemName    string
	ItemQty     string
}

// ShowOrders lists raw line items matching q.
func (c *Client) ShowOrders(ctx context.Context, q OrderQuery) ([]models.RawOrderRecord, error) {
	form := url.Values{}
	form.Set("OrderID", q.OrderID)
	form.Set("UserID", q.UserID)
	form.Set("VendorPhone", q.VendorPhone)
	form.Set("Status", q.Status)

	items, err := c.query(ctx, "ShowOrders", form)
	if err != nil {
		return nil, err
	}
	return toOrderRecords(items), nil
}

// ShowOrdersAlert lists the raw line items of one offered lead.
func (c *Client) ShowOrdersAlert(ctx context.Context, orderID string) ([]models.RawOrderRecord, error) {
	form := url.Values{}
	form.Set("OrderID", orderID)

	items, err := c.query(ctx, "ShowOrdersAlert", form)
	if err != nil {
		return nil, err
	}
	return toOrderRecords(items), nil
}

// NearBy lists hubs near the query point as raw field bags.
func (c *Client) NearBy(ctx context.Context, q NearbyQuery) ([]map[string]any, error) {
	form := url.Values{}
	form.Set("ProductName", q.ProductName)
	form.Set("lat", strconv.FormatFloat(q.Lat, 'f', -1, 64))
	form.Set("lon", strconv.FormatFloat(q.Lon, 'f', -1, 64))

	return c.query(ctx, "NearBy", form)
}

// UpdateOrderStatus mutates the status of every line item of an order.
func (c *Client) UpdateOrderStatus(ctx context.Context, u StatusUpdate) error {
	form := url.Values{}
	form.Set("OrderID", u.OrderID)
	form.Set("Price", u.Price)
	form.Set("Quantity", u.Quantity)
	form.Set("Status", u.Status)
	form.Set("VendorPhone", u.VendorPhone)
	form.Set("BeforVideo", u.BeforVideo)
	form.Set("AfterVideo", u.AfterVideo)
	form.Set("OTP", u.OTP)
	form.Set("PaymentMethod", u.PaymentMethod)

	return c.mutate(ctx, "UpdateOrderStatus", form)
}

// AcceptLead commits the vendor as the holder of the lead.
func (c *Client) AcceptLead(ctx context.Context, orderID, vendorPhone string) error {
	return c.mutate(ctx, "AcceptLeads", leadForm(orderID, vendorPhone))
}

// DeclineLead releases the lead for other vendors.
func (c *Client) DeclineLead(ctx context.Context, orderID, vendorPhone string) error {
	return c.mutate(ctx, "DeclineLeads", leadForm(orderID, vendorPhone))
}

// InsertHubRequest sends a supply request to a hub.
func (c *Client) InsertHubRequest(ctx context.Context, r HubRequest) error {
	form := url.Values{}
	form.Set("HubLoginID", r.HubLoginID)
	form.Set("VendorPhone", r.VendorPhone)
	form.Set("itemID", r.ItemID)
	form.Set("itemName", r.ItemName)
	form.Set("itemQTY", r.ItemQty)

	return c.mutate(ctx, "InsertHubRequest", form)
}

func leadForm(orderID, vendorPhone string) url.Values {
	form := url.Values{}
	form.Set("OrderID", orderID)
	form.Set("VendorPhone", vendorPhone)
	return form
}

// query posts a read request, retrying transport failures only.
func (c *Client) query(ctx context.Context, op string, form url.Values) ([]map[string]any, error) {
	var items []map[string]any
	err := c.retry.Do(ctx, op, func(ctx context.Context) error {
		body, err := c.post(ctx, op, form)
		if err != nil {
			return err
		}
		items, err = decodeList(body)
		if err != nil {
			return malformedErr(op, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Debug("[gateway] %s returned %d records", op, len(items))
	return items, nil
}

// mutate posts a write request exactly once.
func (c *Client) mutate(ctx context.Context, op string, form url.Values) error {
	body, err := c.post(ctx, op, form)
	if err != nil {
		return err
	}
	c.logger.Debug("[gateway] %s ok: %s", op, truncate(string(body), 120))
	return nil
}

func (c *Client) post(ctx context.Context, op string, form url.Values) ([]byte, error) {
	form.Set("token", c.token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+op, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, transportErr(op, 0, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transportErr(op, 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return nil, transportErr(op, resp.StatusCode, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, transportErr(op, resp.StatusCode, fmt.Errorf("reply: %s", truncate(string(body), 200)))
	}
	return body, nil
}

func toOrderRecords(items []map[string]any) []models.RawOrderRecord {
	out := make([]models.RawOrderRecord, len(items))
	for i, item := range items {
		out[i] = models.RawOrderRecord(item)
	}
	return out
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max-3]) + "..."
}
