package api

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vendor-desk/gateway"
	"vendor-desk/lead"
	"vendor-desk/models"
	"vendor-desk/poller"
	"vendor-desk/services"
)

type fakeOrders struct {
	mu        sync.Mutex
	lastQuery services.OrderFilter
	cancelled []string
	started   map[string]string
	groups    []models.OrderGroup
	otp       string
}

func (f *fakeOrders) FetchGroupedOrders(_ context.Context, q services.OrderFilter) []models.OrderGroup {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQuery = q
	return f.groups
}

func (f *fakeOrders) Cancel(_ context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, orderID)
	return nil
}

func (f *fakeOrders) StartService(_ context.Context, orderID, otp string) error {
	if otp != f.otp {
		return services.ErrOTPMismatch
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started == nil {
		f.started = map[string]string{}
	}
	f.started[orderID] = otp
	return nil
}

type fakeLeadGateway struct {
	acceptErr error
}

func (f *fakeLeadGateway) ShowOrdersAlert(context.Context, string) ([]models.RawOrderRecord, error) {
	return []models.RawOrderRecord{{"ItemName": "Wash", "Price": "100", "Quantity": "1"}}, nil
}

func (f *fakeLeadGateway) UpdateOrderStatus(context.Context, gateway.StatusUpdate) error { return nil }

func (f *fakeLeadGateway) AcceptLead(context.Context, string, string) error { return f.acceptErr }

func (f *fakeLeadGateway) DeclineLead(context.Context, string, string) error { return nil }

type fakeWatcher[T any] struct {
	mu     sync.Mutex
	filter poller.Filter
	rows   []T
}

func (f *fakeWatcher[T]) SetFilter(fl poller.Filter) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filter = fl
}

func (f *fakeWatcher[T]) Snapshot() poller.View[T] {
	f.mu.Lock()
	defer f.mu.Unlock()
	return poller.View[T]{Filter: f.filter, Rows: f.rows}
}

type fakeHubs struct {
	requested []models.NearbyHub
}

func (f *fakeHubs) Request(_ context.Context, h models.NearbyHub) error {
	f.requested = append(f.requested, h)
	return nil
}

type fixture struct {
	router http.Handler
	orders *fakeOrders
	desk   *lead.Desk
	gw     *fakeLeadGateway
	nearby *fakeWatcher[models.NearbyHub]
	watch  *fakeWatcher[models.OrderGroup]
	hubs   *fakeHubs
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gw := &fakeLeadGateway{}
	desk := lead.NewDesk(gw, lead.Config{
		VendorPhone:     "9999999999",
		DeadlineSeconds: 60,
		Clock:           clockwork.NewFakeClock(),
	})
	t.Cleanup(desk.CloseAll)

	f := &fixture{
		orders: &fakeOrders{otp: "4321", groups: []models.OrderGroup{
			{OrderHeader: models.OrderHeader{OrderID: "A1"}, Items: []models.LineItem{{ItemName: "Wash"}}},
		}},
		desk:   desk,
		gw:     gw,
		nearby: &fakeWatcher[models.NearbyHub]{},
		watch:  &fakeWatcher[models.OrderGroup]{},
		hubs:   &fakeHubs{},
	}
	f.router = NewRouter(Deps{
		Orders:      f.orders,
		Leads:       desk,
		Hubs:        f.hubs,
		OrderWatch:  f.watch,
		Nearby:      f.nearby,
		DefaultSpot: poller.Location{Lat: 28.6139, Lon: 77.209},
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) (int, map[string]json.RawMessage) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var env map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func decodeInto(t *testing.T, raw json.RawMessage, dest any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(raw, dest))
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	code, env := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"ok"}`, string(env["data"]))
}

func TestListOrdersPassesStatus(t *testing.T) {
	f := newFixture(t)
	code, env := f.do(t, http.MethodGet, "/orders?status=Completed", "")
	require.Equal(t, http.StatusOK, code)

	var groups []models.OrderGroup
	decodeInto(t, env["data"], &groups)
	require.Len(t, groups, 1)
	assert.Equal(t, "A1", groups[0].OrderID)
	assert.Equal(t, "Completed", f.orders.lastQuery.Status)
}

func TestCancelAndStartService(t *testing.T) {
	f := newFixture(t)

	code, _ := f.do(t, http.MethodPost, "/orders/A1/cancel", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"A1"}, f.orders.cancelled)

	code, env := f.do(t, http.MethodPost, "/orders/A1/start", `{"otp":"0000"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	var apiErr apiError
	decodeInto(t, env["error"], &apiErr)
	assert.Equal(t, "otp_mismatch", apiErr.Code)

	code, _ = f.do(t, http.MethodPost, "/orders/A1/start", `{"otp":"4321"}`)
	assert.Equal(t, http.StatusOK, code)

	code, env = f.do(t, http.MethodPost, "/orders/A1/start", `{}`)
	assert.Equal(t, http.StatusBadRequest, code)
	decodeInto(t, env["error"], &apiErr)
	assert.Contains(t, string(env["error"]), `"otp":"is required"`)
}

func TestLeadLifecycleOverHTTP(t *testing.T) {
	f := newFixture(t)

	code, env := f.do(t, http.MethodPost, "/leads", `{"orderId":"A1"}`)
	require.Equal(t, http.StatusCreated, code)
	var offer offerView
	decodeInto(t, env["data"], &offer)
	assert.Equal(t, "A1", offer.OrderID)
	assert.Equal(t, 60, offer.RemainingSeconds)

	code, _ = f.do(t, http.MethodPost, "/leads", `{"orderId":"A1"}`)
	assert.Equal(t, http.StatusConflict, code)

	c, ok := f.desk.Get(offer.OfferID)
	require.True(t, ok)
	require.Eventually(t, func() bool { return c.State() == lead.Awaiting }, 2*time.Second, time.Millisecond)

	code, env = f.do(t, http.MethodGet, "/leads/"+offer.OfferID, "")
	require.Equal(t, http.StatusOK, code)
	decodeInto(t, env["data"], &offer)
	require.NotNil(t, offer.Detail)
	assert.Equal(t, "Wash", offer.Detail.ItemName)

	code, env = f.do(t, http.MethodPost, "/leads/"+offer.OfferID+"/accept", "")
	require.Equal(t, http.StatusOK, code)
	var decision decisionView
	decodeInto(t, env["data"], &decision)
	assert.True(t, decision.StatusMutated)
	assert.True(t, decision.LeadCommitted)
	assert.Equal(t, "closed", decision.Offer.State)

	require.Eventually(t, func() bool {
		_, ok := f.desk.Get(offer.OfferID)
		return !ok
	}, 2*time.Second, time.Millisecond)
	code, _ = f.do(t, http.MethodPost, "/leads/"+offer.OfferID+"/decline", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestPartialAcceptReportsBothSteps(t *testing.T) {
	f := newFixture(t)
	f.gw.acceptErr = errors.New("lead taken")

	code, env := f.do(t, http.MethodPost, "/leads", `{"orderId":"B2"}`)
	require.Equal(t, http.StatusCreated, code)
	var offer offerView
	decodeInto(t, env["data"], &offer)
	c, _ := f.desk.Get(offer.OfferID)
	require.Eventually(t, func() bool { return c.State() == lead.Awaiting }, 2*time.Second, time.Millisecond)

	code, env = f.do(t, http.MethodPost, "/leads/"+offer.OfferID+"/accept", "")
	assert.Equal(t, http.StatusBadGateway, code)

	var body struct {
		Code    string       `json:"code"`
		Details decisionView `json:"details"`
	}
	decodeInto(t, env["error"], &body)
	assert.Equal(t, "partial_commit", body.Code)
	assert.True(t, body.Details.StatusMutated)
	assert.False(t, body.Details.LeadCommitted)
}

func TestUnknownLeadAction(t *testing.T) {
	f := newFixture(t)
	_, env := f.do(t, http.MethodPost, "/leads", `{"orderId":"C3"}`)
	var offer offerView
	decodeInto(t, env["data"], &offer)

	code, _ := f.do(t, http.MethodPost, "/leads/"+offer.OfferID+"/snooze", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = f.do(t, http.MethodPost, "/leads/"+offer.OfferID+"/close", "")
	assert.Equal(t, http.StatusOK, code)
}

func TestNearbyFilterAndRequest(t *testing.T) {
	f := newFixture(t)

	code, _ := f.do(t, http.MethodPut, "/nearby", `{"term":"phone"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "phone", f.nearby.filter.Term)
	assert.Equal(t, 28.6139, f.nearby.filter.Location.Lat)

	code, _ = f.do(t, http.MethodPut, "/nearby", `{"term":"phone","lat":12.97,"lon":77.59}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 12.97, f.nearby.filter.Location.Lat)

	code, _ = f.do(t, http.MethodPut, "/nearby", `{"term":"phone","lat":120,"lon":77.59}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, http.MethodPut, "/nearby", `{"term":"phone","radius":5}`)
	assert.Equal(t, http.StatusBadRequest, code)

	f.nearby.rows = []models.NearbyHub{{LoginID: "h1", InventoryID: "inv9", ProductName: "phone"}}
	code, _ = f.do(t, http.MethodPost, "/nearby/request", `{"loginId":"h2"}`)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = f.do(t, http.MethodPost, "/nearby/request", `{"loginId":"h1","inventoryId":"inv9"}`)
	assert.Equal(t, http.StatusAccepted, code)
	require.Len(t, f.hubs.requested, 1)
	assert.Equal(t, "phone", f.hubs.requested[0].ProductName)
}

func TestOrderWatch(t *testing.T) {
	f := newFixture(t)
	code, env := f.do(t, http.MethodPut, "/orders/watch", `{"status":"Pending"}`)
	require.Equal(t, http.StatusOK, code)

	var view poller.View[models.OrderGroup]
	decodeInto(t, env["data"], &view)
	assert.Equal(t, "Pending", view.Filter.Term)
}

type fakeHistory struct {
	limit int
}

func (f *fakeHistory) Recent(_ context.Context, limit int) ([]models.LeadDecision, error) {
	f.limit = limit
	return []models.LeadDecision{{OfferID: "o1", OrderID: "A1", Action: "auto_decline", LeadCommitted: true}}, nil
}

func TestLeadHistory(t *testing.T) {
	f := newFixture(t)
	code, _ := f.do(t, http.MethodGet, "/leads/history", "")
	assert.Equal(t, http.StatusNotFound, code, "journal disabled")

	hist := &fakeHistory{}
	router := NewRouter(Deps{Orders: f.orders, Leads: f.desk, History: hist})
	req := httptest.NewRequest(http.MethodGet, "/leads/history?limit=5", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, hist.limit)
	assert.Contains(t, rec.Body.String(), `"action":"auto_decline"`)

	req = httptest.NewRequest(http.MethodGet, "/leads/history?limit=0", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnencodableOrdersBecomeServerError(t *testing.T) {
	f := newFixture(t)
	f.orders.groups = []models.OrderGroup{{OrderHeader: models.OrderHeader{OrderID: "A1"}, TotalPrice: math.Inf(1)}}

	code, env := f.do(t, http.MethodGet, "/orders", "")
	assert.Equal(t, http.StatusInternalServerError, code)
	var apiErr apiError
	decodeInto(t, env["error"], &apiErr)
	assert.Equal(t, "internal", apiErr.Code)
}
