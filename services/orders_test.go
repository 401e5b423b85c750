package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vendor-desk/gateway"
	"vendor-desk/models"
	"vendor-desk/utils"
)

type fakeOrderGateway struct {
	records   []models.RawOrderRecord
	err       error
	queries   []gateway.OrderQuery
	updates   []gateway.StatusUpdate
	updateErr error
}

func (f *fakeOrderGateway) ShowOrders(_ context.Context, q gateway.OrderQuery) ([]models.RawOrderRecord, error) {
	f.queries = append(f.queries, q)
	return f.records, f.err
}

func (f *fakeOrderGateway) UpdateOrderStatus(_ context.Context, u gateway.StatusUpdate) error {
	f.updates = append(f.updates, u)
	return f.updateErr
}

type countingObserver struct{ ops []string }

func (c *countingObserver) GatewayFailure(op string, _ error) { c.ops = append(c.ops, op) }

func newTestOrderService(gw *fakeOrderGateway) *OrderService {
	return NewOrderService(gw, newTestAggregator(), "9999999999", utils.NopLogger())
}

func TestFetchGroupedOrdersScopesToVendor(t *testing.T) {
	gw := &fakeOrderGateway{records: sampleRecords()}
	groups := newTestOrderService(gw).FetchGroupedOrders(context.Background(), OrderFilter{Status: "Done"})

	require.Len(t, groups, 2)
	require.Len(t, gw.queries, 1)
	assert.Equal(t, "9999999999", gw.queries[0].VendorPhone)
	assert.Equal(t, "Done", gw.queries[0].Status)
}

func TestFetchGroupedOrdersAbsorbsFailures(t *testing.T) {
	tests := []error{
		&gateway.Error{Op: "ShowOrders", Kind: gateway.ErrMalformedPayload, Err: errors.New("not json")},
		&gateway.Error{Op: "ShowOrders", Kind: gateway.ErrTransport, Status: 502},
	}

	for _, gwErr := range tests {
		gw := &fakeOrderGateway{err: gwErr}
		obs := &countingObserver{}
		svc := newTestOrderService(gw).WithObserver(obs)

		groups := svc.FetchGroupedOrders(context.Background(), OrderFilter{Status: "Done"})
		require.NotNil(t, groups, "err %v", gwErr)
		assert.Empty(t, groups)
		assert.Equal(t, []string{"ShowOrders"}, obs.ops)
	}
}

func TestCancelSetsCancelledStatus(t *testing.T) {
	gw := &fakeOrderGateway{}
	require.NoError(t, newTestOrderService(gw).Cancel(context.Background(), "A1"))

	require.Len(t, gw.updates, 1)
	assert.Equal(t, gateway.StatusUpdate{OrderID: "A1", Status: "Cancelled", VendorPhone: "9999999999"}, gw.updates[0])
}

func TestCancelWrapsGatewayError(t *testing.T) {
	gw := &fakeOrderGateway{updateErr: fmt.Errorf("boom: %w", gateway.ErrTransport)}
	err := newTestOrderService(gw).Cancel(context.Background(), "A1")
	assert.ErrorIs(t, err, gateway.ErrTransport)
}

func TestStartServiceVerifiesOTP(t *testing.T) {
	gw := &fakeOrderGateway{records: []models.RawOrderRecord{
		{"OrderID": "A1", "ItemName": "Wash", "OTP": "4821", "Status": "Done"},
	}}
	svc := newTestOrderService(gw)

	err := svc.StartService(context.Background(), "A1", "0000")
	require.ErrorIs(t, err, ErrOTPMismatch)
	assert.Empty(t, gw.updates, "wrong OTP must not reach the gateway")

	require.NoError(t, svc.StartService(context.Background(), "A1", " 4821 "))
	require.Len(t, gw.updates, 1)
	assert.Equal(t, "Onservice", gw.updates[0].Status)
	assert.Equal(t, "A1", gw.queries[len(gw.queries)-1].OrderID)
}

func TestStartServiceUnknownOrder(t *testing.T) {
	gw := &fakeOrderGateway{}
	err := newTestOrderService(gw).StartService(context.Background(), "nope", "1234")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestStartServiceRejectsBlankOTP(t *testing.T) {
	gw := &fakeOrderGateway{records: []models.RawOrderRecord{{"OrderID": "A1"}}}
	err := newTestOrderService(gw).StartService(context.Background(), "A1", "")
	assert.ErrorIs(t, err, ErrOTPMismatch)
}

func TestFetchGroupedOrdersOverMalformedGatewayReply(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/APIs.asmx/ShowOrders", r.URL.Path)
		_, _ = io.WriteString(w, `"not json"`)
	}))
	t.Cleanup(srv.Close)

	client := gateway.New(gateway.Options{
		BaseURL:        srv.URL + "/APIs.asmx",
		Token:          "TOKEN",
		Timeout:        time.Second,
		MaxRetries:     2,
		RetryBaseDelay: time.Millisecond,
	}, utils.NopLogger())
	obs := &countingObserver{}
	svc := NewOrderService(client, newTestAggregator(), "9999999999", utils.NopLogger()).WithObserver(obs)

	groups := svc.FetchGroupedOrders(context.Background(), OrderFilter{Status: "Pending"})
	require.NotNil(t, groups)
	assert.Empty(t, groups)
	assert.Equal(t, []string{"ShowOrders"}, obs.ops)
	assert.Equal(t, int32(1), calls.Load())
}
