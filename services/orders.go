package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"vendor-desk/gateway"
	"vendor-desk/models"
	"vendor-desk/utils"
)

// Order statuses understood by the gateway.
const (
	StatusPending   = "Pending"
	StatusDone      = "Done"
	StatusOnService = "Onservice"
	StatusCompleted = "Completed"
	StatusCancelled = "Cancelled"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrOTPMismatch   = errors.New("otp does not match")
)

// OrderGateway is the slice of the remote gateway the order service needs.
type OrderGateway interface {
	ShowOrders(ctx context.Context, q gateway.OrderQuery) ([]models.RawOrderRecord, error)
	UpdateOrderStatus(ctx context.Context, u gateway.StatusUpdate) error
}

// FailureObserver is told about every absorbed gateway failure.
type FailureObserver interface {
	GatewayFailure(op string, err error)
}

// OrderFilter selects the orders of one screen.
type OrderFilter struct {
	OrderID string
	Status  string
}

// OrderService serves grouped orders for one vendor.
type OrderService struct {
	gw          OrderGateway
	aggregator  *Aggregator
	vendorPhone string
	logger      *utils.Logger
	observer    FailureObserver
}

// NewOrderService creates an OrderService scoped to vendorPhone.
func NewOrderService(gw OrderGateway, aggregator *Aggregator, vendorPhone string, logger *utils.Logger) *OrderService {
	return &OrderService{gw: gw, aggregator: aggregator, vendorPhone: vendorPhone, logger: logger}
}

// WithObserver attaches a failure observer and returns s.
func (s *OrderService) WithObserver(o FailureObserver) *OrderService {
	s.observer = o
	return s
}

// PolicyFor picks the screen ordering for a status filter.
func PolicyFor(status string) SortPolicy {
	switch {
	case strings.EqualFold(status, StatusCompleted):
		return ByCompletedAtDesc
	case status == "":
		return InsertionOrder
	default:
		return NewestFirst
	}
}

// FetchGroupedOrders returns the grouped orders matching f. It never fails:
// transport and payload errors are logged and yield an empty slice.
func (s *OrderService) FetchGroupedOrders(ctx context.Context, f OrderFilter) []models.OrderGroup {
	records, err := s.gw.ShowOrders(ctx, gateway.OrderQuery{
		OrderID:     f.OrderID,
		VendorPhone: s.vendorPhone,
		Status:      f.Status,
	})
	if err != nil {
		s.logger.Warn("[orders] fetch status=%q failed: %v", f.Status, err)
		if s.observer != nil {
			s.observer.GatewayFailure("ShowOrders", err)
		}
		return []models.OrderGroup{}
	}
	return s.aggregator.Aggregate(records, PolicyFor(f.Status))
}

// Cancel marks an accepted order as cancelled by the vendor.
func (s *OrderService) Cancel(ctx context.Context, orderID string) error {
	if err := s.setStatus(ctx, orderID, StatusCancelled); err != nil {
		return fmt.Errorf("cancel order %s: %w", orderID, err)
	}
	s.logger.Info("[orders] Order %s cancelled", orderID)
	return nil
}

// StartService verifies the customer's OTP and moves the order on-service.
// A wrong OTP never reaches the gateway.
func (s *OrderService) StartService(ctx context.Context, orderID, otp string) error {
	groups := s.FetchGroupedOrders(ctx, OrderFilter{OrderID: orderID, Status: StatusDone})
	var order *models.OrderGroup
	for i := range groups {
		if groups[i].OrderID == orderID {
			order = &groups[i]
			break
		}
	}
	if order == nil {
		return fmt.Errorf("start service %s: %w", orderID, ErrOrderNotFound)
	}
	if !otpMatches(order.OTP, otp) {
		s.logger.Warn("[orders] OTP mismatch for order %s", orderID)
		return fmt.Errorf("start service %s: %w", orderID, ErrOTPMismatch)
	}

	if err := s.setStatus(ctx, orderID, StatusOnService); err != nil {
		return fmt.Errorf("start service %s: %w", orderID, err)
	}
	s.logger.Info("[orders] Service started for order %s", orderID)
	return nil
}

func (s *OrderService) setStatus(ctx context.Context, orderID, status string) error {
	return s.gw.UpdateOrderStatus(ctx, gateway.StatusUpdate{
		OrderID:     orderID,
		Status:      status,
		VendorPhone: s.vendorPhone,
	})
}

func otpMatches(want, got string) bool {
	want, got = strings.TrimSpace(want), strings.TrimSpace(got)
	if want == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}
