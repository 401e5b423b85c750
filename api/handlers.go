package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"vendor-desk/lead"
	"vendor-desk/models"
	"vendor-desk/poller"
	"vendor-desk/services"
)

type offerView struct {
	OfferID          string           `json:"offerId"`
	OrderID          string           `json:"orderId"`
	State            string           `json:"state"`
	RemainingSeconds int              `json:"remainingSeconds"`
	DeadlineSeconds  int              `json:"deadlineSeconds"`
	ArrivedAt        time.Time        `json:"arrivedAt"`
	Detail           *models.LineItem `json:"detail"`
}

func viewOf(c *lead.Controller) offerView {
	o := c.Offer()
	return offerView{
		OfferID:          o.OfferID,
		OrderID:          o.OrderID,
		State:            c.State().String(),
		RemainingSeconds: c.RemainingSeconds(),
		DeadlineSeconds:  o.DeadlineSeconds,
		ArrivedAt:        o.ArrivedAt,
		Detail:           o.Detail,
	}
}

type decisionView struct {
	Offer         offerView `json:"offer"`
	Action        string    `json:"action"`
	StatusMutated bool      `json:"statusMutated"`
	LeadCommitted bool      `json:"leadCommitted"`
}

type offerRequest struct {
	OrderID string `json:"orderId" validate:"required,max=64"`
}

type otpRequest struct {
	OTP string `json:"otp" validate:"required,max=16"`
}

type watchRequest struct {
	Status string `json:"status" validate:"max=32"`
}

type nearbyRequest struct {
	Term string   `json:"term" validate:"max=100"`
	Lat  *float64 `json:"lat" validate:"omitempty,latitude"`
	Lon  *float64 `json:"lon" validate:"omitempty,longitude"`
}

type hubRequest struct {
	LoginID     string `json:"loginId" validate:"required"`
	InventoryID string `json:"inventoryId"`
}

func (s *server) healthz(w http.ResponseWriter, r *http.Request) {
	s.writeSuccess(w, r, map[string]string{"status": "ok"})
}

func (s *server) listOrders(w http.ResponseWriter, r *http.Request) {
	status := strings.TrimSpace(r.URL.Query().Get("status"))
	s.writeSuccess(w, r, s.Orders.FetchGroupedOrders(r.Context(), services.OrderFilter{Status: status}))
}

func (s *server) orderWatch(w http.ResponseWriter, r *http.Request) {
	if s.OrderWatch == nil {
		writeError(s.Logger, w, r, notFound("order watch is not running"))
		return
	}
	s.writeSuccess(w, r, s.OrderWatch.Snapshot())
}

func (s *server) setOrderWatch(w http.ResponseWriter, r *http.Request) {
	if s.OrderWatch == nil {
		writeError(s.Logger, w, r, notFound("order watch is not running"))
		return
	}
	var req watchRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(s.Logger, w, r, err)
		return
	}
	s.OrderWatch.SetFilter(poller.Filter{Term: strings.TrimSpace(req.Status)})
	s.writeSuccess(w, r, s.OrderWatch.Snapshot())
}

func (s *server) cancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if err := s.Orders.Cancel(r.Context(), orderID); err != nil {
		writeError(s.Logger, w, r, err)
		return
	}
	s.writeSuccess(w, r, map[string]string{"orderId": orderID, "status": services.StatusCancelled})
}

func (s *server) startService(w http.ResponseWriter, r *http.Request) {
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	var req otpRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(s.Logger, w, r, err)
		return
	}
	if err := s.Orders.StartService(r.Context(), orderID, req.OTP); err != nil {
		writeError(s.Logger, w, r, err)
		return
	}
	s.writeSuccess(w, r, map[string]string{"orderId": orderID, "status": services.StatusOnService})
}

func (s *server) listLeads(w http.ResponseWriter, r *http.Request) {
	open := s.Leads.Open()
	views := make([]offerView, 0, len(open))
	for _, c := range open {
		views = append(views, viewOf(c))
	}
	s.writeSuccess(w, r, views)
}

func (s *server) offerLead(w http.ResponseWriter, r *http.Request) {
	var req offerRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(s.Logger, w, r, err)
		return
	}
	c, err := s.Leads.Offer(s.LeadContext, strings.TrimSpace(req.OrderID))
	if err != nil {
		writeError(s.Logger, w, r, err)
		return
	}
	s.writeSuccessStatus(w, r, http.StatusCreated, viewOf(c))
}

func (s *server) leadHistory(w http.ResponseWriter, r *http.Request) {
	if s.History == nil {
		writeError(s.Logger, w, r, notFound("lead journal is disabled"))
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			writeError(s.Logger, w, r, badRequest("limit must be between 1 and 500", nil))
			return
		}
		limit = n
	}
	decisions, err := s.History.Recent(r.Context(), limit)
	if err != nil {
		writeError(s.Logger, w, r, err)
		return
	}
	s.writeSuccess(w, r, decisions)
}

func (s *server) getLead(w http.ResponseWriter, r *http.Request) {
	c, ok := s.Leads.Get(chi.URLParam(r, "offerID"))
	if !ok {
		writeError(s.Logger, w, r, notFound("offer not found"))
		return
	}
	s.writeSuccess(w, r, viewOf(c))
}

func (s *server) decideLead(w http.ResponseWriter, r *http.Request) {
	c, ok := s.Leads.Get(chi.URLParam(r, "offerID"))
	if !ok {
		writeError(s.Logger, w, r, notFound("offer not found"))
		return
	}

	var (
		res    lead.AcceptResult
		err    error
		action = lead.Action(chi.URLParam(r, "action"))
	)
	switch action {
	case lead.ActionAccept:
		res, err = c.Accept(r.Context())
	case lead.ActionDecline:
		err = c.Decline(r.Context())
	case lead.ActionClose:
		c.Close()
	default:
		writeError(s.Logger, w, r, notFound("unknown action"))
		return
	}

	if refused(err) {
		writeError(s.Logger, w, r, err)
		return
	}

	view := decisionView{
		Offer:         viewOf(c),
		Action:        string(action),
		StatusMutated: res.StatusMutated,
		LeadCommitted: res.LeadCommitted,
	}
	if action == lead.ActionDecline {
		view.LeadCommitted = err == nil
	}
	if err != nil {
		status, body := classify(err)
		body.Details = view
		s.Logger.Error("[api] %s offer %s: %v", action, c.ID(), err)
		writeJSON(s.Logger, w, r, status, errorEnvelope{Error: body})
		return
	}
	s.writeSuccess(w, r, view)
}

// refused reports errors raised before any commit was attempted.
func refused(err error) bool {
	return errors.Is(err, lead.ErrNotAwaiting) ||
		errors.Is(err, lead.ErrClosed) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func (s *server) nearby(w http.ResponseWriter, r *http.Request) {
	if s.Nearby == nil {
		writeError(s.Logger, w, r, notFound("nearby search is not running"))
		return
	}
	s.writeSuccess(w, r, s.Nearby.Snapshot())
}

func (s *server) setNearby(w http.ResponseWriter, r *http.Request) {
	if s.Nearby == nil {
		writeError(s.Logger, w, r, notFound("nearby search is not running"))
		return
	}
	var req nearbyRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(s.Logger, w, r, err)
		return
	}
	spot := s.DefaultSpot
	if req.Lat != nil && req.Lon != nil {
		spot = poller.Location{Lat: *req.Lat, Lon: *req.Lon}
	}
	s.Nearby.SetFilter(poller.Filter{Term: strings.TrimSpace(req.Term), Location: spot})
	s.writeSuccess(w, r, s.Nearby.Snapshot())
}

func (s *server) requestHub(w http.ResponseWriter, r *http.Request) {
	if s.Nearby == nil || s.Hubs == nil {
		writeError(s.Logger, w, r, notFound("nearby search is not running"))
		return
	}
	var req hubRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(s.Logger, w, r, err)
		return
	}

	var target *models.NearbyHub
	for _, h := range s.Nearby.Snapshot().Rows {
		if h.LoginID == req.LoginID && (req.InventoryID == "" || h.InventoryID == req.InventoryID) {
			target = &h
			break
		}
	}
	if target == nil {
		writeError(s.Logger, w, r, notFound("hub is not in the current results"))
		return
	}
	if err := s.Hubs.Request(r.Context(), *target); err != nil {
		writeError(s.Logger, w, r, err)
		return
	}
	s.writeSuccessStatus(w, r, http.StatusAccepted, target)
}
