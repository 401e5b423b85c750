package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"vendor-desk/lead"
	"vendor-desk/models"
	"vendor-desk/poller"
	"vendor-desk/services"
	"vendor-desk/utils"
)

// Orders is what the order screens need.
type Orders interface {
	FetchGroupedOrders(ctx context.Context, f services.OrderFilter) []models.OrderGroup
	Cancel(ctx context.Context, orderID string) error
	StartService(ctx context.Context, orderID, otp string) error
}

// Leads is the lead desk.
type Leads interface {
	Offer(ctx context.Context, orderID string) (*lead.Controller, error)
	Get(offerID string) (*lead.Controller, bool)
	Open() []*lead.Controller
}

// Hubs sends supply requests to nearby hubs.
type Hubs interface {
	Request(ctx context.Context, hub models.NearbyHub) error
}

// History replays journaled lead decisions.
type History interface {
	Recent(ctx context.Context, limit int) ([]models.LeadDecision, error)
}

// Watcher is a running poller.
type Watcher[T any] interface {
	SetFilter(f poller.Filter)
	Snapshot() poller.View[T]
}

// Deps wires the router to the desk's services.
type Deps struct {
	Orders      Orders
	Leads       Leads
	Hubs        Hubs
	History     History
	OrderWatch  Watcher[models.OrderGroup]
	Nearby      Watcher[models.NearbyHub]
	Metrics     http.Handler
	Logger      *utils.Logger
	DefaultSpot poller.Location

	// LeadContext outlives requests; offers opened over HTTP run under it.
	LeadContext context.Context
}

type server struct {
	Deps
}

// NewRouter builds the HTTP surface of the desk.
func NewRouter(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = utils.NopLogger()
	}
	if deps.LeadContext == nil {
		deps.LeadContext = context.Background()
	}
	s := &server{Deps: deps}

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.Recoverer,
		requestLogger(deps.Logger),
	)

	r.Get("/healthz", s.healthz)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/orders", func(r chi.Router) {
		r.Get("/", s.listOrders)
		r.Get("/watch", s.orderWatch)
		r.Put("/watch", s.setOrderWatch)
		r.Post("/{orderID}/cancel", s.cancelOrder)
		r.Post("/{orderID}/start", s.startService)
	})

	r.Route("/leads", func(r chi.Router) {
		r.Get("/", s.listLeads)
		r.Post("/", s.offerLead)
		r.Get("/history", s.leadHistory)
		r.Get("/{offerID}", s.getLead)
		r.Post("/{offerID}/{action}", s.decideLead)
	})

	r.Route("/nearby", func(r chi.Router) {
		r.Get("/", s.nearby)
		r.Put("/", s.setNearby)
		r.Post("/request", s.requestHub)
	})

	return r
}

func requestLogger(logger *utils.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("[api] %s %s -> %d (%s) req=%s",
				r.Method, r.URL.Path, ww.Status(), time.Since(start), middleware.GetReqID(r.Context()))
		})
	}
}
