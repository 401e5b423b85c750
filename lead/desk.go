package lead

import (
	"context"
	"fmt"
	"sync"

	"vendor-desk/models"
	"vendor-desk/utils"
)

// Journal persists closed offers.
type Journal interface {
	RecordDecision(ctx context.Context, d models.LeadDecision) error
}

// Observer is told when offers open and close.
type Observer interface {
	LeadOpened()
	LeadClosed(action string, failed bool)
}

// Desk hands out one controller per offered lead and tracks the open ones.
type Desk struct {
	gw       Gateway
	cfg      Config
	logger   *utils.Logger
	journal  Journal
	observer Observer
	onClosed func(Outcome)

	mu     sync.Mutex
	offers map[string]*Controller
	live   *utils.KeySet
}

// DeskOption customises a Desk.
type DeskOption func(*Desk)

func WithJournal(j Journal) DeskOption { return func(d *Desk) { d.journal = j } }

func WithObserver(o Observer) DeskOption { return func(d *Desk) { d.observer = o } }

// WithOnClosed registers the owner's notification, called after bookkeeping.
func WithOnClosed(fn func(Outcome)) DeskOption { return func(d *Desk) { d.onClosed = fn } }

func NewDesk(gw Gateway, cfg Config, opts ...DeskOption) *Desk {
	cfg = cfg.withDefaults()
	d := &Desk{
		gw:     gw,
		cfg:    cfg,
		logger: cfg.Logger,
		offers: make(map[string]*Controller),
		live:   utils.NewKeySet(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Offer surfaces orderID to the vendor. An order with an open offer is refused.
func (d *Desk) Offer(ctx context.Context, orderID string) (*Controller, error) {
	if orderID == "" {
		return nil, fmt.Errorf("offer: empty order id")
	}
	if !d.live.Add(orderID) {
		return nil, fmt.Errorf("offer %s: %w", orderID, ErrOfferActive)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	c := Start(ctx, d.gw, orderID, d.cfg, d.closed)
	d.offers[c.ID()] = c
	if d.observer != nil {
		d.observer.LeadOpened()
	}
	d.logger.Info("[lead] Offer %s opened for order %s (%ds)", c.ID(), orderID, d.cfg.DeadlineSeconds)
	return c, nil
}

// Get returns the open offer with the given id.
func (d *Desk) Get(offerID string) (*Controller, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.offers[offerID]
	return c, ok
}

// Open lists the offers that have not closed yet.
func (d *Desk) Open() []*Controller {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Controller, 0, len(d.offers))
	for _, c := range d.offers {
		out = append(out, c)
	}
	return out
}

// CloseAll dismisses every open offer and waits for each to finish.
func (d *Desk) CloseAll() {
	for _, c := range d.Open() {
		c.Close()
		<-c.Done()
	}
}

func (d *Desk) closed(out Outcome) {
	// Offer holds d.mu until the controller is registered.
	d.mu.Lock()
	delete(d.offers, out.Offer.OfferID)
	d.mu.Unlock()
	d.live.Remove(out.Offer.OrderID)

	if d.observer != nil {
		d.observer.LeadClosed(string(out.Action), out.Err != nil)
	}
	if d.journal != nil {
		if err := d.journal.RecordDecision(context.Background(), out.Decision(d.cfg.VendorPhone)); err != nil {
			d.logger.Error("[lead] Journal write for offer %s failed: %v", out.Offer.OfferID, err)
		}
	}
	if d.onClosed != nil {
		d.onClosed(out)
	}
}
