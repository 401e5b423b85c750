package lead

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/multierr"

	"vendor-desk/gateway"
	"vendor-desk/models"
	"vendor-desk/services"
	"vendor-desk/utils"
)

const (
	DefaultDeadlineSeconds = 60
	DefaultTick            = time.Second
)

// Gateway is the slice of the remote gateway a lead offer needs.
type Gateway interface {
	ShowOrdersAlert(ctx context.Context, orderID string) ([]models.RawOrderRecord, error)
	UpdateOrderStatus(ctx context.Context, u gateway.StatusUpdate) error
	AcceptLead(ctx context.Context, orderID, vendorPhone string) error
	DeclineLead(ctx context.Context, orderID, vendorPhone string) error
}

// Config holds what every controller of one vendor shares.
type Config struct {
	VendorPhone     string
	DeadlineSeconds int
	Tick            time.Duration
	Clock           clockwork.Clock
	Normalizer      *services.Normalizer
	Logger          *utils.Logger
}

func (c Config) withDefaults() Config {
	if c.DeadlineSeconds <= 0 {
		c.DeadlineSeconds = DefaultDeadlineSeconds
	}
	if c.Tick <= 0 {
		c.Tick = DefaultTick
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Normalizer == nil {
		c.Normalizer = services.NewNormalizer("")
	}
	if c.Logger == nil {
		c.Logger = utils.NopLogger()
	}
	return c
}

type command struct {
	action Action
	reply  chan commandReply
}

type commandReply struct {
	accept *AcceptResult
	err    error
}

// Controller owns the countdown of one offered lead. All transitions happen on
// its own goroutine, so a tick and a user action can never both commit.
// A Controller is never reused: every offer gets a new one.
type Controller struct {
	cfg      Config
	gw       Gateway
	offer    models.LeadOffer
	onClosed func(Outcome)

	state     atomic.Int32
	remaining atomic.Int32
	detail    atomic.Pointer[models.LineItem]
	outcome   atomic.Pointer[Outcome]

	commands chan command
	done     chan struct{}

	// terminal is owned by the run loop. Once set, no further commit may start.
	terminal bool
}

// Start surfaces a new offer for orderID and begins its lifecycle. onClosed is
// called once, from the controller's goroutine, after Done is closed.
func Start(ctx context.Context, gw Gateway, orderID string, cfg Config, onClosed func(Outcome)) *Controller {
	cfg = cfg.withDefaults()
	c := &Controller{
		cfg: cfg,
		gw:  gw,
		offer: models.LeadOffer{
			OfferID:         uuid.NewString(),
			OrderID:         orderID,
			ArrivedAt:       cfg.Clock.Now(),
			DeadlineSeconds: cfg.DeadlineSeconds,
		},
		onClosed: onClosed,
		commands: make(chan command),
		done:     make(chan struct{}),
	}
	c.remaining.Store(int32(cfg.DeadlineSeconds))
	c.state.Store(int32(Idle))

	go c.run(ctx)
	return c
}

// Offer returns a snapshot of the offer including its detail, if fetched.
func (c *Controller) Offer() models.LeadOffer {
	o := c.offer
	o.Detail = c.Detail()
	return o
}

func (c *Controller) ID() string { return c.offer.OfferID }

func (c *Controller) State() State { return State(c.state.Load()) }

// RemainingSeconds is the countdown value shown to the vendor.
func (c *Controller) RemainingSeconds() int { return int(c.remaining.Load()) }

// Detail is the first line item of the order, or nil until fetched.
func (c *Controller) Detail() *models.LineItem {
	if d := c.detail.Load(); d != nil {
		item := *d
		return &item
	}
	return nil
}

// Outcome is set once the offer has closed.
func (c *Controller) Outcome() (Outcome, bool) {
	if o := c.outcome.Load(); o != nil {
		return *o, true
	}
	return Outcome{}, false
}

// Done is closed when the offer reaches Closed.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Accept marks the order accepted, then commits the lead. Both steps are
// always attempted; the result tells which of them persisted.
func (c *Controller) Accept(ctx context.Context) (AcceptResult, error) {
	r, err := c.send(ctx, ActionAccept)
	if r.accept != nil {
		return *r.accept, err
	}
	return AcceptResult{}, err
}

// Decline releases the lead.
func (c *Controller) Decline(ctx context.Context) error {
	_, err := c.send(ctx, ActionDecline)
	return err
}

// Close dismisses the offer without committing anything. Closing an offer
// whose commit is in flight waits for that commit and changes nothing.
func (c *Controller) Close() {
	_, _ = c.send(context.Background(), ActionClose)
}

func (c *Controller) send(ctx context.Context, action Action) (commandReply, error) {
	cmd := command{action: action, reply: make(chan commandReply, 1)}
	select {
	case c.commands <- cmd:
	case <-c.done:
		return commandReply{}, ErrClosed
	case <-ctx.Done():
		return commandReply{}, ctx.Err()
	}

	select {
	case r := <-cmd.reply:
		return r, r.err
	case <-ctx.Done():
		return commandReply{}, ctx.Err()
	}
}

func (c *Controller) run(ctx context.Context) {
	defer func() {
		close(c.done)
		if out, ok := c.Outcome(); ok && c.onClosed != nil {
			c.onClosed(out)
		}
	}()

	fetchCtx, cancelFetch := context.WithCancel(ctx)
	defer cancelFetch()

	c.setState(Fetching)
	details := make(chan *models.LineItem, 1)
	go func() { details <- c.fetchDetail(fetchCtx) }()

	var ticker clockwork.Ticker
	var ticks <-chan time.Time
	stopTicker := func() {
		if ticker != nil {
			ticker.Stop()
			ticker = nil
		}
		ticks = nil
	}
	defer stopTicker()

	// Commits outlive the caller's context: navigating away must not cut a
	// two-step accept in half.
	commitCtx := context.WithoutCancel(ctx)

	for {
		select {
		case item := <-details:
			details = nil
			if item != nil {
				c.detail.Store(item)
			}
			ticker = c.cfg.Clock.NewTicker(c.cfg.Tick)
			ticks = ticker.Chan()
			c.setState(Awaiting)

		case <-ticks:
			if c.remaining.Add(-1) > 0 {
				continue
			}
			if !c.claimTerminal() {
				continue
			}
			stopTicker()
			c.finish(c.decline(commitCtx, AutoDeclining, ActionAutoDecline))
			return

		case cmd := <-c.commands:
			switch cmd.action {
			case ActionClose:
				stopTicker()
				cancelFetch()
				c.finish(Outcome{Action: ActionClose})
				cmd.reply <- commandReply{}
				return

			case ActionAccept, ActionDecline:
				if c.State() != Awaiting || !c.claimTerminal() {
					cmd.reply <- commandReply{err: ErrNotAwaiting}
					continue
				}
				stopTicker()

				var out Outcome
				if cmd.action == ActionAccept {
					out = c.accept(commitCtx)
				} else {
					out = c.decline(commitCtx, Declining, ActionDecline)
				}
				c.finish(out)
				cmd.reply <- commandReply{accept: out.Accept, err: out.Err}
				return
			}

		case <-ctx.Done():
			stopTicker()
			c.finish(Outcome{Action: ActionClose, Err: ctx.Err()})
			return
		}
	}
}

// claimTerminal is the single check-and-set guarding the one commit per lead.
func (c *Controller) claimTerminal() bool {
	if c.terminal {
		return false
	}
	c.terminal = true
	return true
}

func (c *Controller) fetchDetail(ctx context.Context) *models.LineItem {
	records, err := c.gw.ShowOrdersAlert(ctx, c.offer.OrderID)
	if err != nil {
		c.cfg.Logger.Warn("[lead] Detail fetch for order %s failed: %v", c.offer.OrderID, err)
		return nil
	}
	if len(records) == 0 {
		c.cfg.Logger.Info("[lead] No items found for order %s", c.offer.OrderID)
		return nil
	}
	item := c.cfg.Normalizer.Normalize(records[0])
	return &item
}

func (c *Controller) accept(ctx context.Context) Outcome {
	c.setState(Accepting)

	statusErr := c.gw.UpdateOrderStatus(ctx, gateway.StatusUpdate{
		OrderID:     c.offer.OrderID,
		Status:      services.StatusDone,
		VendorPhone: c.cfg.VendorPhone,
	})
	leadErr := c.gw.AcceptLead(ctx, c.offer.OrderID, c.cfg.VendorPhone)

	res := AcceptResult{StatusMutated: statusErr == nil, LeadCommitted: leadErr == nil}
	if res.Partial() {
		res.Err = multierr.Append(ErrPartialCommit, leadErr)
	} else {
		res.Err = multierr.Combine(statusErr, leadErr)
	}
	return Outcome{Action: ActionAccept, Accept: &res, Err: res.Err}
}

func (c *Controller) decline(ctx context.Context, state State, action Action) Outcome {
	c.setState(state)
	err := c.gw.DeclineLead(ctx, c.offer.OrderID, c.cfg.VendorPhone)
	return Outcome{Action: action, Err: err}
}

func (c *Controller) finish(out Outcome) {
	c.setState(Closed)
	out.Offer = c.Offer()
	out.ClosedAt = c.cfg.Clock.Now()
	c.outcome.Store(&out)

	if out.Err != nil {
		c.cfg.Logger.Error("[lead] Offer %s for order %s closed by %s with error: %v",
			out.Offer.OfferID, out.Offer.OrderID, out.Action, out.Err)
	} else {
		c.cfg.Logger.Info("[lead] Offer %s for order %s closed by %s",
			out.Offer.OfferID, out.Offer.OrderID, out.Action)
	}
}

func (c *Controller) setState(s State) {
	c.state.Store(int32(s))
}
