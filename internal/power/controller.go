package power

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"
)

// Options configures a Controller.
type Options struct {
	// RebootDelay is how long a cycle command waits between the global
	// off and the scheduled global on.
	RebootDelay time.Duration

	// AutoMode enables acting on auto-sense events. The sensed level is
	// recorded for status either way.
	AutoMode bool

	// Now is the clock; defaults to time.Now. Injectable for tests.
	Now func() time.Time

	// Notify, if set, is called from the command loop after every
	// applied command. It must not block for long.
	Notify func(Event)

	// QueueSize is the command queue capacity; defaults to 16.
	QueueSize int
}

// Controller is the single writer of relay state. Producers (HTTP
// handlers, input pollers, future detectors) enqueue Commands; exactly
// one consumer goroutine, Run, applies them in FIFO order. That
// single-writer discipline is what keeps commanded state equal to the
// physically driven level without per-channel locks.
type Controller struct {
	channels    []*Channel
	cmds        chan request
	rebootDelay time.Duration
	autoMode    bool
	now         func() time.Time
	notify      func(Event)

	// gen counts applied state-changing commands. Touched only from the
	// loop goroutine; a scheduled cycle turn-on fires only if gen is
	// unchanged since it was scheduled.
	gen uint64

	mu             sync.RWMutex
	snap           Snapshot
	counts         Counts
	autoSense      bool
	manualOverride bool
}

type request struct {
	cmd   Command
	reply chan response
}

type response struct {
	res Result
	err error
}

// New creates a Controller owning the given channels.
func New(channels []*Channel, opts Options) *Controller {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 16
	}
	chs := make([]*Channel, len(channels))
	copy(chs, channels)
	sort.Slice(chs, func(i, j int) bool { return chs[i].ID() < chs[j].ID() })

	c := &Controller{
		channels:    chs,
		cmds:        make(chan request, opts.QueueSize),
		rebootDelay: opts.RebootDelay,
		autoMode:    opts.AutoMode,
		now:         opts.Now,
		notify:      opts.Notify,
	}
	c.storeSnapshot(opts.Now())
	return c
}

// Run consumes the command queue until the context is cancelled.
// It is the only goroutine that touches Channel state.
func (c *Controller) Run(ctx context.Context) error {
	var cycleTimer *time.Timer
	var cycleC <-chan time.Time
	var cycleGen uint64

	stopCycle := func() {
		if cycleTimer != nil {
			cycleTimer.Stop()
			cycleTimer = nil
			cycleC = nil
		}
	}
	defer stopCycle()

	for {
		select {
		case <-ctx.Done():
			return nil

		case req := <-c.cmds:
			res, err := c.apply(req.cmd)
			if err == nil && req.cmd.Action == ActionCycle {
				stopCycle()
				cycleGen = c.gen
				cycleTimer = time.NewTimer(c.rebootDelay)
				cycleC = cycleTimer.C
				log.Printf("power: cycle off applied, on scheduled in %v", c.rebootDelay)
			}
			if req.reply != nil {
				req.reply <- response{res: res, err: err}
			}

		case <-cycleC:
			cycleTimer = nil
			cycleC = nil
			if c.gen != cycleGen {
				// A newer command was applied during the delay window;
				// the latest intent wins.
				log.Printf("power: scheduled cycle turn-on superseded")
				continue
			}
			c.apply(Command{Origin: OriginRebootButton, Target: TargetGlobal, Action: ActionOn})
		}
	}
}

// Send enqueues a command and waits for its result. The context bounds
// both the enqueue and the wait; on expiry ErrTimeout is returned and
// the command may still be applied later.
func (c *Controller) Send(ctx context.Context, cmd Command) (Result, error) {
	req := request{cmd: cmd, reply: make(chan response, 1)}
	select {
	case c.cmds <- req:
	case <-ctx.Done():
		return Result{}, ErrTimeout
	}
	select {
	case resp := <-req.reply:
		return resp.res, resp.err
	case <-ctx.Done():
		return Result{}, ErrTimeout
	}
}

// Enqueue submits a command without waiting for the result. Used by
// event sources that have nobody to report back to.
func (c *Controller) Enqueue(cmd Command) {
	c.cmds <- request{cmd: cmd}
}

// State returns the latest snapshot. It never blocks on the queue, so
// it may predate an in-flight command.
func (c *Controller) State() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// CountsSnapshot returns applied-command counts since startup.
func (c *Controller) CountsSnapshot() Counts {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.counts
}

// SetManualOverride records the debounced manual-override level. It is
// status-only: the override forces the relays on in hardware, the
// controller just reports it.
func (c *Controller) SetManualOverride(level bool) {
	c.mu.Lock()
	c.manualOverride = level
	c.snap.ManualOverride = level
	c.mu.Unlock()
}

// apply executes one command. Loop goroutine only.
func (c *Controller) apply(cmd Command) (Result, error) {
	now := c.now()

	if cmd.Origin == OriginAutoSense {
		c.recordAutoSense(cmd.Action == ActionOn)
		if !c.autoMode {
			log.Printf("power: auto-sense %s ignored, auto mode disabled", cmd.Action)
			return Result{State: c.State()}, nil
		}
	}

	var failed []ChannelFailure
	switch {
	case cmd.Action == ActionCycle || cmd.Target == TargetGlobal:
		action := cmd.Action
		if action == ActionCycle {
			action = ActionOff
		}
		failed = c.applyGlobal(action, now)
	default:
		ch := c.channel(cmd.Target)
		if ch == nil {
			return Result{State: c.State()}, ErrChannelNotFound
		}
		if err := c.applyChannel(ch, cmd.Action, now); err != nil {
			failed = append(failed, ChannelFailure{ID: ch.ID(), Err: err})
		}
	}

	c.gen++
	c.count(cmd.Action)
	snap := c.storeSnapshot(now)

	for _, f := range failed {
		log.Printf("power: %v (origin=%s action=%s)", f.Err, cmd.Origin, cmd.Action)
	}

	res := Result{State: snap, Failed: failed}
	if c.notify != nil {
		c.notify(Event{
			Timestamp: now,
			Origin:    cmd.Origin,
			Action:    cmd.Action,
			Target:    cmd.Target,
			State:     snap,
			Failed:    failed,
		})
	}
	return res, nil
}

// applyGlobal applies the action to every channel in ascending id
// order, best-effort: one channel's hardware failure never blocks the
// rest, since leaving later channels stale is worse than a partial
// apply.
func (c *Controller) applyGlobal(action Action, now time.Time) []ChannelFailure {
	var failed []ChannelFailure
	for _, ch := range c.channels {
		if err := c.applyChannel(ch, action, now); err != nil {
			failed = append(failed, ChannelFailure{ID: ch.ID(), Err: err})
		}
	}
	return failed
}

func (c *Controller) applyChannel(ch *Channel, action Action, now time.Time) error {
	switch action {
	case ActionOn:
		return ch.Set(true, now)
	case ActionOff:
		return ch.Set(false, now)
	case ActionToggle:
		return ch.Toggle(now)
	}
	return nil
}

func (c *Controller) channel(id int) *Channel {
	for _, ch := range c.channels {
		if ch.ID() == id {
			return ch
		}
	}
	return nil
}

func (c *Controller) count(action Action) {
	c.mu.Lock()
	switch action {
	case ActionOn:
		c.counts.On++
	case ActionOff:
		c.counts.Off++
	case ActionToggle:
		c.counts.Toggle++
	case ActionCycle:
		c.counts.Cycle++
	}
	c.mu.Unlock()
}

func (c *Controller) recordAutoSense(level bool) {
	c.mu.Lock()
	c.autoSense = level
	c.snap.AutoSense = level
	c.mu.Unlock()
}

// storeSnapshot rebuilds the published snapshot from channel state.
// Loop goroutine only (plus New, before Run starts).
func (c *Controller) storeSnapshot(now time.Time) Snapshot {
	statuses := make([]ChannelStatus, 0, len(c.channels))
	for _, ch := range c.channels {
		statuses = append(statuses, ch.Status())
	}
	c.mu.Lock()
	c.snap = Snapshot{
		Channels:       statuses,
		AutoMode:       c.autoMode,
		AutoSense:      c.autoSense,
		ManualOverride: c.manualOverride,
		Taken:          now,
	}
	snap := c.snap
	c.mu.Unlock()
	return snap
}
