package call

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jmehdipour/scrum-callbot/internal/metrics"
	"github.com/jmehdipour/scrum-callbot/internal/model"
	"github.com/jmehdipour/scrum-callbot/internal/platform"
	"github.com/jmehdipour/scrum-callbot/internal/util"
)

var ErrClosed = errors.New("call controller closed")

// EventSink receives every lifecycle transition. Publish must not block for long.
type EventSink interface {
	Publish(ctx context.Context, ev model.CallEvent) error
}

type Options struct {
	CallbackURI    string
	PromptURI      string
	PromptDelay    time.Duration
	CommandTimeout time.Duration
	Retention      time.Duration
}

func (o *Options) setDefaults() {
	if o.PromptDelay <= 0 {
		o.PromptDelay = 5 * time.Second
	}
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = 15 * time.Second
	}
	if o.Retention <= 0 {
		o.Retention = 10 * time.Minute
	}
}

type entry struct {
	id         string
	tenantID   string
	scenarioID string
	media      model.MediaInfo

	// mu serializes transitions of one call; state is readable without it.
	mu     sync.Mutex
	state  atomic.Value // State
	doneAt atomic.Int64 // unix nanos of the terminal transition
}

func (e *entry) current() State {
	return e.state.Load().(State)
}

// Controller drives each inbound call from notification to answered with a greeting prompt.
// Calls progress independently; only transitions of the same call are serialized.
type Controller struct {
	client  platform.Client
	claimer Claimer
	sink    EventSink
	log     *zap.Logger
	opts    Options
	now     func() time.Time

	mu      sync.Mutex
	calls   map[string]*entry
	pending map[string]*time.Timer
	closed  bool

	inflight sync.WaitGroup
}

// NewController builds a controller. claimer and sink may be nil.
func NewController(client platform.Client, claimer Claimer, sink EventSink, log *zap.Logger, opts Options) *Controller {
	opts.setDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		client:  client,
		claimer: claimer,
		sink:    sink,
		log:     log,
		opts:    opts,
		now:     time.Now,
		calls:   map[string]*entry{},
		pending: map[string]*time.Timer{},
	}
}

// OnCallNotification handles call created, updated and deleted notifications.
func (c *Controller) OnCallNotification(ctx context.Context, n model.Notification) error {
	res, err := n.Call()
	if err != nil {
		return fmt.Errorf("decode call resource: %w", err)
	}
	if res.ID == "" {
		return fmt.Errorf("call resource without id: %s", n.ResourceURL)
	}

	switch n.ChangeType {
	case model.ChangeCreated:
		if res.State != "" && res.State != model.CallIncoming {
			c.log.Debug("ignoring created call that is not incoming",
				zap.String("call_id", res.ID), zap.String("state", string(res.State)))
			return nil
		}
		return c.answer(ctx, res, n.ScenarioID)
	case model.ChangeUpdated:
		if res.State == model.CallTerminated {
			c.end(ctx, res.ID, "terminated")
		}
		return nil
	case model.ChangeDeleted:
		c.end(ctx, res.ID, "deleted")
		return nil
	}
	return nil
}

func (c *Controller) answer(ctx context.Context, res model.Call, scenarioID string) error {
	e := &entry{
		id:         res.ID,
		tenantID:   res.TenantID,
		scenarioID: scenarioID,
		media:      model.MediaInfo{URI: c.opts.PromptURI, ResourceID: uuid.NewString()},
	}
	e.state.Store(StateIdle)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if _, ok := c.calls[res.ID]; ok {
		c.mu.Unlock()
		c.log.Debug("duplicate incoming call notification", zap.String("call_id", res.ID))
		return nil
	}
	c.calls[res.ID] = e
	metrics.TrackedCalls.Set(float64(len(c.calls)))
	c.inflight.Add(1)
	c.mu.Unlock()
	defer c.inflight.Done()

	log := c.log.With(
		zap.String("call_id", e.id),
		zap.String("tenant_id", e.tenantID),
		zap.String("scenario_id", e.scenarioID),
	)

	if c.claimer != nil {
		ok, err := c.claimer.Claim(ctx, e.id)
		switch {
		case err != nil:
			log.Warn("call claim failed, answering anyway", zap.Error(err))
		case !ok:
			log.Info("call claimed by another replica")
			c.forget(e.id)
			return nil
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	c.transition(ctx, e, StateAnswerRequested, "")

	cmdCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.CommandTimeout)
	err := c.client.AnswerCall(cmdCtx, e.id, platform.AnswerRequest{
		CallbackURI:        c.opts.CallbackURI,
		MediaConfig:        model.NewServiceHostedMediaConfig(e.media),
		AcceptedModalities: []model.Modality{model.ModalityAudio},
	})
	cancel()
	if err != nil {
		log.Error("answer command failed", zap.Error(err))
		c.transition(ctx, e, StateFailed, "answer: "+err.Error())
		return nil
	}

	c.transition(ctx, e, StateAnswered, "")
	c.transition(ctx, e, StatePromptRequested, "")

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.transition(ctx, e, StateFailed, "shutdown")
		return nil
	}
	c.inflight.Add(1)
	pctx := context.WithoutCancel(ctx)
	c.pending[e.id] = time.AfterFunc(c.opts.PromptDelay, func() { c.playPrompt(pctx, e) })
	c.mu.Unlock()

	log.Info("call answered, greeting scheduled", zap.Duration("delay", c.opts.PromptDelay))
	return nil
}

func (c *Controller) playPrompt(ctx context.Context, e *entry) {
	defer c.inflight.Done()

	c.mu.Lock()
	delete(c.pending, e.id)
	c.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current() != StatePromptRequested {
		return
	}

	cmdCtx, cancel := context.WithTimeout(ctx, c.opts.CommandTimeout)
	defer cancel()

	opID, err := c.client.PlayPrompt(cmdCtx, e.id, []model.MediaInfo{e.media})
	if err != nil {
		c.log.Error("play prompt command failed",
			zap.String("call_id", e.id),
			zap.String("tenant_id", e.tenantID),
			zap.String("scenario_id", e.scenarioID),
			zap.Error(err),
		)
		c.transition(ctx, e, StateFailed, "play prompt: "+err.Error())
		return
	}
	c.transition(ctx, e, StatePromptSent, opID)
}

func (c *Controller) end(ctx context.Context, callID, reason string) {
	c.mu.Lock()
	e, ok := c.calls[callID]
	var stopped bool
	if ok {
		if t, has := c.pending[callID]; has && t.Stop() {
			delete(c.pending, callID)
			stopped = true
		}
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	if stopped {
		c.inflight.Done()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current().Terminal() {
		return
	}
	c.transition(ctx, e, StateEnded, reason)
}

// transition must be called with e.mu held.
func (c *Controller) transition(ctx context.Context, e *entry, to State, reason string) {
	from := e.current()
	now := c.now()
	e.state.Store(to)
	if to.Terminal() {
		e.doneAt.Store(now.UnixNano())
	}
	metrics.CallTransitionsTotal.WithLabelValues(string(to)).Inc()

	c.log.Debug("call transition",
		zap.String("call_id", e.id),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("reason", reason),
	)

	if c.sink == nil {
		return
	}
	ev := model.CallEvent{
		ID:         util.NewAt(now),
		CallID:     e.id,
		TenantID:   e.tenantID,
		ScenarioID: e.scenarioID,
		FromState:  string(from),
		ToState:    string(to),
		Reason:     reason,
		OccurredAt: now.UTC(),
	}
	if err := c.sink.Publish(context.WithoutCancel(ctx), ev); err != nil {
		c.log.Warn("publish call event failed", zap.String("call_id", e.id), zap.Error(err))
	}
}

func (c *Controller) forget(callID string) {
	c.mu.Lock()
	delete(c.calls, callID)
	metrics.TrackedCalls.Set(float64(len(c.calls)))
	c.mu.Unlock()
}

// State reports the current state of a tracked call.
func (c *Controller) State(callID string) (State, bool) {
	c.mu.Lock()
	e, ok := c.calls[callID]
	c.mu.Unlock()
	if !ok {
		return "", false
	}
	return e.current(), true
}

// Sweep drops calls that reached a terminal state more than Retention ago and returns how many.
func (c *Controller) Sweep() int {
	cutoff := c.now().Add(-c.opts.Retention).UnixNano()

	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for id, e := range c.calls {
		done := e.doneAt.Load()
		if done != 0 && done <= cutoff {
			delete(c.calls, id)
			removed++
		}
	}
	metrics.TrackedCalls.Set(float64(len(c.calls)))
	return removed
}

// Run sweeps the registry until ctx is done.
func (c *Controller) Run(ctx context.Context) {
	interval := c.opts.Retention / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				c.log.Debug("swept finished calls", zap.Int("count", n))
			}
		}
	}
}

// Close stops issuing new commands. Scheduled prompts are cancelled; commands already
// in flight are left to finish, see Wait.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	var cancelled []*entry
	for id, t := range c.pending {
		if t.Stop() {
			delete(c.pending, id)
			if e, ok := c.calls[id]; ok {
				cancelled = append(cancelled, e)
			}
			c.inflight.Done()
		}
	}
	c.mu.Unlock()

	for _, e := range cancelled {
		e.mu.Lock()
		if e.current() == StatePromptRequested {
			c.transition(context.Background(), e, StateFailed, "shutdown")
		}
		e.mu.Unlock()
	}
}

// Wait blocks until in-flight commands finish or ctx is done.
func (c *Controller) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
