package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/jmehdipour/scrum-callbot/internal/metrics"
	"github.com/jmehdipour/scrum-callbot/internal/model"
	"github.com/jmehdipour/scrum-callbot/internal/util"
)

// HandlerFunc reacts to one notification. It runs detached from the webhook request.
type HandlerFunc func(ctx context.Context, n model.Notification) error

// Key selects a handler by resource kind and change type.
type Key struct {
	Kind   model.ResourceKind
	Change model.ChangeType
}

// Response is what the webhook endpoint writes back to the platform.
type Response struct {
	StatusCode int
	Body       any
}

// Dispatcher parses authenticated webhook bodies and fans the envelopes out to handlers.
// Handlers never delay the acknowledgement and their failures never fail it.
type Dispatcher struct {
	log *zap.Logger

	// HandlerTimeout bounds one handler invocation; zero means no bound.
	HandlerTimeout time.Duration

	mu       sync.RWMutex
	handlers map[Key]HandlerFunc
	closed   bool
	wg       sync.WaitGroup
}

func NewDispatcher(log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		log:      log,
		handlers: map[Key]HandlerFunc{},
	}
}

// Handle registers h for (kind, change), replacing any previous registration.
func (d *Dispatcher) Handle(kind model.ResourceKind, change model.ChangeType, h HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[Key{Kind: kind, Change: change}] = h
}

// Process decodes a batch and starts one handler per recognised envelope.
// The caller must have authenticated the request already.
func (d *Dispatcher) Process(ctx context.Context, body []byte, header http.Header) Response {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return Response{StatusCode: http.StatusBadRequest, Body: map[string]string{"error": "empty body"}}
	}

	var batch model.NotificationBatch
	if err := json.Unmarshal(body, &batch); err != nil {
		d.log.Warn("undecodable notification body", zap.Error(err))
		return Response{StatusCode: http.StatusBadRequest, Body: map[string]string{"error": "invalid notification body"}}
	}

	scenarioID := scenarioIDFrom(header)
	// handlers outlive the request
	hctx := context.WithoutCancel(ctx)

	dispatched, dropped := 0, 0
	for i, raw := range batch.Value {
		n, err := parse(raw, scenarioID)
		if err != nil {
			dropped++
			metrics.NotificationsTotal.WithLabelValues(string(n.Kind), string(n.ChangeType), "malformed").Inc()
			d.log.Warn("dropping malformed notification",
				zap.Int("index", i),
				zap.String("resource_url", raw.ResourceURL),
				zap.String("scenario_id", scenarioID),
				zap.Error(err),
			)
			continue
		}

		h := d.handlerFor(n.Kind, n.ChangeType)
		if h == nil {
			dropped++
			metrics.NotificationsTotal.WithLabelValues(string(n.Kind), string(n.ChangeType), "unhandled").Inc()
			d.log.Debug("no handler for notification",
				zap.String("kind", string(n.Kind)),
				zap.String("change", string(n.ChangeType)),
				zap.String("resource_url", n.ResourceURL),
			)
			continue
		}

		if !d.spawn(hctx, h, n) {
			dropped++
			continue
		}
		dispatched++
	}

	return Response{
		StatusCode: http.StatusOK,
		Body: map[string]any{
			"scenario_id": scenarioID,
			"dispatched":  dispatched,
			"dropped":     dropped,
		},
	}
}

func (d *Dispatcher) handlerFor(kind model.ResourceKind, change model.ChangeType) HandlerFunc {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.handlers[Key{Kind: kind, Change: change}]
}

func (d *Dispatcher) spawn(ctx context.Context, h HandlerFunc, n model.Notification) bool {
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		d.log.Warn("dispatcher closed, notification not handled",
			zap.String("resource_url", n.ResourceURL),
			zap.String("scenario_id", n.ScenarioID),
		)
		return false
	}
	d.wg.Add(1)
	d.mu.RUnlock()

	go d.run(ctx, h, n)
	return true
}

func (d *Dispatcher) run(ctx context.Context, h HandlerFunc, n model.Notification) {
	defer d.wg.Done()

	fields := []zap.Field{
		zap.String("kind", string(n.Kind)),
		zap.String("change", string(n.ChangeType)),
		zap.String("resource_url", n.ResourceURL),
		zap.String("tenant_id", n.TenantID),
		zap.String("scenario_id", n.ScenarioID),
	}
	defer func() {
		if r := recover(); r != nil {
			metrics.NotificationsTotal.WithLabelValues(string(n.Kind), string(n.ChangeType), "panic").Inc()
			d.log.Error("notification handler panicked", append(fields, zap.Any("panic", r), zap.StackSkip("stack", 1))...)
		}
	}()

	if d.HandlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.HandlerTimeout)
		defer cancel()
	}

	if err := h(ctx, n); err != nil {
		metrics.NotificationsTotal.WithLabelValues(string(n.Kind), string(n.ChangeType), "failed").Inc()
		d.log.Error("error processing notification", append(fields, zap.Error(err))...)
		return
	}
	metrics.NotificationsTotal.WithLabelValues(string(n.Kind), string(n.ChangeType), "handled").Inc()
}

// Close stops accepting new handler invocations. Running handlers are not interrupted.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
}

// Wait blocks until running handlers return or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func parse(raw model.RawNotification, scenarioID string) (model.Notification, error) {
	change, ok := model.ParseChangeType(raw.ChangeType)
	n := model.Notification{
		ResourceURL:  firstNonEmpty(raw.ResourceURL, raw.Resource),
		ChangeType:   change,
		ResourceData: raw.ResourceData,
		TenantID:     raw.TenantID,
		ScenarioID:   scenarioID,
	}
	if !ok {
		return n, fmt.Errorf("unknown change type %q", raw.ChangeType)
	}
	if len(raw.ResourceData) == 0 || !gjson.ValidBytes(raw.ResourceData) {
		return n, fmt.Errorf("missing or invalid resourceData")
	}

	data := gjson.ParseBytes(raw.ResourceData)
	if !data.IsObject() {
		return n, fmt.Errorf("resourceData is not an object")
	}
	data.ForEach(func(k, v gjson.Result) bool {
		switch k.String() {
		case "@odata.type":
			n.Kind = model.ResourceKind(v.String())
		case "tenantId":
			if n.TenantID == "" {
				n.TenantID = v.String()
			}
		}
		return true
	})
	return n, nil
}

func scenarioIDFrom(h http.Header) string {
	if h != nil {
		if v := firstNonEmpty(h.Get("Scenario-Id"), h.Get("Client-Request-Id")); v != "" {
			return v
		}
	}
	return util.New()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
