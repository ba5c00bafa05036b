package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"nftfarm/core/events"
)

// Topic is the logical webhook topic carried in the X-Farm-Event header.
type Topic string

const (
	// TopicSnapshotReady is sent after a holder snapshot has been exported.
	TopicSnapshotReady Topic = "farm.snapshot.ready"

	defaultMaxAttempts     = 5
	defaultMinBackoff      = 2 * time.Second
	defaultMaxBackoff      = 30 * time.Second
	defaultDeliveryTimeout = 15 * time.Second
)

// SnapshotReadyPayload describes an exported holder snapshot.
type SnapshotReadyPayload struct {
	Type       Topic     `json:"type"`
	Phase      string    `json:"phase"`
	Holders    int       `json:"holders"`
	Files      []string  `json:"files"`
	Checksum   string    `json:"checksum"`
	TakenAt    time.Time `json:"takenAt"`
	DeliveryID string    `json:"deliveryId"`
}

// EventPayload forwards one committed farm event.
type EventPayload struct {
	Type        Topic             `json:"type"`
	Attributes  map[string]string `json:"attributes"`
	DeliveredAt time.Time         `json:"deliveredAt"`
	DeliveryID  string            `json:"deliveryId"`
}

// Dispatcher orchestrates webhook deliveries with retry and exponential backoff.
type Dispatcher struct {
	endpoint    string
	secret      []byte
	client      *http.Client
	maxAttempts int
	minBackoff  time.Duration
	maxBackoff  time.Duration
	topics      map[string]struct{}
	logger      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	queue  chan delivery
	wg     sync.WaitGroup
}

type delivery struct {
	topic Topic
	body  []byte
}

// Option mutates dispatcher configuration.
type Option func(*Dispatcher)

// WithHTTPClient overrides the HTTP client used for deliveries. A client
// without a timeout gets the default per-attempt deadline.
func WithHTTPClient(client *http.Client) Option {
	return func(d *Dispatcher) {
		if client != nil {
			d.client = client
		}
	}
}

// WithRetryPolicy overrides the retry configuration.
func WithRetryPolicy(maxAttempts int, minBackoff, maxBackoff time.Duration) Option {
	return func(d *Dispatcher) {
		if maxAttempts > 0 {
			d.maxAttempts = maxAttempts
		}
		if minBackoff > 0 {
			d.minBackoff = minBackoff
		}
		if maxBackoff >= minBackoff && maxBackoff > 0 {
			d.maxBackoff = maxBackoff
		}
	}
}

// WithTopics restricts forwarded farm events to the listed types. Without it
// every event is forwarded.
func WithTopics(types ...string) Option {
	return func(d *Dispatcher) {
		if len(types) == 0 {
			return
		}
		d.topics = make(map[string]struct{}, len(types))
		for _, t := range types {
			d.topics[t] = struct{}{}
		}
	}
}

// WithLogger sets the logger used for abandoned deliveries.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher constructs a dispatcher and spawns the worker goroutine.
func NewDispatcher(endpoint string, secret []byte, opts ...Option) (*Dispatcher, error) {
	endpoint = string(bytes.TrimSpace([]byte(endpoint)))
	if endpoint == "" {
		return nil, errors.New("webhook: endpoint required")
	}
	if len(secret) == 0 {
		return nil, errors.New("webhook: secret required")
	}
	ctx, cancel := context.WithCancel(context.Background())
	dispatcher := &Dispatcher{
		endpoint:    endpoint,
		secret:      append([]byte(nil), secret...),
		client:      &http.Client{Timeout: defaultDeliveryTimeout},
		maxAttempts: defaultMaxAttempts,
		minBackoff:  defaultMinBackoff,
		maxBackoff:  defaultMaxBackoff,
		logger:      slog.Default(),
		ctx:         ctx,
		cancel:      cancel,
		queue:       make(chan delivery, 64),
	}
	for _, opt := range opts {
		opt(dispatcher)
	}
	dispatcher.wg.Add(1)
	go dispatcher.worker()
	return dispatcher, nil
}

// Close stops the dispatcher and waits for inflight deliveries to complete.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.cancel()
	d.wg.Wait()
}

// EnqueueSnapshot announces an exported snapshot asynchronously.
func (d *Dispatcher) EnqueueSnapshot(payload SnapshotReadyPayload) error {
	payload.Type = TopicSnapshotReady
	if payload.TakenAt.IsZero() {
		payload.TakenAt = time.Now().UTC()
	}
	if payload.DeliveryID == "" {
		payload.DeliveryID = uuid.NewString()
	}
	return d.enqueue(payload.Type, payload)
}

// Emit implements events.Emitter. Only events with an attribute rendering
// and an enabled topic are forwarded; a full queue drops the event.
func (d *Dispatcher) Emit(evt events.Event) {
	if d == nil {
		return
	}
	payload, ok := evt.(events.Payload)
	if !ok {
		return
	}
	if d.topics != nil {
		if _, enabled := d.topics[evt.EventType()]; !enabled {
			return
		}
	}
	rendered := payload.Event()
	body, err := json.Marshal(EventPayload{
		Type:        Topic(rendered.Type),
		Attributes:  rendered.Attributes,
		DeliveredAt: time.Now().UTC(),
		DeliveryID:  uuid.NewString(),
	})
	if err != nil {
		d.logger.Warn("webhook encode failed", slog.String("type", rendered.Type), slog.Any("error", err))
		return
	}
	select {
	case d.queue <- delivery{topic: Topic(rendered.Type), body: body}:
	default:
		d.logger.Warn("webhook queue full, dropping event", slog.String("type", rendered.Type))
	}
}

func (d *Dispatcher) enqueue(topic Topic, body interface{}) error {
	if d == nil {
		return errors.New("webhook: dispatcher not initialised")
	}
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	select {
	case d.queue <- delivery{topic: topic, body: data}:
		return nil
	case <-d.ctx.Done():
		return errors.New("webhook: dispatcher closed")
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case job := <-d.queue:
			d.process(job)
		case <-d.ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) process(job delivery) {
	backoff := d.minBackoff
	for attempt := 1; ; attempt++ {
		ctx, cancel := context.WithTimeout(d.ctx, d.deliveryTimeout())
		err := d.send(ctx, job)
		cancel()
		if err == nil {
			return
		}
		if attempt >= d.maxAttempts {
			d.logger.Warn("webhook delivery abandoned",
				slog.String("topic", string(job.topic)),
				slog.Int("attempts", attempt),
				slog.Any("error", err))
			return
		}
		select {
		case <-time.After(backoff):
		case <-d.ctx.Done():
			return
		}
		backoff = nextBackoff(backoff, d.maxBackoff)
	}
}

func (d *Dispatcher) deliveryTimeout() time.Duration {
	if d.client.Timeout <= 0 {
		return defaultDeliveryTimeout
	}
	return d.client.Timeout
}

func (d *Dispatcher) send(ctx context.Context, job delivery) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(job.body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Farm-Event", string(job.topic))
	req.Header.Set("X-Farm-Signature", Sign(d.secret, job.body))
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("webhook: delivery failed with status %d", resp.StatusCode)
}

// Sign returns the X-Farm-Signature value for body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func nextBackoff(current, limit time.Duration) time.Duration {
	next := current * 2
	if next > limit || next < current {
		return limit
	}
	return next
}
