// Package notify delivers batched change notifications to a webhook.
//
// Requests append events to an in-memory queue and return immediately. A
// single worker swaps the queue out at every flush interval and posts the
// batch as {"changes": [...]}. Delivery is at most once: a batch is retried
// only when the request itself fails, and dropped after a non-200 answer or
// after MaxAttempts failed requests.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-cleanhttp"

	"github.com/marmos91/dittodav/internal/logger"
)

const (
	DefaultFlushInterval = 5 * time.Second
	DefaultMaxAttempts   = 5
	DefaultRetryDelay    = time.Second
	DefaultErrorBackoff  = time.Second
	DefaultTimeout       = 30 * time.Second
)

// Outcome labels the fate of a batch.
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeRejected  Outcome = "rejected"
	OutcomeFailed    Outcome = "failed"
)

// Config configures a Notifier.
type Config struct {
	// URL of the webhook. Empty disables notifications entirely.
	URL string

	FlushInterval time.Duration
	MaxAttempts   int
	RetryDelay    time.Duration
	ErrorBackoff  time.Duration
	Timeout       time.Duration
}

// Metrics records notifier activity.
type Metrics interface {
	EventQueued(repository string)
	BatchFinished(repository string, events int, outcome Outcome)
	RequestRetried(repository string)
}

// Option customizes a Notifier.
type Option func(*Notifier)

// WithHTTPClient replaces the pooled default client.
func WithHTTPClient(client *http.Client) Option {
	return func(n *Notifier) { n.client = client }
}

// WithMetrics attaches metrics.
func WithMetrics(m Metrics) Option {
	return func(n *Notifier) {
		if m != nil {
			n.metrics = m
		}
	}
}

// WithClock replaces time.Now for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(n *Notifier) { n.now = now }
}

// Notifier queues events and posts them in batches from one worker.
//
// Thread safety:
// Notify is safe for concurrent use. The queue lock is only held while
// appending or swapping, never during network I/O.
type Notifier struct {
	name    string
	cfg     Config
	client  *http.Client
	metrics Metrics
	now     func() time.Time

	mu      sync.Mutex
	queue   []Event
	running bool

	stopOnce  sync.Once
	abortOnce sync.Once
	stopCh    chan struct{}
	abortCh   chan struct{}
	doneCh    chan struct{}

	// post is replaced in tests to inject panics.
	post func(ctx context.Context, batch []Event) error
}

// New creates a notifier for the named repository and starts its worker.
// When cfg.URL is empty the notifier is inert: Notify does nothing and no
// worker runs.
func New(name string, cfg Config, opts ...Option) *Notifier {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = DefaultErrorBackoff
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	n := &Notifier{
		name:    name,
		cfg:     cfg,
		client:  cleanhttp.DefaultPooledClient(),
		metrics: noopMetrics{},
		now:     time.Now,
		stopCh:  make(chan struct{}),
		abortCh: make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	n.post = n.send
	for _, opt := range opts {
		opt(n)
	}

	if cfg.URL == "" {
		close(n.doneCh)
		return n
	}

	n.running = true
	go n.worker()
	return n
}

// Enabled reports whether events are delivered anywhere.
func (n *Notifier) Enabled() bool {
	return n != nil && n.cfg.URL != ""
}

// Notify records an event. It never blocks on I/O and never fails. Only
// the first secondary path is used.
func (n *Notifier) Notify(action Action, path string, secondary ...string) {
	if n == nil {
		return
	}

	e := Event{Time: n.now(), Action: action, Path: path}
	if len(secondary) > 0 {
		e.Secondary = secondary[0]
	}

	n.mu.Lock()
	if !n.running {
		n.mu.Unlock()
		return
	}
	n.queue = append(n.queue, e)
	n.mu.Unlock()

	n.metrics.EventQueued(n.name)
}

// Pending returns the number of queued events.
func (n *Notifier) Pending() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.queue)
}

// Stop stops accepting events, lets the worker deliver what is queued and
// waits for it to exit. When ctx expires first, pending retries are
// abandoned and ctx.Err() is returned. Safe to call multiple times.
func (n *Notifier) Stop(ctx context.Context) error {
	if !n.Enabled() {
		return nil
	}

	n.stopOnce.Do(func() {
		n.mu.Lock()
		n.running = false
		n.mu.Unlock()
		close(n.stopCh)
	})

	select {
	case <-n.doneCh:
		return nil
	case <-ctx.Done():
		n.abort()
		logger.Warn("Notifier %s shutdown timeout, %d events dropped", n.name, n.Pending())
		return ctx.Err()
	}
}

func (n *Notifier) abort() {
	n.abortOnce.Do(func() { close(n.abortCh) })
}

// worker runs until stopped. It never exits on a failed cycle. The wait
// between cycles starts when the previous delivery has finished, so slow
// retries never shorten it.
func (n *Notifier) worker() {
	defer close(n.doneCh)

	timer := time.NewTimer(n.cfg.FlushInterval)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			wait := n.cfg.FlushInterval
			if err := n.cycle(); err != nil {
				logger.Error("Unhandled error in notification queue of %s: %v", n.name, err)
				wait = n.cfg.ErrorBackoff
			}
			timer.Reset(wait)

		case <-n.stopCh:
			// Drain whatever was queued before the stop.
			if err := n.cycle(); err != nil {
				logger.Error("Unhandled error in notification queue of %s: %v", n.name, err)
			}
			return
		}
	}
}

// cycle delivers one batch. Panics are turned into errors so the worker
// survives them.
func (n *Notifier) cycle() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	batch := n.swap()
	if len(batch) == 0 {
		return nil
	}

	n.deliver(batch)
	return nil
}

func (n *Notifier) swap() []Event {
	n.mu.Lock()
	defer n.mu.Unlock()

	batch := n.queue
	if len(batch) > 0 {
		n.queue = nil
	}
	return batch
}

// deliver posts a batch, retrying request failures up to MaxAttempts.
func (n *Notifier) deliver(batch []Event) {
	logger.Info("Notifying %s with %d changes", n.cfg.URL, len(batch))

	for attempt := 1; ; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), n.cfg.Timeout)
		err := n.post(ctx, batch)
		cancel()

		switch {
		case err == nil:
			n.metrics.BatchFinished(n.name, len(batch), OutcomeDelivered)
			return

		case errors.Is(err, errRejected):
			logger.Warn("Notification URL %s %v, ignoring", n.cfg.URL, err)
			n.metrics.BatchFinished(n.name, len(batch), OutcomeRejected)
			return

		case attempt >= n.cfg.MaxAttempts:
			logger.Error("Could not post notification to %s: %v", n.cfg.URL, err)
			n.metrics.BatchFinished(n.name, len(batch), OutcomeFailed)
			return
		}

		logger.Error("Error posting notification to %s (will retry): %v", n.cfg.URL, err)
		n.metrics.RequestRetried(n.name)
		if !n.sleep(n.cfg.RetryDelay) {
			logger.Error("Could not post notification to %s: shutdown aborted retries", n.cfg.URL)
			n.metrics.BatchFinished(n.name, len(batch), OutcomeFailed)
			return
		}
	}
}

// sleep waits d, returning false when the wait was aborted.
func (n *Notifier) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-n.abortCh:
		return false
	}
}

var errRejected = errors.New("rejected batch")

func (n *Notifier) send(ctx context.Context, batch []Event) error {
	body, err := json.Marshal(payload{Changes: batch})
	if err != nil {
		return fmt.Errorf("%w: encode: %v", errRejected, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", errRejected, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: returned %d instead of 200", errRejected, resp.StatusCode)
	}
	return nil
}

type noopMetrics struct{}

func (noopMetrics) EventQueued(string)                 {}
func (noopMetrics) BatchFinished(string, int, Outcome) {}
func (noopMetrics) RequestRetried(string)              {}
