package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bimakw/pagemarket/internal/config"
	"github.com/bimakw/pagemarket/internal/domain/entities"
	"github.com/bimakw/pagemarket/internal/domain/repositories"
)

// ErrPollerStopped is returned by Watch after Stop
var ErrPollerStopped = errors.New("poller stopped")

// PollResult is one emitted value together with the raw ledger result it came from
type PollResult[T any] struct {
	Raw        entities.RawValue
	Value      T
	ObservedAt time.Time
}

// subscriber is the type-erased view a feed has of a Subscription
type subscriber interface {
	id() string
	deliver(raw entities.RawValue, observedAt time.Time) (emitted bool, err error)
	detach()
}

// Poller polls ledger queries on an interval and notifies subscribers only when the
// transformed value changes. Subscribers of the same query share one ledger call per tick.
type Poller struct {
	reader repositories.LedgerReader
	config config.PollerConfig
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	feeds   map[string]*feed
	owners  map[string]string // subscription id -> feed key
	stopped bool
}

// NewPoller creates a new change-detecting poller
func NewPoller(reader repositories.LedgerReader, cfg config.PollerConfig, logger *zap.Logger) *Poller {
	ctx, cancel := context.WithCancel(context.Background())
	return &Poller{
		reader: reader,
		config: cfg,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		feeds:  make(map[string]*feed),
		owners: make(map[string]string),
	}
}

// Watch subscribes to query. transform must be total: given an empty or default raw
// shape it returns defaultValue instead of failing. The first successful tick always
// emits; later ticks emit only when the transformed value differs structurally.
func Watch[T any](p *Poller, query entities.LedgerQuery, transform func(entities.RawValue) T, defaultValue T) (*Subscription[T], error) {
	if transform == nil {
		return nil, fmt.Errorf("watch %s: transform is required", query.Key())
	}

	buffer := p.config.SubscriberBuffer
	if buffer < 1 {
		buffer = 1
	}

	sub := &Subscription[T]{
		handle:    uuid.NewString(),
		method:    query.Method,
		transform: transform,
		current:   defaultValue,
		ch:        make(chan PollResult[T], buffer),
		poller:    p,
	}

	if err := p.attach(query, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// Unwatch detaches the subscription with the given handle. It is idempotent; once it
// returns no further value is delivered to that subscription.
func (p *Poller) Unwatch(handle string) {
	p.mu.Lock()
	key, ok := p.owners[handle]
	if !ok {
		p.mu.Unlock()
		return
	}
	delete(p.owners, handle)

	f := p.feeds[key]
	f.mu.Lock()
	sub := f.subs[handle]
	delete(f.subs, handle)
	empty := len(f.subs) == 0
	f.mu.Unlock()

	if empty {
		delete(p.feeds, key)
		f.stop()
		pollerActiveFeeds.Dec()
	}
	p.mu.Unlock()

	if sub != nil {
		sub.detach()
	}

	if empty {
		p.logger.Debug("Stopped feed", zap.String("query", key))
	}
}

// Stop tears down every feed and waits for in-flight ticks to finish
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.cancel()

	var subs []subscriber
	for key, f := range p.feeds {
		f.mu.Lock()
		for _, sub := range f.subs {
			subs = append(subs, sub)
		}
		f.subs = make(map[string]subscriber)
		f.mu.Unlock()
		f.stop()
		delete(p.feeds, key)
		pollerActiveFeeds.Dec()
	}
	p.owners = make(map[string]string)
	p.mu.Unlock()

	p.logger.Info("Stopping poller", zap.Int("subscriptions", len(subs)))

	p.wg.Wait()
	for _, sub := range subs {
		sub.detach()
	}
}

// ActiveFeeds returns the number of query keys being polled
func (p *Poller) ActiveFeeds() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.feeds)
}

func (p *Poller) attach(query entities.LedgerQuery, sub subscriber) error {
	key := query.Key()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return ErrPollerStopped
	}

	f, exists := p.feeds[key]
	if !exists {
		interval := query.PollInterval
		if interval <= 0 {
			interval = p.config.DefaultInterval
		}
		f = &feed{
			key:      key,
			query:    query,
			interval: interval,
			subs:     make(map[string]subscriber),
			stopCh:   make(chan struct{}),
			poller:   p,
		}
		p.feeds[key] = f
		pollerActiveFeeds.Inc()
	}

	f.mu.Lock()
	f.subs[sub.id()] = sub
	// a late subscriber sees the latest sample right away instead of waiting a full interval
	if f.hasLast {
		f.deliverTo(sub, f.lastRaw, f.lastAt)
	}
	f.mu.Unlock()
	p.owners[sub.id()] = key

	if !exists {
		p.wg.Add(1)
		go f.run(p.ctx)
		p.logger.Debug("Started feed",
			zap.String("query", key),
			zap.Duration("interval", f.interval),
		)
	}

	return nil
}

// tick runs one poll for key outside the feed's schedule
func (p *Poller) tick(ctx context.Context, key string) {
	p.mu.Lock()
	f, ok := p.feeds[key]
	p.mu.Unlock()
	if ok {
		f.tick(ctx)
	}
}

// feed polls one query key. Ticks for a key are serialized.
type feed struct {
	key      string
	query    entities.LedgerQuery
	interval time.Duration
	poller   *Poller

	tickMu sync.Mutex

	mu      sync.Mutex
	subs    map[string]subscriber
	hasLast bool
	lastRaw entities.RawValue
	lastAt  time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
}

func (f *feed) stop() {
	f.stopOnce.Do(func() {
		close(f.stopCh)
	})
}

func (f *feed) run(ctx context.Context) {
	defer f.poller.wg.Done()

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	// Run immediately on start
	f.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-f.stopCh:
			return
		case <-ticker.C:
			f.tick(ctx)
		}
	}
}

func (f *feed) tick(ctx context.Context) {
	f.tickMu.Lock()
	defer f.tickMu.Unlock()

	select {
	case <-f.stopCh:
		return
	default:
	}

	raw, err := f.poller.reader.Call(ctx, f.query)
	if err != nil {
		pollerTicks.WithLabelValues(f.query.Method, "error").Inc()
		f.poller.logger.Warn("Poll tick failed",
			zap.String("query", f.key),
			zap.Error(err),
		)
		return
	}
	pollerTicks.WithLabelValues(f.query.Method, "ok").Inc()

	observedAt := time.Now().UTC()

	f.mu.Lock()
	defer f.mu.Unlock()

	f.hasLast = true
	f.lastRaw = raw
	f.lastAt = observedAt

	for _, sub := range f.subs {
		f.deliverTo(sub, raw, observedAt)
	}
}

// deliverTo must be called with f.mu held
func (f *feed) deliverTo(sub subscriber, raw entities.RawValue, observedAt time.Time) {
	emitted, err := sub.deliver(raw, observedAt)
	if err != nil {
		pollerTransformFailures.WithLabelValues(f.query.Method).Inc()
		f.poller.logger.Warn("Subscriber transform failed",
			zap.String("query", f.key),
			zap.String("subscription", sub.id()),
			zap.Error(err),
		)
		return
	}
	if emitted {
		pollerNotifications.WithLabelValues(f.query.Method).Inc()
	}
}

// Subscription receives transformed values of one watched query
type Subscription[T any] struct {
	handle    string
	method    string
	transform func(entities.RawValue) T
	poller    *Poller

	mu       sync.Mutex
	current  T
	emitted  bool
	detached bool
	ch       chan PollResult[T]
}

// ID returns the handle accepted by Poller.Unwatch
func (s *Subscription[T]) ID() string {
	return s.handle
}

// C delivers values in tick order. When the consumer lags, the oldest undelivered
// value is dropped for the newest. The channel is closed after Close.
func (s *Subscription[T]) C() <-chan PollResult[T] {
	return s.ch
}

// Current returns the last emitted value, or the default before the first emission
func (s *Subscription[T]) Current() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Latest returns the last emitted value and whether any value has been emitted yet
func (s *Subscription[T]) Latest() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.emitted
}

// Close unwatches the subscription
func (s *Subscription[T]) Close() {
	s.poller.Unwatch(s.handle)
}

func (s *Subscription[T]) id() string {
	return s.handle
}

func (s *Subscription[T]) deliver(raw entities.RawValue, observedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.detached {
		return false, nil
	}

	value, err := s.safeTransform(raw)
	if err != nil {
		return false, err
	}

	if s.emitted && structurallyEqual(s.current, value) {
		return false, nil
	}

	s.current = value
	s.emitted = true
	s.push(PollResult[T]{Raw: raw, Value: value, ObservedAt: observedAt})
	return true, nil
}

// push must be called with s.mu held; it is the only sender on s.ch
func (s *Subscription[T]) push(result PollResult[T]) {
	for {
		select {
		case s.ch <- result:
			return
		default:
		}
		select {
		case <-s.ch:
			pollerDroppedValues.WithLabelValues(s.method).Inc()
		default:
		}
	}
}

func (s *Subscription[T]) safeTransform(raw entities.RawValue) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transform panicked: %v", r)
		}
	}()
	return s.transform(raw), nil
}

func (s *Subscription[T]) detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.detached {
		return
	}
	s.detached = true
	close(s.ch)
}
