// Package notifier implements hotbot's outbound notification pipeline:
// a bounded queue drained by a worker pool with rate limiting and bounded
// retries. Delivery past the transport adapter is fire-and-forget; callers
// never await confirmation.
package notifier

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	kit "hotbot/internal/transport"
	logx "hotbot/pkg/logx"
)

var (
	ErrDisabled  = errors.New("notifier disabled")
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
	ErrNoTarget  = errors.New("no notification target configured")
)

type Service struct {
	mu sync.Mutex

	log     logx.Logger
	adapter kit.Adapter

	cfg     Config
	limiter *rate.Limiter

	// defaultTarget receives notifications that carry no explicit target.
	defaultTarget kit.ChatTarget

	queue    chan kit.Notification
	stopCh   chan struct{}
	workerWG sync.WaitGroup

	// In-memory history (for status/debugging)
	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, adapter kit.Adapter, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{adapter: adapter, log: log}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 512
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}

	s.cfg = cfg
	// Token bucket: burst = rate per sec, so short spikes don't block too hard.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// SetDefaultTarget updates the chat used when notifications have no explicit target.
func (s *Service) SetDefaultTarget(t kit.ChatTarget) {
	s.mu.Lock()
	s.defaultTarget = t
	s.mu.Unlock()
}

// Start is idempotent.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.queue != nil || !s.cfg.Enabled {
		s.mu.Unlock()
		return
	}
	s.queue = make(chan kit.Notification, s.cfg.QueueSize)
	s.stopCh = make(chan struct{})
	workers := s.cfg.Workers
	q := s.queue
	stopCh := s.stopCh
	s.mu.Unlock()

	s.workerWG.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer s.workerWG.Done()
			s.workerLoop(ctx, stopCh, q)
		}()
	}
	s.log.Info("notifier started", logx.Int("workers", workers), logx.Int("queue", cap(q)))
}

// Stop stops intake and lets in-flight sends finish, bounded by ctx.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.queue == nil {
		s.mu.Unlock()
		return
	}
	stopCh := s.stopCh
	s.queue = nil
	s.stopCh = nil
	s.mu.Unlock()

	close(stopCh)

	done := make(chan struct{})
	go func() {
		s.workerWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("notifier stopped")
	case <-ctx.Done():
		s.log.Warn("notifier stop timed out; workers finish in background")
	}
}

// Notify enqueues a notification. It never blocks on delivery.
func (s *Service) Notify(ctx context.Context, n kit.Notification) error {
	s.mu.Lock()
	enabled := s.cfg.Enabled
	q := s.queue
	if n.Target.ChatID == 0 {
		n.Target = s.defaultTarget
	}
	s.mu.Unlock()

	if !enabled {
		return ErrDisabled
	}
	if q == nil {
		return ErrStopped
	}
	if n.Target.ChatID == 0 {
		return ErrNoTarget
	}

	select {
	case q <- n:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

func (s *Service) workerLoop(ctx context.Context, stopCh <-chan struct{}, queue <-chan kit.Notification) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case n := <-queue:
			s.deliver(ctx, n)
		}
	}
}

func (s *Service) deliver(ctx context.Context, n kit.Notification) {
	s.mu.Lock()
	lim := s.limiter
	cfg := s.cfg
	s.mu.Unlock()

	if lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return
		}
	}

	text := renderText(n)
	opt := n.Options
	if opt == nil {
		opt = &kit.SendOptions{DisablePreview: true}
	}

	var err error
	for attempt := 0; attempt <= cfg.RetryMax; attempt++ {
		if attempt > 0 {
			delay := cfg.RetryBase << (attempt - 1)
			if delay > cfg.RetryMaxDelay {
				delay = cfg.RetryMaxDelay
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
		}
		_, err = s.adapter.SendText(ctx, n.Target, text, opt)
		if err == nil {
			break
		}
	}

	item := HistoryItem{At: time.Now(), Channel: n.Channel, Title: n.Title, Text: n.Text}
	if err != nil {
		item.Error = err.Error()
		s.log.Error("notification send failed", logx.String("channel", n.Channel), logx.Int64("chat", n.Target.ChatID), logx.Err(err))
	} else {
		s.log.Debug("notification sent", logx.String("channel", n.Channel), logx.Int64("chat", n.Target.ChatID))
	}

	s.hmu.Lock()
	s.history = append(s.history, item)
	if len(s.history) > 100 {
		s.history = s.history[len(s.history)-100:]
	}
	s.hmu.Unlock()
}

// renderText joins title and body into the single outbound message, tagged
// with a priority prefix so urgent pushes stand out in the chat.
func renderText(n kit.Notification) string {
	title := strings.TrimSpace(n.Title)
	body := n.Text
	switch {
	case title == "":
	case strings.TrimSpace(body) == "":
		body = title
	default:
		body = title + "\n\n" + body
	}
	return prefixForPriority(n.Priority) + body
}

func prefixForPriority(p int) string {
	switch {
	case p >= 9:
		return "🚨 "
	case p >= 7:
		return "⚠️ "
	case p >= 5:
		return "ℹ️ "
	default:
		return ""
	}
}

// History returns a copy of the recent delivery history.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}
