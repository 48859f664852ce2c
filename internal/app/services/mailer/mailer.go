// Package mailer delivers lifecycle emails. Delivery is fire-and-forget
// relative to the state transitions that request it: the transition commits
// first and a failed send is retried here, never rolled back into lifecycle
// state.
package mailer

import (
	"context"
	"sync"
	"time"

	"github.com/hotprop/listing-engine/pkg/logger"
)

// Templates used by the lifecycle engine.
const (
	TemplateValidationReminder = "validation_reminder"
	TemplateListingDeactivated = "listing_deactivated"
)

// Sender delivers a single email.
type Sender interface {
	Send(ctx context.Context, to, template string, data map[string]string) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, to, template string, data map[string]string) error

func (f SenderFunc) Send(ctx context.Context, to, template string, data map[string]string) error {
	return f(ctx, to, template, data)
}

// LogSender logs sends instead of delivering them. Default for local dev.
type LogSender struct {
	Log *logger.Logger
}

func (s LogSender) Send(_ context.Context, to, template string, data map[string]string) error {
	log := s.Log
	if log == nil {
		log = logger.NewDefault("mailer")
	}
	log.WithField("to", to).
		WithField("template", template).
		WithField("data", data).
		Info("email send (log only)")
	return nil
}

type queuedMail struct {
	to       string
	template string
	data     map[string]string
	attempts int
}

// Dispatcher queues sends and retries failures with a fixed backoff. It is a
// deliberately small out-of-band retry loop; a bounce here never touches
// listing state.
type Dispatcher struct {
	sender      Sender
	log         *logger.Logger
	maxAttempts int
	backoff     time.Duration

	mu      sync.Mutex
	queue   []queuedMail
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewDispatcher creates a dispatcher over the given sender.
func NewDispatcher(sender Sender, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.NewDefault("mailer")
	}
	if sender == nil {
		sender = LogSender{Log: log}
	}
	return &Dispatcher{
		sender:      sender,
		log:         log,
		maxAttempts: 3,
		backoff:     30 * time.Second,
	}
}

func (d *Dispatcher) Name() string { return "mail-dispatcher" }

// Enqueue schedules a send. Never blocks and never fails.
func (d *Dispatcher) Enqueue(to, template string, data map[string]string) {
	d.mu.Lock()
	d.queue = append(d.queue, queuedMail{to: to, template: template, data: data})
	d.mu.Unlock()
}

// Start begins draining the queue.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.running = true
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				d.drain(runCtx)
			}
		}
	}()

	d.log.Info("mail dispatcher started")
	return nil
}

// Stop halts the drain loop. Queued mail is dropped; lifecycle notifications
// persist independently so nothing is lost that a user cannot still see.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	cancel := d.cancel
	d.running = false
	d.cancel = nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	d.log.Info("mail dispatcher stopped")
	return nil
}

func (d *Dispatcher) drain(ctx context.Context) {
	d.mu.Lock()
	pending := d.queue
	d.queue = nil
	d.mu.Unlock()

	var requeue []queuedMail
	for _, m := range pending {
		sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := d.sender.Send(sendCtx, m.to, m.template, m.data)
		cancel()
		if err == nil {
			continue
		}
		m.attempts++
		if m.attempts >= d.maxAttempts {
			d.log.WithError(err).
				WithField("to", m.to).
				WithField("template", m.template).
				Warn("email dropped after retries")
			continue
		}
		d.log.WithError(err).
			WithField("to", m.to).
			WithField("attempt", m.attempts).
			Warn("email send failed; will retry")
		requeue = append(requeue, m)
	}

	if len(requeue) > 0 {
		d.mu.Lock()
		d.queue = append(d.queue, requeue...)
		d.mu.Unlock()
	}
}
