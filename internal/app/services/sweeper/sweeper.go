// Package sweeper runs the periodic validation sweep: it challenges stale
// active listings and deactivates listings whose challenge expired unanswered.
package sweeper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hotprop/listing-engine/internal/app/domain/notification"
	"github.com/hotprop/listing-engine/internal/app/services/lifecycle"
	"github.com/hotprop/listing-engine/internal/app/services/mailer"
	"github.com/hotprop/listing-engine/internal/app/services/notifications"
	"github.com/hotprop/listing-engine/internal/app/services/token"
	"github.com/hotprop/listing-engine/internal/app/storage"
	"github.com/hotprop/listing-engine/internal/app/system"
	svcerr "github.com/hotprop/listing-engine/pkg/errors"
	"github.com/hotprop/listing-engine/pkg/logger"
)

var _ system.Service = (*Sweeper)(nil)

// Report summarizes one sweep pass.
type Report struct {
	Issued      int `json:"issued"`
	Deactivated int `json:"deactivated"`
	Errors      int `json:"errors"`
}

// OwnerDirectory resolves a user's email address. The user directory is an
// external collaborator; when unset, reminder emails are skipped and only the
// in-app notification is created.
type OwnerDirectory interface {
	EmailFor(ctx context.Context, userID string) (string, error)
}

// Sweeper is the lifecycle-managed validation scheduler.
type Sweeper struct {
	store    storage.ListingStore
	lc       *lifecycle.Service
	tokens   *token.Service
	notifier *notifications.Service
	mail     *mailer.Dispatcher
	log      *logger.Logger
	now      func() time.Time
	onIssue  func()
	onExpire func()
	onError  func()

	interval       time.Duration
	ageThreshold   time.Duration
	tokenTTL       time.Duration
	confirmBaseURL string

	mu      sync.Mutex
	owners  OwnerDirectory
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// Options configure sweep cadence and challenge parameters.
type Options struct {
	Interval       time.Duration
	AgeThreshold   time.Duration
	TokenTTL       time.Duration
	ConfirmBaseURL string
}

// New creates a sweeper.
func New(store storage.ListingStore, lc *lifecycle.Service, tokens *token.Service, notifier *notifications.Service, mail *mailer.Dispatcher, opts Options, log *logger.Logger) *Sweeper {
	if log == nil {
		log = logger.NewDefault("sweeper")
	}
	if opts.Interval <= 0 {
		opts.Interval = 24 * time.Hour
	}
	if opts.AgeThreshold <= 0 {
		opts.AgeThreshold = 7 * 24 * time.Hour
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 24 * time.Hour
	}
	return &Sweeper{
		store:          store,
		lc:             lc,
		tokens:         tokens,
		notifier:       notifier,
		mail:           mail,
		log:            log,
		now:            time.Now,
		interval:       opts.Interval,
		ageThreshold:   opts.AgeThreshold,
		tokenTTL:       opts.TokenTTL,
		confirmBaseURL: opts.ConfirmBaseURL,
	}
}

// WithOwnerDirectory assigns the email resolver for reminder mail.
func (s *Sweeper) WithOwnerDirectory(dir OwnerDirectory) {
	s.mu.Lock()
	s.owners = dir
	s.mu.Unlock()
}

// WithClock overrides the time source. Used by tests.
func (s *Sweeper) WithClock(now func() time.Time) {
	s.now = now
}

// WithCounters attaches metric hooks fired on issued challenges, deactivations
// and per-listing sweep failures.
func (s *Sweeper) WithCounters(onIssue, onExpire, onError func()) {
	s.onIssue = onIssue
	s.onExpire = onExpire
	s.onError = onError
}

func (s *Sweeper) Name() string { return "validation-sweeper" }

// Start begins the periodic sweep loop.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if _, err := s.RunSweep(runCtx); err != nil {
					s.log.WithError(err).Warn("validation sweep failed")
				}
			}
		}
	}()

	s.log.WithField("interval", s.interval.String()).Info("validation sweeper started")
	return nil
}

// Stop halts the sweep loop.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.log.Info("validation sweeper stopped")
	return nil
}

// RunSweep executes one pass. Each listing is processed independently: a
// failure is logged, counted and skipped so the rest of the pass proceeds, and
// the listing is picked up again on the next run. All transitions go through
// conditional writes, so running concurrently with user confirmations or a
// second sweep is safe.
func (s *Sweeper) RunSweep(ctx context.Context) (Report, error) {
	listings, err := s.store.ListListings(ctx, "")
	if err != nil {
		return Report{}, svcerr.StoreUnavailable(err)
	}

	now := s.now()
	actions := lifecycle.ComputeDueActions(listings, now, s.ageThreshold)

	var report Report
	for _, action := range actions {
		switch action.Type {
		case lifecycle.ActionDeactivate:
			applied, err := s.lc.DeactivateExpired(ctx, action.ListingID, action.Kind)
			if err != nil {
				report.Errors++
				if s.onError != nil {
					s.onError()
				}
				s.log.WithError(err).
					WithField("listing_id", action.ListingID).
					Warn("sweep deactivation failed")
				continue
			}
			if applied {
				report.Deactivated++
				if s.onExpire != nil {
					s.onExpire()
				}
			}

		case lifecycle.ActionIssueChallenge:
			if err := s.issueChallenge(ctx, action); err != nil {
				if svcerr.CodeOf(err) == svcerr.CodeTokenAlreadyOutstanding {
					// Another sweep got there first; not an error.
					continue
				}
				report.Errors++
				if s.onError != nil {
					s.onError()
				}
				s.log.WithError(err).
					WithField("listing_id", action.ListingID).
					Warn("sweep challenge failed")
				continue
			}
			report.Issued++
			if s.onIssue != nil {
				s.onIssue()
			}
		}
	}

	s.log.WithField("issued", report.Issued).
		WithField("deactivated", report.Deactivated).
		WithField("errors", report.Errors).
		Info("validation sweep complete")
	return report, nil
}

func (s *Sweeper) issueChallenge(ctx context.Context, action lifecycle.Action) error {
	challenged, err := s.tokens.Issue(ctx, action.ListingID, action.Kind, s.tokenTTL)
	if err != nil {
		return err
	}

	title := "Please confirm your listing is still available"
	content := fmt.Sprintf("%q needs confirmation within %s or it will be hidden from search results.",
		challenged.Title, s.tokenTTL.String())
	if s.notifier != nil {
		if _, err := s.notifier.Notify(ctx, challenged.OwnerID, notification.TypeValidationReminder, title, content, challenged.ID); err != nil {
			s.log.WithError(err).
				WithField("listing_id", challenged.ID).
				Warn("reminder notification failed")
		}
	}

	s.sendReminderMail(ctx, action, challenged.Title, *challenged.ValidationToken)
	return nil
}

// sendReminderMail enqueues the confirmation email. The token travels only
// here, embedded in the one-time confirmation link.
func (s *Sweeper) sendReminderMail(ctx context.Context, action lifecycle.Action, title, tokenValue string) {
	if s.mail == nil {
		return
	}
	s.mu.Lock()
	owners := s.owners
	s.mu.Unlock()
	if owners == nil {
		return
	}

	email, err := owners.EmailFor(ctx, action.OwnerID)
	if err != nil {
		s.log.WithError(err).
			WithField("owner_id", action.OwnerID).
			Warn("owner email lookup failed; reminder mail skipped")
		return
	}

	confirmLink := fmt.Sprintf("%s/listings/confirm?kind=%s&token=%s", s.confirmBaseURL, action.Kind, tokenValue)
	s.mail.Enqueue(email, mailer.TemplateValidationReminder, map[string]string{
		"listing_title": title,
		"confirm_link":  confirmLink,
		"valid_for":     s.tokenTTL.String(),
	})
}
