package mailer

import (
	"context"
	"testing"
	"time"

	"github.com/hotprop/listing-engine/pkg/testutil"
)

func waitForSent(t *testing.T, sender *testutil.MockSender, want int) []testutil.SentMail {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if sent := sender.Sent(); len(sent) >= want {
			return sent
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d sends, got %d", want, len(sender.Sent()))
	return nil
}

func TestDispatcher_DeliversQueuedMail(t *testing.T) {
	sender := testutil.NewMockSender()
	d := NewDispatcher(sender, nil)

	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer d.Stop(ctx)

	d.Enqueue("owner@example.com", TemplateValidationReminder, map[string]string{"listing_title": "loft"})

	sent := waitForSent(t, sender, 1)
	if sent[0].To != "owner@example.com" || sent[0].Template != TemplateValidationReminder {
		t.Fatalf("unexpected mail: %#v", sent[0])
	}
}

func TestDispatcher_RetriesFailedSends(t *testing.T) {
	sender := testutil.NewMockSender()
	sender.FailNext(true)

	d := NewDispatcher(sender, nil)
	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer d.Stop(ctx)

	d.Enqueue("owner@example.com", TemplateListingDeactivated, nil)

	// Let at least one failing drain pass run, then recover.
	time.Sleep(1200 * time.Millisecond)
	if len(sender.Sent()) != 0 {
		t.Fatalf("send should have failed while sender is down")
	}
	sender.FailNext(false)

	sent := waitForSent(t, sender, 1)
	if sent[0].Template != TemplateListingDeactivated {
		t.Fatalf("unexpected mail: %#v", sent[0])
	}
}

func TestDispatcher_StartStopIdempotent(t *testing.T) {
	d := NewDispatcher(testutil.NewMockSender(), nil)
	ctx := context.Background()

	if err := d.Stop(ctx); err != nil {
		t.Fatalf("stop before start: %v", err)
	}
	if err := d.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := d.Start(ctx); err != nil {
		t.Fatalf("second start: %v", err)
	}
	if err := d.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := d.Stop(ctx); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}
