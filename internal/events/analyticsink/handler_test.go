package analyticsink

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/curation-tools/corpus-platform/internal/events"
	"github.com/curation-tools/corpus-platform/pkg/metrics"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type trackedCall struct {
	trigger string
	entity  any
}

type fakeTracker struct {
	mu    sync.Mutex
	calls []trackedCall
	err   error
}

func (f *fakeTracker) Track(ctx context.Context, trigger string, entity any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, trackedCall{trigger: trigger, entity: entity})
	return f.err
}

func (f *fakeTracker) tracked() []trackedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]trackedCall(nil), f.calls...)
}

func newSink(t *testing.T, tracker *fakeTracker, kinds []events.Kind) (*events.Bus, *Handler, *metrics.Metrics) {
	t.Helper()
	m := metrics.NewWith(prometheus.NewRegistry())
	builder := events.NewBuilder("test-source", "1.0.0")
	bus := events.NewBus(builder, m)
	h, err := New(bus, tracker, m, kinds)
	if err != nil {
		t.Fatalf("creating sink: %v", err)
	}
	return bus, h, m
}

// ---------------------------------------------------------------------------
// Delivery tests
// ---------------------------------------------------------------------------

func TestApprovedItemDelivery(t *testing.T) {
	tracker := &fakeTracker{}
	bus, h, _ := newSink(t, tracker, events.AllKinds)

	bus.Publish(context.Background(), events.KindItemAdded, events.ApprovedItem{
		ExternalID: "123-abc",
		URL:        "https://example.com/article",
		Title:      "An Article",
		Status:     events.StatusCorpus,
		Authors:    []events.Author{{Name: "B", SortOrder: 2}, {Name: "A", SortOrder: 1}},
		CreatedAt:  time.Unix(1700000000, 0),
	})
	h.Close()

	calls := tracker.tracked()
	if len(calls) != 1 {
		t.Fatalf("expected 1 tracked call, got %d", len(calls))
	}
	if calls[0].trigger != "reviewed_corpus_item_added" {
		t.Errorf("expected trigger reviewed_corpus_item_added, got %q", calls[0].trigger)
	}
	rc, ok := calls[0].entity.(*ReviewedItemContext)
	if !ok {
		t.Fatalf("expected *ReviewedItemContext, got %T", calls[0].entity)
	}
	if rc.CorpusReviewStatus != "corpus" {
		t.Errorf("expected review status corpus, got %q", rc.CorpusReviewStatus)
	}
	if rc.ApprovedCorpusItemExternalID != "123-abc" {
		t.Errorf("expected approved external id 123-abc, got %q", rc.ApprovedCorpusItemExternalID)
	}
	if rc.RejectedCorpusItemExternalID != "" {
		t.Errorf("rejected external id must be empty for approved items, got %q", rc.RejectedCorpusItemExternalID)
	}
	if len(rc.Authors) != 2 || rc.Authors[0] != "A" || rc.Authors[1] != "B" {
		t.Errorf("expected authors [A B] in sort order, got %v", rc.Authors)
	}
	if rc.CreatedAt != 1700000000 {
		t.Errorf("expected created_at 1700000000, got %d", rc.CreatedAt)
	}
}

func TestRecommendationStatus(t *testing.T) {
	tracker := &fakeTracker{}
	bus, h, _ := newSink(t, tracker, []events.Kind{events.KindItemUpdated})

	bus.Publish(context.Background(), events.KindItemUpdated, events.ApprovedItem{
		ExternalID: "rec-1",
		URL:        "https://example.com/rec",
		Status:     events.StatusRecommendation,
	})
	h.Close()

	calls := tracker.tracked()
	if len(calls) != 1 {
		t.Fatalf("expected 1 tracked call, got %d", len(calls))
	}
	rc := calls[0].entity.(*ReviewedItemContext)
	if rc.CorpusReviewStatus != "recommendation" {
		t.Errorf("expected review status recommendation, got %q", rc.CorpusReviewStatus)
	}
}

func TestRejectedItemDelivery(t *testing.T) {
	tracker := &fakeTracker{}
	bus, h, _ := newSink(t, tracker, []events.Kind{events.KindItemRejected})

	bus.Publish(context.Background(), events.KindItemRejected, events.RejectedItem{
		ExternalID: "rej-9",
		URL:        "https://example.com/bad",
		Reasons:    []string{"PAYWALL", "OTHER"},
	})
	h.Close()

	calls := tracker.tracked()
	if len(calls) != 1 {
		t.Fatalf("expected 1 tracked call, got %d", len(calls))
	}
	if calls[0].trigger != "reviewed_corpus_item_rejected" {
		t.Errorf("expected trigger reviewed_corpus_item_rejected, got %q", calls[0].trigger)
	}
	rc := calls[0].entity.(*ReviewedItemContext)
	if rc.CorpusReviewStatus != "rejected" {
		t.Errorf("expected review status rejected, got %q", rc.CorpusReviewStatus)
	}
	if rc.RejectedCorpusItemExternalID != "rej-9" {
		t.Errorf("expected rejected external id rej-9, got %q", rc.RejectedCorpusItemExternalID)
	}
	if len(rc.RejectionReasons) != 2 {
		t.Errorf("expected 2 rejection reasons, got %v", rc.RejectionReasons)
	}
}

func TestRejectedItemWithoutReasonsFailsBuild(t *testing.T) {
	tracker := &fakeTracker{}
	bus, h, m := newSink(t, tracker, []events.Kind{events.KindItemRejected})

	bus.Publish(context.Background(), events.KindItemRejected, events.RejectedItem{
		ExternalID: "rej-empty",
		URL:        "https://example.com/bad",
	})
	h.Close()

	if calls := tracker.tracked(); len(calls) != 0 {
		t.Errorf("expected no tracked calls, got %d", len(calls))
	}
	failed := testutil.ToFloat64(m.SinkDeliveriesTotal.WithLabelValues(sinkName, metrics.OutcomeBuildFailed))
	if failed != 1 {
		t.Errorf("expected 1 build failure, got %v", failed)
	}
}

func TestScheduledItemDelivery(t *testing.T) {
	tracker := &fakeTracker{}
	bus, h, _ := newSink(t, tracker, []events.Kind{events.KindScheduleAdded})

	bus.Publish(context.Background(), events.KindScheduleAdded, events.ScheduledItem{
		ExternalID:    "sched-1",
		SurfaceGUID:   "NEW_TAB_DE_DE",
		ScheduledDate: time.Date(2026, 5, 17, 0, 0, 0, 0, time.UTC),
		ApprovedItem: events.ApprovedItem{
			ExternalID: "item-1",
			URL:        "https://example.com/scheduled",
		},
		CreatedAt: time.Unix(1700000000, 0),
	})
	h.Close()

	calls := tracker.tracked()
	if len(calls) != 1 {
		t.Fatalf("expected 1 tracked call, got %d", len(calls))
	}
	if calls[0].trigger != "scheduled_corpus_item_added" {
		t.Errorf("expected trigger scheduled_corpus_item_added, got %q", calls[0].trigger)
	}
	sc, ok := calls[0].entity.(*ScheduledItemContext)
	if !ok {
		t.Fatalf("expected *ScheduledItemContext, got %T", calls[0].entity)
	}
	if sc.ScheduledCorpusItemExternalID != "sched-1" {
		t.Errorf("expected schedule external id sched-1, got %q", sc.ScheduledCorpusItemExternalID)
	}
	if sc.ApprovedCorpusItemExternalID != "item-1" {
		t.Errorf("expected approved external id item-1, got %q", sc.ApprovedCorpusItemExternalID)
	}
	if sc.ScheduledAt != "2026-05-17" {
		t.Errorf("expected scheduled_at 2026-05-17, got %q", sc.ScheduledAt)
	}
	if sc.ScheduledSurfaceName != "New Tab (de-DE)" {
		t.Errorf("surface registry not joined, got name %q", sc.ScheduledSurfaceName)
	}
	if sc.ScheduledSurfaceIANATimezone != "Europe/Berlin" {
		t.Errorf("expected Europe/Berlin, got %q", sc.ScheduledSurfaceIANATimezone)
	}
}

func TestUnknownSurfaceFailsBuild(t *testing.T) {
	tracker := &fakeTracker{}
	bus, h, m := newSink(t, tracker, []events.Kind{events.KindScheduleAdded})

	bus.Publish(context.Background(), events.KindScheduleAdded, events.ScheduledItem{
		ExternalID:  "sched-2",
		SurfaceGUID: "NEW_TAB_XX_XX",
	})
	h.Close()

	if calls := tracker.tracked(); len(calls) != 0 {
		t.Errorf("expected no tracked calls, got %d", len(calls))
	}
	failed := testutil.ToFloat64(m.SinkDeliveriesTotal.WithLabelValues(sinkName, metrics.OutcomeBuildFailed))
	if failed != 1 {
		t.Errorf("expected 1 build failure, got %v", failed)
	}
}

func TestTrackerFailureIsContained(t *testing.T) {
	tracker := &fakeTracker{err: errors.New("collector unreachable")}
	bus, h, m := newSink(t, tracker, []events.Kind{events.KindItemAdded})

	// Must not panic or surface the failure to the publisher.
	bus.Publish(context.Background(), events.KindItemAdded, events.ApprovedItem{
		ExternalID: "item-err",
		URL:        "https://example.com/x",
		Status:     events.StatusCorpus,
	})
	h.Close()

	failed := testutil.ToFloat64(m.SinkDeliveriesTotal.WithLabelValues(sinkName, metrics.OutcomeDeliveryFailed))
	if failed != 1 {
		t.Errorf("expected 1 delivery failure, got %v", failed)
	}
	delivered := testutil.ToFloat64(m.SinkDeliveriesTotal.WithLabelValues(sinkName, metrics.OutcomeDelivered))
	if delivered != 0 {
		t.Errorf("expected no successful deliveries, got %v", delivered)
	}
}

func TestSinkIgnoresUnsubscribedKinds(t *testing.T) {
	tracker := &fakeTracker{}
	bus, h, _ := newSink(t, tracker, []events.Kind{events.KindItemAdded})

	bus.Publish(context.Background(), events.KindItemRejected, events.RejectedItem{
		ExternalID: "rej-1",
		Reasons:    []string{"OTHER"},
	})
	h.Close()

	if calls := tracker.tracked(); len(calls) != 0 {
		t.Errorf("expected no tracked calls for unsubscribed kind, got %d", len(calls))
	}
}
