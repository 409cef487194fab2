package curation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/curation-tools/corpus-platform/internal/events"
	apperrors "github.com/curation-tools/corpus-platform/pkg/errors"
	"github.com/curation-tools/corpus-platform/pkg/metrics"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeStore struct {
	approved  map[string]*ApprovedItem
	rejected  map[string]*RejectedItem
	scheduled map[string]*ScheduledRecord
	failNext  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		approved:  make(map[string]*ApprovedItem),
		rejected:  make(map[string]*RejectedItem),
		scheduled: make(map[string]*ScheduledRecord),
	}
}

func (f *fakeStore) takeErr() error {
	err := f.failNext
	f.failNext = nil
	return err
}

func (f *fakeStore) CreateApprovedItem(ctx context.Context, item *ApprovedItem) error {
	if err := f.takeErr(); err != nil {
		return err
	}
	cp := *item
	f.approved[item.ExternalID] = &cp
	return nil
}

func (f *fakeStore) GetApprovedItem(ctx context.Context, externalID string) (*ApprovedItem, error) {
	if err := f.takeErr(); err != nil {
		return nil, err
	}
	item, ok := f.approved[externalID]
	if !ok {
		return nil, apperrors.New(apperrors.ErrItemNotFound, 404, externalID)
	}
	cp := *item
	return &cp, nil
}

func (f *fakeStore) UpdateApprovedItem(ctx context.Context, item *ApprovedItem) error {
	if err := f.takeErr(); err != nil {
		return err
	}
	cp := *item
	f.approved[item.ExternalID] = &cp
	return nil
}

func (f *fakeStore) DeleteApprovedItem(ctx context.Context, externalID string) (*ApprovedItem, error) {
	if err := f.takeErr(); err != nil {
		return nil, err
	}
	item, ok := f.approved[externalID]
	if !ok {
		return nil, apperrors.New(apperrors.ErrItemNotFound, 404, externalID)
	}
	delete(f.approved, externalID)
	return item, nil
}

func (f *fakeStore) CreateRejectedItem(ctx context.Context, item *RejectedItem) error {
	if err := f.takeErr(); err != nil {
		return err
	}
	cp := *item
	f.rejected[item.ExternalID] = &cp
	return nil
}

func (f *fakeStore) CreateScheduledItem(ctx context.Context, rec *ScheduledRecord) error {
	if err := f.takeErr(); err != nil {
		return err
	}
	cp := *rec
	f.scheduled[rec.ExternalID] = &cp
	return nil
}

func (f *fakeStore) GetScheduledRecord(ctx context.Context, externalID string) (*ScheduledRecord, error) {
	rec, ok := f.scheduled[externalID]
	if !ok {
		return nil, apperrors.New(apperrors.ErrScheduleNotFound, 404, externalID)
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeStore) DeleteScheduledItem(ctx context.Context, externalID string) (*ScheduledRecord, error) {
	if err := f.takeErr(); err != nil {
		return nil, err
	}
	rec, ok := f.scheduled[externalID]
	if !ok {
		return nil, apperrors.New(apperrors.ErrScheduleNotFound, 404, externalID)
	}
	delete(f.scheduled, externalID)
	return rec, nil
}

func (f *fakeStore) UpdateScheduledDate(ctx context.Context, externalID string, date, updatedAt time.Time, updatedBy string) error {
	if err := f.takeErr(); err != nil {
		return err
	}
	rec, ok := f.scheduled[externalID]
	if !ok {
		return apperrors.New(apperrors.ErrScheduleNotFound, 404, externalID)
	}
	rec.ScheduledDate = date
	rec.UpdatedAt = updatedAt
	rec.UpdatedBy = updatedBy
	return nil
}

func (f *fakeStore) ListScheduledItems(ctx context.Context, surfaceGUID string, date time.Time) ([]ScheduledItem, error) {
	var out []ScheduledItem
	for _, rec := range f.scheduled {
		if rec.SurfaceGUID != surfaceGUID || !rec.ScheduledDate.Equal(date) {
			continue
		}
		item := ScheduledItem{ScheduledRecord: *rec}
		if approved, ok := f.approved[rec.ApprovedItemExternalID]; ok {
			item.ApprovedItem = *approved
		}
		out = append(out, item)
	}
	return out, nil
}

type fakeCache struct {
	invalidated []string
}

func (f *fakeCache) GetOrCompute(ctx context.Context, surfaceGUID string, date time.Time, computeFn func() ([]ScheduledItem, error)) ([]ScheduledItem, bool, error) {
	items, err := computeFn()
	return items, false, err
}

func (f *fakeCache) InvalidateSurface(ctx context.Context, surfaceGUID string) {
	f.invalidated = append(f.invalidated, surfaceGUID)
}

// published captures every envelope seen on the bus, per kind.
type published struct {
	envelopes []events.Envelope
}

func (p *published) listen(ctx context.Context, env events.Envelope) {
	p.envelopes = append(p.envelopes, env)
}

func (p *published) byKind(kind events.Kind) []events.Envelope {
	var out []events.Envelope
	for _, env := range p.envelopes {
		if env.Kind == kind {
			out = append(out, env)
		}
	}
	return out
}

func newTestService(t *testing.T, store Store, cache ScheduleCache) (*Service, *published) {
	t.Helper()
	m := metrics.NewWith(prometheus.NewRegistry())
	builder := events.NewBuilder("test-source", "1.0.0")
	bus := events.NewBus(builder, m)

	obs := &published{}
	for _, kind := range events.AllKinds {
		if err := bus.Subscribe(kind, "test-observer", obs.listen); err != nil {
			t.Fatalf("subscribing observer: %v", err)
		}
	}

	svc := NewService(store, bus, cache, m)
	svc.now = func() time.Time { return time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC) }
	counter := 0
	svc.newID = func() string {
		counter++
		return fmt.Sprintf("gen-%d", counter)
	}
	return svc, obs
}

func approveFixture(t *testing.T, svc *Service) *ApprovedItem {
	t.Helper()
	item, err := svc.ApproveItem(context.Background(), &ApproveItemRequest{
		URL:     "https://example.com/article",
		Title:   "An Article",
		Status:  "CORPUS",
		Authors: []events.Author{{Name: "A", SortOrder: 1}},
		ActorID: "curator|jo",
	})
	if err != nil {
		t.Fatalf("approving fixture item: %v", err)
	}
	return item
}

// ---------------------------------------------------------------------------
// Mutation tests
// ---------------------------------------------------------------------------

func TestApproveItemPublishesItemAdded(t *testing.T) {
	store := newFakeStore()
	svc, obs := newTestService(t, store, nil)

	item := approveFixture(t, svc)

	if item.ExternalID != "gen-1" {
		t.Errorf("expected generated external id, got %q", item.ExternalID)
	}
	if item.Source != "MANUAL" {
		t.Errorf("expected default source MANUAL, got %q", item.Source)
	}
	if _, ok := store.approved[item.ExternalID]; !ok {
		t.Error("item not persisted")
	}

	added := obs.byKind(events.KindItemAdded)
	if len(added) != 1 {
		t.Fatalf("expected 1 ITEM_ADDED event, got %d", len(added))
	}
	payload, ok := added[0].Payload.(events.ApprovedItem)
	if !ok {
		t.Fatalf("expected ApprovedItem payload, got %T", added[0].Payload)
	}
	if payload.ExternalID != item.ExternalID {
		t.Errorf("payload external id %q does not match item %q", payload.ExternalID, item.ExternalID)
	}
}

func TestApproveItemValidationFailurePublishesNothing(t *testing.T) {
	svc, obs := newTestService(t, newFakeStore(), nil)

	_, err := svc.ApproveItem(context.Background(), &ApproveItemRequest{Title: "no url"})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if len(obs.envelopes) != 0 {
		t.Errorf("expected no events, got %d", len(obs.envelopes))
	}
}

func TestApproveItemStoreFailurePublishesNothing(t *testing.T) {
	store := newFakeStore()
	svc, obs := newTestService(t, store, nil)
	store.failNext = apperrors.New(apperrors.ErrInternal, 500, "db down")

	_, err := svc.ApproveItem(context.Background(), &ApproveItemRequest{
		URL:    "https://example.com/a",
		Title:  "A",
		Status: "CORPUS",
	})
	if err == nil {
		t.Fatal("expected store error")
	}
	if len(obs.envelopes) != 0 {
		t.Errorf("persistence failed but events published: %d", len(obs.envelopes))
	}
}

func TestUpdateItemPublishesItemUpdated(t *testing.T) {
	store := newFakeStore()
	svc, obs := newTestService(t, store, nil)
	item := approveFixture(t, svc)

	updated, err := svc.UpdateItem(context.Background(), item.ExternalID, &UpdateItemRequest{
		Title:   "New Title",
		Status:  "RECOMMENDATION",
		ActorID: "curator|sam",
	})
	if err != nil {
		t.Fatalf("updating item: %v", err)
	}
	if updated.Title != "New Title" {
		t.Errorf("title not updated: %q", updated.Title)
	}
	if updated.UpdatedBy != "curator|sam" {
		t.Errorf("expected updatedBy curator|sam, got %q", updated.UpdatedBy)
	}

	evs := obs.byKind(events.KindItemUpdated)
	if len(evs) != 1 {
		t.Fatalf("expected 1 ITEM_UPDATED event, got %d", len(evs))
	}
}

func TestRemoveItemPublishesDeletedSnapshot(t *testing.T) {
	store := newFakeStore()
	svc, obs := newTestService(t, store, nil)
	item := approveFixture(t, svc)

	removed, err := svc.RemoveItem(context.Background(), item.ExternalID)
	if err != nil {
		t.Fatalf("removing item: %v", err)
	}
	if removed.ExternalID != item.ExternalID {
		t.Errorf("expected snapshot of removed item, got %q", removed.ExternalID)
	}
	if _, ok := store.approved[item.ExternalID]; ok {
		t.Error("item still persisted after removal")
	}

	evs := obs.byKind(events.KindItemRemoved)
	if len(evs) != 1 {
		t.Fatalf("expected 1 ITEM_REMOVED event, got %d", len(evs))
	}
	payload := evs[0].Payload.(events.ApprovedItem)
	if payload.Title != item.Title {
		t.Errorf("removed payload missing snapshot fields: %+v", payload)
	}
}

func TestRejectItemPublishesItemRejected(t *testing.T) {
	store := newFakeStore()
	svc, obs := newTestService(t, store, nil)

	item, err := svc.RejectItem(context.Background(), &RejectItemRequest{
		URL:     "https://example.com/bad",
		Reasons: []string{"PAYWALL"},
		ActorID: "curator|jo",
	})
	if err != nil {
		t.Fatalf("rejecting item: %v", err)
	}

	evs := obs.byKind(events.KindItemRejected)
	if len(evs) != 1 {
		t.Fatalf("expected 1 ITEM_REJECTED event, got %d", len(evs))
	}
	payload := evs[0].Payload.(events.RejectedItem)
	if payload.ExternalID != item.ExternalID {
		t.Errorf("payload external id mismatch: %q", payload.ExternalID)
	}
	if len(payload.Reasons) != 1 || payload.Reasons[0] != "PAYWALL" {
		t.Errorf("expected reasons [PAYWALL], got %v", payload.Reasons)
	}
}

func TestScheduleItemJoinsApprovedItemIntoPayload(t *testing.T) {
	store := newFakeStore()
	cache := &fakeCache{}
	svc, obs := newTestService(t, store, cache)
	item := approveFixture(t, svc)

	rec, err := svc.ScheduleItem(context.Background(), &ScheduleItemRequest{
		ApprovedItemExternalID: item.ExternalID,
		SurfaceGUID:            "NEW_TAB_EN_US",
		ScheduledDate:          "2026-05-17",
		ActorID:                "curator|jo",
	})
	if err != nil {
		t.Fatalf("scheduling item: %v", err)
	}

	evs := obs.byKind(events.KindScheduleAdded)
	if len(evs) != 1 {
		t.Fatalf("expected 1 SCHEDULE_ADDED event, got %d", len(evs))
	}
	payload := evs[0].Payload.(events.ScheduledItem)
	if payload.ExternalID != rec.ExternalID {
		t.Errorf("payload schedule id mismatch: %q", payload.ExternalID)
	}
	if payload.ApprovedItem.ExternalID != item.ExternalID {
		t.Errorf("approved item not joined into payload: %+v", payload.ApprovedItem)
	}
	if payload.ScheduledDateString() != "2026-05-17" {
		t.Errorf("expected schedule date 2026-05-17, got %q", payload.ScheduledDateString())
	}
	if len(cache.invalidated) != 1 || cache.invalidated[0] != "NEW_TAB_EN_US" {
		t.Errorf("expected cache invalidation for NEW_TAB_EN_US, got %v", cache.invalidated)
	}
}

func TestScheduleItemRejectsUnknownSurface(t *testing.T) {
	store := newFakeStore()
	svc, obs := newTestService(t, store, nil)
	item := approveFixture(t, svc)

	_, err := svc.ScheduleItem(context.Background(), &ScheduleItemRequest{
		ApprovedItemExternalID: item.ExternalID,
		SurfaceGUID:            "NEW_TAB_XX_XX",
		ScheduledDate:          "2026-05-17",
	})
	if err == nil {
		t.Fatal("expected unknown surface error")
	}
	if len(obs.byKind(events.KindScheduleAdded)) != 0 {
		t.Error("expected no SCHEDULE_ADDED event")
	}
}

func TestUnscheduleItemPublishesScheduleRemoved(t *testing.T) {
	store := newFakeStore()
	svc, obs := newTestService(t, store, nil)
	item := approveFixture(t, svc)

	rec, err := svc.ScheduleItem(context.Background(), &ScheduleItemRequest{
		ApprovedItemExternalID: item.ExternalID,
		SurfaceGUID:            "NEW_TAB_DE_DE",
		ScheduledDate:          "2026-05-17",
	})
	if err != nil {
		t.Fatalf("scheduling item: %v", err)
	}

	removed, err := svc.UnscheduleItem(context.Background(), rec.ExternalID)
	if err != nil {
		t.Fatalf("unscheduling item: %v", err)
	}
	if removed.ExternalID != rec.ExternalID {
		t.Errorf("expected snapshot of removed schedule, got %q", removed.ExternalID)
	}

	evs := obs.byKind(events.KindScheduleRemoved)
	if len(evs) != 1 {
		t.Fatalf("expected 1 SCHEDULE_REMOVED event, got %d", len(evs))
	}
	payload := evs[0].Payload.(events.ScheduledItem)
	if payload.ApprovedItem.URL != item.URL {
		t.Errorf("approved item not rejoined into removal payload: %+v", payload.ApprovedItem)
	}
}

func TestUnscheduleItemSurvivesMissingApprovedItem(t *testing.T) {
	store := newFakeStore()
	svc, obs := newTestService(t, store, nil)
	item := approveFixture(t, svc)

	rec, err := svc.ScheduleItem(context.Background(), &ScheduleItemRequest{
		ApprovedItemExternalID: item.ExternalID,
		SurfaceGUID:            "NEW_TAB_EN_US",
		ScheduledDate:          "2026-05-17",
	})
	if err != nil {
		t.Fatalf("scheduling item: %v", err)
	}
	// Simulate the approved item being deleted out from under the schedule.
	delete(store.approved, item.ExternalID)

	if _, err := svc.UnscheduleItem(context.Background(), rec.ExternalID); err != nil {
		t.Fatalf("unschedule must succeed without the approved item: %v", err)
	}

	evs := obs.byKind(events.KindScheduleRemoved)
	if len(evs) != 1 {
		t.Fatalf("expected 1 SCHEDULE_REMOVED event, got %d", len(evs))
	}
	payload := evs[0].Payload.(events.ScheduledItem)
	if payload.ApprovedItem.ExternalID != item.ExternalID {
		t.Errorf("expected partial snapshot carrying the item id, got %+v", payload.ApprovedItem)
	}
}

func TestRescheduleItemPublishesNewDate(t *testing.T) {
	store := newFakeStore()
	cache := &fakeCache{}
	svc, obs := newTestService(t, store, cache)
	item := approveFixture(t, svc)

	rec, err := svc.ScheduleItem(context.Background(), &ScheduleItemRequest{
		ApprovedItemExternalID: item.ExternalID,
		SurfaceGUID:            "NEW_TAB_EN_US",
		ScheduledDate:          "2026-05-17",
	})
	if err != nil {
		t.Fatalf("scheduling item: %v", err)
	}

	moved, err := svc.RescheduleItem(context.Background(), rec.ExternalID, &RescheduleItemRequest{
		ScheduledDate: "2026-06-01",
		ActorID:       "curator|sam",
	})
	if err != nil {
		t.Fatalf("rescheduling item: %v", err)
	}
	if got := moved.ScheduledDate.Format("2006-01-02"); got != "2026-06-01" {
		t.Errorf("expected new date 2026-06-01, got %q", got)
	}

	evs := obs.byKind(events.KindScheduleRescheduled)
	if len(evs) != 1 {
		t.Fatalf("expected 1 SCHEDULE_RESCHEDULED event, got %d", len(evs))
	}
	payload := evs[0].Payload.(events.ScheduledItem)
	if payload.ScheduledDateString() != "2026-06-01" {
		t.Errorf("payload carries stale date %q", payload.ScheduledDateString())
	}
	if len(cache.invalidated) != 2 {
		t.Errorf("expected invalidation on schedule and reschedule, got %v", cache.invalidated)
	}
}

func TestPanickingListenerDoesNotFailMutation(t *testing.T) {
	store := newFakeStore()
	m := metrics.NewWith(prometheus.NewRegistry())
	bus := events.NewBus(events.NewBuilder("test-source", "1.0.0"), m)
	if err := bus.Subscribe(events.KindItemAdded, "exploding", func(ctx context.Context, env events.Envelope) {
		panic("sink blew up")
	}); err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	svc := NewService(store, bus, nil, m)

	item, err := svc.ApproveItem(context.Background(), &ApproveItemRequest{
		URL:    "https://example.com/a",
		Title:  "A",
		Status: "CORPUS",
	})
	if err != nil {
		t.Fatalf("mutation failed because of a listener: %v", err)
	}
	if _, ok := store.approved[item.ExternalID]; !ok {
		t.Error("item not persisted")
	}
}

func TestListScheduledItemsValidatesInput(t *testing.T) {
	svc, _ := newTestService(t, newFakeStore(), nil)

	if _, err := svc.ListScheduledItems(context.Background(), "NEW_TAB_XX_XX", "2026-05-17"); err == nil {
		t.Error("expected unknown surface error")
	}
	if _, err := svc.ListScheduledItems(context.Background(), "NEW_TAB_EN_US", "not-a-date"); err == nil {
		t.Error("expected date parse error")
	}
}

func TestListScheduledItemsReturnsJoinedRows(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(t, store, nil)
	item := approveFixture(t, svc)

	if _, err := svc.ScheduleItem(context.Background(), &ScheduleItemRequest{
		ApprovedItemExternalID: item.ExternalID,
		SurfaceGUID:            "NEW_TAB_EN_US",
		ScheduledDate:          "2026-05-17",
	}); err != nil {
		t.Fatalf("scheduling item: %v", err)
	}

	items, err := svc.ListScheduledItems(context.Background(), "NEW_TAB_EN_US", "2026-05-17")
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 scheduled item, got %d", len(items))
	}
	if items[0].ApprovedItem.ExternalID != item.ExternalID {
		t.Errorf("approved item not joined: %+v", items[0].ApprovedItem)
	}

	// Other dates list empty.
	items, err = svc.ListScheduledItems(context.Background(), "NEW_TAB_EN_US", "2026-05-18")
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("expected no items on 2026-05-18, got %d", len(items))
	}
}
