package curation

import (
	"context"
	"log/slog"
	"time"

	"github.com/curation-tools/corpus-platform/internal/events"
	"github.com/curation-tools/corpus-platform/internal/surfaces"
	apperrors "github.com/curation-tools/corpus-platform/pkg/errors"
	"github.com/curation-tools/corpus-platform/pkg/metrics"
	"github.com/google/uuid"
)

// Store is the persistence surface the service mutates. Implemented by
// store.Store.
type Store interface {
	CreateApprovedItem(ctx context.Context, item *ApprovedItem) error
	GetApprovedItem(ctx context.Context, externalID string) (*ApprovedItem, error)
	UpdateApprovedItem(ctx context.Context, item *ApprovedItem) error
	DeleteApprovedItem(ctx context.Context, externalID string) (*ApprovedItem, error)
	CreateRejectedItem(ctx context.Context, item *RejectedItem) error
	CreateScheduledItem(ctx context.Context, rec *ScheduledRecord) error
	GetScheduledRecord(ctx context.Context, externalID string) (*ScheduledRecord, error)
	DeleteScheduledItem(ctx context.Context, externalID string) (*ScheduledRecord, error)
	UpdateScheduledDate(ctx context.Context, externalID string, date, updatedAt time.Time, updatedBy string) error
	ListScheduledItems(ctx context.Context, surfaceGUID string, date time.Time) ([]ScheduledItem, error)
}

// ScheduleCache caches scheduled-item listings. Implemented by
// cache.ScheduleCache; may be nil to run uncached.
type ScheduleCache interface {
	GetOrCompute(ctx context.Context, surfaceGUID string, date time.Time, computeFn func() ([]ScheduledItem, error)) ([]ScheduledItem, bool, error)
	InvalidateSurface(ctx context.Context, surfaceGUID string)
}

// Service performs curation mutations: persist the state change, then
// publish exactly one domain event carrying a snapshot of the result. Event
// delivery outcome never affects the mutation's result.
type Service struct {
	store   Store
	bus     *events.Bus
	cache   ScheduleCache
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string
}

// NewService creates a Service. cache may be nil.
func NewService(store Store, bus *events.Bus, cache ScheduleCache, m *metrics.Metrics) *Service {
	return &Service{
		store:   store,
		bus:     bus,
		cache:   cache,
		metrics: m,
		logger:  slog.Default().With("component", "curation-service"),
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// ApproveItem adds an item to the corpus and publishes ItemAdded.
func (s *Service) ApproveItem(ctx context.Context, req *ApproveItemRequest) (*ApprovedItem, error) {
	if err := req.Validate(); err != nil {
		return nil, apperrors.New(apperrors.ErrInvalidInput, 400, err.Error())
	}
	now := s.now().UTC()
	source := req.Source
	if source == "" {
		source = "MANUAL"
	}
	item := &ApprovedItem{
		ExternalID:      s.newID(),
		URL:             req.URL,
		Title:           req.Title,
		Excerpt:         req.Excerpt,
		Publisher:       req.Publisher,
		ImageURL:        req.ImageURL,
		Language:        req.Language,
		Topic:           req.Topic,
		Status:          events.Status(req.Status),
		Source:          source,
		Authors:         req.Authors,
		IsCollection:    req.IsCollection,
		IsSyndicated:    req.IsSyndicated,
		IsTimeSensitive: req.IsTimeSensitive,
		CreatedAt:       now,
		CreatedBy:       req.ActorID,
		UpdatedAt:       now,
		UpdatedBy:       req.ActorID,
	}
	if err := s.store.CreateApprovedItem(ctx, item); err != nil {
		s.metrics.MutationsTotal.WithLabelValues("approve_item", "error").Inc()
		return nil, err
	}
	s.metrics.MutationsTotal.WithLabelValues("approve_item", "success").Inc()
	s.bus.Publish(ctx, events.KindItemAdded, item.toEvent())
	return item, nil
}

// UpdateItem replaces the mutable fields of an approved item and publishes
// ItemUpdated.
func (s *Service) UpdateItem(ctx context.Context, externalID string, req *UpdateItemRequest) (*ApprovedItem, error) {
	if err := req.Validate(); err != nil {
		return nil, apperrors.New(apperrors.ErrInvalidInput, 400, err.Error())
	}
	item, err := s.store.GetApprovedItem(ctx, externalID)
	if err != nil {
		return nil, err
	}
	item.Title = req.Title
	item.Excerpt = req.Excerpt
	item.Publisher = req.Publisher
	item.ImageURL = req.ImageURL
	item.Language = req.Language
	item.Topic = req.Topic
	item.Status = events.Status(req.Status)
	item.Authors = req.Authors
	item.IsCollection = req.IsCollection
	item.IsSyndicated = req.IsSyndicated
	item.IsTimeSensitive = req.IsTimeSensitive
	item.UpdatedAt = s.now().UTC()
	item.UpdatedBy = req.ActorID

	if err := s.store.UpdateApprovedItem(ctx, item); err != nil {
		s.metrics.MutationsTotal.WithLabelValues("update_item", "error").Inc()
		return nil, err
	}
	s.metrics.MutationsTotal.WithLabelValues("update_item", "success").Inc()
	s.bus.Publish(ctx, events.KindItemUpdated, item.toEvent())
	return item, nil
}

// RemoveItem deletes an approved item and publishes ItemRemoved with the
// deleted snapshot.
func (s *Service) RemoveItem(ctx context.Context, externalID string) (*ApprovedItem, error) {
	item, err := s.store.DeleteApprovedItem(ctx, externalID)
	if err != nil {
		s.metrics.MutationsTotal.WithLabelValues("remove_item", "error").Inc()
		return nil, err
	}
	s.metrics.MutationsTotal.WithLabelValues("remove_item", "success").Inc()
	s.bus.Publish(ctx, events.KindItemRemoved, item.toEvent())
	return item, nil
}

// RejectItem records a rejection and publishes ItemRejected.
func (s *Service) RejectItem(ctx context.Context, req *RejectItemRequest) (*RejectedItem, error) {
	if err := req.Validate(); err != nil {
		return nil, apperrors.New(apperrors.ErrInvalidInput, 400, err.Error())
	}
	item := &RejectedItem{
		ExternalID: s.newID(),
		URL:        req.URL,
		Title:      req.Title,
		Language:   req.Language,
		Topic:      req.Topic,
		Reasons:    req.Reasons,
		CreatedAt:  s.now().UTC(),
		CreatedBy:  req.ActorID,
	}
	if err := s.store.CreateRejectedItem(ctx, item); err != nil {
		s.metrics.MutationsTotal.WithLabelValues("reject_item", "error").Inc()
		return nil, err
	}
	s.metrics.MutationsTotal.WithLabelValues("reject_item", "success").Inc()
	s.bus.Publish(ctx, events.KindItemRejected, item.toEvent())
	return item, nil
}

// ScheduleItem places an approved item on a surface and publishes
// ScheduleAdded with the approved item joined into the payload.
func (s *Service) ScheduleItem(ctx context.Context, req *ScheduleItemRequest) (*ScheduledRecord, error) {
	date, err := req.Validate()
	if err != nil {
		return nil, apperrors.New(apperrors.ErrInvalidInput, 400, err.Error())
	}
	if !surfaces.IsValid(req.SurfaceGUID) {
		return nil, apperrors.New(apperrors.ErrUnknownSurface, 400, req.SurfaceGUID)
	}
	item, err := s.store.GetApprovedItem(ctx, req.ApprovedItemExternalID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	rec := &ScheduledRecord{
		ExternalID:             s.newID(),
		ApprovedItemExternalID: item.ExternalID,
		SurfaceGUID:            req.SurfaceGUID,
		ScheduledDate:          date,
		CreatedAt:              now,
		CreatedBy:              req.ActorID,
		UpdatedAt:              now,
		UpdatedBy:              req.ActorID,
	}
	if err := s.store.CreateScheduledItem(ctx, rec); err != nil {
		s.metrics.MutationsTotal.WithLabelValues("schedule_item", "error").Inc()
		return nil, err
	}
	s.metrics.MutationsTotal.WithLabelValues("schedule_item", "success").Inc()
	s.invalidate(ctx, rec.SurfaceGUID)
	s.bus.Publish(ctx, events.KindScheduleAdded, rec.toEvent(item))
	return rec, nil
}

// UnscheduleItem removes a schedule and publishes ScheduleRemoved with the
// deleted snapshot.
func (s *Service) UnscheduleItem(ctx context.Context, externalID string) (*ScheduledRecord, error) {
	rec, err := s.store.DeleteScheduledItem(ctx, externalID)
	if err != nil {
		s.metrics.MutationsTotal.WithLabelValues("unschedule_item", "error").Inc()
		return nil, err
	}
	s.metrics.MutationsTotal.WithLabelValues("unschedule_item", "success").Inc()
	s.invalidate(ctx, rec.SurfaceGUID)
	s.publishScheduleEvent(ctx, events.KindScheduleRemoved, rec)
	return rec, nil
}

// RescheduleItem moves a schedule to a new date and publishes
// ScheduleRescheduled.
func (s *Service) RescheduleItem(ctx context.Context, externalID string, req *RescheduleItemRequest) (*ScheduledRecord, error) {
	date, err := req.Validate()
	if err != nil {
		return nil, apperrors.New(apperrors.ErrInvalidInput, 400, err.Error())
	}
	rec, err := s.store.GetScheduledRecord(ctx, externalID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if err := s.store.UpdateScheduledDate(ctx, externalID, date, now, req.ActorID); err != nil {
		s.metrics.MutationsTotal.WithLabelValues("reschedule_item", "error").Inc()
		return nil, err
	}
	rec.ScheduledDate = date
	rec.UpdatedAt = now
	rec.UpdatedBy = req.ActorID
	s.metrics.MutationsTotal.WithLabelValues("reschedule_item", "success").Inc()
	s.invalidate(ctx, rec.SurfaceGUID)
	s.publishScheduleEvent(ctx, events.KindScheduleRescheduled, rec)
	return rec, nil
}

// ListScheduledItems returns the schedules for a surface and date, via the
// cache when one is configured.
func (s *Service) ListScheduledItems(ctx context.Context, surfaceGUID, dateStr string) ([]ScheduledItem, error) {
	if !surfaces.IsValid(surfaceGUID) {
		return nil, apperrors.New(apperrors.ErrUnknownSurface, 400, surfaceGUID)
	}
	date, err := parseScheduledDate(dateStr)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrInvalidInput, 400, err.Error())
	}
	if s.cache == nil {
		return s.store.ListScheduledItems(ctx, surfaceGUID, date)
	}
	items, _, err := s.cache.GetOrCompute(ctx, surfaceGUID, date, func() ([]ScheduledItem, error) {
		return s.store.ListScheduledItems(ctx, surfaceGUID, date)
	})
	return items, err
}

// publishScheduleEvent joins the approved item back into the payload. A
// remove event may race an item deletion; in that case the event still goes
// out with whatever snapshot fields the schedule row carried.
func (s *Service) publishScheduleEvent(ctx context.Context, kind events.Kind, rec *ScheduledRecord) {
	var approved ApprovedItem
	if item, err := s.store.GetApprovedItem(ctx, rec.ApprovedItemExternalID); err == nil {
		approved = *item
	} else {
		s.logger.Warn("approved item missing for schedule event",
			"kind", kind,
			"schedule_external_id", rec.ExternalID,
			"approved_item_external_id", rec.ApprovedItemExternalID,
		)
		approved.ExternalID = rec.ApprovedItemExternalID
	}
	s.bus.Publish(ctx, kind, rec.toEvent(&approved))
}

func (s *Service) invalidate(ctx context.Context, surfaceGUID string) {
	if s.cache != nil {
		s.cache.InvalidateSurface(ctx, surfaceGUID)
	}
}

// toEvent converts the stored record into an event payload snapshot.
func (i *ApprovedItem) toEvent() events.ApprovedItem {
	return events.ApprovedItem{
		ExternalID:      i.ExternalID,
		URL:             i.URL,
		Title:           i.Title,
		Excerpt:         i.Excerpt,
		Publisher:       i.Publisher,
		ImageURL:        i.ImageURL,
		Language:        i.Language,
		Topic:           i.Topic,
		Status:          i.Status,
		Source:          i.Source,
		Authors:         append([]events.Author(nil), i.Authors...),
		IsCollection:    i.IsCollection,
		IsSyndicated:    i.IsSyndicated,
		IsTimeSensitive: i.IsTimeSensitive,
		CreatedAt:       i.CreatedAt,
		CreatedBy:       i.CreatedBy,
		UpdatedAt:       i.UpdatedAt,
		UpdatedBy:       i.UpdatedBy,
	}
}

func (i *RejectedItem) toEvent() events.RejectedItem {
	return events.RejectedItem{
		ExternalID: i.ExternalID,
		URL:        i.URL,
		Title:      i.Title,
		Language:   i.Language,
		Topic:      i.Topic,
		Reasons:    append([]string(nil), i.Reasons...),
		CreatedAt:  i.CreatedAt,
		CreatedBy:  i.CreatedBy,
	}
}

func (r *ScheduledRecord) toEvent(item *ApprovedItem) events.ScheduledItem {
	return events.ScheduledItem{
		ExternalID:    r.ExternalID,
		SurfaceGUID:   r.SurfaceGUID,
		ScheduledDate: r.ScheduledDate,
		ApprovedItem:  item.toEvent(),
		CreatedAt:     r.CreatedAt,
		CreatedBy:     r.CreatedBy,
		UpdatedAt:     r.UpdatedAt,
		UpdatedBy:     r.UpdatedBy,
	}
}
