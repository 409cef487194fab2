// Package curation defines the curated-corpus domain records and the
// mutation service that persists state changes and publishes the matching
// domain events.
package curation

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/curation-tools/corpus-platform/internal/events"
)

// Known rejection reason codes.
var RejectionReasons = map[string]bool{
	"PAYWALL":            true,
	"POLITICAL_OPINION":  true,
	"OFFENSIVE_MATERIAL": true,
	"TIME_SENSITIVE":     true,
	"MISINFORMATION":     true,
	"PUBLISHER_QUALITY":  true,
	"OTHER":              true,
}

// Known provenance sources for approved items.
var ItemSources = map[string]bool{
	"PROSPECT": true,
	"MANUAL":   true,
	"BACKFILL": true,
	"ML":       true,
}

// ApprovedItem is a content item kept in the corpus.
type ApprovedItem struct {
	ExternalID      string          `json:"externalId"`
	URL             string          `json:"url"`
	Title           string          `json:"title"`
	Excerpt         string          `json:"excerpt"`
	Publisher       string          `json:"publisher"`
	ImageURL        string          `json:"imageUrl"`
	Language        string          `json:"language"`
	Topic           string          `json:"topic"`
	Status          events.Status   `json:"status"`
	Source          string          `json:"source"`
	Authors         []events.Author `json:"authors"`
	IsCollection    bool            `json:"isCollection"`
	IsSyndicated    bool            `json:"isSyndicated"`
	IsTimeSensitive bool            `json:"isTimeSensitive"`
	CreatedAt       time.Time       `json:"createdAt"`
	CreatedBy       string          `json:"createdBy"`
	UpdatedAt       time.Time       `json:"updatedAt"`
	UpdatedBy       string          `json:"updatedBy"`
}

// RejectedItem is a content item turned away from the corpus.
type RejectedItem struct {
	ExternalID string    `json:"externalId"`
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	Language   string    `json:"language"`
	Topic      string    `json:"topic"`
	Reasons    []string  `json:"reasons"`
	CreatedAt  time.Time `json:"createdAt"`
	CreatedBy  string    `json:"createdBy"`
}

// ScheduledRecord assigns an approved item to a surface on a calendar date.
type ScheduledRecord struct {
	ExternalID             string    `json:"externalId"`
	ApprovedItemExternalID string    `json:"approvedItemExternalId"`
	SurfaceGUID            string    `json:"surfaceGuid"`
	ScheduledDate          time.Time `json:"scheduledDate"`
	CreatedAt              time.Time `json:"createdAt"`
	CreatedBy              string    `json:"createdBy"`
	UpdatedAt              time.Time `json:"updatedAt"`
	UpdatedBy              string    `json:"updatedBy"`
}

// ScheduledItem joins a schedule row with its approved item snapshot.
type ScheduledItem struct {
	ScheduledRecord
	ApprovedItem ApprovedItem `json:"approvedItem"`
}

// ApproveItemRequest is the input for approving an item into the corpus.
type ApproveItemRequest struct {
	URL             string          `json:"url"`
	Title           string          `json:"title"`
	Excerpt         string          `json:"excerpt"`
	Publisher       string          `json:"publisher"`
	ImageURL        string          `json:"imageUrl"`
	Language        string          `json:"language"`
	Topic           string          `json:"topic"`
	Status          string          `json:"status"`
	Source          string          `json:"source"`
	Authors         []events.Author `json:"authors"`
	IsCollection    bool            `json:"isCollection"`
	IsSyndicated    bool            `json:"isSyndicated"`
	IsTimeSensitive bool            `json:"isTimeSensitive"`
	ActorID         string          `json:"actorId"`
}

// UpdateItemRequest is the input for updating an approved item.
type UpdateItemRequest struct {
	Title           string          `json:"title"`
	Excerpt         string          `json:"excerpt"`
	Publisher       string          `json:"publisher"`
	ImageURL        string          `json:"imageUrl"`
	Language        string          `json:"language"`
	Topic           string          `json:"topic"`
	Status          string          `json:"status"`
	Authors         []events.Author `json:"authors"`
	IsCollection    bool            `json:"isCollection"`
	IsSyndicated    bool            `json:"isSyndicated"`
	IsTimeSensitive bool            `json:"isTimeSensitive"`
	ActorID         string          `json:"actorId"`
}

// RejectItemRequest is the input for rejecting an item.
type RejectItemRequest struct {
	URL      string   `json:"url"`
	Title    string   `json:"title"`
	Language string   `json:"language"`
	Topic    string   `json:"topic"`
	Reasons  []string `json:"reasons"`
	ActorID  string   `json:"actorId"`
}

// ScheduleItemRequest is the input for scheduling an approved item.
type ScheduleItemRequest struct {
	ApprovedItemExternalID string `json:"approvedItemExternalId"`
	SurfaceGUID            string `json:"surfaceGuid"`
	ScheduledDate          string `json:"scheduledDate"`
	ActorID                string `json:"actorId"`
}

// RescheduleItemRequest is the input for moving a schedule to another date.
type RescheduleItemRequest struct {
	ScheduledDate string `json:"scheduledDate"`
	ActorID       string `json:"actorId"`
}

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	var parts []string
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, msg))
	}
	return strings.Join(parts, "; ")
}

const maxTitleLength = 1024

// Validate checks an approve request.
func (r *ApproveItemRequest) Validate() error {
	errs := make(map[string]string)
	validateURL(errs, r.URL)
	validateTitle(errs, r.Title)
	if r.Status != string(events.StatusRecommendation) && r.Status != string(events.StatusCorpus) {
		errs["status"] = "status must be RECOMMENDATION or CORPUS"
	}
	if r.Source != "" && !ItemSources[r.Source] {
		errs["source"] = fmt.Sprintf("unknown item source %q", r.Source)
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

// Validate checks an update request.
func (r *UpdateItemRequest) Validate() error {
	errs := make(map[string]string)
	validateTitle(errs, r.Title)
	if r.Status != string(events.StatusRecommendation) && r.Status != string(events.StatusCorpus) {
		errs["status"] = "status must be RECOMMENDATION or CORPUS"
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

// Validate checks a reject request.
func (r *RejectItemRequest) Validate() error {
	errs := make(map[string]string)
	validateURL(errs, r.URL)
	if len(r.Reasons) == 0 {
		errs["reasons"] = "at least one rejection reason is required"
	}
	for _, reason := range r.Reasons {
		if !RejectionReasons[reason] {
			errs["reasons"] = fmt.Sprintf("unknown rejection reason %q", reason)
			break
		}
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

// Validate checks a schedule request and parses its date.
func (r *ScheduleItemRequest) Validate() (time.Time, error) {
	errs := make(map[string]string)
	if r.ApprovedItemExternalID == "" {
		errs["approvedItemExternalId"] = "approved item external id is required"
	}
	if r.SurfaceGUID == "" {
		errs["surfaceGuid"] = "surface guid is required"
	}
	date, err := parseScheduledDate(r.ScheduledDate)
	if err != nil {
		errs["scheduledDate"] = err.Error()
	}
	if len(errs) > 0 {
		return time.Time{}, &ValidationError{Fields: errs}
	}
	return date, nil
}

// Validate checks a reschedule request and parses its date.
func (r *RescheduleItemRequest) Validate() (time.Time, error) {
	date, err := parseScheduledDate(r.ScheduledDate)
	if err != nil {
		return time.Time{}, &ValidationError{Fields: map[string]string{"scheduledDate": err.Error()}}
	}
	return date, nil
}

func validateURL(errs map[string]string, raw string) {
	if strings.TrimSpace(raw) == "" {
		errs["url"] = "url is required"
		return
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		errs["url"] = "url must be absolute"
	}
}

func validateTitle(errs map[string]string, title string) {
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		errs["title"] = "title is required"
	} else if len(trimmed) > maxTitleLength {
		errs["title"] = fmt.Sprintf("title must be at most %d characters", maxTitleLength)
	}
}

// parseScheduledDate parses a date-only string into UTC midnight.
func parseScheduledDate(raw string) (time.Time, error) {
	date, err := time.ParseInLocation(events.ScheduledDateLayout, raw, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("scheduled date must be formatted %s", events.ScheduledDateLayout)
	}
	return date, nil
}
