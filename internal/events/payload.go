package events

import "time"

// ScheduledDateLayout is the date-only format used for schedule dates on
// every outbound contract.
const ScheduledDateLayout = "2006-01-02"

// Payload is the union of event payload types carried by an Envelope.
// Payloads are snapshots taken by the mutation that publishes them, never
// live references into storage.
type Payload interface {
	isPayload()
}

// ReviewedItem is a content item that went through curation. It is exactly
// one of ApprovedItem or RejectedItem; derivation code switches on the
// concrete type rather than probing for field presence.
type ReviewedItem interface {
	Payload
	isReviewedItem()
}

// Author is one credited author of an approved item, with its display order.
type Author struct {
	Name      string `json:"name"`
	SortOrder int    `json:"sortOrder"`
}

// Status is the curation tier of an approved item.
type Status string

const (
	StatusRecommendation Status = "RECOMMENDATION"
	StatusCorpus         Status = "CORPUS"
)

// ApprovedItem is the Approved variant of a reviewed item.
type ApprovedItem struct {
	ExternalID      string    `json:"externalId"`
	URL             string    `json:"url"`
	Title           string    `json:"title"`
	Excerpt         string    `json:"excerpt"`
	Publisher       string    `json:"publisher"`
	ImageURL        string    `json:"imageUrl"`
	Language        string    `json:"language"`
	Topic           string    `json:"topic"`
	Status          Status    `json:"status"`
	Source          string    `json:"source"`
	Authors         []Author  `json:"authors"`
	IsCollection    bool      `json:"isCollection"`
	IsSyndicated    bool      `json:"isSyndicated"`
	IsTimeSensitive bool      `json:"isTimeSensitive"`
	CreatedAt       time.Time `json:"createdAt"`
	CreatedBy       string    `json:"createdBy"`
	UpdatedAt       time.Time `json:"updatedAt"`
	UpdatedBy       string    `json:"updatedBy"`
}

// RejectedItem is the Rejected variant of a reviewed item. Reasons holds the
// rejection reason codes (stored comma-delimited at the persistence edge).
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

// ScheduledItem places an approved item on a surface for a calendar date.
// The approved item is embedded as a snapshot joined by the mutation.
type ScheduledItem struct {
	ExternalID    string       `json:"externalId"`
	SurfaceGUID   string       `json:"surfaceGuid"`
	ScheduledDate time.Time    `json:"scheduledDate"`
	ApprovedItem  ApprovedItem `json:"approvedItem"`
	CreatedAt     time.Time    `json:"createdAt"`
	CreatedBy     string       `json:"createdBy"`
	UpdatedAt     time.Time    `json:"updatedAt"`
	UpdatedBy     string       `json:"updatedBy"`
}

func (ApprovedItem) isPayload()  {}
func (RejectedItem) isPayload()  {}
func (ScheduledItem) isPayload() {}

func (ApprovedItem) isReviewedItem() {}
func (RejectedItem) isReviewedItem() {}

// ScheduledDateString formats the schedule date as a date-only UTC string.
func (s ScheduledItem) ScheduledDateString() string {
	return s.ScheduledDate.UTC().Format(ScheduledDateLayout)
}
