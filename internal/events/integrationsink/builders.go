// Package integrationsink publishes flattened curation events to the
// cross-service integration bus (Kafka). Which kinds it handles, and the
// detail-type each maps to, is configuration; the builders here denormalize
// the nested payloads into the flat external contract.
package integrationsink

import (
	"fmt"

	"github.com/curation-tools/corpus-platform/internal/events"
)

// Default detail-type strings for the kinds the sink maps out of the box.
const (
	DetailTypeAddScheduledItem    = "add-scheduled-item"
	DetailTypeRemoveScheduledItem = "remove-scheduled-item"
	DetailTypeUpdateScheduledItem = "update-scheduled-item"
	DetailTypeUpdateApprovedItem  = "update-approved-item"
)

// DefaultDetailTypes returns the built-in kind to detail-type mapping:
// the three schedule kinds plus approved-item updates. Reviewed-item adds,
// removes, and rejections are not forwarded by default.
func DefaultDetailTypes() map[events.Kind]string {
	return map[events.Kind]string{
		events.KindScheduleAdded:       DetailTypeAddScheduledItem,
		events.KindScheduleRemoved:     DetailTypeRemoveScheduledItem,
		events.KindScheduleRescheduled: DetailTypeUpdateScheduledItem,
		events.KindItemUpdated:         DetailTypeUpdateApprovedItem,
	}
}

// ScheduledItemDetail is the flat outbound payload for schedule events. The
// nested approved item's fields are lifted to the top level next to the
// schedule's own identifiers.
type ScheduledItemDetail struct {
	ScheduledItemExternalID string   `json:"scheduledItemExternalId"`
	ApprovedItemExternalID  string   `json:"approvedItemExternalId"`
	URL                     string   `json:"url"`
	Title                   string   `json:"title"`
	Excerpt                 string   `json:"excerpt"`
	Publisher               string   `json:"publisher"`
	ImageURL                string   `json:"imageUrl"`
	Language                string   `json:"language"`
	Topic                   string   `json:"topic"`
	Authors                 []string `json:"authors"`
	IsSyndicated            bool     `json:"isSyndicated"`
	CreatedAt               int64    `json:"createdAt"`
	CreatedBy               string   `json:"createdBy"`
	UpdatedAt               int64    `json:"updatedAt"`
	ScheduledSurfaceGUID    string   `json:"scheduledSurfaceGuid"`
	ScheduledDate           string   `json:"scheduledDate"`
}

// ApprovedItemDetail is the flat outbound payload for approved-item events.
type ApprovedItemDetail struct {
	ApprovedItemExternalID string   `json:"approvedItemExternalId"`
	URL                    string   `json:"url"`
	Title                  string   `json:"title"`
	Excerpt                string   `json:"excerpt"`
	Publisher              string   `json:"publisher"`
	ImageURL               string   `json:"imageUrl"`
	Language               string   `json:"language"`
	Topic                  string   `json:"topic"`
	Authors                []string `json:"authors"`
	Status                 string   `json:"status"`
	IsCollection           bool     `json:"isCollection"`
	IsSyndicated           bool     `json:"isSyndicated"`
	CreatedAt              int64    `json:"createdAt"`
	CreatedBy              string   `json:"createdBy"`
	UpdatedAt              int64    `json:"updatedAt"`
	UpdatedBy              string   `json:"updatedBy"`
}

// buildDetail flattens the envelope payload for its event family.
func buildDetail(env events.Envelope) (detail any, key string, err error) {
	switch payload := env.Payload.(type) {
	case events.ScheduledItem:
		return buildScheduledItemDetail(payload), payload.ExternalID, nil
	case events.ApprovedItem:
		return buildApprovedItemDetail(payload), payload.ExternalID, nil
	default:
		return nil, "", fmt.Errorf("event %s carries unexpected payload type %T", env.Kind, env.Payload)
	}
}

func buildScheduledItemDetail(item events.ScheduledItem) *ScheduledItemDetail {
	approved := item.ApprovedItem
	return &ScheduledItemDetail{
		ScheduledItemExternalID: item.ExternalID,
		ApprovedItemExternalID:  approved.ExternalID,
		URL:                     approved.URL,
		Title:                   approved.Title,
		Excerpt:                 approved.Excerpt,
		Publisher:               approved.Publisher,
		ImageURL:                approved.ImageURL,
		Language:                approved.Language,
		Topic:                   approved.Topic,
		Authors:                 authorNames(approved.Authors),
		IsSyndicated:            approved.IsSyndicated,
		CreatedAt:               item.CreatedAt.Unix(),
		CreatedBy:               item.CreatedBy,
		UpdatedAt:               item.UpdatedAt.Unix(),
		ScheduledSurfaceGUID:    item.SurfaceGUID,
		ScheduledDate:           item.ScheduledDateString(),
	}
}

func buildApprovedItemDetail(item events.ApprovedItem) *ApprovedItemDetail {
	return &ApprovedItemDetail{
		ApprovedItemExternalID: item.ExternalID,
		URL:                    item.URL,
		Title:                  item.Title,
		Excerpt:                item.Excerpt,
		Publisher:              item.Publisher,
		ImageURL:               item.ImageURL,
		Language:               item.Language,
		Topic:                  item.Topic,
		Authors:                authorNames(item.Authors),
		Status:                 string(item.Status),
		IsCollection:           item.IsCollection,
		IsSyndicated:           item.IsSyndicated,
		CreatedAt:              item.CreatedAt.Unix(),
		CreatedBy:              item.CreatedBy,
		UpdatedAt:              item.UpdatedAt.Unix(),
		UpdatedBy:              item.UpdatedBy,
	}
}

func authorNames(authors []events.Author) []string {
	names := make([]string, len(authors))
	for i, a := range authors {
		names[i] = a.Name
	}
	return names
}
