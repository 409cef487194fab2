// Package analyticsink subscribes to a configured subset of event kinds,
// derives the analytics-pipeline trigger and context for each, and delivers
// them to the collector without ever surfacing a failure to the publisher.
package analyticsink

import (
	"fmt"
	"sort"

	"github.com/curation-tools/corpus-platform/internal/events"
	"github.com/curation-tools/corpus-platform/internal/surfaces"
)

// Review status values reported in ReviewedItemContext.
const (
	reviewStatusRecommendation = "recommendation"
	reviewStatusCorpus         = "corpus"
	reviewStatusRejected       = "rejected"
)

// ReviewedItemContext is the analytics context for reviewed-item events.
// Approved and rejected items share the common field set; variant-specific
// fields are omitted when empty.
type ReviewedItemContext struct {
	CorpusReviewStatus           string   `json:"corpus_review_status"`
	ApprovedCorpusItemExternalID string   `json:"approved_corpus_item_external_id,omitempty"`
	RejectedCorpusItemExternalID string   `json:"rejected_corpus_item_external_id,omitempty"`
	URL                          string   `json:"url"`
	Title                        string   `json:"title,omitempty"`
	Excerpt                      string   `json:"excerpt,omitempty"`
	Publisher                    string   `json:"publisher,omitempty"`
	ImageURL                     string   `json:"image_url,omitempty"`
	Language                     string   `json:"language,omitempty"`
	Topic                        string   `json:"topic,omitempty"`
	Authors                      []string `json:"authors,omitempty"`
	IsCollection                 bool     `json:"is_collection,omitempty"`
	IsSyndicated                 bool     `json:"is_syndicated,omitempty"`
	IsTimeSensitive              bool     `json:"is_time_sensitive,omitempty"`
	RejectionReasons             []string `json:"rejection_reasons,omitempty"`
	LoadedFrom                   string   `json:"loaded_from,omitempty"`
	CreatedAt                    int64    `json:"created_at"`
	CreatedBy                    string   `json:"created_by,omitempty"`
	UpdatedAt                    int64    `json:"updated_at,omitempty"`
	UpdatedBy                    string   `json:"updated_by,omitempty"`
}

// ScheduledItemContext is the analytics context for scheduled-item events.
type ScheduledItemContext struct {
	ScheduledCorpusItemExternalID string `json:"scheduled_corpus_item_external_id"`
	ApprovedCorpusItemExternalID  string `json:"approved_corpus_item_external_id"`
	URL                           string `json:"url"`
	ScheduledAt                   string `json:"scheduled_at"`
	ScheduledSurfaceID            string `json:"scheduled_surface_id"`
	ScheduledSurfaceName          string `json:"scheduled_surface_name"`
	ScheduledSurfaceIANATimezone  string `json:"scheduled_surface_iana_timezone"`
	CreatedAt                     int64  `json:"created_at"`
	CreatedBy                     string `json:"created_by,omitempty"`
	UpdatedAt                     int64  `json:"updated_at,omitempty"`
	UpdatedBy                     string `json:"updated_by,omitempty"`
}

// deriveContext maps an envelope payload into the analytics context entity
// for its event family.
func deriveContext(env events.Envelope) (any, error) {
	switch payload := env.Payload.(type) {
	case events.ReviewedItem:
		return deriveReviewedItem(payload)
	case events.ScheduledItem:
		return deriveScheduledItem(payload)
	default:
		return nil, fmt.Errorf("event %s carries unexpected payload type %T", env.Kind, env.Payload)
	}
}

// deriveReviewedItem branches on the tagged union: the approved variant
// reports its curation tier, the rejected variant reports its reason codes.
func deriveReviewedItem(item events.ReviewedItem) (*ReviewedItemContext, error) {
	switch v := item.(type) {
	case events.ApprovedItem:
		rc := &ReviewedItemContext{
			CorpusReviewStatus:           reviewStatusCorpus,
			ApprovedCorpusItemExternalID: v.ExternalID,
			URL:                          v.URL,
			Title:                        v.Title,
			Excerpt:                      v.Excerpt,
			Publisher:                    v.Publisher,
			ImageURL:                     v.ImageURL,
			Language:                     v.Language,
			Topic:                        v.Topic,
			Authors:                      authorNames(v.Authors),
			IsCollection:                 v.IsCollection,
			IsSyndicated:                 v.IsSyndicated,
			IsTimeSensitive:              v.IsTimeSensitive,
			LoadedFrom:                   v.Source,
			CreatedAt:                    v.CreatedAt.Unix(),
			CreatedBy:                    v.CreatedBy,
			UpdatedBy:                    v.UpdatedBy,
		}
		if v.Status == events.StatusRecommendation {
			rc.CorpusReviewStatus = reviewStatusRecommendation
		}
		if !v.UpdatedAt.IsZero() {
			rc.UpdatedAt = v.UpdatedAt.Unix()
		}
		return rc, nil
	case events.RejectedItem:
		if len(v.Reasons) == 0 {
			return nil, fmt.Errorf("rejected item %s has no rejection reasons", v.ExternalID)
		}
		return &ReviewedItemContext{
			CorpusReviewStatus:           reviewStatusRejected,
			RejectedCorpusItemExternalID: v.ExternalID,
			URL:                          v.URL,
			Title:                        v.Title,
			Language:                     v.Language,
			Topic:                        v.Topic,
			RejectionReasons:             v.Reasons,
			CreatedAt:                    v.CreatedAt.Unix(),
			CreatedBy:                    v.CreatedBy,
		}, nil
	default:
		return nil, fmt.Errorf("unexpected reviewed item variant %T", item)
	}
}

// deriveScheduledItem joins the static surface registry into the context.
func deriveScheduledItem(item events.ScheduledItem) (*ScheduledItemContext, error) {
	surface, ok := surfaces.Lookup(item.SurfaceGUID)
	if !ok {
		return nil, fmt.Errorf("scheduled item %s references unknown surface %q", item.ExternalID, item.SurfaceGUID)
	}
	sc := &ScheduledItemContext{
		ScheduledCorpusItemExternalID: item.ExternalID,
		ApprovedCorpusItemExternalID:  item.ApprovedItem.ExternalID,
		URL:                           item.ApprovedItem.URL,
		ScheduledAt:                   item.ScheduledDateString(),
		ScheduledSurfaceID:            surface.GUID,
		ScheduledSurfaceName:          surface.Name,
		ScheduledSurfaceIANATimezone:  surface.IANATimezone,
		CreatedAt:                     item.CreatedAt.Unix(),
		CreatedBy:                     item.CreatedBy,
		UpdatedBy:                     item.UpdatedBy,
	}
	if !item.UpdatedAt.IsZero() {
		sc.UpdatedAt = item.UpdatedAt.Unix()
	}
	return sc, nil
}

// authorNames flattens the author list to names in sort order.
func authorNames(authors []events.Author) []string {
	sorted := make([]events.Author, len(authors))
	copy(sorted, authors)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].SortOrder < sorted[j].SortOrder })
	names := make([]string, len(sorted))
	for i, a := range sorted {
		names[i] = a.Name
	}
	return names
}
