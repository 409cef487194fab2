// Package events implements the domain event distribution engine: the event
// taxonomy, the envelope builder, and the in-process publish/subscribe bus
// that fans mutation outcomes out to the registered sink handlers.
package events

import "fmt"

// Kind identifies one kind of curation state change. The set is closed;
// ParseKind rejects anything outside it.
type Kind string

const (
	KindItemAdded           Kind = "ITEM_ADDED"
	KindItemUpdated         Kind = "ITEM_UPDATED"
	KindItemRemoved         Kind = "ITEM_REMOVED"
	KindItemRejected        Kind = "ITEM_REJECTED"
	KindScheduleAdded       Kind = "SCHEDULE_ADDED"
	KindScheduleRemoved     Kind = "SCHEDULE_REMOVED"
	KindScheduleRescheduled Kind = "SCHEDULE_RESCHEDULED"
)

// Family groups kinds by the payload shape they carry.
type Family string

const (
	FamilyReviewedItem  Family = "reviewed_item"
	FamilyScheduledItem Family = "scheduled_item"
)

// AllKinds lists every event kind, in taxonomy order.
var AllKinds = []Kind{
	KindItemAdded,
	KindItemUpdated,
	KindItemRemoved,
	KindItemRejected,
	KindScheduleAdded,
	KindScheduleRemoved,
	KindScheduleRescheduled,
}

// triggers maps each kind to its analytics-pipeline trigger classification.
var triggers = map[Kind]string{
	KindItemAdded:           "reviewed_corpus_item_added",
	KindItemUpdated:         "reviewed_corpus_item_updated",
	KindItemRemoved:         "reviewed_corpus_item_removed",
	KindItemRejected:        "reviewed_corpus_item_rejected",
	KindScheduleAdded:       "scheduled_corpus_item_added",
	KindScheduleRemoved:     "scheduled_corpus_item_removed",
	KindScheduleRescheduled: "scheduled_corpus_item_rescheduled",
}

// Valid reports whether k is part of the closed taxonomy.
func (k Kind) Valid() bool {
	_, ok := triggers[k]
	return ok
}

// Family returns which payload family the kind belongs to.
func (k Kind) Family() Family {
	switch k {
	case KindScheduleAdded, KindScheduleRemoved, KindScheduleRescheduled:
		return FamilyScheduledItem
	default:
		return FamilyReviewedItem
	}
}

// Trigger returns the analytics trigger string for the kind, or "" for an
// unknown kind.
func (k Kind) Trigger() string {
	return triggers[k]
}

// ParseKind converts a config string into a Kind, rejecting unknown values.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown event kind %q", s)
	}
	return k, nil
}

// ParseKinds converts a list of config strings into kinds.
func ParseKinds(names []string) ([]Kind, error) {
	kinds := make([]Kind, 0, len(names))
	for _, name := range names {
		k, err := ParseKind(name)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}
