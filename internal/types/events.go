package types

import (
	"fmt"
	"sort"
)

// EventType is the closed tag of a business occurrence. Unknown tags are
// rejected at ingestion, never at dispatch.
type EventType string

const (
	EventListingApproved   EventType = "Listing.Approved"
	EventListingRejected   EventType = "Listing.Rejected"
	EventOrderApproved     EventType = "Order.Approved"
	EventOrderShipped      EventType = "Order.Shipped"
	EventAuctionOutbid     EventType = "Auction.Outbid"
	EventAuctionEndingSoon EventType = "Auction.EndingSoon"
	EventSavedSearchMatch  EventType = "SavedSearch.Matched"
	EventPayoutSent        EventType = "Payout.Sent"
)

// TemplateTag selects the rendering template for a job. One tag per event
// type; the per-channel renderer decides how the tag maps to subject/body or
// push fields.
type TemplateTag string

const (
	TemplateListingApproved   TemplateTag = "listing_approved"
	TemplateListingRejected   TemplateTag = "listing_rejected"
	TemplateOrderApproved     TemplateTag = "order_approved"
	TemplateOrderShipped      TemplateTag = "order_shipped"
	TemplateAuctionOutbid     TemplateTag = "auction_outbid"
	TemplateAuctionEndingSoon TemplateTag = "auction_ending_soon"
	TemplateSavedSearchMatch  TemplateTag = "saved_search_matched"
	TemplatePayoutSent        TemplateTag = "payout_sent"
)

// FieldKind is the expected JSON kind of a payload field.
type FieldKind int

const (
	FieldString FieldKind = iota
	FieldNumber
	FieldBool
)

// eventSpec ties an event type to its template tag and payload schema.
// Required fields must be present and of the declared kind; extra fields are
// carried through untouched.
type eventSpec struct {
	Template TemplateTag
	Required map[string]FieldKind
}

var eventRegistry = map[EventType]eventSpec{
	EventListingApproved: {
		Template: TemplateListingApproved,
		Required: map[string]FieldKind{"listing_id": FieldString, "listing_title": FieldString},
	},
	EventListingRejected: {
		Template: TemplateListingRejected,
		Required: map[string]FieldKind{"listing_id": FieldString, "listing_title": FieldString, "reason": FieldString},
	},
	EventOrderApproved: {
		Template: TemplateOrderApproved,
		Required: map[string]FieldKind{"order_id": FieldString, "listing_title": FieldString, "amount_cents": FieldNumber, "currency": FieldString},
	},
	EventOrderShipped: {
		Template: TemplateOrderShipped,
		Required: map[string]FieldKind{"order_id": FieldString, "listing_title": FieldString, "carrier": FieldString, "tracking_number": FieldString},
	},
	EventAuctionOutbid: {
		Template: TemplateAuctionOutbid,
		Required: map[string]FieldKind{"auction_id": FieldString, "listing_title": FieldString, "current_bid_cents": FieldNumber},
	},
	EventAuctionEndingSoon: {
		Template: TemplateAuctionEndingSoon,
		Required: map[string]FieldKind{"auction_id": FieldString, "listing_title": FieldString, "ends_at": FieldString},
	},
	EventSavedSearchMatch: {
		Template: TemplateSavedSearchMatch,
		Required: map[string]FieldKind{"search_id": FieldString, "query": FieldString, "match_count": FieldNumber},
	},
	EventPayoutSent: {
		Template: TemplatePayoutSent,
		Required: map[string]FieldKind{"payout_id": FieldString, "amount_cents": FieldNumber, "currency": FieldString},
	},
}

// KnownEventTypes returns every registered event type, sorted, for error
// messages and admin tooling.
func KnownEventTypes() []EventType {
	out := make([]EventType, 0, len(eventRegistry))
	for t := range eventRegistry {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// TemplateFor returns the template tag registered for the event type.
func TemplateFor(t EventType) (TemplateTag, error) {
	spec, ok := eventRegistry[t]
	if !ok {
		return "", NewAppError(ErrCodeValidationUnknownEventType, fmt.Sprintf("unknown event type %q", t), nil)
	}
	return spec.Template, nil
}

// ValidatePayload checks the payload against the schema registered for the
// event type. Unknown types and missing or mistyped required fields are
// validation errors; they surface synchronously to the producer.
func ValidatePayload(t EventType, p Payload) error {
	spec, ok := eventRegistry[t]
	if !ok {
		return NewAppError(ErrCodeValidationUnknownEventType, fmt.Sprintf("unknown event type %q", t), nil)
	}
	for field, kind := range spec.Required {
		v, present := p[field]
		if !present {
			return NewAppError(ErrCodeValidationPayloadSchema,
				fmt.Sprintf("payload for %s missing required field %q", t, field), nil)
		}
		if !matchesKind(v, kind) {
			return NewAppError(ErrCodeValidationPayloadSchema,
				fmt.Sprintf("payload field %q for %s has wrong type", field, t), nil)
		}
	}
	return nil
}

func matchesKind(v any, kind FieldKind) bool {
	switch kind {
	case FieldString:
		s, ok := v.(string)
		return ok && s != ""
	case FieldNumber:
		switch v.(type) {
		case float64, int, int64:
			return true
		}
		return false
	case FieldBool:
		_, ok := v.(bool)
		return ok
	}
	return false
}
