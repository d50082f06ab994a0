package push

import (
	"fmt"

	"fairground/internal/types"
)

// RenderedPush holds the notification copy and deep-link data for a publish.
type RenderedPush struct {
	Title string
	Body  string
	Data  map[string]string
}

// pushCopy builds the short-form title and body for a template tag. Push
// copy is terse on purpose; the full context lives behind the deep link.
type pushCopy struct {
	title string
	body  func(data types.Payload) string
}

var copyByTag = map[types.TemplateTag]pushCopy{
	types.TemplateListingApproved: {
		title: "Listing approved",
		body: func(d types.Payload) string {
			return fmt.Sprintf("%q is now live", str(d, "listing_title"))
		},
	},
	types.TemplateListingRejected: {
		title: "Listing needs changes",
		body: func(d types.Payload) string {
			return fmt.Sprintf("%q did not pass review", str(d, "listing_title"))
		},
	},
	types.TemplateOrderApproved: {
		title: "Order confirmed",
		body: func(d types.Payload) string {
			return fmt.Sprintf("Your order for %q is confirmed", str(d, "listing_title"))
		},
	},
	types.TemplateOrderShipped: {
		title: "Order shipped",
		body: func(d types.Payload) string {
			return fmt.Sprintf("%q is on its way", str(d, "listing_title"))
		},
	},
	types.TemplateAuctionOutbid: {
		title: "You've been outbid",
		body: func(d types.Payload) string {
			return fmt.Sprintf("Someone topped your bid on %q", str(d, "listing_title"))
		},
	},
	types.TemplateAuctionEndingSoon: {
		title: "Auction ending soon",
		body: func(d types.Payload) string {
			return fmt.Sprintf("%q closes soon. Last chance to bid", str(d, "listing_title"))
		},
	},
	types.TemplateSavedSearchMatch: {
		title: "New search matches",
		body: func(d types.Payload) string {
			return fmt.Sprintf("%v new listings match %q", d["match_count"], str(d, "query"))
		},
	},
	types.TemplatePayoutSent: {
		title: "Payout sent",
		body: func(d types.Payload) string {
			return "Your payout is on its way to your bank"
		},
	},
}

// renderPush produces the publish content for the given tag. String payload
// fields ride along as data so the app can deep-link from the notification.
func renderPush(tag types.TemplateTag, payload types.Payload) (*RenderedPush, error) {
	c, ok := copyByTag[tag]
	if !ok {
		return nil, types.NewAppError(
			types.ErrCodeValidationUnknownTemplate,
			fmt.Sprintf("no push copy registered for tag %q", tag),
			nil,
		)
	}

	data := map[string]string{"template": string(tag)}
	for key, value := range payload {
		if s, ok := value.(string); ok {
			data[key] = s
		}
	}

	return &RenderedPush{
		Title: c.title,
		Body:  c.body(payload),
		Data:  data,
	}, nil
}

func str(data types.Payload, key string) string {
	s, _ := data[key].(string)
	return s
}
