package update

import "github.com/mymmrac/telego"

// Kind tags the populated field of a Telegram update.
type Kind string

const (
	KindUnknown            Kind = "unknown"
	KindMessage            Kind = "message"
	KindEditedMessage      Kind = "edited_message"
	KindChannelPost        Kind = "channel_post"
	KindEditedChannelPost  Kind = "edited_channel_post"
	KindCallbackQuery      Kind = "callback_query"
	KindInlineQuery        Kind = "inline_query"
	KindChosenInlineResult Kind = "chosen_inline_result"
	KindShippingQuery      Kind = "shipping_query"
	KindPreCheckoutQuery   Kind = "pre_checkout_query"
	KindPoll               Kind = "poll"
	KindPollAnswer         Kind = "poll_answer"
	KindMyChatMember       Kind = "my_chat_member"
	KindChatMember         Kind = "chat_member"
	KindChatJoinRequest    Kind = "chat_join_request"
)

// Kinds lists every kind the dispatcher routes, in Telegram's field order.
var Kinds = []Kind{
	KindMessage,
	KindEditedMessage,
	KindChannelPost,
	KindEditedChannelPost,
	KindCallbackQuery,
	KindInlineQuery,
	KindChosenInlineResult,
	KindShippingQuery,
	KindPreCheckoutQuery,
	KindPoll,
	KindPollAnswer,
	KindMyChatMember,
	KindChatMember,
	KindChatJoinRequest,
}

// Valid reports whether k is one of the routed kinds.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

func (k Kind) String() string { return string(k) }

// Classify returns the kind of the first populated field of u, or
// KindUnknown for updates the dispatcher does not route (business messages,
// reactions, boosts).
func Classify(u telego.Update) Kind {
	switch {
	case u.Message != nil:
		return KindMessage
	case u.EditedMessage != nil:
		return KindEditedMessage
	case u.ChannelPost != nil:
		return KindChannelPost
	case u.EditedChannelPost != nil:
		return KindEditedChannelPost
	case u.CallbackQuery != nil:
		return KindCallbackQuery
	case u.InlineQuery != nil:
		return KindInlineQuery
	case u.ChosenInlineResult != nil:
		return KindChosenInlineResult
	case u.ShippingQuery != nil:
		return KindShippingQuery
	case u.PreCheckoutQuery != nil:
		return KindPreCheckoutQuery
	case u.Poll != nil:
		return KindPoll
	case u.PollAnswer != nil:
		return KindPollAnswer
	case u.MyChatMember != nil:
		return KindMyChatMember
	case u.ChatMember != nil:
		return KindChatMember
	case u.ChatJoinRequest != nil:
		return KindChatJoinRequest
	default:
		return KindUnknown
	}
}
