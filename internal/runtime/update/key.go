package update

import (
	"strconv"

	"github.com/mymmrac/telego"
)

// Key is the ordering scope of an update. Events sharing a conversation are
// processed one at a time in arrival order; the actor narrows state scoping.
type Key struct {
	ConversationID  int64
	HasConversation bool
	ActorID         int64
	HasActor        bool
}

func conversation(id int64) Key {
	return Key{ConversationID: id, HasConversation: true}
}

func (k Key) withActor(id int64) Key {
	k.ActorID = id
	k.HasActor = true
	return k
}

func actorOnly(id int64) Key {
	return Key{}.withActor(id)
}

func (k Key) String() string {
	conv, actor := "-", "-"
	if k.HasConversation {
		conv = strconv.FormatInt(k.ConversationID, 10)
	}
	if k.HasActor {
		actor = strconv.FormatInt(k.ActorID, 10)
	}
	return "conversation=" + conv + " actor=" + actor
}

// ExtractKey maps an update onto its (conversation, actor) pair.
//
//	message, edited message, callback query, chat member updates, join requests: both
//	inline query, chosen inline result, shipping, pre-checkout, poll answer: actor only
//	channel post, edited channel post: conversation only
//	poll: neither
//
// A callback query from an inline message carries no chat and therefore
// has no conversation.
func ExtractKey(u telego.Update) Key {
	switch Classify(u) {
	case KindMessage:
		return messageKey(u.Message)
	case KindEditedMessage:
		return messageKey(u.EditedMessage)
	case KindChannelPost:
		return conversation(u.ChannelPost.Chat.ID)
	case KindEditedChannelPost:
		return conversation(u.EditedChannelPost.Chat.ID)
	case KindCallbackQuery:
		q := u.CallbackQuery
		if q.Message == nil {
			return actorOnly(q.From.ID)
		}
		return conversation(q.Message.GetChat().ID).withActor(q.From.ID)
	case KindInlineQuery:
		return actorOnly(u.InlineQuery.From.ID)
	case KindChosenInlineResult:
		return actorOnly(u.ChosenInlineResult.From.ID)
	case KindShippingQuery:
		return actorOnly(u.ShippingQuery.From.ID)
	case KindPreCheckoutQuery:
		return actorOnly(u.PreCheckoutQuery.From.ID)
	case KindPollAnswer:
		if u.PollAnswer.User == nil {
			return Key{}
		}
		return actorOnly(u.PollAnswer.User.ID)
	case KindMyChatMember:
		return conversation(u.MyChatMember.Chat.ID).withActor(u.MyChatMember.From.ID)
	case KindChatMember:
		return conversation(u.ChatMember.Chat.ID).withActor(u.ChatMember.From.ID)
	case KindChatJoinRequest:
		return conversation(u.ChatJoinRequest.Chat.ID).withActor(u.ChatJoinRequest.From.ID)
	default:
		return Key{}
	}
}

func messageKey(m *telego.Message) Key {
	key := conversation(m.Chat.ID)
	if m.From != nil {
		key = key.withActor(m.From.ID)
	}
	return key
}
