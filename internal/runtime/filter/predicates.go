package filter

import (
	"errors"
	"regexp"
	"slices"
	"strings"

	"github.com/tidwall/gjson"
)

type optionalString struct {
	value string
	ok    bool
}

// Text matches the message text (or media caption) against a set of values.
type Text struct {
	Values     []string
	IgnoreCase bool
}

func (Text) MemoKey() string { return "text" }

func (Text) Extract(in Input) any {
	text, ok := in.Event.Text()
	return optionalString{text, ok}
}

func (p Text) Match(v any) bool {
	text := v.(optionalString)
	if !text.ok {
		return false
	}
	for _, want := range p.Values {
		if text.value == want || (p.IgnoreCase && strings.EqualFold(text.value, want)) {
			return true
		}
	}
	return false
}

func (p Text) String() string { return "text" + formatValues(p.Values) }

// TextPattern matches the message text against a regular expression.
type TextPattern struct {
	Pattern *regexp.Regexp
}

func (TextPattern) MemoKey() string { return "text" }

func (TextPattern) Extract(in Input) any { return Text{}.Extract(in) }

func (p TextPattern) Match(v any) bool {
	text := v.(optionalString)
	return text.ok && p.Pattern.MatchString(text.value)
}

func (p TextPattern) String() string { return "text~" + p.Pattern.String() }

// Command matches a leading bot command by name, without the slash. An
// empty Names matches any command.
type Command struct {
	Names []string
}

type commandValue struct {
	name string
	ok   bool
}

func (Command) Extract(in Input) any {
	name, _, ok := in.Event.Command()
	return commandValue{name: name, ok: ok}
}

func (p Command) Match(v any) bool {
	cmd := v.(commandValue)
	if !cmd.ok {
		return false
	}
	return len(p.Names) == 0 || slices.Contains(p.Names, cmd.name)
}

func (p Command) String() string { return "command" + formatValues(p.Names) }

// ChatType matches the type of the chat an update belongs to ("private",
// "group", "supergroup", "channel").
type ChatType struct {
	Types []string
}

func (ChatType) Extract(in Input) any {
	chatType, ok := in.Event.ChatType()
	return optionalString{chatType, ok}
}

func (p ChatType) Match(v any) bool {
	chatType := v.(optionalString)
	return chatType.ok && slices.Contains(p.Types, chatType.value)
}

func (p ChatType) String() string { return "chat_type" + formatValues(p.Types) }

// CallbackData matches inline keyboard payloads exactly or by prefix.
type CallbackData struct {
	Values []string
	Prefix string
}

func (CallbackData) Extract(in Input) any {
	data, ok := in.Event.CallbackData()
	return optionalString{data, ok}
}

func (p CallbackData) Match(v any) bool {
	data := v.(optionalString)
	if !data.ok {
		return false
	}
	if p.Prefix != "" && strings.HasPrefix(data.value, p.Prefix) {
		return true
	}
	return slices.Contains(p.Values, data.value)
}

func (p CallbackData) String() string {
	if p.Prefix != "" {
		return "callback_data^" + p.Prefix
	}
	return "callback_data" + formatValues(p.Values)
}

// jsonDocument is shared by the gjson predicates so one dispatch encodes the
// update at most once.
type jsonDocument struct{}

func (jsonDocument) MemoKey() string { return "json" }

func (jsonDocument) Extract(in Input) any {
	data, err := in.Event.JSON()
	if err != nil {
		return []byte(nil)
	}
	return data
}

// HasField matches when a gjson path exists in the raw update, for example
// "message.reply_to_message" or "message.photo.#".
type HasField struct {
	jsonDocument
	Path string
}

func (p HasField) Match(v any) bool {
	return gjson.GetBytes(v.([]byte), p.Path).Exists()
}

func (p HasField) String() string { return "has(" + p.Path + ")" }

// FieldEquals matches when the value at a gjson path renders as Value.
type FieldEquals struct {
	jsonDocument
	Path  string
	Value string
}

func (p FieldEquals) Match(v any) bool {
	result := gjson.GetBytes(v.([]byte), p.Path)
	return result.Exists() && result.String() == p.Value
}

func (p FieldEquals) String() string { return p.Path + "==" + p.Value }

// ErrorIs matches error handler input whose error wraps Target. A nil
// Target never matches.
type ErrorIs struct {
	Target error
}

func (ErrorIs) Extract(in Input) any { return in.Err }

func (p ErrorIs) Match(v any) bool {
	err, _ := v.(error)
	return err != nil && errors.Is(err, p.Target)
}

func (p ErrorIs) String() string {
	if p.Target == nil {
		return "error_is(nil)"
	}
	return "error_is(" + p.Target.Error() + ")"
}

// Custom adapts a function into a predicate. Custom predicates with the same
// Name share one memoized result per dispatch, so Name must identify Fn.
type Custom struct {
	Name string
	Fn   func(Input) bool
}

func (p Custom) MemoKey() string { return "custom:" + p.Name }

func (p Custom) Extract(in Input) any { return p.Fn(in) }

func (Custom) Match(v any) bool { return v.(bool) }

func (p Custom) String() string { return p.Name }

func formatValues(values []string) string {
	return "[" + strings.Join(values, ",") + "]"
}
