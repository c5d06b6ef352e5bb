package bot

import "context"

// Event is one inbound chat interaction, either a text message or an
// inline button press.
type Event struct {
	UserID    int64
	ChatID    int64
	MessageID int
	// Text carries a command or free-form input; empty for button presses.
	Text string
	// Callback carries the pressed button's data; empty for messages.
	Callback string
	// CallbackID acknowledges the button press on the transport side.
	CallbackID string
}

func (e Event) IsCallback() bool { return e.Callback != "" }

// Button is one inline keyboard cell.
type Button struct {
	Label string
	Data  string
}

// Reply is what a handler wants delivered back to the chat. Text is
// HTML-formatted.
type Reply struct {
	Text     string
	Keyboard [][]Button
	// ForceReply asks the chat client to open a reply prompt, used when
	// the flow needs the user's next message.
	ForceReply bool
}

// Transport delivers replies. The Telegram implementation lives in the
// telegram package; tests substitute an in-memory one.
type Transport interface {
	Send(ctx context.Context, chatID int64, r Reply) error
	// Edit rewrites a previously sent message in place, used when
	// answering inline button presses.
	Edit(ctx context.Context, chatID int64, messageID int, r Reply) error
	// AckCallback stops the client's button spinner.
	AckCallback(ctx context.Context, callbackID string) error
}
