package mail

import (
	"github.com/ksm-android/resultmail/pkg/recipients"
)

// Message is built per recipient and dropped after transmission.
type Message struct {
	Subject  string
	From     string
	FromName string
	To       string
	HTMLBody string
	// TextBody is the text/plain alternative sent ahead of the HTML part.
	TextBody string
}

// NewMessage addresses an already rendered body to rcpt.
func NewMessage(from, fromName string, rcpt recipients.Recipient, body Body) Message {
	return Message{
		Subject:  Subject,
		From:     from,
		FromName: fromName,
		To:       rcpt.Email(),
		HTMLBody: body.HTML,
		TextBody: body.Text,
	}
}

// Result is the outcome of one transmission. Err is set iff OK is false.
type Result struct {
	OK  bool
	Err error
}

// Delivered reports a message the relay accepted.
func Delivered() Result {
	return Result{OK: true}
}

// Failed reports a message that was not delivered because of err.
func Failed(err error) Result {
	return Result{Err: err}
}
