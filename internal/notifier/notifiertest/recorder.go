package notifiertest

import (
	"context"
	"strings"
	"sync"

	"github.com/VladKvetkin/keyflow/internal/notifier"
)

type Sent struct {
	RecipientID int64
	Message     notifier.Message
}

// Recorder keeps every message it is asked to deliver. Recipients listed in
// Fail get notifier.ErrUnreachable instead.
type Recorder struct {
	mu   sync.Mutex
	sent []Sent
	Fail map[int64]bool
}

func New() *Recorder {
	return &Recorder{Fail: make(map[int64]bool)}
}

func (r *Recorder) Notify(_ context.Context, recipientID int64, message notifier.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Fail[recipientID] {
		return notifier.ErrUnreachable
	}

	r.sent = append(r.sent, Sent{RecipientID: recipientID, Message: message})

	return nil
}

func (r *Recorder) SetFail(recipientID int64, fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Fail[recipientID] = fail
}

func (r *Recorder) Sent() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]Sent(nil), r.sent...)
}

func (r *Recorder) To(recipientID int64) []notifier.Message {
	var messages []notifier.Message
	for _, sent := range r.Sent() {
		if sent.RecipientID == recipientID {
			messages = append(messages, sent.Message)
		}
	}

	return messages
}

// Containing returns messages to recipientID whose text contains substr.
func (r *Recorder) Containing(recipientID int64, substr string) []notifier.Message {
	var messages []notifier.Message
	for _, message := range r.To(recipientID) {
		if strings.Contains(message.Text, substr) {
			messages = append(messages, message)
		}
	}

	return messages
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sent = nil
}
