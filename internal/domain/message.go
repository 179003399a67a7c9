// internal/domain/message.go
package domain

import "time"

// MessageStatusSent is the only status this service assigns; delivery is
// handled elsewhere.
const MessageStatusSent = "sent"

// Message is a paid message between two accounts.
type Message struct {
	ID           int64     `db:"id" json:"id"`
	SenderID     int64     `db:"sender_id" json:"sender_id"`
	RecipientID  int64     `db:"recipient_id" json:"recipient_id"`
	Content      string    `db:"content" json:"content"`
	Status       string    `db:"status" json:"status"`
	DebitEventID int64     `db:"debit_event_id" json:"debit_event_id"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// NewMessage creates a new Message paid for by debitEventID.
func NewMessage(senderID, recipientID int64, content string, debitEventID int64) *Message {
	return &Message{
		SenderID:     senderID,
		RecipientID:  recipientID,
		Content:      content,
		Status:       MessageStatusSent,
		DebitEventID: debitEventID,
		CreatedAt:    time.Now().UTC(),
	}
}
