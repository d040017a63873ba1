package models

import "time"

type DeliveryState string

const (
	DeliverySent      DeliveryState = "sent"
	DeliveryDelivered DeliveryState = "delivered"
)

// Message is the authoritative copy of a chat message. Text is never
// edited after creation; Deleted hides it from default reads.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Text           string
	Attachments    []Attachment
	DeliveryState  DeliveryState
	Read           bool
	ReadAt         *time.Time
	Deleted        bool
	CreatedAt      time.Time
}

// Attachment points at an uploaded blob in object storage.
type Attachment struct {
	ID         string
	MessageID  string
	StorageKey string
	Name       string
	MimeType   string
	Size       int64
	// URL is a short-lived download link filled in on the way out.
	URL string
}
