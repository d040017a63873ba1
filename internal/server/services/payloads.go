package services

import (
	"time"

	"github.com/dmitrijs2005/carenest/internal/server/models"
)

// Wire shapes shared by the REST, gRPC and socket transports.

type AttachmentPayload struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
	URL      string `json:"url,omitempty"`
}

type MessagePayload struct {
	ID             string              `json:"id"`
	ConversationID string              `json:"conversationId"`
	SenderID       string              `json:"senderId"`
	Text           string              `json:"text"`
	Attachments    []AttachmentPayload `json:"attachments"`
	DeliveryState  string              `json:"deliveryState"`
	Read           bool                `json:"read"`
	ReadAt         *time.Time          `json:"readAt,omitempty"`
	CreatedAt      time.Time           `json:"createdAt"`
}

type ConversationPayload struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	JobID         string    `json:"jobId,omitempty"`
	Participants  []string  `json:"participants"`
	LastMessageID string    `json:"lastMessageId,omitempty"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type ReadPayload struct {
	ConversationID string    `json:"conversationId"`
	ReaderID       string    `json:"readerId"`
	MarkedCount    int64     `json:"markedCount"`
	ReadAt         time.Time `json:"readAt"`
}

type DeletedPayload struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
}

func NewMessagePayload(m *models.Message) MessagePayload {
	p := MessagePayload{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Text:           m.Text,
		Attachments:    make([]AttachmentPayload, 0, len(m.Attachments)),
		DeliveryState:  string(m.DeliveryState),
		Read:           m.Read,
		ReadAt:         m.ReadAt,
		CreatedAt:      m.CreatedAt,
	}
	for _, a := range m.Attachments {
		p.Attachments = append(p.Attachments, AttachmentPayload{
			ID: a.ID, Name: a.Name, MimeType: a.MimeType, Size: a.Size, URL: a.URL,
		})
	}
	return p
}

func NewMessagePayloads(ms []*models.Message) []MessagePayload {
	out := make([]MessagePayload, 0, len(ms))
	for _, m := range ms {
		out = append(out, NewMessagePayload(m))
	}
	return out
}

func NewConversationPayload(c *models.Conversation) ConversationPayload {
	participants := c.Participants
	if participants == nil {
		participants = []string{}
	}
	return ConversationPayload{
		ID:            c.ID,
		Type:          string(c.Type),
		JobID:         c.JobID,
		Participants:  participants,
		LastMessageID: c.LastMessageID,
		UpdatedAt:     c.UpdatedAt,
	}
}
