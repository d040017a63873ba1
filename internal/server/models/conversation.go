package models

import (
	"sort"
	"strings"
	"time"
)

type ConversationType string

const (
	ConversationDirect ConversationType = "direct"
	ConversationGroup  ConversationType = "group"
	ConversationJob    ConversationType = "job"
)

// Conversation groups messages between participants. Direct and job-linked
// conversations between two users carry a DirectKey so there is at most one
// of each per unordered pair (per job for job-linked ones).
type Conversation struct {
	ID            string
	Type          ConversationType
	JobID         string
	DirectKey     string
	Participants  []string
	LastMessageID string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasParticipant reports whether userID belongs to the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// OtherParticipants returns every participant except userID.
func (c *Conversation) OtherParticipants(userID string) []string {
	out := make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		if p != userID {
			out = append(out, p)
		}
	}
	return out
}

// DirectKey builds the pair key for two users; argument order does not
// matter. A non-empty jobID scopes the key to that job.
func DirectKey(a, b, jobID string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	key := strings.Join(pair, ":")
	if jobID != "" {
		key += ":" + jobID
	}
	return key
}
