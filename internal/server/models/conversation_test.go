package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDirectKey_OrderIndependent(t *testing.T) {
	assert.Equal(t, DirectKey("a", "b", ""), DirectKey("b", "a", ""))
	assert.Equal(t, "a:b", DirectKey("b", "a", ""))
	assert.Equal(t, "a:b:job-1", DirectKey("b", "a", "job-1"))
	assert.NotEqual(t, DirectKey("a", "b", ""), DirectKey("a", "b", "job-1"))
}

func TestConversation_Participants(t *testing.T) {
	c := &Conversation{Participants: []string{"u1", "u2"}}

	assert.True(t, c.HasParticipant("u1"))
	assert.False(t, c.HasParticipant("u3"))
	assert.Equal(t, []string{"u2"}, c.OtherParticipants("u1"))
	assert.Equal(t, []string{"u1", "u2"}, c.OtherParticipants("u3"))
}

func TestCanonicalID(t *testing.T) {
	const want = "0a4fe16f-4c2b-4b7e-9a57-3c1d2e6f7a80"

	for _, in := range []string{
		want,
		"0A4FE16F-4C2B-4B7E-9A57-3C1D2E6F7A80",
		"{0a4fe16f-4c2b-4b7e-9a57-3c1d2e6f7a80}",
		"urn:uuid:0a4fe16f-4c2b-4b7e-9a57-3c1d2e6f7a80",
		"0a4fe16f4c2b4b7e9a573c1d2e6f7a80",
	} {
		got, ok := CanonicalID(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{"", "nobody", "0a4fe16f-4c2b"} {
		_, ok := CanonicalID(in)
		assert.False(t, ok, in)
	}
}
