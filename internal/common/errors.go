// Package common defines shared constants and sentinel errors used across
// carenest components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")
	ErrConflict   = errors.New("conflict")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Authentication errors.
	ErrTokenMissing           = errors.New("authentication required")
	ErrTokenMalformed         = errors.New("token malformed")
	ErrTokenExpired           = errors.New("token expired")
	ErrTokenInvalidSignature  = errors.New("token signature invalid")
	ErrUserNotFound           = errors.New("user not found")
	ErrExternalUserUnresolved = errors.New("external user unresolved")
	ErrRefreshTokenExpired    = errors.New("refresh token expired")

	// Authorization errors.
	ErrAccessDenied = errors.New("not a participant in this conversation")
	ErrNotSender    = errors.New("only the sender can delete a message")

	// Lookup errors.
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrRecipientNotFound    = errors.New("recipient not found")

	// Validation errors.
	ErrEmptyMessage       = errors.New("message must have text or attachments")
	ErrInvalidTarget      = errors.New("exactly one of conversationId or recipientId is required")
	ErrSelfConversation   = errors.New("cannot start a conversation with yourself")
	ErrInvalidAttachment  = errors.New("attachment must have data, mimeType and name")
	ErrAttachmentsFailed  = errors.New("no attachment could be stored and the message has no text")
	ErrAttachmentTooLarge = errors.New("attachment exceeds the size limit")
	ErrInvalidCredentials = errors.New("email and password are required")
	ErrEmailTaken         = errors.New("email already registered")
)
