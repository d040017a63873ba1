package common

import "errors"

var (
	authenticationErrors = []error{
		ErrorUnauthorized, ErrTokenMissing, ErrTokenMalformed, ErrTokenExpired,
		ErrTokenInvalidSignature, ErrUserNotFound, ErrExternalUserUnresolved,
		ErrRefreshTokenExpired,
	}
	authorizationErrors = []error{ErrAccessDenied, ErrNotSender}
	notFoundErrors      = []error{ErrorNotFound, ErrConversationNotFound, ErrMessageNotFound, ErrRecipientNotFound}
	validationErrors    = []error{
		ErrEmptyMessage, ErrInvalidTarget, ErrSelfConversation, ErrInvalidAttachment,
		ErrAttachmentsFailed, ErrAttachmentTooLarge, ErrInvalidCredentials, ErrEmailTaken,
	}
)

func isAny(err error, targets []error) bool {
	if err == nil {
		return false
	}
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

// IsAuthentication reports whether err rejects the caller's credentials.
func IsAuthentication(err error) bool { return isAny(err, authenticationErrors) }

// IsAuthorization reports whether err denies an authenticated caller access.
func IsAuthorization(err error) bool { return isAny(err, authorizationErrors) }

// IsNotFound reports whether err describes an absent resource.
func IsNotFound(err error) bool { return isAny(err, notFoundErrors) }

// IsValidation reports whether err rejects the request payload.
func IsValidation(err error) bool { return isAny(err, validationErrors) }
