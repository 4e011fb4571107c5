package loginclient

import "fmt"

// Kind classifies a handshake failure for UI branching. Terminal token
// kinds mean the flow must restart with a fresh token; they are never
// retried automatically.
type Kind string

const (
	// KindValidation covers malformed tokens and bad request payloads.
	KindValidation Kind = "validation"
	// KindTokenInvalid is the server's "invalid or expired token" reply
	// for a record that no longer exists.
	KindTokenInvalid Kind = "invalid_or_expired_token"
	KindTokenExpired Kind = "token_expired"
	KindTokenUsed    Kind = "token_already_used"
	KindRateLimited  Kind = "rate_limited"
	// KindBrowserOpen means the external bot conversation could not be
	// opened (the desktop analog of a blocked popup). User-actionable.
	KindBrowserOpen Kind = "browser_open"
	// KindTimeout means the polling budget was exhausted.
	KindTimeout Kind = "timeout"
	// KindSessionEstablishment is the severest class: the handshake
	// completed but the local session could not be created, so the user
	// is confirmed in the chat yet not signed in here.
	KindSessionEstablishment Kind = "session_establishment"
	KindCancelled            Kind = "cancelled"
	// KindTransient marks network-level failures the orchestrator
	// swallows and retries. The transport returns them; the state
	// machine never surfaces them before the budget runs out.
	KindTransient Kind = "transient"
	KindInternal  Kind = "internal"
)

// FlowError is a classified handshake failure.
type FlowError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *FlowError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *FlowError) Unwrap() error { return e.Err }

func flowErr(kind Kind, message string, err error) *FlowError {
	return &FlowError{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the classification from err, or KindInternal if err
// is not a FlowError.
func KindOf(err error) Kind {
	if fe, ok := err.(*FlowError); ok {
		return fe.Kind
	}
	return KindInternal
}

// Terminal reports whether the error ends the current token's flow.
// Transient errors are retried; everything else is terminal.
func Terminal(err error) bool {
	return KindOf(err) != KindTransient
}

// UserMessage maps a failure to the single message shown to the user.
func UserMessage(err error) string {
	switch KindOf(err) {
	case KindValidation:
		return "The login token is malformed. Please start over."
	case KindTokenInvalid, KindTokenExpired:
		return "This login link has expired. Please start a new login."
	case KindTokenUsed:
		return "This login was already completed elsewhere. Please start a new login."
	case KindBrowserOpen:
		return "Could not open Telegram. Allow the browser to open links and try again."
	case KindTimeout:
		return "Login timed out waiting for confirmation. Please try again."
	case KindSessionEstablishment:
		return "Login was confirmed but the session could not be created. Retry sign-in or reload the page."
	case KindCancelled:
		return "Login cancelled."
	default:
		return "Something went wrong during login. Please try again."
	}
}
