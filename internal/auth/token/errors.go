package token

import (
	"errors"
	"fmt"
)

// ErrMalformedResponse marks a token endpoint reply that can't be used.
var ErrMalformedResponse = errors.New("malformed token response")

// RefreshError reports a failed refresh. The service keeps its old credentials.
type RefreshError struct {
	Provider   string
	ServiceID  uint
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *RefreshError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("refresh %s token for service %d: status %d: %v", e.Provider, e.ServiceID, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("refresh %s token for service %d: %v", e.Provider, e.ServiceID, e.Err)
}

func (e *RefreshError) Unwrap() error { return e.Err }
