// Package callback turns normalized OAuth callback payloads into Service records.
package callback

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ErrMalformedPayload is returned when a payload lacks fields its provider needs.
var ErrMalformedPayload = errors.New("malformed oauth payload")

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedPayload, fmt.Sprintf(format, args...))
}

// Payload is the normalized result of an OAuth login with a provider.
type Payload struct {
	Provider    string       `json:"provider"`
	UID         ID           `json:"uid"`
	Credentials *Credentials `json:"credentials,omitempty"`
	Info        *Info        `json:"info,omitempty"`
	Extra       *Extra       `json:"extra,omitempty"`
}

// Credentials holds the token material granted by the provider.
type Credentials struct {
	Token        string `json:"token"`
	Secret       string `json:"secret,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresAt    *int64 `json:"expires_at,omitempty"` // unix seconds
}

// Info holds the provider profile of the linked account.
type Info struct {
	Nickname string `json:"nickname,omitempty"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
}

// Extra holds provider-specific raw data.
type Extra struct {
	Accounts []Account `json:"accounts,omitempty"`
}

// Account is one product account reported by the provider (37signals).
type Account struct {
	ID      int64  `json:"id"`
	Name    string `json:"name,omitempty"`
	Product string `json:"product,omitempty"`
	HRef    string `json:"href,omitempty"`
}

// ID is a provider-side identifier. Providers send it as a string or a number;
// either way it is kept as a string.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("uid must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// IDFromInt formats a numeric provider id.
func IDFromInt(n int64) ID {
	return ID(strconv.FormatInt(n, 10))
}
