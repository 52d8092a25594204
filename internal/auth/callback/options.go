package callback

import (
	"strconv"
	"strings"
)

// Kind selects how a provider's payload is interpreted.
type Kind int

const (
	KindGeneric Kind = iota
	KindTwitter
	KindGitHub
	KindThirtySevenSignals
)

var kindsByName = map[string]Kind{
	"twitter":   KindTwitter,
	"github":    KindGitHub,
	"37signals": KindThirtySevenSignals,
}

// KindOf maps a provider name to its kind; unknown providers are generic.
func KindOf(provider string) Kind {
	if k, ok := kindsByName[strings.ToLower(strings.TrimSpace(provider))]; ok {
		return k
	}
	return KindGeneric
}

func (k Kind) String() string {
	switch k {
	case KindTwitter:
		return "twitter"
	case KindGitHub:
		return "github"
	case KindThirtySevenSignals:
		return "37signals"
	default:
		return "generic"
	}
}

// Options is the provider-specific metadata stored on a service.
type Options struct {
	Name   string
	UserID *int64 // 37signals account id
}

// Map renders the options for storage. The account id is kept as a decimal
// string so it survives the JSON column without float64 rounding.
func (o Options) Map() map[string]any {
	m := map[string]any{"name": o.Name}
	if o.UserID != nil {
		m["user_id"] = strconv.FormatInt(*o.UserID, 10)
	}
	return m
}

// ProviderSpecificOptions extracts the display name and provider account
// details from p.
func ProviderSpecificOptions(p Payload) (Options, error) {
	if p.Info == nil {
		return Options{}, malformed("%s payload has no info", p.Provider)
	}

	switch KindOf(p.Provider) {
	case KindThirtySevenSignals:
		if p.Extra == nil || len(p.Extra.Accounts) == 0 {
			return Options{}, malformed("37signals payload has no extra.accounts")
		}
		id := p.Extra.Accounts[0].ID
		return Options{UserID: &id, Name: p.Info.Name}, nil
	default:
		// twitter, github and generic providers are named by nickname
		return Options{Name: p.Info.Nickname}, nil
	}
}
