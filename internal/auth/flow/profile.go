package flow

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pysugar/oauth-service-hub/internal/auth/callback"
)

type githubProfile struct {
	ID    callback.ID `json:"id"`
	Login string      `json:"login"`
	Name  string      `json:"name"`
	Email string      `json:"email"`
}

type twitterProfile struct {
	Data struct {
		ID       callback.ID `json:"id"`
		Username string      `json:"username"`
		Name     string      `json:"name"`
	} `json:"data"`
}

type launchpadProfile struct {
	Identity *struct {
		ID           callback.ID `json:"id"`
		FirstName    string      `json:"first_name"`
		LastName     string      `json:"last_name"`
		EmailAddress string      `json:"email_address"`
	} `json:"identity"`
	Accounts []callback.Account `json:"accounts"`
}

type genericProfile struct {
	ID       callback.ID `json:"id"`
	Nickname string      `json:"nickname"`
	Login    string      `json:"login"`
	Username string      `json:"username"`
	Name     string      `json:"name"`
	Email    string      `json:"email"`
}

// decodeProfile turns a provider's profile document into a payload carrying
// the uid, info and extra sections.
func decodeProfile(kind callback.Kind, body []byte) (callback.Payload, error) {
	var p callback.Payload

	switch kind {
	case callback.KindGitHub:
		var doc githubProfile
		if err := json.Unmarshal(body, &doc); err != nil {
			return p, fmt.Errorf("%w: %v", callback.ErrMalformedPayload, err)
		}
		p.UID = doc.ID
		p.Info = &callback.Info{Nickname: doc.Login, Name: doc.Name, Email: doc.Email}

	case callback.KindTwitter:
		var doc twitterProfile
		if err := json.Unmarshal(body, &doc); err != nil {
			return p, fmt.Errorf("%w: %v", callback.ErrMalformedPayload, err)
		}
		p.UID = doc.Data.ID
		p.Info = &callback.Info{Nickname: doc.Data.Username, Name: doc.Data.Name}

	case callback.KindThirtySevenSignals:
		var doc launchpadProfile
		if err := json.Unmarshal(body, &doc); err != nil {
			return p, fmt.Errorf("%w: %v", callback.ErrMalformedPayload, err)
		}
		if doc.Identity == nil {
			return p, fmt.Errorf("%w: authorization has no identity", callback.ErrMalformedPayload)
		}
		p.UID = doc.Identity.ID
		p.Info = &callback.Info{
			Name:  strings.TrimSpace(doc.Identity.FirstName + " " + doc.Identity.LastName),
			Email: doc.Identity.EmailAddress,
		}
		p.Extra = &callback.Extra{Accounts: doc.Accounts}

	default:
		var doc genericProfile
		if err := json.Unmarshal(body, &doc); err != nil {
			return p, fmt.Errorf("%w: %v", callback.ErrMalformedPayload, err)
		}
		nickname := doc.Nickname
		for _, alt := range []string{doc.Login, doc.Username} {
			if nickname == "" {
				nickname = alt
			}
		}
		p.UID = doc.ID
		p.Info = &callback.Info{Nickname: nickname, Name: doc.Name, Email: doc.Email}
	}

	if p.UID == "" {
		return p, fmt.Errorf("%w: %s profile has no id", callback.ErrMalformedPayload, kind)
	}
	return p, nil
}
