package catalog

// DefaultProviders returns the providers known without a registry file.
func DefaultProviders() []ProviderConfig {
	return []ProviderConfig{
		{
			ID:           "twitter",
			Site:         "https://api.twitter.com",
			AuthorizeURL: "https://twitter.com/i/oauth2/authorize",
			TokenURL:     "/2/oauth2/token",
			ProfileURL:   "/2/users/me",
			Scopes:       []string{"tweet.read", "users.read", "offline.access"},
		},
		{
			ID:           "github",
			Site:         "https://api.github.com",
			AuthorizeURL: "https://github.com/login/oauth/authorize",
			TokenURL:     "https://github.com/login/oauth/access_token",
			ProfileURL:   "/user",
			Scopes:       []string{"read:user"},
		},
		{
			ID:           "37signals",
			Site:         "https://launchpad.37signals.com",
			AuthorizeURL: "/authorization/new",
			TokenURL:     "/authorization/token",
			ProfileURL:   "/authorization.json",
		},
	}
}
