package authflow

import "golang.org/x/oauth2"

// Authorization server defaults for X.
const (
	DefaultAuthURL  = "https://twitter.com/i/oauth2/authorize"
	DefaultTokenURL = "https://api.twitter.com/2/oauth2/token"
)

// DefaultScopes grants posting, identity lookup, and a refresh token.
var DefaultScopes = []string{"tweet.read", "tweet.write", "users.read", "offline.access"}

// ProviderConfig describes the OAuth2 client registration.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	RedirectURL  string
	Scopes       []string
}

// OAuth2Config builds the oauth2 configuration, filling defaults for empty fields.
// Confidential clients authenticate to the token endpoint with HTTP basic auth.
func (configuration ProviderConfig) OAuth2Config() *oauth2.Config {
	authURL := configuration.AuthURL
	if authURL == "" {
		authURL = DefaultAuthURL
	}
	tokenURL := configuration.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	scopes := configuration.Scopes
	if len(scopes) == 0 {
		scopes = append([]string(nil), DefaultScopes...)
	}
	return &oauth2.Config{
		ClientID:     configuration.ClientID,
		ClientSecret: configuration.ClientSecret,
		RedirectURL:  configuration.RedirectURL,
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   authURL,
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
}
