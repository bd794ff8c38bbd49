package main

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/tyemirov/postbot/internal/authflow"
	"github.com/tyemirov/postbot/internal/content"
)

const (
	configCodeEnvFile                 = "config.env_file"
	configCodeMissingClientID         = "config.missing_client_id"
	configCodeMissingClientSecret     = "config.missing_client_secret"
	configCodeMissingGeneratorAPIKey  = "config.missing_generator_api_key"
	configCodeMissingCallbackURL      = "config.missing_callback_url"
	configCodeInvalidCallbackURL      = "config.invalid_callback_url"
	configCodeMissingRefreshToken     = "config.missing_refresh_token"
	configCodeInvalidUpstreamTimeout  = "config.invalid_upstream_timeout"
	configCodeUnsupportedProvider     = "config.unsupported_generator_provider"
	configCodeMissingTriggerKey       = "config.missing_trigger_signing_key"
	configCodeUninitializedConfig     = "config.uninitialized_config"
	configCodeCredentialStoreInit     = "config.credential_store_init"
	configCodeGeneratorInit           = "config.generator_init"
	configCodeTriggerVerifierInit     = "config.trigger_verifier_init"
	configCodeInvalidCORSOrigins      = "config.invalid_cors_allowed_origins"
	configCodeInvalidTriggerTokenTTL  = "config.invalid_trigger_token_ttl"
	configCodeMissingTriggerTokenSubj = "config.missing_trigger_token_subject"
)

type contextKey string

const (
	serveConfigContextKey contextKey = "serveConfig"
	postConfigContextKey  contextKey = "postConfig"
)

// CommonConfig is shared by every subcommand that talks to X.
type CommonConfig struct {
	Provider           authflow.ProviderConfig
	Generator          content.GeneratorConfig
	Prompt             string
	PlatformBaseURL    string
	CredentialStoreURL string
	UpstreamTimeout    time.Duration
}

// ServeConfig configures the HTTP server.
type ServeConfig struct {
	CommonConfig
	ListenAddr             string
	CORSAllowedOrigins     []string
	TriggerSigningKey      []byte
	TriggerAudience        string
	TriggerServiceAccounts []string
}

// PostConfig configures a single scheduled post.
type PostConfig struct {
	CommonConfig
	RefreshToken string
}

func configError(code, message string) error {
	return fmt.Errorf("%s: %s", code, message)
}

func loadCommonConfig() (CommonConfig, error) {
	clientID := strings.TrimSpace(viper.GetString("client_id"))
	if clientID == "" {
		return CommonConfig{}, configError(configCodeMissingClientID, "client_id must be provided")
	}
	clientSecret := strings.TrimSpace(viper.GetString("client_secret"))
	if clientSecret == "" {
		return CommonConfig{}, configError(configCodeMissingClientSecret, "client_secret must be provided")
	}
	generatorAPIKey := strings.TrimSpace(viper.GetString("generator_api_key"))
	if generatorAPIKey == "" {
		return CommonConfig{}, configError(configCodeMissingGeneratorAPIKey, "generator_api_key must be provided")
	}
	provider := strings.ToLower(strings.TrimSpace(viper.GetString("generator_provider")))
	switch provider {
	case "", content.ProviderGemini, content.ProviderOpenAI:
	default:
		return CommonConfig{}, configError(configCodeUnsupportedProvider, fmt.Sprintf("generator_provider %q is not one of gemini, openai", provider))
	}
	upstreamTimeout := viper.GetDuration("upstream_timeout")
	if upstreamTimeout < 0 {
		return CommonConfig{}, configError(configCodeInvalidUpstreamTimeout, "upstream_timeout must not be negative")
	}

	return CommonConfig{
		Provider: authflow.ProviderConfig{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			AuthURL:      viper.GetString("oauth_auth_url"),
			TokenURL:     viper.GetString("oauth_token_url"),
		},
		Generator: content.GeneratorConfig{
			Provider: provider,
			APIKey:   generatorAPIKey,
			Model:    viper.GetString("generator_model"),
			BaseURL:  viper.GetString("generator_base_url"),
		},
		Prompt:             viper.GetString("prompt"),
		PlatformBaseURL:    viper.GetString("platform_base_url"),
		CredentialStoreURL: strings.TrimSpace(viper.GetString("credential_store_url")),
		UpstreamTimeout:    upstreamTimeout,
	}, nil
}

// LoadServeConfig validates configuration for the serve subcommand.
func LoadServeConfig() (ServeConfig, error) {
	common, err := loadCommonConfig()
	if err != nil {
		return ServeConfig{}, err
	}
	callbackURL := strings.TrimSpace(viper.GetString("callback_url"))
	if callbackURL == "" {
		return ServeConfig{}, configError(configCodeMissingCallbackURL, "callback_url must be provided")
	}
	parsed, parseErr := url.Parse(callbackURL)
	if parseErr != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return ServeConfig{}, configError(configCodeInvalidCallbackURL, "callback_url must be an absolute http(s) URL")
	}
	common.Provider.RedirectURL = callbackURL

	return ServeConfig{
		CommonConfig:           common,
		ListenAddr:             viper.GetString("listen_addr"),
		CORSAllowedOrigins:     viper.GetStringSlice("cors_allowed_origins"),
		TriggerSigningKey:      []byte(viper.GetString("trigger_signing_key")),
		TriggerAudience:        viper.GetString("trigger_audience"),
		TriggerServiceAccounts: viper.GetStringSlice("trigger_service_accounts"),
	}, nil
}

// LoadPostConfig validates configuration for the post subcommand. Without a durable
// credential store the refresh token must be supplied directly.
func LoadPostConfig() (PostConfig, error) {
	common, err := loadCommonConfig()
	if err != nil {
		return PostConfig{}, err
	}
	refreshToken := strings.TrimSpace(viper.GetString("refresh_token"))
	if refreshToken == "" && common.CredentialStoreURL == "" {
		return PostConfig{}, configError(configCodeMissingRefreshToken, "refresh_token must be provided when credential_store_url is empty")
	}
	return PostConfig{CommonConfig: common, RefreshToken: refreshToken}, nil
}
