package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tyemirov/postbot/internal/authflow"
	"github.com/tyemirov/postbot/internal/content"
	"github.com/tyemirov/postbot/internal/platform"
	"github.com/tyemirov/postbot/pkg/triggertoken"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "postbot",
		Short:             "Posts AI-generated updates to X using OAuth2 PKCE with rotating refresh tokens",
		SilenceUsage:      true,
		PersistentPreRunE: loadEnvFile,
	}

	flags := rootCmd.PersistentFlags()
	flags.String("env_file", ".env", "dotenv file loaded before reading configuration; missing files are ignored")
	flags.String("client_id", "", "OAuth2 client ID of the X app")
	flags.String("client_secret", "", "OAuth2 client secret of the X app")
	flags.String("oauth_auth_url", authflow.DefaultAuthURL, "OAuth2 authorization endpoint")
	flags.String("oauth_token_url", authflow.DefaultTokenURL, "OAuth2 token endpoint")
	flags.String("platform_base_url", platform.DefaultBaseURL, "X API base URL")
	flags.String("credential_store_url", "", "Credential store (file://, sqlite://, postgres://, pgx://, redis://, keyring://; empty for in-memory)")
	flags.Duration("upstream_timeout", 30*time.Second, "Timeout for each upstream HTTP call; 0 disables it")
	flags.String("generator_provider", content.ProviderGemini, "Text generation provider (gemini or openai)")
	flags.String("generator_api_key", "", "API key of the text generation provider")
	flags.String("generator_model", "", "Model name; empty selects the provider default")
	flags.String("generator_base_url", "", "Override of the generation API base URL")
	flags.String("prompt", content.DefaultPrompt, "Prompt sent to the generator")
	flags.String("trigger_signing_key", "", "HS256 key for trigger tokens; also enables trigger auth on /post")
	flags.String("trigger_audience", triggertoken.DefaultAudience, "Audience of trigger tokens and Google OIDC tokens")

	for _, key := range []string{
		"env_file",
		"client_id",
		"client_secret",
		"oauth_auth_url",
		"oauth_token_url",
		"platform_base_url",
		"credential_store_url",
		"upstream_timeout",
		"generator_provider",
		"generator_api_key",
		"generator_model",
		"generator_base_url",
		"prompt",
		"trigger_signing_key",
		"trigger_audience",
	} {
		_ = viper.BindPFlag(key, flags.Lookup(key))
	}

	viper.SetEnvPrefix("POSTBOT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(newServeCommand(), newPostCommand(), newMintTriggerTokenCommand())
	return rootCmd
}

func loadEnvFile(command *cobra.Command, arguments []string) error {
	envFile := strings.TrimSpace(viper.GetString("env_file"))
	if envFile == "" {
		return nil
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return configError(configCodeEnvFile, fmt.Sprintf("env_file %s could not be loaded: %v", envFile, err))
	}
	return nil
}
