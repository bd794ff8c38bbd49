package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tyemirov/postbot/internal/authflow"
	"github.com/tyemirov/postbot/internal/credstore"
	"github.com/tyemirov/postbot/internal/publisher"
	"go.uber.org/zap"
)

func newPostCommand() *cobra.Command {
	postCmd := &cobra.Command{
		Use:     "post",
		Short:   "Refresh the token, generate, sanitize, and submit one post",
		PreRunE: preparePostConfig,
		RunE:    runPost,
	}

	postCmd.Flags().String("refresh_token", "", "Pre-provisioned refresh token; used when the credential store holds none")
	_ = viper.BindPFlag("refresh_token", postCmd.Flags().Lookup("refresh_token"))

	return postCmd
}

func preparePostConfig(command *cobra.Command, arguments []string) error {
	postConfig, loadErr := LoadPostConfig()
	if loadErr != nil {
		return loadErr
	}
	command.SetContext(context.WithValue(commandContext(command), postConfigContextKey, postConfig))
	return nil
}

// rotationRecorder remembers the newest refresh token even when a later stage fails,
// because the spent one is no longer accepted upstream.
type rotationRecorder struct {
	tokens       publisher.TokenProvider
	refreshToken string
}

func (recorder *rotationRecorder) EnsureFreshToken(ctx context.Context) (*authflow.AuthorizedClient, error) {
	authorized, err := recorder.tokens.EnsureFreshToken(ctx)
	if err == nil && authorized.Token != nil {
		recorder.refreshToken = authorized.Token.RefreshToken
	}
	return authorized, err
}

func runPost(command *cobra.Command, arguments []string) error {
	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	ctx := commandContext(command)
	postConfig, ok := ctx.Value(postConfigContextKey).(PostConfig)
	if !ok {
		return configError(configCodeUninitializedConfig, "post configuration not prepared; PreRunE must execute before RunE")
	}

	store, releaseStore, storeErr := openCredentialStore(ctx, postConfig.CredentialStoreURL)
	if storeErr != nil {
		return fmt.Errorf("%s: %w", configCodeCredentialStoreInit, storeErr)
	}
	defer releaseStore()
	if seedErr := seedRefreshToken(ctx, store, postConfig.RefreshToken, logger); seedErr != nil {
		return seedErr
	}

	upstream := newUpstreamClient(postConfig.UpstreamTimeout)
	generatorConfig := postConfig.Generator
	generatorConfig.HTTPClient = upstream
	generator, generatorErr := buildGenerator(ctx, generatorConfig)
	if generatorErr != nil {
		return fmt.Errorf("%s: %w", configCodeGeneratorInit, generatorErr)
	}

	recorder := &rotationRecorder{
		tokens: authflow.NewRefreshManager(store, postConfig.Provider.OAuth2Config(), upstream, logger, nil),
	}
	postPublisher := publisher.New(recorder, generator, publisher.PlatformPosters(postConfig.PlatformBaseURL), postConfig.Prompt, logger, nil)

	result, publishErr := postPublisher.Publish(ctx)
	output := command.OutOrStdout()
	if recorder.refreshToken != "" {
		if reportErr := reportRotatedToken(output, recorder.refreshToken); reportErr != nil {
			logger.Error("rotated refresh token not exported", zap.String("code", "post.output.failed"), zap.Error(reportErr))
		}
	}
	if publishErr != nil {
		return publishErr
	}
	fmt.Fprintf(output, "posted id=%s text=%q\n", result.Post.ID, result.Text)
	return nil
}

// seedRefreshToken stores the configured refresh token only while the store holds none.
// A stored token is always newer than the configured one, which is spent after the first run.
func seedRefreshToken(ctx context.Context, store credstore.Store, refreshToken string, logger *zap.Logger) error {
	if refreshToken == "" {
		return nil
	}
	record, readErr := store.Read(ctx)
	if readErr != nil {
		return readErr
	}
	if stored, ok := record.TokenPair(); ok {
		if stored.RefreshToken != refreshToken {
			logger.Info("configured refresh token ignored in favour of the stored one", zap.String("code", "post.refresh_token.stored"))
		}
		return nil
	}
	return store.Merge(ctx, credstore.Record{credstore.FieldRefreshToken: refreshToken})
}

// reportRotatedToken prints the new refresh token and appends it to $GITHUB_OUTPUT so a
// workflow can store it for the next run. In GitHub Actions the value is masked first.
func reportRotatedToken(output io.Writer, refreshToken string) error {
	if os.Getenv("GITHUB_ACTIONS") == "true" {
		fmt.Fprintf(output, "::add-mask::%s\n", refreshToken)
	}
	line := "new_refresh_token=" + refreshToken
	fmt.Fprintln(output, line)

	outputPath := strings.TrimSpace(os.Getenv("GITHUB_OUTPUT"))
	if outputPath == "" {
		return nil
	}
	file, openErr := os.OpenFile(outputPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if openErr != nil {
		return openErr
	}
	if _, writeErr := fmt.Fprintln(file, line); writeErr != nil {
		_ = file.Close()
		return writeErr
	}
	return file.Close()
}
