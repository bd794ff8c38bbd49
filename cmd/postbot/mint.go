package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tyemirov/postbot/pkg/triggertoken"
)

func newMintTriggerTokenCommand() *cobra.Command {
	mintCmd := &cobra.Command{
		Use:   "mint-trigger-token",
		Short: "Print an HS256 bearer token accepted by POST /post",
		RunE:  runMintTriggerToken,
	}
	mintCmd.Flags().String("subject", "scheduler", "Subject recorded in the token")
	mintCmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
	return mintCmd
}

func runMintTriggerToken(command *cobra.Command, arguments []string) error {
	signingKey := viper.GetString("trigger_signing_key")
	if signingKey == "" {
		return configError(configCodeMissingTriggerKey, "trigger_signing_key must be provided")
	}
	subject, _ := command.Flags().GetString("subject")
	if strings.TrimSpace(subject) == "" {
		return configError(configCodeMissingTriggerTokenSubj, "subject must be provided")
	}
	ttl, _ := command.Flags().GetDuration("ttl")
	if ttl <= 0 {
		return configError(configCodeInvalidTriggerTokenTTL, "ttl must be greater than zero")
	}

	validator, err := triggertoken.New(triggertoken.Config{
		SigningKey: []byte(signingKey),
		Audience:   viper.GetString("trigger_audience"),
	})
	if err != nil {
		return err
	}
	token, expiresAt, err := validator.Mint(strings.TrimSpace(subject), ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(command.OutOrStdout(), token)
	fmt.Fprintf(command.ErrOrStderr(), "expires_at=%s\n", expiresAt.Format(time.RFC3339))
	return nil
}
