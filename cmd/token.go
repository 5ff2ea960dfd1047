package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/psds-microservice/agri-support-service/internal/auth"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token <username>",
	Short: "Mint a bearer token for local testing",
	Args:  cobra.ExactArgs(1),
	RunE:  runToken,
}

var tokenTTL time.Duration

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (default AUTH_TOKEN_TTL)")
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Auth.JWTSecret == "" {
		return errors.New("token: AUTH_JWT_SECRET is not set")
	}
	ttl := tokenTTL
	if ttl == 0 {
		ttl = cfg.Auth.TokenTTL
	}
	token, err := auth.IssueToken(cfg.Auth.JWTSecret, args[0], ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
