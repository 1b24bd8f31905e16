package main

import (
	"fmt"
	"time"

	"livehub/internal/core/domain"
	"livehub/internal/core/services"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration with secrets redacted",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out, err := cfg.Marshal()
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), string(out))
		return nil
	},
}

var (
	tokenUsername string
	tokenRole     string
	tokenTTL      time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a signed staff token for the identify frame or the admin API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		role := domain.UserRole(tokenRole)
		if !role.Valid() {
			return fmt.Errorf("unknown role %q", tokenRole)
		}
		ttl := cfg.Auth.TokenTTL
		if tokenTTL > 0 {
			ttl = tokenTTL
		}
		token, err := services.NewAuthService(cfg.Auth.JWTSecret, ttl).GenerateToken(tokenUsername, role)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVarP(&tokenUsername, "username", "u", "", "staff username")
	tokenCmd.Flags().StringVarP(&tokenRole, "role", "r", string(domain.RoleModerator), "moderator, admin or owner")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime, defaults to auth.token_ttl")
	_ = tokenCmd.MarkFlagRequired("username")
}
