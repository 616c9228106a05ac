package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scaipass/ai-pass/backend/internal/auth"
	"github.com/scaipass/ai-pass/backend/internal/config"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token signed with JWT_SECRET",
	RunE:  runToken,
}

func init() {
	tokenCmd.Flags().StringP("user", "u", "dev-user", "user id carried in the token")
	tokenCmd.Flags().String("name", "", "display name")
	tokenCmd.Flags().String("role", auth.RoleUser, "role: user or admin")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, _ []string) error {
	userID, _ := cmd.Flags().GetString("user")
	name, _ := cmd.Flags().GetString("name")
	role, _ := cmd.Flags().GetString("role")

	token, err := mintToken(userID, name, role)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

func mintToken(userID, name, role string) (string, error) {
	if role != auth.RoleUser && role != auth.RoleAdmin {
		return "", fmt.Errorf("unknown role %q", role)
	}
	cfg, err := config.Load()
	if err != nil {
		return "", fmt.Errorf("load configuration: %w", err)
	}
	svc := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	return svc.Issue(userID, name, role)
}
