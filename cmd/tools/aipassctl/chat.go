package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/scaipass/ai-pass/backend/internal/auth"
)

var chatCmd = &cobra.Command{
	Use:   "chat [message...]",
	Short: "Send one message and print the assistant reply",
	Long: `Send one message to a session and print the assistant reply.

A new session is created unless --session is given.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runChat,
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List the caller's sessions",
	RunE:  runSessions,
}

func init() {
	chatCmd.Flags().String("session", "", "existing session id")
	chatCmd.Flags().StringP("user", "u", "dev-user", "user id for the minted token")
	chatCmd.Flags().Duration("timeout", 2*time.Minute, "request timeout")
	sessionsCmd.Flags().StringP("user", "u", "dev-user", "user id for the minted token")
	rootCmd.AddCommand(chatCmd, sessionsCmd)
}

func clientFor(cmd *cobra.Command) (*Client, error) {
	server, _ := cmd.Flags().GetString("server")
	token, _ := cmd.Flags().GetString("token")
	if token == "" {
		userID, _ := cmd.Flags().GetString("user")
		minted, err := mintToken(userID, "", auth.RoleUser)
		if err != nil {
			return nil, err
		}
		token = minted
	}
	return NewClient(server, token), nil
}

func runChat(cmd *cobra.Command, args []string) error {
	client, err := clientFor(cmd)
	if err != nil {
		return err
	}
	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	sessionID, _ := cmd.Flags().GetString("session")
	if sessionID == "" {
		session, err := client.CreateSession(ctx)
		if err != nil {
			return err
		}
		sessionID = session.ID
		fmt.Fprintf(cmd.ErrOrStderr(), "session %s\n", sessionID)
	}

	result, err := client.Send(ctx, sessionID, strings.Join(args, " "))
	if err != nil {
		return err
	}
	if result.Outcome != "success" {
		fmt.Fprintf(cmd.ErrOrStderr(), "outcome: %s\n", result.Outcome)
	}
	fmt.Fprintln(cmd.OutOrStdout(), result.Assistant.Text)
	return nil
}

func runSessions(cmd *cobra.Command, _ []string) error {
	client, err := clientFor(cmd)
	if err != nil {
		return err
	}
	sessions, err := client.Sessions(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, s := range sessions {
		fmt.Fprintf(out, "%s\t%s\t%s\n", s.ID, s.UpdatedAt.Format(time.RFC3339), s.Title)
	}
	return nil
}
