package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "aipassctl",
	Short: "AI-Pass backend development client",
	Long: `aipassctl mints development tokens and drives chat sessions
against a running AI-Pass backend.

Configuration is read from the environment (and .env when present).`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(loadEnv)

	rootCmd.PersistentFlags().StringP("server", "s", "http://localhost:8080", "backend base URL")
	rootCmd.PersistentFlags().String("token", "", "bearer token (minted from JWT_SECRET when empty)")
}

func loadEnv() {
	// a missing .env is fine, the process environment still applies
	_ = godotenv.Load()
}
