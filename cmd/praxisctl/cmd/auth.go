package cmd

import (
	"bufio"
	"fmt"
	"net/http"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/praxima-health/praxis/cmd/praxisctl/client"
	"github.com/praxima-health/praxis/cmd/praxisctl/config"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage authentication for praxisctl",
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to the praxis server and save the session token",
	RunE: func(cmd *cobra.Command, args []string) error {
		reader := bufio.NewReader(os.Stdin)
		fmt.Print("Enter email: ")
		email, _ := reader.ReadString('\n')
		email = strings.TrimSpace(email)

		fmt.Print("Enter password: ")
		bytePassword, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}

		// Login goes out without the stored token.
		c := client.New(config.CLIConfig{ServerEndpoint: config.Current.ServerEndpoint})
		var result struct {
			Token       string `json:"token"`
			AccountID   string `json:"account_id"`
			AccountType string `json:"account_type"`
			DisplayName string `json:"display_name"`
		}
		err = c.Do(cmd.Context(), http.MethodPost, "/auth/login", map[string]string{
			"email":    email,
			"password": string(bytePassword),
		}, &result)
		if err != nil {
			return err
		}

		config.Current.AuthToken = result.Token
		if err := config.Save(); err != nil {
			return fmt.Errorf("logged in, but failed to save token: %w", err)
		}
		fmt.Printf("Logged in as %s (%s).\n", result.DisplayName, result.AccountType)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Revoke the current session and forget the token",
	RunE: func(cmd *cobra.Command, args []string) error {
		if config.Current.AuthToken == "" {
			fmt.Println("Not logged in.")
			return nil
		}
		c := client.New(config.Current)
		if err := c.Do(cmd.Context(), http.MethodPost, "/auth/logout", nil, nil); err != nil {
			fmt.Fprintln(os.Stderr, "Warning: server-side logout failed:", err)
		}
		config.Current.AuthToken = ""
		if err := config.Save(); err != nil {
			return err
		}
		fmt.Println("Logged out.")
		return nil
	},
}

func init() {
	authCmd.AddCommand(loginCmd, logoutCmd)
	rootCmd.AddCommand(authCmd)
}
