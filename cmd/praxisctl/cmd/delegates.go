package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/praxima-health/praxis/cmd/praxisctl/client"
	"github.com/praxima-health/praxis/cmd/praxisctl/config"
)

var delegatesCmd = &cobra.Command{
	Use:   "delegates",
	Short: "Manage delegate (secretary) accounts",
}

type delegateView struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Active      bool       `json:"active"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

var delegatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the delegates of the logged-in owner",
	RunE: func(cmd *cobra.Command, args []string) error {
		includeInactive, _ := cmd.Flags().GetBool("all")
		c := client.New(config.Current)

		path := "/delegates"
		if includeInactive {
			path += "?include_inactive=true"
		}
		var out struct {
			Delegates []delegateView `json:"delegates"`
		}
		if err := c.Do(cmd.Context(), http.MethodGet, path, nil, &out); err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tEMAIL\tACTIVE")
		for _, d := range out.Delegates {
			fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", d.ID, d.Name, d.Email, d.Active)
		}
		return w.Flush()
	},
}

var delegatesProvisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Create a new delegate account",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		email, _ := cmd.Flags().GetString("email")

		fmt.Print("Enter password for the new delegate: ")
		bytePassword, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}

		c := client.New(config.Current)
		var result struct {
			DelegateID string `json:"delegate_id"`
			Email      string `json:"email"`
		}
		err = c.Do(cmd.Context(), http.MethodPost, "/delegates", map[string]string{
			"name":     name,
			"email":    email,
			"password": string(bytePassword),
		}, &result)
		if err != nil {
			return err
		}
		fmt.Printf("Delegate %s provisioned with ID %s.\n", result.Email, result.DelegateID)
		return nil
	},
}

var delegatesDeactivateCmd = &cobra.Command{
	Use:   "deactivate <delegate-id>",
	Short: "Deactivate a delegate account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(config.Current)
		path := fmt.Sprintf("/delegates/%s/deactivate", url.PathEscape(args[0]))
		if err := c.Do(cmd.Context(), http.MethodPost, path, nil, nil); err != nil {
			return err
		}
		fmt.Println("Delegate deactivated.")
		return nil
	},
}

var delegatesReactivateCmd = &cobra.Command{
	Use:   "reactivate <delegate-id>",
	Short: "Reactivate a deactivated delegate account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(config.Current)
		path := fmt.Sprintf("/delegates/%s/reactivate", url.PathEscape(args[0]))
		if err := c.Do(cmd.Context(), http.MethodPost, path, nil, nil); err != nil {
			return err
		}
		fmt.Println("Delegate reactivated.")
		return nil
	},
}

var delegatesPermissionsCmd = &cobra.Command{
	Use:   "set-permissions <delegate-id>",
	Short: "Replace a delegate's permission map from a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		raw, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read permissions file: %w", err)
		}
		var permissions map[string]map[string]any
		if err := json.Unmarshal(raw, &permissions); err != nil {
			return fmt.Errorf("permissions file is not valid JSON: %w", err)
		}

		c := client.New(config.Current)
		path := fmt.Sprintf("/delegates/%s/permissions", url.PathEscape(args[0]))
		err = c.Do(cmd.Context(), http.MethodPut, path, map[string]any{
			"permissions": permissions,
		}, nil)
		if err != nil {
			return err
		}
		fmt.Println("Permissions updated.")
		return nil
	},
}

func init() {
	delegatesListCmd.Flags().Bool("all", false, "include deactivated delegates")
	delegatesProvisionCmd.Flags().String("name", "", "display name of the new delegate")
	delegatesProvisionCmd.Flags().String("email", "", "email of the new delegate")
	_ = delegatesProvisionCmd.MarkFlagRequired("name")
	_ = delegatesProvisionCmd.MarkFlagRequired("email")
	delegatesPermissionsCmd.Flags().String("file", "", "path to a JSON permissions file")
	_ = delegatesPermissionsCmd.MarkFlagRequired("file")

	delegatesCmd.AddCommand(
		delegatesListCmd,
		delegatesProvisionCmd,
		delegatesDeactivateCmd,
		delegatesReactivateCmd,
		delegatesPermissionsCmd,
	)
	rootCmd.AddCommand(delegatesCmd)
}
