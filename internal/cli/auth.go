package cli

import (
	"github.com/spf13/cobra"
)

// newAuthCmd manages Kite Connect sessions for configured instances.
func newAuthCmd(app *App) *cobra.Command {
	var instanceID string

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Broker session management",
	}
	cmd.PersistentFlags().StringVar(&instanceID, "instance", "", "instance ID from the [brokers] config section")
	cmd.MarkPersistentFlagRequired("instance")

	cmd.AddCommand(&cobra.Command{
		Use:   "login",
		Short: "Print the OAuth login URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			kb, err := app.kiteBroker(instanceID)
			if err != nil {
				return err
			}
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{"login_url": kb.LoginURL()})
			}
			output.Println("Open this URL and authorize, then run 'terminal auth complete' with the request token:")
			output.Println(kb.LoginURL())
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "complete <request-token>",
		Short: "Exchange the request token for a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kb, err := app.kiteBroker(instanceID)
			if err != nil {
				return err
			}
			output := NewOutput(cmd)
			if err := kb.CompleteLogin(cmd.Context(), args[0]); err != nil {
				output.Error("Login failed: %v", err)
				return err
			}
			output.Success("Session saved for instance %s", instanceID)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "logout",
		Short: "Invalidate the saved session",
		RunE: func(cmd *cobra.Command, args []string) error {
			kb, err := app.kiteBroker(instanceID)
			if err != nil {
				return err
			}
			if err := kb.Logout(cmd.Context()); err != nil {
				return err
			}
			NewOutput(cmd).Success("Session cleared for instance %s", instanceID)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show session status",
		RunE: func(cmd *cobra.Command, args []string) error {
			kb, err := app.kiteBroker(instanceID)
			if err != nil {
				return err
			}
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]bool{"authenticated": kb.IsAuthenticated()})
			}
			if kb.IsAuthenticated() {
				output.Success("Instance %s is authenticated", instanceID)
			} else {
				output.Warn("Instance %s has no active session", instanceID)
			}
			return nil
		},
	})

	return cmd
}
