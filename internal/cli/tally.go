package cli

import (
	"github.com/spf13/cobra"
)

var tallyCmd = &cobra.Command{
	Use:   "tally",
	Short: "Show the tally counter",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := getApp().Tally(cmd.Context(), "show")
		return err
	},
}

var tallyIncCmd = &cobra.Command{
	Use:   "inc",
	Short: "Increment the tally counter",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := getApp().Tally(cmd.Context(), "inc")
		return err
	},
}

var tallyResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the tally counter to zero",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := getApp().Tally(cmd.Context(), "reset")
		return err
	},
}

func init() {
	tallyCmd.AddCommand(tallyIncCmd, tallyResetCmd)
}
