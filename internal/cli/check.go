package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var checkAt string

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run the prayer check once and dispatch any due notification",
	RunE: func(cmd *cobra.Command, args []string) error {
		var at *time.Time
		if checkAt != "" {
			t, err := time.Parse(time.RFC3339, checkAt)
			if err != nil {
				return fmt.Errorf("invalid --at value: %w", err)
			}
			at = &t
		}
		_, err := getApp().Check(cmd.Context(), at)
		return err
	},
}

func init() {
	checkCmd.Flags().StringVar(&checkAt, "at", "", "Evaluate at this instant instead of now (RFC3339)")
}
