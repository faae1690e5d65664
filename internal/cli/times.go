package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	timesDate    string
	scheduleJSON bool
)

var timesCmd = &cobra.Command{
	Use:   "times",
	Short: "Print today's prayer times with Sehri and Iftar",
	RunE: func(cmd *cobra.Command, args []string) error {
		var date *time.Time
		if timesDate != "" {
			a := getApp()
			loc, err := a.Config.TimeLocation()
			if err != nil {
				return err
			}
			d, err := time.ParseInLocation(time.DateOnly, timesDate, loc)
			if err != nil {
				return fmt.Errorf("invalid --date value: %w", err)
			}
			d = d.Add(12 * time.Hour)
			date = &d
		}
		return getApp().Times(cmd.Context(), date)
	},
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Print the Ramadan Sehri/Iftar schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Schedule(cmd.Context(), scheduleJSON)
	},
}

func init() {
	timesCmd.Flags().StringVar(&timesDate, "date", "", "Date to compute (YYYY-MM-DD, defaults to today)")
	scheduleCmd.Flags().BoolVar(&scheduleJSON, "json", false, "Emit JSON instead of a table")
}
