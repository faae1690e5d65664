package cli

import (
	"github.com/spf13/cobra"

	"ramadan-companion/internal/app"
)

var (
	locateLat   float64
	locateLon   float64
	locateClear bool
)

var locateCmd = &cobra.Command{
	Use:   "locate",
	Short: "Refresh the cached location, or override it with --lat/--lon",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.LocateOptions{Clear: locateClear}
		if cmd.Flags().Changed("lat") {
			opts.Latitude = &locateLat
		}
		if cmd.Flags().Changed("lon") {
			opts.Longitude = &locateLon
		}
		return getApp().Locate(cmd.Context(), opts)
	},
}

func init() {
	locateCmd.Flags().Float64Var(&locateLat, "lat", 0, "Latitude in decimal degrees")
	locateCmd.Flags().Float64Var(&locateLon, "lon", 0, "Longitude in decimal degrees")
	locateCmd.Flags().BoolVar(&locateClear, "clear", false, "Forget the cached location")
	locateCmd.MarkFlagsRequiredTogether("lat", "lon")
	locateCmd.MarkFlagsMutuallyExclusive("clear", "lat")
}
