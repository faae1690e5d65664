package cli

import (
	"github.com/spf13/cobra"
)

var runAPIAddr string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the periodic prayer check (and the HTTP API when enabled)",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := getApp()
		// --api 覆盖配置并启用 HTTP 接口
		if runAPIAddr != "" {
			a.Config.API.Enabled = true
			a.Config.API.Addr = runAPIAddr
		}
		return a.Run(cmd.Context())
	},
}

func init() {
	runCmd.Flags().StringVar(&runAPIAddr, "api", "", "Serve the HTTP API on this address (e.g. :8080)")
}
