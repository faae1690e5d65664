package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

var simulatePrayer string

var simulateCmd = &cobra.Command{
	Use:   "simulate-notification",
	Short: "模拟一次祈祷提醒并通过已配置的通道发送",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulatePrayer == "" {
			return errors.New("--prayer 不能为空")
		}
		_, err := getApp().SimulateNotification(cmd.Context(), simulatePrayer)
		return err
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulatePrayer, "prayer", "Maghrib", "祈祷名称: Fajr, Dhuhr, Asr, Maghrib, Isha")
}
