package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

var (
	simulatePrevious float64
	simulateCurrent  float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一次价格变动并走真实告警通道",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulatePrevious <= 0 || simulateCurrent <= 0 {
			return errors.New("--previous 与 --current 必须大于 0")
		}
		return getApp().SimulateAlert(cmd.Context(), simulatePrevious, simulateCurrent)
	},
}

func init() {
	simulateCmd.Flags().Float64Var(&simulatePrevious, "previous", 0, "基准价格 (USD)")
	simulateCmd.Flags().Float64Var(&simulateCurrent, "current", 0, "当前价格 (USD)")
}
