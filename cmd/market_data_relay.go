/*
Copyright © 2026 Michael Putera Wardana <michaelputeraw@gmail.com>
*/
package cmd

import (
	"github.com/krobus00/market-stream-service/internal/bootstrap"
	"github.com/spf13/cobra"
)

// marketDataRelayCmd represents the marketDataRelay command
var marketDataRelayCmd = &cobra.Command{
	Use:   "market-data-relay",
	Short: "Start the Market Data Relay service",
	Long: `The Market Data Relay is the cloud side of the pipeline. It accepts
tick and bar pushes from edge forwarders on an HTTP gateway, keeps the
latest market state in memory, and fans events out to websocket viewers
with an initial-state snapshot on connect.`,
	Run: bootstrap.StartMarketDataRelay,
}

func init() {
	rootCmd.AddCommand(marketDataRelayCmd)
}
