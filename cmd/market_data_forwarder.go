/*
Copyright © 2026 Michael Putera Wardana <michaelputeraw@gmail.com>
*/
package cmd

import (
	"github.com/krobus00/market-stream-service/internal/bootstrap"
	"github.com/spf13/cobra"
)

// marketDataForwarderCmd represents the marketDataForwarder command
var marketDataForwarderCmd = &cobra.Command{
	Use:   "market-data-forwarder",
	Short: "Start the Market Data Forwarder agent",
	Long: `The Market Data Forwarder is the edge side of the pipeline. It drains
the local market stream, deduplicates ticks against per-symbol watermarks,
and pushes events to a remote relay gateway, backing off when the gateway
is unreachable.`,
	Run: bootstrap.StartMarketDataForwarder,
}

func init() {
	rootCmd.AddCommand(marketDataForwarderCmd)
}
