/*
Copyright © 2026 Michael Putera Wardana <michaelputeraw@gmail.com>
*/
package cmd

import (
	"context"
	"log"
	"time"

	"github.com/krobus00/market-stream-service/internal/constant"
	"github.com/krobus00/market-stream-service/internal/entity"
	"github.com/krobus00/market-stream-service/internal/util"
	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

// playgroundCmd represents the playground command
var playgroundCmd = &cobra.Command{
	Use:   "playground",
	Short: "Publish sample market events to the local stream",
	Long: `Provisions the market stream on a local NATS server and publishes a
few sample ticks and bars, which is handy for exercising a forwarder
without a live trading terminal.`,
	Run: func(cmd *cobra.Command, args []string) {
		nc, err := nats.Connect("nats://localhost:4222")
		if err != nil {
			log.Fatal(err)
		}
		defer nc.Drain()

		js, err := nc.JetStream()
		if err != nil {
			log.Fatal(err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		streamConfig := &nats.StreamConfig{
			Name:      constant.MarketStreamName,
			Subjects:  []string{constant.MarketStreamSubjectAll},
			Storage:   nats.FileStorage,
			Retention: nats.LimitsPolicy,
			MaxAge:    5 * time.Minute,
			Replicas:  1,
		}

		_, err = js.AddStream(streamConfig, nats.Context(ctx))
		if err != nil {
			// If already exists, update instead
			_, err = js.UpdateStream(streamConfig, nats.Context(ctx))
			if err != nil {
				log.Fatal(err)
			}
		}

		log.Printf("%s stream ready", constant.MarketStreamName)

		now := time.Now().UTC()

		ticks := []entity.TickEvent{
			entity.NewTickEvent("EURUSD", decimal.NewFromFloat(1.17698), decimal.NewFromFloat(1.17702), now),
			entity.NewTickEvent("GBPUSD", decimal.NewFromFloat(1.34121), decimal.NewFromFloat(1.34129), now.Add(time.Second)),
			entity.NewTickEvent("EURUSD", decimal.NewFromFloat(1.17699), decimal.NewFromFloat(1.17704), now.Add(2*time.Second)),
		}
		for _, tick := range ticks {
			err := util.PublishEvent(js, constant.MarketStreamSubjectTick, tick)
			if err != nil {
				log.Fatal(err)
			}
		}

		bar := entity.NewBarEvent("EURUSD", entity.TimeframeM1, now.Truncate(time.Minute),
			decimal.NewFromFloat(1.17690),
			decimal.NewFromFloat(1.17710),
			decimal.NewFromFloat(1.17685),
			decimal.NewFromFloat(1.17702),
			152,
		)
		err = util.PublishEvent(js, constant.MarketStreamSubjectBar, bar)
		if err != nil {
			log.Fatal(err)
		}

		log.Printf("published %d ticks and 1 bar", len(ticks))
	},
}

func init() {
	rootCmd.AddCommand(playgroundCmd)
}
