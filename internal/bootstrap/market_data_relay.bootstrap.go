package bootstrap

import (
	"context"
	"fmt"
	"net/http"

	"github.com/krobus00/market-stream-service/internal/config"
	gatewayHandler "github.com/krobus00/market-stream-service/internal/handler/gateway/http"
	"github.com/krobus00/market-stream-service/internal/hub"
	"github.com/krobus00/market-stream-service/internal/infrastructure"
	"github.com/krobus00/market-stream-service/internal/store"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// StartMarketDataRelay runs the cloud side: the in-memory market store, the
// websocket fan-out hub, and the HTTP ingestion gateway in front of them.
func StartMarketDataRelay(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	marketStore := store.New(config.Env.Hub.BarHistoryLimit)
	marketHub := hub.New(marketStore, config.Env.Hub.SessionBufferSize)

	handler := gatewayHandler.NewGatewayHTTPHandler(marketHub)
	httpMux := http.NewServeMux()
	handler.Register(httpMux)

	httpPort := fmt.Sprintf(":%s", config.Env.Port["market_data_relay_http"])
	httpServer := infrastructure.NewHTTPServerWithConfig(infrastructure.HTTPServerConfig{
		Addr:            httpPort,
		ShutdownTimeout: config.Env.GracefulShutdownTimeout,
	}, httpMux)

	go func() {
		err := httpServer.Start()
		if err != nil {
			logrus.Error(err)
		}
	}()
	logrus.Info(fmt.Sprintf("http server started on %s", httpPort))

	wait := gracefulShutdown(ctx, config.Env.GracefulShutdownTimeout, map[string]operation{
		"http": func(ctx context.Context) error {
			cancel()
			return httpServer.Shutdown(ctx)
		},
		"hub": func(ctx context.Context) error {
			marketHub.Close()
			return nil
		},
	})

	<-wait
}
