package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sisigoks/plantverse-go/internal/api"
	"github.com/sisigoks/plantverse-go/internal/classifier"
	"github.com/sisigoks/plantverse-go/internal/conf"
	"github.com/sisigoks/plantverse-go/internal/enrichment"
	"github.com/sisigoks/plantverse-go/internal/logging"
	"github.com/sisigoks/plantverse-go/internal/observability"
)

const shutdownTimeout = 10 * time.Second

// Command creates the serve command running the HTTP API.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the PlantVerse-Go HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(settings)
		},
	}

	cmd.Flags().StringVar(&settings.WebServer.Listen, "listen", settings.WebServer.Listen, "Address and port to listen on")

	return cmd
}

func runServer(settings *conf.Settings) error {
	metrics, err := observability.NewMetrics()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	providers := enrichment.NewProviders(settings)
	if hf, ok := providers.Classifier.(*classifier.HuggingFaceClassifier); ok {
		hf.SetMetrics(metrics.Classifier)
	}

	coordinator := enrichment.NewCoordinator(settings, providers)
	coordinator.SetMetrics(metrics.Enrichment)

	server := api.New(settings, coordinator,
		api.WithLocator(providers.Locator),
		api.WithMetrics(metrics))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Start()
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logging.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
