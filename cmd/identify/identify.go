package identify

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sisigoks/plantverse-go/internal/conf"
	"github.com/sisigoks/plantverse-go/internal/enrichment"
	"github.com/sisigoks/plantverse-go/internal/location"
)

// Command creates the identify command for classifying a single image.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identify [image.jpg]",
		Short: "Identify a plant from a photograph",
		Long:  `Classify a plant photograph and enrich the identification with taxonomy, narrative, and nearby sightings.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			imageData, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("cannot read image %s: %w", args[0], err)
			}

			ctx := cmd.Context()
			coordinator := enrichment.NewCoordinator(settings, enrichment.NewProviders(settings))
			coord := location.ResolveFromSettings(ctx, settings)

			result, err := coordinator.IdentifyAndEnrich(ctx, imageData, coord, settings.Language)
			if err != nil {
				return err
			}

			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(result)
		},
	}

	return cmd
}
