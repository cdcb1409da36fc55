package enrich

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/sisigoks/plantverse-go/internal/conf"
	"github.com/sisigoks/plantverse-go/internal/enrichment"
	"github.com/sisigoks/plantverse-go/internal/location"
	"github.com/sisigoks/plantverse-go/internal/species"
)

// Command creates the enrich command for a label that is already known,
// skipping the classifier.
func Command(settings *conf.Settings) *cobra.Command {
	var confidence float64

	cmd := &cobra.Command{
		Use:   "enrich [label]",
		Short: "Enrich a known species label",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			coordinator := enrichment.NewCoordinator(settings, enrichment.NewProviders(settings))
			coord := location.ResolveFromSettings(ctx, settings)

			guess := species.Guess{RawLabel: args[0], Confidence: confidence}
			result, err := coordinator.Enrich(ctx, guess, coord, settings.Language)
			if err != nil {
				return err
			}

			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(result)
		},
	}

	cmd.Flags().Float64VarP(&confidence, "confidence", "c", 0, "Confidence of the label, between 0.0 and 1.0")

	return cmd
}
