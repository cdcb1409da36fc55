package locate

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sisigoks/plantverse-go/internal/conf"
	"github.com/sisigoks/plantverse-go/internal/location"
	"github.com/sisigoks/plantverse-go/internal/observations"
)

// Command creates the locate command for searching nearby sightings of
// a species.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		radiusKm   float64
		maxResults int
		minGrade   string
	)

	cmd := &cobra.Command{
		Use:   "locate [species]",
		Short: "Find nearby sightings of a species",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			coord := location.ResolveFromSettings(ctx, settings)
			if coord == nil {
				return fmt.Errorf("no location available: set --latitude/--longitude or enable geolocation")
			}

			if radiusKm <= 0 {
				radiusKm = settings.Observations.RadiusKm
			}
			if maxResults <= 0 {
				maxResults = settings.Observations.MaxResults
			}

			locator := observations.NewINaturalist(&settings.Observations)
			records, err := locator.Locate(ctx, *coord, args[0], radiusKm, maxResults)
			if err != nil {
				return err
			}
			if minGrade != "" {
				records = observations.FilterMinimumGrade(records, minGrade)
			}

			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(records)
		},
	}

	cmd.Flags().Float64VarP(&radiusKm, "radius", "r", 0, "Search radius in kilometers")
	cmd.Flags().IntVarP(&maxResults, "max-results", "n", 0, "Maximum number of sightings to return")
	cmd.Flags().StringVar(&minGrade, "min-grade", "", "Minimum quality grade: casual, needs_id, research")

	return cmd
}
