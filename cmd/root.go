// Package cmd assembles the PlantVerse-Go command line interface.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sisigoks/plantverse-go/cmd/enrich"
	"github.com/sisigoks/plantverse-go/cmd/identify"
	"github.com/sisigoks/plantverse-go/cmd/locate"
	"github.com/sisigoks/plantverse-go/cmd/serve"
	"github.com/sisigoks/plantverse-go/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "plantverse",
		Short: "PlantVerse-Go CLI",
		Long:  `Identify plants from photographs and enrich the result with taxonomy, traditional uses, and nearby sightings.`,
	}

	if err := setupFlags(rootCmd, settings); err != nil {
		cobra.CheckErr(err)
	}

	rootCmd.AddCommand(
		identify.Command(settings),
		enrich.Command(settings),
		locate.Command(settings),
		serve.Command(settings),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		lang, err := conf.NormalizeLanguage(settings.Language)
		if err != nil {
			return fmt.Errorf("invalid language %q: %w", settings.Language, err)
		}
		settings.Language = lang
		return conf.ValidateSettings(settings)
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVarP(&settings.Language, "lang", "l", viper.GetString("language"), "Target language for localized output, 2-letter code")
	rootCmd.PersistentFlags().Float64Var(&settings.Latitude, "latitude", viper.GetFloat64("latitude"), "Latitude for nearby observation search")
	rootCmd.PersistentFlags().Float64Var(&settings.Longitude, "longitude", viper.GetFloat64("longitude"), "Longitude for nearby observation search")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
