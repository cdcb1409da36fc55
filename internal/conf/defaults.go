// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "PlantVerse-Go")

	viper.SetDefault("language", "en")
	viper.SetDefault("latitude", 0.000)
	viper.SetDefault("longitude", 0.000)

	viper.SetDefault("classifier.endpoint", "https://api-inference.huggingface.co/models")
	viper.SetDefault("classifier.model", "Sisigoks/FloraSense")
	viper.SetDefault("classifier.apikey", "")
	viper.SetDefault("classifier.timeout", 30*time.Second)

	viper.SetDefault("taxonomy.endpoint", "https://www.wikidata.org/w/api.php")
	viper.SetDefault("taxonomy.entityurl", "https://www.wikidata.org/wiki/Special:EntityData")
	viper.SetDefault("taxonomy.timeout", 10*time.Second)
	viper.SetDefault("taxonomy.cachettl", 1*time.Hour)
	viper.SetDefault("taxonomy.maxretries", 2)

	viper.SetDefault("narrative.apiendpoint", "https://en.wikipedia.org/w/api.php")
	viper.SetDefault("narrative.restendpoint", "https://en.wikipedia.org/api/rest_v1")
	viper.SetDefault("narrative.timeout", 10*time.Second)
	viper.SetDefault("narrative.cachettl", 1*time.Hour)
	viper.SetDefault("narrative.maxretries", 2)

	viper.SetDefault("translate.endpoint", "https://translate.googleapis.com/translate_a/single")
	viper.SetDefault("translate.timeout", 10*time.Second)
	viper.SetDefault("translate.cachettl", 12*time.Hour)

	viper.SetDefault("observations.endpoint", "https://api.inaturalist.org/v1")
	viper.SetDefault("observations.timeout", 15*time.Second)
	viper.SetDefault("observations.radiuskm", 25.0)
	viper.SetDefault("observations.maxresults", 50)
	viper.SetDefault("observations.pagesize", 50)

	viper.SetDefault("geolocation.enabled", true)
	viper.SetDefault("geolocation.endpoint", "http://ip-api.com/json")
	viper.SetDefault("geolocation.timeout", 5*time.Second)

	viper.SetDefault("enrichment.providertimeout", 10*time.Second)
	viper.SetDefault("enrichment.requesttimeout", 30*time.Second)

	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.listen", "0.0.0.0:8080")
	viper.SetDefault("webserver.debug", false)
}
