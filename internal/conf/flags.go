package conf

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// FlagKeys maps command line flag names to the config keys they override.
// A flag only takes effect when set explicitly.
var FlagKeys = map[string]string{
	"table":       "backfill.tables",
	"chunk-size":  "backfill.chunksize",
	"delay":       "backfill.interrowdelay",
	"max-chunks":  "backfill.maxchunks",
	"workers":     "backfill.tableworkers",
	"bucket":      "storage.bucket",
	"provider":    "provider.type",
	"selection":   "provider.selection",
	"seed":        "provider.seed",
	"listen":      "server.listen",
	"debug":       "debug",
	"log-level":   "logging.level",
	"notify-urls": "notification.urls",
}

// bindFlags binds every flag in flags that appears in FlagKeys.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	if flags == nil {
		return nil
	}
	for name, key := range FlagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("error binding flag --%s: %w", name, err)
		}
	}
	return nil
}
