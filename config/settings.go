package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/viper"

	"github.com/niksmo/twin-supply/internal/core/domain"
)

// LoadSettings reads the checkout's store settings from a YAML or JSON
// file. A missing file yields defaults, invalid fields are normalized.
func LoadSettings(path string) (domain.StoreSettings, error) {
	const op = "config.LoadSettings"

	def := domain.DefaultStoreSettings()
	if path == "" {
		return def, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("currency", def.Currency)
	v.SetDefault("fee_percent", def.FeePercent)
	v.SetDefault("fee_fixed", def.FeeFixed)
	v.SetDefault("paypal_mode", def.PayPalMode)
	v.SetDefault("square_env", def.SquareEnv)
	v.SetDefault("shipping_methods", shippingDefaults())

	if err := v.ReadInConfig(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return def, nil
		}
		return domain.StoreSettings{}, fmt.Errorf("%s: %w", op, err)
	}

	var s domain.StoreSettings
	if err := v.Unmarshal(&s, decodeHook()); err != nil {
		return domain.StoreSettings{}, fmt.Errorf("%s: %w", op, err)
	}
	return s.Normalize(), nil
}
