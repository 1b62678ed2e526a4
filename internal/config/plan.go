package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// PlanConfig carries the purchasable plan settings the checkout flow needs.
// It is deliberately not part of the env Config: operators adjust prices and
// trial lengths without a restart.
type PlanConfig struct {
	PriceID   string `mapstructure:"priceId"`
	TrialDays int    `mapstructure:"trialDays"`
}

type PlanConfigHolder struct {
	current atomic.Value // holds PlanConfig
}

// NewPlanConfigHolder loads plan settings from a billing.yml, falling back to
// env values, and hot-reloads on file change.
func NewPlanConfigHolder(cfg Config) (*PlanConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/kindmind/config")
	v.AddConfigPath("/etc/kindmind")
	v.AddConfigPath(".")

	v.SetEnvPrefix("KINDMIND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
		v.SetDefault("plan.priceId", cfg.CheckoutPriceID)
		v.SetDefault("plan.trialDays", cfg.CheckoutTrialDays)
	}

	var plan PlanConfig
	if err := v.UnmarshalKey("plan", &plan); err != nil {
		return nil, err
	}
	if err := validatePlanConfig(plan); err != nil {
		return nil, err
	}

	holder := &PlanConfigHolder{}
	holder.current.Store(plan)

	if fileFound {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			var updated PlanConfig
			if err := v.UnmarshalKey("plan", &updated); err != nil {
				log.Printf("[plan-config] reload failed: %v", err)
				return
			}
			if err := validatePlanConfig(updated); err != nil {
				log.Printf("[plan-config] invalid config ignored: %v", err)
				return
			}
			holder.current.Store(updated)
			log.Printf("[plan-config] reloaded from %s", e.Name)
		})
	}

	return holder, nil
}

func (h *PlanConfigHolder) Get() PlanConfig {
	return h.current.Load().(PlanConfig)
}

// An empty priceId is tolerated here; the checkout flow reports it as a
// configuration error so the service can still serve webhooks.
func validatePlanConfig(plan PlanConfig) error {
	if plan.TrialDays < 0 {
		return errors.New("plan.trialDays cannot be negative")
	}
	return nil
}
