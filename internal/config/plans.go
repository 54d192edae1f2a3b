package config

import (
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	ierr "github.com/smallbiznis/fedbill/internal/errors"
	"github.com/smallbiznis/fedbill/internal/validator"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// PlanDefinition is one plan entry of the plans bootstrap file.
type PlanDefinition struct {
	Name    string            `mapstructure:"name" validate:"required"`
	Type    string            `mapstructure:"type" validate:"required"`
	Options map[string]string `mapstructure:"options"`
}

type PlansConfig struct {
	Plans []PlanDefinition `mapstructure:"plans" validate:"dive"`
}

// Lookup returns the definition called name.
func (c PlansConfig) Lookup(name string) (PlanDefinition, bool) {
	for _, def := range c.Plans {
		if def.Name == name {
			return def, true
		}
	}
	return PlanDefinition{}, false
}

type PlansConfigHolder struct {
	current atomic.Value // holds PlansConfig
	log     *zap.Logger

	mu        sync.Mutex
	listeners []func(PlansConfig)
}

func NewPlansConfigHolder(cfg Config, log *zap.Logger) (*PlansConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	v := viper.New()

	if cfg.PlansConfigPath != "" {
		v.SetConfigFile(cfg.PlansConfigPath)
	} else {
		v.SetConfigName("plans")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/fedbill")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("FEDBILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	holder := &PlansConfigHolder{
		log: log.Named("plans_config").With(zap.String("component", "plans_config")),
	}

	watch := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, ierr.WithError(err).WithHint("failed to read plans file").Mark(ierr.ErrValidation)
		}
		watch = false
	}

	parsed, err := decodePlans(v)
	if err != nil {
		return nil, err
	}
	holder.current.Store(parsed)

	if watch {
		v.OnConfigChange(func(e fsnotify.Event) {
			holder.reload(v, filepath.Base(e.Name))
		})
		v.WatchConfig()
	}

	return holder, nil
}

// NewStaticPlansConfigHolder serves a fixed configuration.
func NewStaticPlansConfigHolder(cfg PlansConfig) *PlansConfigHolder {
	holder := &PlansConfigHolder{log: zap.NewNop()}
	holder.current.Store(cfg)
	return holder
}

func (h *PlansConfigHolder) Get() PlansConfig {
	return h.current.Load().(PlansConfig)
}

// OnReload registers fn to run after each accepted change of the file.
func (h *PlansConfigHolder) OnReload(fn func(PlansConfig)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, fn)
}

func (h *PlansConfigHolder) reload(v *viper.Viper, source string) {
	updated, err := decodePlans(v)
	if err != nil {
		h.log.Warn("invalid plans file ignored", zap.String("file", source), zap.Error(err))
		return
	}
	h.Store(updated)
	h.log.Info("plans file reloaded", zap.String("file", source), zap.Int("plans", len(updated.Plans)))
}

// Store replaces the current configuration and notifies listeners.
func (h *PlansConfigHolder) Store(cfg PlansConfig) {
	h.current.Store(cfg)

	h.mu.Lock()
	listeners := append([]func(PlansConfig){}, h.listeners...)
	h.mu.Unlock()

	for _, fn := range listeners {
		fn(cfg)
	}
}

func decodePlans(v *viper.Viper) (PlansConfig, error) {
	var cfg PlansConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return PlansConfig{}, ierr.WithError(err).WithHint("malformed plans file").Mark(ierr.ErrValidation)
	}
	if err := validatePlans(cfg); err != nil {
		return PlansConfig{}, err
	}
	return cfg, nil
}

func validatePlans(cfg PlansConfig) error {
	if err := validator.ValidateStruct(cfg); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(cfg.Plans))
	for _, def := range cfg.Plans {
		if _, dup := seen[def.Name]; dup {
			return ierr.NewErrorf("plan %s is defined twice", def.Name).
				WithHint("plan names in the plans file must be unique").
				Mark(ierr.ErrValidation)
		}
		seen[def.Name] = struct{}{}
	}
	return nil
}
