package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/invoice-report/internal/allocation"
	"github.com/Veraticus/invoice-report/internal/anomaly"
	"github.com/Veraticus/invoice-report/internal/classification"
	"github.com/Veraticus/invoice-report/internal/common"
	"github.com/Veraticus/invoice-report/internal/engine"
	"github.com/Veraticus/invoice-report/internal/excel"
	"github.com/Veraticus/invoice-report/internal/model"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config is the typed view of everything the invoice commands read from
// viper (config file, INVOICE_* env vars and bound flags).
type Config struct {
	Paths      PathsConfig      `mapstructure:"paths"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
	Allocation AllocationConfig `mapstructure:"allocation"`
	Input      InputConfig      `mapstructure:"input"`
	Rules      []RuleConfig     `mapstructure:"rules" validate:"dive"`
	Anomaly    AnomalyConfig    `mapstructure:"anomaly"`
}

// PathsConfig locates the raw exports, the processed output root and the
// MMP reference workbook.
type PathsConfig struct {
	RawDir    string `mapstructure:"raw_dir" validate:"required"`
	OutputDir string `mapstructure:"output_dir" validate:"required"`
	Reference string `mapstructure:"reference" validate:"required"`
}

// LoggingConfig selects the slog handler. When File is set every record is
// also appended to it as text.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `mapstructure:"format" validate:"omitempty,oneof=console text json"`
	File   string `mapstructure:"file"`
}

// ArchiveConfig controls the SQLite run archive.
type ArchiveConfig struct {
	Path    string `mapstructure:"path" validate:"required_if=Enabled true"`
	Enabled bool   `mapstructure:"enabled"`
}

// AllocationConfig controls the MMP allocation stage.
type AllocationConfig struct {
	Category string `mapstructure:"category" validate:"required"`
	Places   int32  `mapstructure:"places" validate:"min=0,max=6"`
}

// InputConfig holds the load-time filters applied to the invoice export.
type InputConfig struct {
	RequiredContracts    []string `mapstructure:"required_contracts" validate:"min=1,dive,required"`
	ExcludedDescriptions []string `mapstructure:"excluded_descriptions"`
}

// AnomalyConfig holds the outlier detection parameters.
type AnomalyConfig struct {
	Method        string  `mapstructure:"method" validate:"oneof=stddev percentile"`
	K             float64 `mapstructure:"k" validate:"gt=0"`
	Percentile    float64 `mapstructure:"percentile" validate:"gt=0,lt=1"`
	MinSampleSize int     `mapstructure:"min_sample_size" validate:"min=2"`
}

// RuleConfig is one classification rule as written in the config file.
type RuleConfig struct {
	Source   string `mapstructure:"source" validate:"required"`
	Contract string `mapstructure:"contract" validate:"required"`
	Sign     string `mapstructure:"sign"`
	Category string `mapstructure:"category" validate:"required"`
}

// SetDefaults registers the default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("paths.raw_dir", "$HOME/PeopleSoft_Invoice_Reports/raw_data")
	v.SetDefault("paths.output_dir", "$HOME/PeopleSoft_Invoice_Reports/processed_reports")
	v.SetDefault("paths.reference", "$HOME/PeopleSoft_Invoice_Reports/MMP_Reclass_Ref/MMP_Reclass_Ref.xlsx")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("archive.enabled", true)
	v.SetDefault("archive.path", "$HOME/.local/share/invoice/runs.db")

	v.SetDefault("allocation.category", model.CategoryChartsAndCoding)
	v.SetDefault("allocation.places", 2)

	v.SetDefault("input.required_contracts", []string{string(model.Contract1111), string(model.Contract2222)})
	v.SetDefault("input.excluded_descriptions", []string{"MSG Chart Expense", "MSG Misc Chart Expense"})

	v.SetDefault("anomaly.method", string(anomaly.MethodStdDev))
	v.SetDefault("anomaly.k", 3.0)
	v.SetDefault("anomaly.percentile", 0.99)
	v.SetDefault("anomaly.min_sample_size", 2)
}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom decodes and validates the configuration held by v. Defaults are
// registered first so a missing config file still yields a usable Config.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.expandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the struct tags and returns a single error naming every
// failing field.
func (c *Config) Validate() error {
	err := validator.New(validator.WithRequiredStructEnabled()).Struct(c)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return fmt.Errorf("%w: %v", common.ErrInvalidConfig, err)
	}

	fields := make([]string, 0, len(validationErrs))
	for _, fe := range validationErrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", common.ErrInvalidConfig, strings.Join(fields, ", "))
}

// EngineConfig converts the loaded settings into the pipeline configuration.
// An empty rule list means the built-in table.
func (c *Config) EngineConfig() (engine.Config, error) {
	cfg := engine.DefaultConfig()

	if len(c.Rules) > 0 {
		rules := make([]classification.Rule, 0, len(c.Rules))
		for i, rc := range c.Rules {
			sign, err := classification.ParseSign(rc.Sign)
			if err != nil {
				return engine.Config{}, fmt.Errorf("%w: rules[%d]: %v", common.ErrInvalidConfig, i, err)
			}
			rules = append(rules, classification.Rule{
				Source:   model.Source(rc.Source),
				Contract: model.Contract(rc.Contract),
				Sign:     sign,
				Category: rc.Category,
			})
		}
		cfg.Rules = rules
	}

	cfg.Anomaly = anomaly.Config{
		Method:        anomaly.Method(c.Anomaly.Method),
		K:             decimal.NewFromFloat(c.Anomaly.K),
		Percentile:    decimal.NewFromFloat(c.Anomaly.Percentile),
		MinSampleSize: c.Anomaly.MinSampleSize,
	}

	cfg.Allocation = allocation.Config{
		Category: c.Allocation.Category,
		Places:   c.Allocation.Places,
	}

	return cfg, nil
}

// ExportOptions returns the filters applied while reading the invoice export.
func (c *Config) ExportOptions() excel.Options {
	contracts := make([]model.Contract, 0, len(c.Input.RequiredContracts))
	for _, contract := range c.Input.RequiredContracts {
		contracts = append(contracts, model.Contract(contract))
	}
	return excel.Options{
		RequiredContracts:    contracts,
		ExcludedDescriptions: c.Input.ExcludedDescriptions,
	}
}
