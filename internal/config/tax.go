package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const (
	SequenceBackendDatabase = "database"
	SequenceBackendRedis    = "redis"
	SequenceBackendMemory   = "memory"
)

// TaxConfig is the rate table and invoicing policy loaded once at start.
// Consumers copy what they need; nothing reloads it at runtime.
type TaxConfig struct {
	HomeCountry            string
	Currency               string
	Rates                  RateTable
	ReducedCategories      []string
	SuperReducedCategories []string
	EUCountries            []string
	EUSchemeThreshold      decimal.Decimal
	// IslandPostcodePrefixes are the leading digits of domestic postcodes
	// whose standard-rated sales are taxed at the reduced island rate.
	IslandPostcodePrefixes []string
	Invoice                InvoiceConfig
}

// RateTable holds the VAT percentages per tier.
type RateTable struct {
	Standard     decimal.Decimal
	Reduced      decimal.Decimal
	SuperReduced decimal.Decimal
	Exempt       decimal.Decimal
}

// InvoiceConfig controls numbering and defaults of issued invoices.
type InvoiceConfig struct {
	NumberTemplate   string
	PaymentTermsDays int
	SequenceBackend  string
	CreateRetries    int
}

type rawTaxConfig struct {
	HomeCountry            string   `mapstructure:"homeCountry"`
	Currency               string   `mapstructure:"currency"`
	Rates                  rawRates `mapstructure:"rates"`
	ReducedCategories      []string `mapstructure:"reducedCategories"`
	SuperReducedCategories []string `mapstructure:"superReducedCategories"`
	EUCountries            []string `mapstructure:"euCountries"`
	EUSchemeThreshold      float64  `mapstructure:"euSchemeThreshold"`
	IslandPostcodePrefixes []string `mapstructure:"islandPostcodePrefixes"`
	Invoice                struct {
		NumberTemplate   string `mapstructure:"numberTemplate"`
		PaymentTermsDays int    `mapstructure:"paymentTermsDays"`
		SequenceBackend  string `mapstructure:"sequenceBackend"`
		CreateRetries    int    `mapstructure:"createRetries"`
	} `mapstructure:"invoice"`
}

type rawRates struct {
	Standard     float64 `mapstructure:"standard"`
	Reduced      float64 `mapstructure:"reduced"`
	SuperReduced float64 `mapstructure:"superReduced"`
	Exempt       float64 `mapstructure:"exempt"`
}

func DefaultTaxConfig() TaxConfig {
	return TaxConfig{
		HomeCountry: "GR",
		Currency:    "EUR",
		Rates: RateTable{
			Standard:     decimal.NewFromInt(24),
			Reduced:      decimal.NewFromInt(13),
			SuperReduced: decimal.NewFromInt(6),
			Exempt:       decimal.Zero,
		},
		ReducedCategories: []string{
			"Φρέσκα Λαχανικά",
			"Φρούτα",
			"Κρέας και Πουλερικά",
			"Γαλακτοκομικά",
			"Ψάρια και Θαλασσινά",
			"Αυγά",
			"Δημητριακά",
		},
		SuperReducedCategories: []string{
			"Βασικά Τρόφιμα",
			"Φάρμακα",
			"Ιατρικές Υπηρεσίες",
		},
		EUCountries: []string{
			"AT", "BE", "BG", "CY", "CZ", "DE", "DK", "EE", "ES", "FI", "FR", "HR", "HU", "IE",
			"IT", "LT", "LU", "LV", "MT", "NL", "PL", "PT", "RO", "SE", "SI", "SK",
		},
		EUSchemeThreshold: decimal.NewFromInt(50000),
		IslandPostcodePrefixes: []string{
			// Crete
			"70", "71", "72", "73", "74",
			// Dodecanese
			"851", "852", "853", "854", "855",
			// North Aegean
			"811", "812", "821", "831",
			// Ionian
			"28", "29", "491",
			// Cyclades
			"840", "841", "842", "843", "844", "845", "846", "847", "848", "849",
		},
		Invoice: InvoiceConfig{
			NumberTemplate:   "INV-{YYYY}{MM}-{SEQ4}",
			PaymentTermsDays: 30,
			SequenceBackend:  SequenceBackendDatabase,
			CreateRetries:    3,
		},
	}
}

// LoadTaxConfig reads tax.yml from the given directories (or the default
// search path) and falls back to DefaultTaxConfig when no file exists.
func LoadTaxConfig(paths ...string) (TaxConfig, error) {
	v := viper.New()

	v.SetConfigName("tax")
	v.SetConfigType("yml")
	if len(paths) == 0 {
		if dir := strings.TrimSpace(os.Getenv("TAX_CONFIG_DIR")); dir != "" {
			paths = append(paths, dir)
		}
		paths = append(paths, "/etc/taxengine", ".")
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix("TAXENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setTaxDefaults(v, DefaultTaxConfig())
	// Nested keys only see the environment when bound one by one,
	// e.g. tax.rates.standard <- TAXENGINE_TAX_RATES_STANDARD.
	for _, key := range v.AllKeys() {
		if err := v.BindEnv(key); err != nil {
			return TaxConfig{}, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return TaxConfig{}, err
		}
	}

	var file struct {
		Tax rawTaxConfig `mapstructure:"tax"`
	}
	if err := v.Unmarshal(&file); err != nil {
		return TaxConfig{}, err
	}

	cfg := file.Tax.toConfig()
	if err := ValidateTaxConfig(cfg); err != nil {
		return TaxConfig{}, err
	}
	return cfg, nil
}

func setTaxDefaults(v *viper.Viper, d TaxConfig) {
	v.SetDefault("tax.homeCountry", d.HomeCountry)
	v.SetDefault("tax.currency", d.Currency)
	v.SetDefault("tax.rates.standard", d.Rates.Standard.InexactFloat64())
	v.SetDefault("tax.rates.reduced", d.Rates.Reduced.InexactFloat64())
	v.SetDefault("tax.rates.superReduced", d.Rates.SuperReduced.InexactFloat64())
	v.SetDefault("tax.rates.exempt", d.Rates.Exempt.InexactFloat64())
	v.SetDefault("tax.reducedCategories", d.ReducedCategories)
	v.SetDefault("tax.superReducedCategories", d.SuperReducedCategories)
	v.SetDefault("tax.euCountries", d.EUCountries)
	v.SetDefault("tax.euSchemeThreshold", d.EUSchemeThreshold.InexactFloat64())
	v.SetDefault("tax.islandPostcodePrefixes", d.IslandPostcodePrefixes)
	v.SetDefault("tax.invoice.numberTemplate", d.Invoice.NumberTemplate)
	v.SetDefault("tax.invoice.paymentTermsDays", d.Invoice.PaymentTermsDays)
	v.SetDefault("tax.invoice.sequenceBackend", d.Invoice.SequenceBackend)
	v.SetDefault("tax.invoice.createRetries", d.Invoice.CreateRetries)
}

func (r rawTaxConfig) toConfig() TaxConfig {
	countries := make([]string, 0, len(r.EUCountries))
	for _, c := range r.EUCountries {
		if c = strings.ToUpper(strings.TrimSpace(c)); c != "" {
			countries = append(countries, c)
		}
	}
	return TaxConfig{
		HomeCountry: strings.ToUpper(strings.TrimSpace(r.HomeCountry)),
		Currency:    strings.ToUpper(strings.TrimSpace(r.Currency)),
		Rates: RateTable{
			Standard:     decimal.NewFromFloat(r.Rates.Standard),
			Reduced:      decimal.NewFromFloat(r.Rates.Reduced),
			SuperReduced: decimal.NewFromFloat(r.Rates.SuperReduced),
			Exempt:       decimal.NewFromFloat(r.Rates.Exempt),
		},
		ReducedCategories:      append([]string(nil), r.ReducedCategories...),
		SuperReducedCategories: append([]string(nil), r.SuperReducedCategories...),
		EUCountries:            countries,
		EUSchemeThreshold:      decimal.NewFromFloat(r.EUSchemeThreshold),
		IslandPostcodePrefixes: trimAll(r.IslandPostcodePrefixes),
		Invoice: InvoiceConfig{
			NumberTemplate:   strings.TrimSpace(r.Invoice.NumberTemplate),
			PaymentTermsDays: r.Invoice.PaymentTermsDays,
			SequenceBackend:  strings.ToLower(strings.TrimSpace(r.Invoice.SequenceBackend)),
			CreateRetries:    r.Invoice.CreateRetries,
		},
	}
}

func ValidateTaxConfig(cfg TaxConfig) error {
	if len(cfg.HomeCountry) != 2 {
		return fmt.Errorf("tax.homeCountry must be an ISO-3166 alpha-2 code, got %q", cfg.HomeCountry)
	}
	if cfg.Currency == "" {
		return errors.New("tax.currency cannot be empty")
	}
	rates := []decimal.Decimal{cfg.Rates.Standard, cfg.Rates.Reduced, cfg.Rates.SuperReduced, cfg.Rates.Exempt}
	for _, r := range rates {
		if r.IsNegative() || r.GreaterThan(decimal.NewFromInt(100)) {
			return fmt.Errorf("tax.rates must be within [0, 100], got %s", r)
		}
	}
	for _, prefix := range cfg.IslandPostcodePrefixes {
		if prefix == "" || strings.Trim(prefix, "0123456789") != "" {
			return fmt.Errorf("tax.islandPostcodePrefixes must be digits, got %q", prefix)
		}
	}
	if cfg.Invoice.NumberTemplate == "" {
		return errors.New("tax.invoice.numberTemplate cannot be empty")
	}
	if cfg.Invoice.PaymentTermsDays < 0 {
		return errors.New("tax.invoice.paymentTermsDays cannot be negative")
	}
	switch cfg.Invoice.SequenceBackend {
	case SequenceBackendDatabase, SequenceBackendRedis, SequenceBackendMemory:
	default:
		return fmt.Errorf("unsupported tax.invoice.sequenceBackend %q", cfg.Invoice.SequenceBackend)
	}
	return nil
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
