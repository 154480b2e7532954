package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadTaxConfigDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := LoadTaxConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "GR", cfg.HomeCountry)
	assert.Equal(t, "EUR", cfg.Currency)
	assert.True(t, cfg.Rates.Standard.Equal(decimal.NewFromInt(24)))
	assert.True(t, cfg.Rates.Reduced.Equal(decimal.NewFromInt(13)))
	assert.True(t, cfg.Rates.SuperReduced.Equal(decimal.NewFromInt(6)))
	assert.True(t, cfg.Rates.Exempt.IsZero())
	assert.Contains(t, cfg.ReducedCategories, "Φρούτα")
	assert.Len(t, cfg.EUCountries, 26)
	assert.NotContains(t, cfg.EUCountries, "GR")
	assert.Equal(t, "INV-{YYYY}{MM}-{SEQ4}", cfg.Invoice.NumberTemplate)
	assert.Equal(t, 30, cfg.Invoice.PaymentTermsDays)
	assert.Equal(t, SequenceBackendDatabase, cfg.Invoice.SequenceBackend)
	assert.Contains(t, cfg.IslandPostcodePrefixes, "847")
}

func TestLoadTaxConfigAppliesEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	content := "tax:\n  rates:\n    standard: 23\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tax.yml"), []byte(content), 0o600))

	t.Setenv("TAXENGINE_TAX_RATES_STANDARD", "22")
	t.Setenv("TAXENGINE_TAX_RATES_SUPERREDUCED", "5.5")
	t.Setenv("TAXENGINE_TAX_INVOICE_SEQUENCEBACKEND", "redis")
	t.Setenv("TAXENGINE_TAX_ISLANDPOSTCODEPREFIXES", "70,851")

	cfg, err := LoadTaxConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "22", cfg.Rates.Standard.String())
	assert.Equal(t, "5.5", cfg.Rates.SuperReduced.String())
	assert.Equal(t, "13", cfg.Rates.Reduced.String())
	assert.Equal(t, SequenceBackendRedis, cfg.Invoice.SequenceBackend)
	assert.Equal(t, []string{"70", "851"}, cfg.IslandPostcodePrefixes)
}

func TestLoadTaxConfigReadsFile(t *testing.T) {
	dir := t.TempDir()
	content := `tax:
  homeCountry: gr
  rates:
    standard: 23.5
    reduced: 12
  euCountries: [de, " fr "]
  invoice:
    sequenceBackend: Memory
    paymentTermsDays: 14
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tax.yml"), []byte(content), 0o600))

	cfg, err := LoadTaxConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "GR", cfg.HomeCountry)
	assert.Equal(t, "23.5", cfg.Rates.Standard.String())
	assert.Equal(t, "12", cfg.Rates.Reduced.String())
	assert.Equal(t, "6", cfg.Rates.SuperReduced.String())
	assert.Equal(t, []string{"DE", "FR"}, cfg.EUCountries)
	assert.Equal(t, SequenceBackendMemory, cfg.Invoice.SequenceBackend)
	assert.Equal(t, 14, cfg.Invoice.PaymentTermsDays)
}

func TestLoadTaxConfigRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"unknown_backend": "tax:\n  invoice:\n    sequenceBackend: etcd\n",
		"rate_over_100":   "tax:\n  rates:\n    standard: 240\n",
		"bad_country":     "tax:\n  homeCountry: GRC\n",
		"island_letters":  "tax:\n  islandPostcodePrefixes: [\"7a\"]\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, "tax.yml"), []byte(content), 0o600))

			_, err := LoadTaxConfig(dir)
			assert.Error(t, err)
		})
	}
}
