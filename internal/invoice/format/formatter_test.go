package format

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatInvoiceNumber(t *testing.T) {
	march := time.Date(2025, time.March, 14, 10, 0, 0, 0, time.UTC)

	cases := []struct {
		name     string
		template string
		seq      int64
		want     string
	}{
		{"default", DefaultInvoiceNumberTemplate, 1, "INV-202503-0001"},
		{"second", DefaultInvoiceNumberTemplate, 2, "INV-202503-0002"},
		{"widens", DefaultInvoiceNumberTemplate, 12345, "INV-202503-12345"},
		{"plain seq", "{YY}{MM}{DD}/{SEQ}", 7, "250314/7"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := FormatInvoiceNumber(tc.template, march, tc.seq)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFormatInvoiceNumberRejects(t *testing.T) {
	now := time.Now()
	_, err := FormatInvoiceNumber("", now, 1)
	assert.Error(t, err)
	_, err = FormatInvoiceNumber(DefaultInvoiceNumberTemplate, now, 0)
	assert.Error(t, err)
	_, err = FormatInvoiceNumber("INV-{YYYY}", now, 1)
	assert.Error(t, err)
	_, err = FormatInvoiceNumber("INV-{FOO}-{SEQ4}", now, 1)
	assert.Error(t, err)
}

func TestParseSequence(t *testing.T) {
	march := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)

	seq, ok := ParseSequence(DefaultInvoiceNumberTemplate, march, "INV-202503-0042")
	require.True(t, ok)
	assert.Equal(t, int64(42), seq)

	seq, ok = ParseSequence(DefaultInvoiceNumberTemplate, march, "INV-202503-10001")
	require.True(t, ok)
	assert.Equal(t, int64(10001), seq)

	_, ok = ParseSequence(DefaultInvoiceNumberTemplate, march, "INV-202504-0042")
	assert.False(t, ok)
	_, ok = ParseSequence(DefaultInvoiceNumberTemplate, march, "CN-202503-0042")
	assert.False(t, ok)
	_, ok = ParseSequence(DefaultInvoiceNumberTemplate, march, "INV-202503-abcd")
	assert.False(t, ok)
}

func TestParseSequenceRoundTrip(t *testing.T) {
	period := time.Date(2024, time.December, 31, 23, 0, 0, 0, time.UTC)
	for _, seq := range []int64{1, 99, 9999, 10000} {
		number, err := FormatInvoiceNumber(DefaultInvoiceNumberTemplate, period, seq)
		require.NoError(t, err)
		got, ok := ParseSequence(DefaultInvoiceNumberTemplate, period, number)
		require.True(t, ok)
		assert.Equal(t, seq, got)
	}
}

func TestPeriodKey(t *testing.T) {
	athens := time.FixedZone("EET", 2*60*60)
	assert.Equal(t, "202503", PeriodKey(time.Date(2025, time.March, 5, 12, 0, 0, 0, athens)))
}

func TestDocumentFilename(t *testing.T) {
	assert.Equal(t, "receipt-inv-202503-0001.pdf", DocumentFilename("receipt", "INV-202503-0001", "pdf"))
	assert.Regexp(t, `^invoice-[a-z0-9-]+\.pdf$`, DocumentFilename("invoice", "ΤΔΑ/2025/0007", "pdf"))
}
