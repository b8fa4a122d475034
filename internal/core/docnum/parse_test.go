package docnum

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Canonical(t *testing.T) {
	parsed, ok := Parse("FAC-2026-000123")
	require.True(t, ok)
	assert.Equal(t, KindCanonical, parsed.Kind)
	assert.Equal(t, TypeInvoice, parsed.Type)
	assert.Equal(t, "FAC", parsed.Prefix)
	assert.Equal(t, 2026, parsed.Year)
	assert.Equal(t, int64(123), parsed.Sequence)
}

func TestParse_CanonicalContinuous(t *testing.T) {
	parsed, ok := Parse("CLI-000042")
	require.True(t, ok)
	assert.Equal(t, KindCanonical, parsed.Kind)
	assert.Equal(t, TypeClient, parsed.Type)
	assert.Zero(t, parsed.Year)
	assert.Equal(t, int64(42), parsed.Sequence)
}

func TestParse_RoundTrip(t *testing.T) {
	date := time.Date(2026, time.May, 20, 9, 30, 0, 0, time.UTC)

	for _, docType := range Types() {
		number, err := Format(docType, date, 17)
		require.NoError(t, err, "type %s", docType)

		parsed, ok := Parse(number)
		require.True(t, ok, "number %s", number)
		assert.Equal(t, docType, parsed.Type, "number %s", number)
		assert.Equal(t, int64(17), parsed.Sequence, "number %s", number)
		assert.Equal(t, KindCanonical, parsed.Kind, "number %s", number)
	}
}

func TestParse_Legacy(t *testing.T) {
	tests := []struct {
		name   string
		number string
		want   ParsedNumber
	}{
		{
			name:   "daily invoice",
			number: "FTB1503260042",
			want: ParsedNumber{
				Kind: KindLegacy, Type: TypeInvoice, Prefix: "FTB",
				Day: 15, Month: 3, Year: 2026, Sequence: 42,
			},
		},
		{
			name:   "monthly deposit invoice",
			number: "FA03260007",
			want: ParsedNumber{
				Kind: KindLegacy, Type: TypeDepositInvoice, Prefix: "FA",
				Month: 3, Year: 2026, Sequence: 7,
			},
		},
		{
			name:   "monthly quote",
			number: "D03260015",
			want: ParsedNumber{
				Kind: KindLegacy, Type: TypeQuote, Prefix: "D",
				Month: 3, Year: 2026, Sequence: 15,
			},
		},
		{
			name:   "monthly purchase order",
			number: "BC01260003",
			want: ParsedNumber{
				Kind: KindLegacy, Type: TypePurchaseOrder, Prefix: "BC",
				Month: 1, Year: 2026, Sequence: 3,
			},
		},
		{
			name:   "yearly project",
			number: "PRJ260031",
			want: ParsedNumber{
				Kind: KindLegacy, Type: TypeProject, Prefix: "PRJ",
				Year: 2026, Sequence: 31,
			},
		},
		{
			name:   "continuous client code",
			number: "CLI0042",
			want: ParsedNumber{
				Kind: KindLegacy, Type: TypeClient, Prefix: "CLI",
				Sequence: 42,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, ok := Parse(tt.number)
			require.True(t, ok)
			assert.Equal(t, tt.want, parsed)
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	invalid := []string{
		"",
		"FAC",
		"FAC-2026",          // missing sequence
		"FAC-2026-01-00001", // too many segments
		"ZZZ-2026-000001",   // unknown prefix
		"FAC-1999-000001",   // year out of range
		"FAC-20XX-000001",   // non-numeric year
		"FAC-2026-ABCDEF",   // non-numeric sequence
		"CLI-2026-000001",   // continuous type with a year segment
		"garbage",
	}

	for _, number := range invalid {
		_, ok := Parse(number)
		assert.False(t, ok, "expected %q to be rejected", number)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		number   string
		valid    bool
		isLegacy bool
	}{
		{"FAC-2026-000001", true, false},
		{"CLI-000001", true, false},
		{"FTB1503260042", true, true},
		{"PRJ260031", true, true},
		{"FAC-2026-000000", false, false}, // sequence below 1
		{"FTB3213260042", false, true},    // day 32
		{"FA13260007", false, true},       // month 13
		{"PRJ050031", false, true},        // year 2005, before range
		{"not-a-number", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.number, func(t *testing.T) {
			v := Validate(tt.number)
			assert.Equal(t, tt.valid, v.Valid, "error: %s", v.Error)
			if tt.valid {
				assert.Equal(t, tt.isLegacy, v.IsLegacy)
				assert.Empty(t, v.Error)
			} else {
				assert.NotEmpty(t, v.Error)
			}
		})
	}
}

func TestIsCanonicalFormat(t *testing.T) {
	assert.True(t, IsCanonicalFormat("FAC-2026-000001"))
	assert.True(t, IsCanonicalFormat("CLI-000001"))
	assert.False(t, IsCanonicalFormat("FTB1503260042"))
}
