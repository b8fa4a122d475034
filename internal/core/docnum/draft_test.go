package docnum

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDraftNumber(t *testing.T) {
	number := DraftNumber("FACTURE")

	assert.True(t, strings.HasPrefix(number, "DRAFT-FACTURE-"))
	assert.True(t, IsDraftNumber(number))

	// A placeholder must never parse as an official number.
	_, ok := Parse(number)
	assert.False(t, ok)
}

func TestIsDraftNumber(t *testing.T) {
	assert.True(t, IsDraftNumber("DRAFT-DEVIS-LX2M9Q1"))
	assert.False(t, IsDraftNumber("FAC-2026-000001"))
	assert.False(t, IsDraftNumber(""))
}
