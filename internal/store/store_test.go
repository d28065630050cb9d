package store

import (
	"testing"

	"github.com/pocketbank/backend/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestAccountNumberQuery(t *testing.T) {
	tests := []struct {
		raw        string
		normalized string
		bare       bool
	}{
		{"1234", "1234", true},
		{"  1234 ", "1234", true},
		{"****1234", "****1234", false},
		{"12345", "12345", false},
		{"ACC-0001", "ACC-0001", false},
		{"12a4", "12a4", false},
	}
	for _, tt := range tests {
		normalized, bare := accountNumberQuery(tt.raw)
		assert.Equal(t, tt.normalized, normalized, tt.raw)
		assert.Equal(t, tt.bare, bare, tt.raw)
	}
}

func TestPreferMasked(t *testing.T) {
	assert.Nil(t, preferMasked(nil, "1234"))

	candidates := []models.Account{
		{ID: "plain", AccountNumber: "1234"},
		{ID: "masked", AccountNumber: "****1234"},
	}
	assert.Equal(t, "masked", preferMasked(candidates, "1234").ID)
	assert.Equal(t, "plain", preferMasked(candidates[:1], "1234").ID)
}
