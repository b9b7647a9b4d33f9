package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFold(t *testing.T) {
	tests := map[string]string{
		"  Yaoundé ":            "yaounde",
		"D’ACCORD!":             "d accord",
		"j'accepte, merci.":     "j accepte merci",
		"Akwa-Nord":             "akwa nord",
		"Refusé   pas dispo...": "refuse pas dispo",
		"":                      "",
	}
	for in, want := range tests {
		assert.Equal(t, want, Fold(in), in)
	}
}

func TestContainsPhrase(t *testing.T) {
	padded := Words("Oui, je suis d'accord")

	assert.True(t, ContainsPhrase(padded, "oui"))
	assert.True(t, ContainsPhrase(padded, "d'accord"))
	assert.False(t, ContainsPhrase(padded, "ou"))
	assert.False(t, ContainsPhrase(padded, ""))
}
