package repair

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClean_MarkerPreservation(t *testing.T) {
	c := NewCleaner(DefaultConfig())

	tests := []struct {
		raw  string
		want string
	}{
		{"** Anti-HBc, Abbott", "Anti-HBc, Abbott"},
		{"** Abbott, Alinity i", "Abbott, Alinity i"},
		{"*отрицательно*", "отрицательно"},
		{"Anti-HCV total (анти-HCV)", "Anti-HCV total (анти-HCV)"},
		{"  12.4   МЕ/мл ", "12.4 МЕ/мл"},
		{"**ОТРИЦАТЕЛЬНО**", "ОТРИЦАТЕЛЬНО"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Clean(tt.raw))
		})
	}
}

func TestClean_SentinelStability(t *testing.T) {
	c := NewCleaner(DefaultConfig())

	for _, raw := range []string{
		"**",
		"*",
		"* * *",
		"  ** ",
		"",
		"   ",
		"...",
		"-",
		"не указан",
		"Не указано",
		"null",
		"None",
		"n/a",
	} {
		t.Run(raw, func(t *testing.T) {
			got := c.Clean(raw)
			assert.Equal(t, "Не указан", got)
			assert.True(t, c.IsSentinel(got))
		})
	}
}

func TestClean_Idempotent(t *testing.T) {
	c := NewCleaner(DefaultConfig())

	inputs := []string{
		"** Anti-HBc, Abbott",
		"**",
		"",
		"отрицательно",
		"Не указан",
		"  12,4 *ммоль/л*  ",
		"* * value * *",
	}

	for _, raw := range inputs {
		t.Run(raw, func(t *testing.T) {
			once := c.Clean(raw)
			assert.Equal(t, once, c.Clean(once))
		})
	}
}

func TestClean_CustomSentinel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sentinel = "Not specified"
	c := NewCleaner(cfg)

	assert.Equal(t, "Not specified", c.Clean("**"))
	assert.Equal(t, "Not specified", c.Clean("not specified"))
}

func TestHasMarker(t *testing.T) {
	assert.True(t, HasMarker("**"))
	assert.True(t, HasMarker("** Abbott"))
	assert.True(t, HasMarker("Abbott *"))
	assert.False(t, HasMarker("Abbott, Alinity i"))
	assert.False(t, HasMarker(""))
}
