package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitTokens(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"separate args", []string{"run", "focus"}, []string{"run", "focus"}},
		{"single quoted arg", []string{"report  summary"}, []string{"report", "summary"}},
		{"blank", []string{"   "}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, splitTokens(tt.in))
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "exactly10!", truncate("exactly10!", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
	assert.Equal(t, "ünï…", truncate("ünïcödé", 4))
}

func TestSortedKeys(t *testing.T) {
	assert.Equal(t, []string{"Code", "Firefox", "kitty"}, sortedKeys(map[string]int{
		"kitty":   1,
		"Code":    2,
		"Firefox": 3,
	}))
	assert.Empty(t, sortedKeys(map[string]int{}))
}
