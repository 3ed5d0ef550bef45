package utils

import (
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
)

func TestTrimToNil(t *testing.T) {
	tests := []struct {
		name  string
		input *string
		want  *string
	}{
		{name: "nil", input: nil, want: nil},
		{name: "empty", input: lo.ToPtr(""), want: nil},
		{name: "whitespace only", input: lo.ToPtr(" \t\r\n "), want: nil},
		{name: "trimmed", input: lo.ToPtr("  Microsoft\r\n"), want: lo.ToPtr("Microsoft")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TrimToNil(tt.input))
		})
	}
}

func TestWait(t *testing.T) {
	for i := 1; i <= 3; i++ {
		got := Wait(i)
		assert.GreaterOrEqual(t, got, time.Duration(i*i)*time.Second)
		assert.Less(t, got, time.Duration(i*i+10)*time.Second)
	}
}

func TestLookupEnv(t *testing.T) {
	t.Setenv("VULNDB_TEST_LOOKUP", "set")
	assert.Equal(t, "set", LookupEnv("VULNDB_TEST_LOOKUP", "default"))
	assert.Equal(t, "default", LookupEnv("VULNDB_TEST_LOOKUP_MISSING", "default"))
}
