package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEnvBool(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"1", true},
		{"true", true},
		{"TRUE", true},
		{"yes", true},
		{"y", true},
		{"0", false},
		{"false", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("TESTUTIL_FLAG", tt.value)
			assert.Equal(t, tt.want, envBool("TESTUTIL_FLAG"))
		})
	}
}

func TestGetEnvOrDefault(t *testing.T) {
	t.Setenv("TESTUTIL_ADDR", "")
	assert.Equal(t, DefaultTestRedisAddr, getEnvOrDefault("TESTUTIL_ADDR", DefaultTestRedisAddr))

	t.Setenv("TESTUTIL_ADDR", "redis:6379")
	assert.Equal(t, "redis:6379", getEnvOrDefault("TESTUTIL_ADDR", DefaultTestRedisAddr))
}

func TestCrewRequestBuilder(t *testing.T) {
	b := NewCrewRequest().AddCompany("Globex").AddPosition("Designer")
	req := b.Build()

	assert.Equal(t, []string{"Acme", "Globex"}, req.Companies)
	assert.Equal(t, []string{"Engineer", "Designer"}, req.Positions)
	assert.NoError(t, req.Validate())

	// Build returns copies.
	req.Companies[0] = "changed"
	assert.Equal(t, "Acme", b.Build().Companies[0])
}

func TestFixedTimeFunc(t *testing.T) {
	fn := FixedTimeFunc(TestTime())
	assert.Equal(t, time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC), fn())
}
