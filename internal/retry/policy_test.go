package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, Linear, p.Mode)
	assert.Equal(t, time.Second, p.Initial)
	assert.Equal(t, 30*time.Second, p.Max)
	assert.Equal(t, 2, p.MaxRetries)
	assert.Zero(t, Disabled().MaxRetries)
}

func TestNewPolicy_ClampsInitialToMax(t *testing.T) {
	p := NewPolicy(Fixed, 5*time.Second, 2*time.Second, 5)
	assert.Equal(t, 2*time.Second, p.Initial)
	assert.Equal(t, 2*time.Second, p.Max)
	assert.Equal(t, Fixed, p.Mode)
	assert.Equal(t, 5, p.MaxRetries)
}

func TestNewPolicy_UnknownModeFallsBack(t *testing.T) {
	p := NewPolicy("weird", 250*time.Millisecond, 500*time.Millisecond, -1)
	assert.Equal(t, Linear, p.Mode)
	assert.Equal(t, 2, p.MaxRetries)
}

func TestDelay(t *testing.T) {
	ms := time.Millisecond
	cases := []struct {
		name   string
		policy Policy
		want   []time.Duration
	}{
		{"fixed", NewPolicy(Fixed, 100*ms, 500*ms, 3), []time.Duration{100 * ms, 100 * ms, 100 * ms}},
		{"linear", NewPolicy(Linear, 100*ms, 250*ms, 5), []time.Duration{100 * ms, 200 * ms, 250 * ms, 250 * ms}},
		{"exponential", NewPolicy(Exponential, 50*ms, 160*ms, 5), []time.Duration{50 * ms, 100 * ms, 160 * ms, 160 * ms}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for i, want := range tc.want {
				assert.Equal(t, want, tc.policy.Delay(i+1), "attempt %d", i+1)
			}
		})
	}
}

func TestDelay_EdgeCases(t *testing.T) {
	p := NewPolicy(Linear, 10*time.Millisecond, 20*time.Millisecond, 1)
	assert.Zero(t, p.Delay(0))
	assert.Zero(t, p.Delay(-1))

	exp := NewPolicy(Exponential, time.Second, time.Minute, 100)
	assert.Equal(t, time.Minute, exp.Delay(64))
}

func TestValidate(t *testing.T) {
	require.Error(t, Policy{Mode: Linear, Max: time.Second, MaxRetries: 1}.Validate())
	require.Error(t, Policy{Mode: Linear, Initial: time.Second, MaxRetries: 1}.Validate())
	require.Error(t, Policy{Mode: Linear, Initial: time.Second, Max: 2 * time.Second, MaxRetries: -1}.Validate())
	require.NoError(t, Policy{Mode: Linear, Initial: time.Second, Max: 2 * time.Second}.Validate())
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, Linear, m)

	m, err = ParseMode("exponential")
	require.NoError(t, err)
	assert.Equal(t, Exponential, m)

	_, err = ParseMode("random")
	require.Error(t, err)
}
