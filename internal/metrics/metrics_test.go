package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNopMetrics(t *testing.T) {
	m := NopMetrics()
	require.NotNil(t, m)

	assert.NotPanics(t, func() {
		m.Requests.With("opcode", "GET_CALLDATA").Add(1)
		m.RequestDuration.With("opcode", "GET_CALLDATA").Observe(0.01)
		m.TransportErrors.Add(1)
		m.Votes.With("agree", "true").Add(1)
		m.Outcomes.With("code", "return").Add(1)
		m.Sandboxes.Add(1)
		m.NondetCalls.With("role", "leader").Add(1)
	})
}

func TestPrometheusMetricsRejectsUnevenLabels(t *testing.T) {
	_, err := PrometheusMetrics("test", "chain_id")
	assert.Error(t, err)
}

func TestDefaultProviderDisabled(t *testing.T) {
	m, err := DefaultProvider(false)("test")
	require.NoError(t, err)
	assert.Equal(t, NopMetrics(), m)
}
