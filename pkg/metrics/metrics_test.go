package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGaugeAndCounter(t *testing.T) {
	require.NoError(t, InitMetrics(t.TempDir()))
	defer Close()

	SetGauge("test_gauge", 42)
	Incr("test_counter", 2)
	Incr("test_counter", 3)
	assert.Equal(t, float64(5), Counter("test_counter"))

	points, err := Query("test_gauge", time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, points)
	assert.Equal(t, float64(42), points[len(points)-1].Value)

	empty, err := Query("never_written", time.Minute)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestQueryWithoutInit(t *testing.T) {
	_ = Close()
	_, err := Query("x", time.Minute)
	assert.Error(t, err)
}
