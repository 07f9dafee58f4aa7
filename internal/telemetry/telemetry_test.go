package telemetry

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestMetrics_ObserveAndTextfile(t *testing.T) {
	t.Parallel()
	m := NewMetrics()
	m.Observe(RunSample{
		Outcome:      "DIAGNOSTIC",
		Items:        7,
		Requirements: map[string]int{"MUST": 3},
		GateEvents:   map[string]int{"DIAGNOSTIC": 2},
		Coverage:     1,
		Quality:      100,
		PassMillis:   map[string]float64{"ordering": 0.5},
	})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("DIAGNOSTIC")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.items))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.requirements.WithLabelValues("MUST")))

	path := filepath.Join(t.TempDir(), "specc.prom")
	require.NoError(t, m.WriteTextfile(path))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "specc_quality_score 100")

	var nilMetrics *Metrics
	nilMetrics.Observe(RunSample{})
}

func TestInitTracing_WritesSpans(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := InitTracing(&buf, "test")
	require.NoError(t, err)

	_, span := otel.Tracer("specc.test").Start(context.Background(), "unit.span")
	span.End()
	require.NoError(t, shutdown(context.Background()))
	assert.True(t, strings.Contains(buf.String(), "unit.span"))
}
