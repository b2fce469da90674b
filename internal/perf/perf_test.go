package perf

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func TestAggregator_Summary(t *testing.T) {
	a := NewAggregator(0)
	for i := 1; i <= 100; i++ {
		a.Record(Sample{Name: "GET /clients", Duration: ms(i)})
	}
	a.Record(Sample{Name: "POST /cases", Duration: ms(5)})
	a.Record(Sample{Name: "", Duration: ms(5)})
	a.Record(Sample{Name: "bad", Duration: -1})

	stats := a.Summary()
	require.Len(t, stats, 2)
	assert.Equal(t, "GET /clients", stats[0].Name)
	assert.Equal(t, "POST /cases", stats[1].Name)

	s := stats[0]
	assert.Equal(t, 100, s.Count)
	assert.Equal(t, ms(1), s.Min)
	assert.Equal(t, ms(100), s.Max)
	assert.Equal(t, 50500*time.Microsecond, s.Mean)
	assert.Equal(t, ms(50), s.P50)
	assert.Equal(t, ms(90), s.P90)
	assert.Equal(t, ms(95), s.P95)
	assert.Equal(t, ms(99), s.P99)

	single := stats[1]
	assert.Equal(t, ms(5), single.P50)
	assert.Equal(t, ms(5), single.P99)
}

func TestPercentile_NearestRank(t *testing.T) {
	values := []time.Duration{ms(15), ms(20), ms(35), ms(40), ms(50)}
	assert.Equal(t, ms(15), percentile(values, 5))
	assert.Equal(t, ms(20), percentile(values, 30))
	assert.Equal(t, ms(20), percentile(values, 40))
	assert.Equal(t, ms(35), percentile(values, 50))
	assert.Equal(t, ms(50), percentile(values, 100))
	assert.Equal(t, ms(15), percentile(values, 0))
}

func TestAggregator_Window(t *testing.T) {
	a := NewAggregator(3)
	for i := 1; i <= 5; i++ {
		a.Record(Sample{Name: "op", Duration: ms(i)})
	}
	s := a.Summary()[0]
	assert.Equal(t, 3, s.Count)
	assert.Equal(t, ms(3), s.Min, "oldest samples dropped")
	assert.Equal(t, ms(5), s.Max)
}

func TestAggregator_SlowAndReset(t *testing.T) {
	a := NewAggregator(10)
	a.RecordAll([]Sample{
		{Name: "fast", Duration: ms(1)},
		{Name: "slow", Duration: ms(800)},
	})

	slow := a.Slow(ms(500))
	require.Len(t, slow, 1)
	assert.Equal(t, "slow", slow[0].Name)
	assert.Empty(t, a.Slow(time.Second))

	a.Reset()
	assert.Empty(t, a.Summary())
}

func TestAggregator_Concurrent(t *testing.T) {
	a := NewAggregator(50)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				a.Record(Sample{Name: fmt.Sprintf("op%d", i%2), Duration: ms(j)})
				if j%50 == 0 {
					a.Summary()
				}
			}
		}(i)
	}
	wg.Wait()
	for _, s := range a.Summary() {
		assert.Equal(t, 50, s.Count)
	}
}

func TestLoad_JSONLines(t *testing.T) {
	input := `{"name":"db.query","duration_ms":12.5,"at":"2026-01-02T03:04:05Z"}

{"name":"db.query","duration_ms":7,"tags":{"table":"cases"}}
`
	samples, err := Load(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, 12500*time.Microsecond, samples[0].Duration)
	assert.Equal(t, 2026, samples[0].At.Year())
	assert.Equal(t, "cases", samples[1].Tags["table"])
}

func TestLoad_JSONArray(t *testing.T) {
	samples, err := Load(strings.NewReader(`  [{"name":"a","duration_ms":1},{"name":"b","duration_ms":2}]`))
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, ms(2), samples[1].Duration)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(strings.NewReader("{\"name\":\"a\",\"duration_ms\":1}\nnot json\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")

	_, err = Load(strings.NewReader(`{"duration_ms":1}`))
	assert.ErrorIs(t, err, ErrInvalidSample)

	_, err = Load(strings.NewReader(`[{"name":"a","duration_ms":-3}]`))
	assert.ErrorIs(t, err, ErrInvalidSample)

	samples, err := Load(strings.NewReader("  \n"))
	require.NoError(t, err)
	assert.Empty(t, samples)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"name":"x","duration_ms":3}`+"\n"), 0o644))

	samples, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, samples, 1)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.jsonl"))
	assert.Error(t, err)
}

func TestStats_JSONRoundTrip(t *testing.T) {
	in := Stats{Name: "op", Count: 2, Min: ms(1), Max: ms(3), Mean: ms(2), P50: ms(1), P90: ms(3), P95: ms(3), P99: ms(3)}
	b, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"p95_ms":3`)

	var out Stats
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, in, out)
}

func TestRender(t *testing.T) {
	a := NewAggregator(10)
	a.Record(Sample{Name: "GET /health", Duration: 300 * time.Microsecond})
	a.Record(Sample{Name: "GET /api/v1/reports/business", Duration: 1500 * time.Millisecond})
	r := NewReport(a, time.Second)
	assert.Equal(t, []string{"GET /api/v1/reports/business"}, r.Slow)

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, r, "console"))
	out := buf.String()
	assert.Contains(t, out, "GET /health")
	assert.Contains(t, out, "0.3ms")
	assert.Contains(t, out, "1.50s")
	assert.Contains(t, out, "1 of 2 over p95 1.00s")

	buf.Reset()
	require.NoError(t, Render(&buf, r, "json"))
	var decoded Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Len(t, decoded.Stats, 2)

	assert.ErrorIs(t, Render(&buf, r, "xml"), ErrUnknownFormat)

	buf.Reset()
	require.NoError(t, Render(&buf, NewReport(NewAggregator(1), 0), ""))
	assert.Contains(t, buf.String(), "no samples")
}
