package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncArticle("BBC", "stored")
	m.IncArticle("BBC", "stored")
	m.AddQuotes("BBC", 3)
	m.AddCommits(2)
	m.IncServed("empty")
	m.IncReset()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Articles.WithLabelValues("BBC", "stored")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.QuotesStored.WithLabelValues("BBC")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Commits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Served.WithLabelValues("empty")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueueResets))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncFetch("ok")
		m.IncArticle("x", "error")
		m.AddQuotes("x", 1)
		m.AddCommits(1)
		m.IncServed("served")
		m.IncReset()
		m.ObserveRun(1)
	})
}
