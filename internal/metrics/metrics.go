package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for ingestion and serving.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	FetchAttempts *prometheus.CounterVec
	Articles      *prometheus.CounterVec
	QuotesStored  *prometheus.CounterVec
	Commits       prometheus.Counter
	Served        *prometheus.CounterVec
	QueueResets   prometheus.Counter
	RunDuration   prometheus.Histogram
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		FetchAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "quotewire_fetch_attempts_total",
			Help: "HTTP fetch attempts by outcome",
		}, []string{"outcome"}), // ok, retry, failed
		Articles: f.NewCounterVec(prometheus.CounterOpts{
			Name: "quotewire_articles_total",
			Help: "Processed articles by site and outcome status",
		}, []string{"site", "status"}),
		QuotesStored: f.NewCounterVec(prometheus.CounterOpts{
			Name: "quotewire_quotes_stored_total",
			Help: "New quotes written to the store",
		}, []string{"site"}),
		Commits: f.NewCounter(prometheus.CounterOpts{
			Name: "quotewire_batch_commits_total",
			Help: "Successful batch commits",
		}),
		Served: f.NewCounterVec(prometheus.CounterOpts{
			Name: "quotewire_queue_served_total",
			Help: "Display queue serve calls by result",
		}, []string{"result"}), // served, empty, error
		QueueResets: f.NewCounter(prometheus.CounterOpts{
			Name: "quotewire_queue_resets_total",
			Help: "Times the display queue was reset",
		}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "quotewire_run_duration_seconds",
			Help:    "Duration of ingestion runs",
			Buckets: []float64{10, 30, 60, 120, 300, 600, 1200},
		}),
	}
}

func (m *Metrics) IncFetch(outcome string) {
	if m == nil {
		return
	}
	m.FetchAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncArticle(site, status string) {
	if m == nil {
		return
	}
	m.Articles.WithLabelValues(site, status).Inc()
}

func (m *Metrics) AddQuotes(site string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.QuotesStored.WithLabelValues(site).Add(float64(n))
}

func (m *Metrics) AddCommits(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Commits.Add(float64(n))
}

func (m *Metrics) IncServed(result string) {
	if m == nil {
		return
	}
	m.Served.WithLabelValues(result).Inc()
}

func (m *Metrics) IncReset() {
	if m == nil {
		return
	}
	m.QueueResets.Inc()
}

func (m *Metrics) ObserveRun(seconds float64) {
	if m == nil {
		return
	}
	m.RunDuration.Observe(seconds)
}
