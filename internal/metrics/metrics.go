// Package metrics provides Prometheus instrumentation for the pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sentinel"

// Metrics groups the pipeline collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	FeedFetches      *prometheus.CounterVec
	ArticlesFetched  prometheus.Counter
	ArticlesInserted prometheus.Counter
	Enrichments      *prometheus.CounterVec
	AlertsFired      *prometheus.CounterVec
	StoreSize        prometheus.Gauge
	RunsSkipped      *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		FeedFetches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "feed_fetches_total",
				Help:      "Feed fetch attempts by result",
			},
			[]string{"result"},
		),
		ArticlesFetched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_fetched_total",
			Help:      "Feed items returned by sources",
		}),
		ArticlesInserted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_inserted_total",
			Help:      "Articles newly admitted to the store",
		}),
		Enrichments: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "enrichments_total",
				Help:      "Enriched articles by result (analyzed, fallback)",
			},
			[]string{"result"},
		),
		AlertsFired: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alerts_fired_total",
				Help:      "Alert records produced by channel",
			},
			[]string{"channel"},
		),
		StoreSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_articles",
			Help:      "Articles currently held in the store",
		}),
		RunsSkipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_skipped_total",
				Help:      "Operations rejected because another run was in progress",
			},
			[]string{"operation"},
		),
	}
}

func (m *Metrics) FeedFetched(ok bool, items int) {
	if m == nil {
		return
	}

	if ok {
		m.FeedFetches.WithLabelValues("ok").Inc()
	} else {
		m.FeedFetches.WithLabelValues("error").Inc()
	}
	m.ArticlesFetched.Add(float64(items))
}

func (m *Metrics) Merged(inserted, size int) {
	if m == nil {
		return
	}

	m.ArticlesInserted.Add(float64(inserted))
	m.StoreSize.Set(float64(size))
}

func (m *Metrics) Enriched(fallback bool) {
	if m == nil {
		return
	}

	if fallback {
		m.Enrichments.WithLabelValues("fallback").Inc()
	} else {
		m.Enrichments.WithLabelValues("analyzed").Inc()
	}
}

func (m *Metrics) AlertFired(channel string) {
	if m == nil {
		return
	}

	m.AlertsFired.WithLabelValues(channel).Inc()
}

func (m *Metrics) Skipped(operation string) {
	if m == nil {
		return
	}

	m.RunsSkipped.WithLabelValues(operation).Inc()
}

// Handler exposes the registry over HTTP.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
