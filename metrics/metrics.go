package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/xerrors"
)

const namespace = "vulndb_mirror"

// Recorder holds the counters of one mirror run. A nil *Recorder discards everything.
type Recorder struct {
	registry *prometheus.Registry

	pagesFetched   *prometheus.CounterVec
	pagesPersisted *prometheus.CounterVec
	pagesFailed    *prometheus.CounterVec
	cvssSkipped    *prometheus.CounterVec
	checkpointPage *prometheus.GaugeVec
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		pagesFetched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pages_fetched_total",
				Help:      "Total number of pages fetched and parsed",
			},
			[]string{"feed"},
		),
		pagesPersisted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pages_persisted_total",
				Help:      "Total number of pages written to the output directory",
			},
			[]string{"feed"},
		),
		pagesFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pages_failed_total",
				Help:      "Total number of pages that could not be fetched or persisted",
			},
			[]string{"feed", "stage"},
		),
		cvssSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cvss_skipped_total",
				Help:      "Total number of vulnerabilities skipped due to unknown CVSS values",
			},
			[]string{"version"},
		),
		checkpointPage: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "checkpoint_page",
				Help:      "Last page recorded in the checkpoint file",
			},
			[]string{"feed"},
		),
	}
	r.registry.MustRegister(r.pagesFetched, r.pagesPersisted, r.pagesFailed, r.cvssSkipped, r.checkpointPage)
	return r
}

// Registry exposes the underlying registry, mostly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) PageFetched(feed string) {
	if r == nil {
		return
	}
	r.pagesFetched.WithLabelValues(feed).Inc()
}

func (r *Recorder) PagePersisted(feed string) {
	if r == nil {
		return
	}
	r.pagesPersisted.WithLabelValues(feed).Inc()
}

// PageFailed counts a failure at the given stage: fetch, persist or checkpoint.
func (r *Recorder) PageFailed(feed, stage string) {
	if r == nil {
		return
	}
	r.pagesFailed.WithLabelValues(feed, stage).Inc()
}

func (r *Recorder) CvssSkipped(version string) {
	if r == nil {
		return
	}
	r.cvssSkipped.WithLabelValues(version).Inc()
}

func (r *Recorder) Checkpoint(feed string, page int) {
	if r == nil {
		return
	}
	r.checkpointPage.WithLabelValues(feed).Set(float64(page))
}

// WriteTextfile writes all metrics in the node exporter textfile format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return xerrors.Errorf("unable to write metrics to %s: %w", path, err)
	}
	return nil
}
