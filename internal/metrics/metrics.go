package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

var (
	// Physical requests issued to an upstream source
	FetchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_fetch_requests_total",
			Help: "Total number of physical fetch requests",
		},
		[]string{"source", "transport", "outcome"},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scraper_fetch_duration_seconds",
			Help:    "Physical fetch duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source", "transport"},
	)

	FetchRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_fetch_retries_total",
			Help: "Total number of retried fetch attempts",
		},
		[]string{"source"},
	)

	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_cache_lookups_total",
			Help: "Content cache lookups by result",
		},
		[]string{"cache", "result"},
	)

	// Catalog ingestion results
	CatalogsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_catalogs_processed_total",
			Help: "Catalog fetches by outcome",
		},
		[]string{"source", "outcome"},
	)

	CatalogCoins = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scraper_catalog_coins",
			Help: "Number of priced rows in the last parse of a catalog",
		},
		[]string{"source", "catalog"},
	)
)

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	go func() {
		log.Infof("📈 Serving metrics on %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("❌ Metrics listener stopped: %v", err)
		}
	}()
}
