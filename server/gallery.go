package main

import (
	"cmp"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/mhbvr/collage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
)

type CollageInfo struct {
	ID      string    `json:"id"`
	Size    int64     `json:"size"`
	SavedAt time.Time `json:"saved_at"`
}

// Gallery serves saved collages over HTTP.
type Gallery struct {
	reader collage.PhotoReader
	tracer oteltrace.Tracer

	requestDuration *prometheus.HistogramVec
	requestsTotal   *prometheus.CounterVec
	inFlight        prometheus.Gauge
	collagesServed  prometheus.Counter
	bytesServed     prometheus.Counter
}

func NewGallery(reader collage.PhotoReader, reg prometheus.Registerer) *Gallery {
	factory := promauto.With(reg)
	return &Gallery{
		reader: reader,
		tracer: otel.Tracer("gallery"),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "collage_http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "handler"},
		),
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collage_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "handler", "code"},
		),
		inFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "collage_http_requests_in_flight",
				Help: "Current number of HTTP requests being served",
			},
		),
		collagesServed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "collage_gallery_collages_served_total",
				Help: "Total number of saved collages served",
			},
		),
		bytesServed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "collage_gallery_bytes_served_total",
				Help: "Total bytes of saved collages served",
			},
		),
	}
}

func (g *Gallery) instrument(name string, h http.HandlerFunc) http.Handler {
	return promhttp.InstrumentHandlerDuration(
		g.requestDuration.MustCurryWith(prometheus.Labels{"handler": name}),
		promhttp.InstrumentHandlerCounter(
			g.requestsTotal.MustCurryWith(prometheus.Labels{"handler": name}),
			promhttp.InstrumentHandlerInFlight(g.inFlight, h),
		),
	)
}

func (g *Gallery) handleList(w http.ResponseWriter, r *http.Request) {
	_, span := g.tracer.Start(r.Context(), "list_collages")
	defer span.End()

	saved, err := g.reader.List()
	if err != nil {
		span.RecordError(err)
		http.Error(w, "Failed to list collages", http.StatusInternalServerError)
		return
	}
	slices.SortFunc(saved, func(a, b collage.SavedCollage) int {
		return cmp.Or(a.SavedAt.Compare(b.SavedAt), cmp.Compare(a.ID, b.ID))
	})

	infos := make([]CollageInfo, 0, len(saved))
	for _, c := range saved {
		infos = append(infos, CollageInfo{ID: c.ID, Size: c.Size, SavedAt: c.SavedAt})
	}
	span.SetAttributes(attribute.Int("collages.count", len(infos)))

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(infos); err != nil {
		span.RecordError(err)
	}
}

func (g *Gallery) handleDownload(w http.ResponseWriter, r *http.Request) {
	_, span := g.tracer.Start(r.Context(), "download_collage")
	defer span.End()

	id := r.PathValue("id")
	span.SetAttributes(attribute.String("collage.id", id))

	data, err := g.reader.Load(id)
	if err != nil {
		if errors.Is(err, collage.ErrNotFound) {
			http.Error(w, "Collage not found", http.StatusNotFound)
			return
		}
		span.RecordError(err)
		http.Error(w, "Failed to load collage", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	written, err := w.Write(data)
	if err != nil {
		span.RecordError(err)
		return
	}

	g.collagesServed.Inc()
	g.bytesServed.Add(float64(written))
	span.SetAttributes(attribute.Int("bytes.served", written))
}

// responseWriterWithStatus wraps http.ResponseWriter to capture status code
type responseWriterWithStatus struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (rw *responseWriterWithStatus) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriterWithStatus) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

// loggingMiddleware logs each HTTP request with details
func loggingMiddleware(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriterWithStatus{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		clientIP := r.RemoteAddr
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			clientIP = strings.Split(xff, ",")[0]
		}

		next.ServeHTTP(rw, r)

		logger.Printf("%s %s %d %d bytes %v %s", r.Method, r.URL.Path, rw.statusCode,
			rw.bytesWritten, time.Since(start), clientIP)
	})
}

// SetupHTTP builds the handler of the metrics port: saved collages,
// Prometheus metrics and, when zpagesHandler is set, trace debugging.
func SetupHTTP(g *Gallery, gatherer prometheus.Gatherer, zpagesHandler http.Handler, logger *log.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /collages", g.instrument("list", g.handleList))
	mux.Handle("GET /collages/{id}", g.instrument("download", g.handleDownload))
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	if zpagesHandler != nil {
		mux.Handle("GET /tracez", zpagesHandler)
	}
	return loggingMiddleware(logger, otelhttp.NewHandler(mux, "request"))
}
