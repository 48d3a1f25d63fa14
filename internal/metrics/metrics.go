// Package metrics define las métricas Prometheus del servicio.
// Las métricas viven en un Registry propio (no el global) para que los
// tests puedan crear instancias aisladas.
package metrics

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	reg *prometheus.Registry

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
	HTTPInflight prometheus.Gauge

	Logins          *prometheus.CounterVec // result: ok|invalid|locked|unverified|suspended
	CredentialFails prometheus.Counter
	Lockouts        prometheus.Counter
	Refreshes       *prometheus.CounterVec // result: ok|mismatch|reused|invalid
	PermissionDeny  *prometheus.CounterVec // permission
	BedtimeDeny     prometheus.Counter
	RateLimited     *prometheus.CounterVec // bucket
	EmailsSent      *prometheus.CounterVec // template, result
}

// New crea y registra todas las métricas. Incluye collectors de Go y proceso.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Número total de requests procesadas",
		}, []string{"method", "path", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Latencia de los requests HTTP",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		HTTPInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Requests en vuelo",
		}),
		Logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Intentos de login por resultado",
		}, []string{"result"}),
		CredentialFails: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_credential_failures_total",
			Help: "Passwords incorrectas contra cuentas existentes",
		}),
		Lockouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_lockouts_total",
			Help: "Cuentas bloqueadas por intentos fallidos",
		}),
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_refreshes_total",
			Help: "Rotaciones de refresh token por resultado",
		}, []string{"result"}),
		PermissionDeny: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "family_permission_denied_total",
			Help: "Operaciones familiares denegadas por permiso",
		}, []string{"permission"}),
		BedtimeDeny: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "family_bedtime_denied_total",
			Help: "Requests de menores denegados por horario",
		}),
		RateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rate_limited_total",
			Help: "Requests rechazados por rate limit",
		}, []string{"bucket"}),
		EmailsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "emails_sent_total",
			Help: "Emails enviados por template y resultado",
		}, []string{"template", "result"}),
	}
	m.reg = reg
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequests, m.HTTPDuration, m.HTTPInflight,
		m.Logins, m.CredentialFails, m.Lockouts, m.Refreshes,
		m.PermissionDeny, m.BedtimeDeny, m.RateLimited, m.EmailsSent,
	)
	return m
}

// Registry expone el registry (para tests o collectors extra).
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler sirve /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// RegisterPool agrega gauges del pool de Postgres.
func (m *Metrics) RegisterPool(pool func() *pgxpool.Pool) error {
	return m.reg.Register(newPoolCollector(pool))
}

// ObserveHTTP registra un request terminado.
func (m *Metrics) ObserveHTTP(method, path string, status int, d time.Duration) {
	if status == 0 {
		status = http.StatusOK
	}
	method = strings.ToUpper(method)
	m.HTTPDuration.WithLabelValues(method, path).Observe(d.Seconds())
	m.HTTPRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
}

// poolCollector expone gauges del pool global.
type poolCollector struct {
	pool func() *pgxpool.Pool

	acquiredDesc *prometheus.Desc
	idleDesc     *prometheus.Desc
	totalDesc    *prometheus.Desc
}

func newPoolCollector(pool func() *pgxpool.Pool) *poolCollector {
	return &poolCollector{
		pool:         pool,
		acquiredDesc: prometheus.NewDesc("pg_pool_acquired", "Conexiones adquiridas", nil, nil),
		idleDesc:     prometheus.NewDesc("pg_pool_idle", "Conexiones inactivas", nil, nil),
		totalDesc:    prometheus.NewDesc("pg_pool_total", "Conexiones totales", nil, nil),
	}
}

func (c *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.acquiredDesc
	ch <- c.idleDesc
	ch <- c.totalDesc
}

func (c *poolCollector) Collect(ch chan<- prometheus.Metric) {
	if c.pool == nil {
		return
	}
	p := c.pool()
	if p == nil {
		return
	}
	stat := p.Stat()
	ch <- prometheus.MustNewConstMetric(c.acquiredDesc, prometheus.GaugeValue, float64(stat.AcquiredConns()))
	ch <- prometheus.MustNewConstMetric(c.idleDesc, prometheus.GaugeValue, float64(stat.IdleConns()))
	ch <- prometheus.MustNewConstMetric(c.totalDesc, prometheus.GaugeValue, float64(stat.TotalConns()))
}

var (
	uuidSegmentRE  = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F-]{4}-[0-9a-fA-F-]{4,}$`)
	hexSegmentRE   = regexp.MustCompile(`^[0-9a-fA-F]{16,}$`)
	tokenSegmentRE = regexp.MustCompile(`^[A-Za-z0-9_-]{24,}$`)
)

// NormalizePath reemplaza segmentos dinámicos (ids, tokens) por ":param"
// para acotar la cardinalidad del label path.
func NormalizePath(p string) string {
	clean := strings.SplitN(p, "?", 2)[0]
	var out []string
	for _, seg := range strings.Split(clean, "/") {
		if seg == "" {
			continue
		}
		if isDynamicSegment(seg) {
			out = append(out, ":param")
		} else {
			out = append(out, seg)
		}
	}
	if len(out) == 0 {
		return "/"
	}
	return "/" + strings.Join(out, "/")
}

func isDynamicSegment(seg string) bool {
	if len(seg) > 48 {
		return true
	}
	if uuidSegmentRE.MatchString(seg) || hexSegmentRE.MatchString(seg) || tokenSegmentRE.MatchString(seg) {
		return true
	}
	_, err := strconv.Atoi(seg)
	return err == nil
}
