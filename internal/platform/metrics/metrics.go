package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics: Prometheus メトリクス一式
type Metrics struct {
	Registry        *prometheus.Registry
	Taps            *prometheus.CounterVec
	Registrations   *prometheus.CounterVec
	ForceLogout     prometheus.Counter
	NotifyClients   prometheus.Gauge
	RequestDuration *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Taps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "presence_taps_total",
			Help: "Card taps at the kiosk by result (in, out, duplicate, unknown_card, error).",
		}, []string{"result"}),
		Registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "presence_registrations_total",
			Help: "Registration handshake steps by stage and result.",
		}, []string{"stage", "result"}),
		ForceLogout: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "presence_force_logout_members_total",
			Help: "Members clocked out by force-logout-all.",
		}),
		NotifyClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "presence_notify_clients",
			Help: "Connected kiosk websocket clients.",
		}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "presence_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "route", "status"}),
	}
	m.Registry.MustRegister(m.Taps, m.Registrations, m.ForceLogout, m.NotifyClients, m.RequestDuration)
	m.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return m
}

func (m *Metrics) Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
}

// Middleware: ルートテンプレート単位でレイテンシを記録
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.RequestDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

// nil レシーバでも呼べるようにしておく（テストでは省略可）

func (m *Metrics) Tap(result string) {
	if m == nil {
		return
	}
	m.Taps.WithLabelValues(result).Inc()
}

func (m *Metrics) Registration(stage, result string) {
	if m == nil {
		return
	}
	m.Registrations.WithLabelValues(stage, result).Inc()
}

func (m *Metrics) ForcedOut(n int) {
	if m == nil {
		return
	}
	m.ForceLogout.Add(float64(n))
}

func (m *Metrics) SetNotifyClients(n int) {
	if m == nil {
		return
	}
	m.NotifyClients.Set(float64(n))
}
