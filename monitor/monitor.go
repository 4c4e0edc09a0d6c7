// monitor/monitor.go
package monitor

import (
	"context"
	"errors"
	"expvar"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wfunc/walkerserver/logger"
)

type Metrics struct {
	OnlinePlayers    prometheus.Gauge
	ActiveRooms      prometheus.Gauge
	MessagesReceived prometheus.Counter
	MessagesDropped  *prometheus.CounterVec
	MessageLatency   prometheus.Histogram
	WalkersSpawned   *prometheus.CounterVec
	WalkersExpired   prometheus.Counter
	Buys             *prometheus.CounterVec
	Sells            *prometheus.CounterVec
	Steals           *prometheus.CounterVec
	IncomeCredited   prometheus.Counter
}

// NewMetrics registers every collector on reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OnlinePlayers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_players",
			Help:      "Number of online players",
		}),
		ActiveRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_rooms",
			Help:      "Number of active rooms",
		}),
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Total number of messages received",
		}),
		MessagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dropped_total",
			Help:      "Inbound messages dropped before dispatch",
		}, []string{"reason"}),
		MessageLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_latency_seconds",
			Help:      "Message processing latency",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 10),
		}),
		WalkersSpawned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "walkers_spawned_total",
			Help:      "Walkers spawned, by rarity",
		}, []string{"rarity"}),
		WalkersExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "walkers_expired_total",
			Help:      "Walkers that expired unbought",
		}),
		Buys: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "buys_total",
			Help:      "Buy requests, by outcome",
		}, []string{"outcome"}),
		Sells: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sells_total",
			Help:      "Sell requests, by outcome",
		}, []string{"outcome"}),
		Steals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steals_total",
			Help:      "Steal negotiations, by phase reached",
		}, []string{"phase"}),
		IncomeCredited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "income_credited_total",
			Help:      "Money credited by the income ticker",
		}),
	}

	reg.MustRegister(
		m.OnlinePlayers,
		m.ActiveRooms,
		m.MessagesReceived,
		m.MessagesDropped,
		m.MessageLatency,
		m.WalkersSpawned,
		m.WalkersExpired,
		m.Buys,
		m.Sells,
		m.Steals,
		m.IncomeCredited,
	)

	return m
}

// Monitor 实现 room.Recorder，并暴露 /metrics 与 /debug/vars
type Monitor struct {
	metrics      *Metrics
	registry     *prometheus.Registry
	startTime    time.Time
	requestCount int64
	vars         *expvar.Map
	server       *http.Server
	mutex        sync.Mutex
}

func NewMonitor(namespace string) *Monitor {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := &Monitor{
		metrics:   NewMetrics(namespace, reg),
		registry:  reg,
		startTime: time.Now(),
		vars:      new(expvar.Map).Init(),
	}
	// 不用 expvar.Publish：全局名字会被第一个 Monitor 占住
	m.vars.Set("uptime", expvar.Func(func() interface{} {
		return time.Since(m.startTime).Seconds()
	}))
	m.vars.Set("requests", expvar.Func(func() interface{} {
		m.mutex.Lock()
		defer m.mutex.Unlock()
		return m.requestCount
	}))
	return m
}

func (m *Monitor) Metrics() *Metrics {
	return m.metrics
}

func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves /metrics and this monitor's vars on /debug/vars.
func (m *Monitor) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry}))
	mux.HandleFunc("/debug/vars", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		io.WriteString(w, m.vars.String())
	})
	return mux
}

func (m *Monitor) StartServer(addr string) {
	m.mutex.Lock()
	m.server = &http.Server{Addr: addr, Handler: m.Handler()}
	srv := m.server
	m.mutex.Unlock()

	go func() {
		logger.Log.Infof("Metrics server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Errorf("Metrics server error: %v", err)
		}
	}()
}

func (m *Monitor) Shutdown(ctx context.Context) error {
	m.mutex.Lock()
	srv := m.server
	m.mutex.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (m *Monitor) IncOnlinePlayers() {
	m.metrics.OnlinePlayers.Inc()
}

func (m *Monitor) DecOnlinePlayers() {
	m.metrics.OnlinePlayers.Dec()
}

func (m *Monitor) SetActiveRooms(count int) {
	m.metrics.ActiveRooms.Set(float64(count))
}

func (m *Monitor) IncMessagesReceived() {
	m.metrics.MessagesReceived.Inc()
	m.mutex.Lock()
	m.requestCount++
	m.mutex.Unlock()
}

func (m *Monitor) MessageDropped(reason string) {
	m.metrics.MessagesDropped.WithLabelValues(reason).Inc()
}

func (m *Monitor) ObserveMessageLatency(duration time.Duration) {
	m.metrics.MessageLatency.Observe(duration.Seconds())
}

func (m *Monitor) WalkerSpawned(rarity string) {
	m.metrics.WalkersSpawned.WithLabelValues(rarity).Inc()
}

func (m *Monitor) WalkerExpired() {
	m.metrics.WalkersExpired.Inc()
}

func (m *Monitor) BuyOutcome(outcome string) {
	m.metrics.Buys.WithLabelValues(outcome).Inc()
}

func (m *Monitor) SellOutcome(outcome string) {
	m.metrics.Sells.WithLabelValues(outcome).Inc()
}

func (m *Monitor) StealOutcome(outcome string) {
	m.metrics.Steals.WithLabelValues(outcome).Inc()
}

func (m *Monitor) IncomeCredited(amount int64) {
	m.metrics.IncomeCredited.Add(float64(amount))
}
