package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/kstaniek/go-notecard-server/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus counters
var (
	Transactions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notecard_transactions_total",
		Help: "Total request/response transactions started with the Notecard.",
	})
	Resets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notecard_resets_total",
		Help: "Total resynchronization procedures started.",
	})
	ResetAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notecard_reset_attempts_total",
		Help: "Total individual resynchronization attempts (newline sent, CRLF awaited).",
	})
	TxBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notecard_tx_bytes_total",
		Help: "Total request bytes written to the serial link.",
	})
	TxSegments = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notecard_tx_segments_total",
		Help: "Total request segments written to the serial link.",
	})
	RxBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notecard_rx_bytes_total",
		Help: "Total response bytes read from the serial link.",
	})
	Synced = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "notecard_synced",
		Help: "1 when the link is synchronized with the Notecard, 0 when a reset is pending.",
	})
	TCPRxRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tcp_rx_requests_total",
		Help: "Total request lines received from TCP clients.",
	})
	TCPTxResponses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tcp_tx_responses_total",
		Help: "Total response lines sent to TCP clients.",
	})
	QueueDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "queue_dropped_requests_total",
		Help: "Total requests rejected because the transaction queue was full.",
	})
	HubDroppedResponses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_dropped_responses_total",
		Help: "Total responses dropped by hub due to slow clients.",
	})
	HubKickedClients = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_kicked_clients_total",
		Help: "Total clients disconnected due to backpressure kick policy.",
	})
	HubRejectedClients = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_rejected_clients_total",
		Help: "Total client connection attempts rejected (e.g., max-clients).",
	})
	HubActiveClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_active_clients",
		Help: "Current number of active connected clients.",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})
	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality)
const (
	ErrTCPRead          = "tcp_read"
	ErrTCPWrite         = "tcp_write"
	ErrBadRequest       = "bad_request"
	ErrSerialWrite      = "serial_write"
	ErrSerialRead       = "serial_read"
	ErrQueueOverflow    = "queue_overflow"
	ErrNotecardReset    = "notecard_reset"
	ErrNotecardOverflow = "notecard_buffer_overflow"
	ErrNotecardDecode   = "notecard_decode"
	ErrNotecardDevice   = "notecard_device"
)

// StartHTTP serves Prometheus metrics at /metrics and readiness at /ready.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters for easy logging (avoid Prometheus scraping in-process)
var (
	localTransactions  uint64
	localResets        uint64
	localResetAttempts uint64
	localTxBytes       uint64
	localTxSegments    uint64
	localRxBytes       uint64
	localSynced        uint64
	localTCPRx         uint64
	localTCPTx         uint64
	localQueueDrop     uint64
	localHubDrop       uint64
	localHubKick       uint64
	localHubReject     uint64
	localHubClients    uint64
	localErrors        uint64
)

// Snapshot is a cheap copy of local counters.
type Snapshot struct {
	Transactions  uint64
	Resets        uint64
	ResetAttempts uint64
	TxBytes       uint64
	TxSegments    uint64
	RxBytes       uint64
	Synced        bool
	TCPRx         uint64
	TCPTx         uint64
	QueueDrops    uint64
	HubDrops      uint64
	HubKicks      uint64
	HubRejects    uint64
	HubClients    uint64
	Errors        uint64 // sum across error labels
}

func Snap() Snapshot {
	return Snapshot{
		Transactions:  atomic.LoadUint64(&localTransactions),
		Resets:        atomic.LoadUint64(&localResets),
		ResetAttempts: atomic.LoadUint64(&localResetAttempts),
		TxBytes:       atomic.LoadUint64(&localTxBytes),
		TxSegments:    atomic.LoadUint64(&localTxSegments),
		RxBytes:       atomic.LoadUint64(&localRxBytes),
		Synced:        atomic.LoadUint64(&localSynced) == 1,
		TCPRx:         atomic.LoadUint64(&localTCPRx),
		TCPTx:         atomic.LoadUint64(&localTCPTx),
		QueueDrops:    atomic.LoadUint64(&localQueueDrop),
		HubDrops:      atomic.LoadUint64(&localHubDrop),
		HubKicks:      atomic.LoadUint64(&localHubKick),
		HubRejects:    atomic.LoadUint64(&localHubReject),
		HubClients:    atomic.LoadUint64(&localHubClients),
		Errors:        atomic.LoadUint64(&localErrors),
	}
}

// Wrapper helpers to keep call sites simple.
func IncTransaction() {
	Transactions.Inc()
	atomic.AddUint64(&localTransactions, 1)
}

func IncReset() {
	Resets.Inc()
	atomic.AddUint64(&localResets, 1)
}

func IncResetAttempt() {
	ResetAttempts.Inc()
	atomic.AddUint64(&localResetAttempts, 1)
}

// AddTx accounts one written segment of n bytes.
func AddTx(n int) {
	TxBytes.Add(float64(n))
	TxSegments.Inc()
	atomic.AddUint64(&localTxBytes, uint64(n))
	atomic.AddUint64(&localTxSegments, 1)
}

func AddRx(n int) {
	RxBytes.Add(float64(n))
	atomic.AddUint64(&localRxBytes, uint64(n))
}

// SetSynced records whether the link is synchronized.
func SetSynced(ok bool) {
	var v uint64
	if ok {
		v = 1
	}
	Synced.Set(float64(v))
	atomic.StoreUint64(&localSynced, v)
}

func IncTCPRx() {
	TCPRxRequests.Inc()
	atomic.AddUint64(&localTCPRx, 1)
}

func IncTCPTx() {
	TCPTxResponses.Inc()
	atomic.AddUint64(&localTCPTx, 1)
}

func IncQueueDrop() {
	QueueDropped.Inc()
	atomic.AddUint64(&localQueueDrop, 1)
}

func IncHubDrop() {
	HubDroppedResponses.Inc()
	atomic.AddUint64(&localHubDrop, 1)
}

func IncHubKick() {
	HubKickedClients.Inc()
	atomic.AddUint64(&localHubKick, 1)
}

func IncHubReject() {
	HubRejectedClients.Inc()
	atomic.AddUint64(&localHubReject, 1)
}

func SetHubClients(n int) {
	HubActiveClients.Set(float64(n))
	atomic.StoreUint64(&localHubClients, uint64(n))
}

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

// InitBuildInfo sets the build info gauge (should be called once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	// Pre-register common error label series so first error does not log a registration latency.
	for _, lbl := range []string{
		ErrTCPRead, ErrTCPWrite, ErrBadRequest,
		ErrSerialWrite, ErrSerialRead, ErrQueueOverflow,
		ErrNotecardReset, ErrNotecardOverflow, ErrNotecardDecode, ErrNotecardDevice,
	} {
		Errors.WithLabelValues(lbl).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil { // if not set yet, treat as ready so metrics endpoint doesn't flap
		return true
	}
	return fn()
}
