// Registers:
//
//	#opsflow_stream_frames_total
//	#opsflow_stream_reconnects_total
//	#opsflow_stream_dropped_frames_total
//	#opsflow_decode_fallbacks_total
//	#opsflow_poll_success_total / #opsflow_poll_errors_total
//	#opsflow_kill_switch_toggles_total
//	#opsflow_stream_connected / #opsflow_data_mode
//	#go_* and process_* system metrics
//
// Exposes them on the configured address using the Prometheus HTTP handler.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once            sync.Once
	streamFrames    *prometheus.CounterVec
	streamReconns   prometheus.Counter
	streamDropped   prometheus.Counter
	decodeFallbacks prometheus.Counter
	pollSuccess     *prometheus.CounterVec
	pollErrors      *prometheus.CounterVec
	killToggles     *prometheus.CounterVec
	streamConnected prometheus.Gauge
	dataMode        *prometheus.GaugeVec
)

func Init(listenAddr string) {
	once.Do(func() {
		streamFrames = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opsflow_stream_frames_total",
				Help: "Number of websocket frames received, by event kind",
			},
			[]string{"kind"},
		)

		streamReconns = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "opsflow_stream_reconnects_total",
			Help: "Number of reconnect attempts scheduled after a lost connection",
		})

		streamDropped = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "opsflow_stream_dropped_frames_total",
			Help: "Number of frames dropped because the event buffer was full",
		})

		decodeFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "opsflow_decode_fallbacks_total",
			Help: "Number of frames that needed a decoder fallback substitution",
		})

		pollSuccess = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opsflow_poll_success_total",
				Help: "Number of successful poll cycles per endpoint",
			},
			[]string{"endpoint"},
		)

		pollErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opsflow_poll_errors_total",
				Help: "Number of failed poll cycles per endpoint",
			},
			[]string{"endpoint"},
		)

		killToggles = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opsflow_kill_switch_toggles_total",
				Help: "Number of kill-switch toggle commands, by outcome",
			},
			[]string{"outcome"},
		)

		streamConnected = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "opsflow_stream_connected",
			Help: "1 while the event stream connection is established",
		})

		dataMode = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "opsflow_data_mode",
				Help: "1 for the currently derived data mode, 0 otherwise",
			},
			[]string{"mode"},
		)

		_ = prometheus.Register(streamFrames)
		_ = prometheus.Register(streamReconns)
		_ = prometheus.Register(streamDropped)
		_ = prometheus.Register(decodeFallbacks)
		_ = prometheus.Register(pollSuccess)
		_ = prometheus.Register(pollErrors)
		_ = prometheus.Register(killToggles)
		_ = prometheus.Register(streamConnected)
		_ = prometheus.Register(dataMode)
		_ = prometheus.Register(collectors.NewGoCollector())
		_ = prometheus.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		if listenAddr == "" {
			return
		}
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(listenAddr, mux); err != nil {
				panic("metrics server failed: " + err.Error())
			}
		}()
	})
}

// IncrementFrame increases the frame counter for a given event kind.
func IncrementFrame(kind string) {
	if streamFrames != nil {
		streamFrames.WithLabelValues(kind).Inc()
	}
}

// IncrementReconnect increases the reconnect attempt counter.
func IncrementReconnect() {
	if streamReconns != nil {
		streamReconns.Inc()
	}
}

// IncrementDroppedFrame increases the dropped frame counter.
func IncrementDroppedFrame() {
	if streamDropped != nil {
		streamDropped.Inc()
	}
}

// IncrementDecodeFallback increases the decoder substitution counter.
func IncrementDecodeFallback() {
	if decodeFallbacks != nil {
		decodeFallbacks.Inc()
	}
}

// IncrementPollSuccess increases the success counter for a poll endpoint.
func IncrementPollSuccess(endpoint string) {
	if pollSuccess != nil {
		pollSuccess.WithLabelValues(endpoint).Inc()
	}
}

// IncrementPollError increases the error counter for a poll endpoint.
func IncrementPollError(endpoint string) {
	if pollErrors != nil {
		pollErrors.WithLabelValues(endpoint).Inc()
	}
}

// IncrementKillToggle records a kill-switch command outcome ("ok",
// "rejected" or "throttled").
func IncrementKillToggle(outcome string) {
	if killToggles != nil {
		killToggles.WithLabelValues(outcome).Inc()
	}
}

// SetConnected records whether the event stream is currently established.
func SetConnected(connected bool) {
	if streamConnected == nil {
		return
	}
	if connected {
		streamConnected.Set(1)
	} else {
		streamConnected.Set(0)
	}
}

var dataModes = []string{"LIVE", "SIM", "REPLAY", "STALE", "DOWN", "DEMO"}

// SetDataMode marks the given mode active and clears the others.
func SetDataMode(mode string) {
	if dataMode == nil {
		return
	}
	for _, m := range dataModes {
		if m == mode {
			dataMode.WithLabelValues(m).Set(1)
		} else {
			dataMode.WithLabelValues(m).Set(0)
		}
	}
}
