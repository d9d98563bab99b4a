package mqttsn

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/golang-io/requests"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Stat struct {
	Uptime            prometheus.Counter
	ActiveConnections prometheus.Gauge
	PacketReceived    prometheus.Counter
	ByteReceived      prometheus.Counter
	PacketSent        prometheus.Counter
	ByteSent          prometheus.Counter
	Retries           prometheus.Counter
	FramesDropped     prometheus.Counter
}

var (
	stat = Stat{
		Uptime:            prometheus.NewCounter(prometheus.CounterOpts{Name: "mqttsn_uptime_seconds", Help: "The uptime in seconds"}),
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{Name: "mqttsn_active_client_count", Help: "The active number of MQTT-SN clients"}),
		PacketReceived:    prometheus.NewCounter(prometheus.CounterOpts{Name: "mqttsn_received_packets", Help: "The total number of received MQTT-SN frames"}),
		ByteReceived:      prometheus.NewCounter(prometheus.CounterOpts{Name: "mqttsn_received_bytes", Help: "The total number of received MQTT-SN bytes"}),
		PacketSent:        prometheus.NewCounter(prometheus.CounterOpts{Name: "mqttsn_send_packets", Help: "The total number of send MQTT-SN frames"}),
		ByteSent:          prometheus.NewCounter(prometheus.CounterOpts{Name: "mqttsn_send_bytes", Help: "The total number of send MQTT-SN bytes"}),
		Retries:           prometheus.NewCounter(prometheus.CounterOpts{Name: "mqttsn_retransmit_total", Help: "The total number of frame retransmissions"}),
		FramesDropped:     prometheus.NewCounter(prometheus.CounterOpts{Name: "mqttsn_dropped_frames", Help: "The total number of malformed or unknown frames dropped"}),
	}
)

func ServerLog(ctx context.Context, stat *requests.Stat) {
	b, err := json.Marshal(stat.Request.Body)
	log.Printf("%s # body=%s, resp=%v, err=%v", stat.Print(), b, stat.Response.Body, err)
}

func Httpd() error {
	stat.Register()
	stat.RefreshUptime()
	mux := requests.NewServeMux(requests.URL(CONFIG.HTTP.URL), requests.Logf(ServerLog))
	mux.Route("/metrics", promhttp.Handler())
	mux.Pprof()
	s := requests.NewServer(context.Background(), mux, requests.OnStart(func(s *http.Server) {
		log.Printf("http serve: %s", s.Addr)
	}))
	return s.ListenAndServe()
}

func (s *Stat) RefreshUptime() {
	go func() {
		tick := time.NewTicker(time.Second)
		for {
			select {
			case <-tick.C:
				s.Uptime.Inc()
			}
		}
	}()
}

func (s *Stat) Register() {
	prometheus.MustRegister(stat.Uptime)
	prometheus.MustRegister(stat.ActiveConnections)
	prometheus.MustRegister(stat.PacketReceived)
	prometheus.MustRegister(stat.ByteReceived)
	prometheus.MustRegister(stat.PacketSent)
	prometheus.MustRegister(stat.ByteSent)
	prometheus.MustRegister(stat.Retries)
	prometheus.MustRegister(stat.FramesDropped)
}
