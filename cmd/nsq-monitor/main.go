package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// nsq-monitor polls nsqd's stats endpoint and republishes pipeline depth as
// Prometheus gauges, so backlog on the events and deliveries topics is
// visible without scraping nsqadmin.

var (
	queueBacklog = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hookline_queue_backlog",
		Help: "Messages waiting across the watched pipeline channels",
	})

	channelDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "hookline_nsq_channel_depth",
		Help: "Messages waiting in an NSQ channel",
	}, []string{"topic", "channel"})

	channelInFlight = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "hookline_nsq_channel_in_flight",
		Help: "Messages currently being handled from an NSQ channel",
	}, []string{"topic", "channel"})

	topicDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "hookline_nsq_topic_depth",
		Help: "Messages not yet drained into any channel of a topic",
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(queueBacklog)
	prometheus.MustRegister(channelDepth)
	prometheus.MustRegister(channelInFlight)
	prometheus.MustRegister(topicDepth)
}

type nsqStats struct {
	Topics []topicStats `json:"topics"`
}

type topicStats struct {
	TopicName string         `json:"topic_name"`
	Depth     int64          `json:"depth"`
	Channels  []channelStats `json:"channels"`
}

type channelStats struct {
	ChannelName   string `json:"channel_name"`
	Depth         int64  `json:"depth"`
	InFlightCount int64  `json:"in_flight_count"`
}

// updateMetrics pulls one stats snapshot from nsqd. watched maps topic name
// to the consumer channel whose depth counts toward the backlog gauge.
func updateMetrics(nsqdHost string, watched map[string]string) error {
	resp, err := http.Get(fmt.Sprintf("http://%s/stats?format=json", nsqdHost))
	if err != nil {
		return fmt.Errorf("fetching nsqd stats: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("nsqd stats returned %d", resp.StatusCode)
	}

	var stats nsqStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return fmt.Errorf("decoding nsqd stats: %w", err)
	}

	var backlog int64
	for _, topic := range stats.Topics {
		watchedChannel, ok := watched[topic.TopicName]
		if !ok {
			continue
		}

		topicDepth.WithLabelValues(topic.TopicName).Set(float64(topic.Depth))
		backlog += topic.Depth

		for _, ch := range topic.Channels {
			channelDepth.WithLabelValues(topic.TopicName, ch.ChannelName).Set(float64(ch.Depth))
			channelInFlight.WithLabelValues(topic.TopicName, ch.ChannelName).Set(float64(ch.InFlightCount))
			if ch.ChannelName == watchedChannel {
				backlog += ch.Depth
			}
		}
	}

	queueBacklog.Set(float64(backlog))
	return nil
}

func collectMetrics(nsqdHost string, watched map[string]string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		if err := updateMetrics(nsqdHost, watched); err != nil {
			log.Printf("stats poll failed: %v", err)
		}
	}
}

func main() {
	nsqdHost := getEnv("NSQD_HTTP_ADDRESS", "localhost:4151")
	interval := time.Duration(getEnvInt("POLL_INTERVAL_SECONDS", 15)) * time.Second

	watched := map[string]string{
		getEnv("NSQ_EVENTS_TOPIC", "events"):         getEnv("NSQ_FANOUT_CHANNEL", "fanout"),
		getEnv("NSQ_DELIVERIES_TOPIC", "deliveries"): getEnv("NSQ_WORKER_CHANNEL", "workers"),
	}

	go collectMetrics(nsqdHost, watched, interval)

	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	port := getEnv("PORT", "8086")
	log.Printf("nsq-monitor polling %s every %s, serving :%s/metrics", nsqdHost, interval, port)
	if err := http.ListenAndServe(":"+port, nil); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
