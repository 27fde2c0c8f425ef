package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type DB struct {
	User string
	Pass string
	Host string
	Port string
	Name string
}

type NSQ struct {
	NsqdTCPAddr        string // e.g. nsqd:4150
	LookupHTTPAddr     string // e.g. http://nsqlookupd:4161
	EventsTopic        string // topic for "event occurred" envelopes
	DeliveriesTopic    string // topic for per-subscriber delivery tasks
	EventsDLQTopic     string // dead-letter topic for exhausted envelopes
	DeliveriesDLQTopic string // dead-letter topic for exhausted tasks
	FanoutChannel      string // channel name for fan-out consumers
	WorkerChannel      string // channel name for delivery workers
}

type Fanout struct {
	MaxAttempts     int             // envelope redeliveries before DLQ
	BackoffSchedule []time.Duration // redelivery backoff durations
	JitterPercent   float64         // backoff jitter percentage (0.0-1.0)
	PublishDLQ      bool            // whether to publish exhausted envelopes to the DLQ topic
	HTTPPort        string          // fanout HTTP metrics port
}

type Worker struct {
	MaxAttempts     int             // task redeliveries (ledger failures) before DLQ
	BackoffSchedule []time.Duration // redelivery backoff durations
	JitterPercent   float64         // backoff jitter percentage (0.0-1.0)
	PublishDLQ      bool            // whether to publish exhausted tasks to the DLQ topic
	HTTPTimeout     time.Duration   // outbound webhook call timeout
	HTTPPort        string          // worker HTTP metrics port
}

// Dispatch selects and configures the queue backing the pipeline. Backend
// "nsq" (default) runs the brokered topology; "memory" runs the whole
// pipeline in-process inside the api binary, trading crash durability for a
// single-binary deployment. Capacity bounds each in-process topic; Mode
// picks the backpressure behavior when a topic is full.
type Dispatch struct {
	Backend        string // "nsq" or "memory"
	Capacity       int
	Mode           string // "block" or "fail"
	EnqueueTimeout time.Duration
	FanoutWorkers  int // in-process fan-out consumers (memory backend)
	DeliverWorkers int // in-process delivery consumers (memory backend)
}

type Auth struct {
	PublicKeyPEM string // RSA public key; empty disables API auth
	Issuer       string
	Audience     string
}

type FakeReceiver struct {
	FailFirstN      int           // number of requests to fail initially
	ResponseDelayMS int           // simulated response delay in milliseconds
	Port            string        // server listen port
	ReadTimeout     time.Duration // HTTP read timeout
	WriteTimeout    time.Duration // HTTP write timeout
	IdleTimeout     time.Duration // HTTP idle timeout
}

type Config struct {
	AppName      string
	HTTPPort     string // :8080
	DB           DB
	NSQ          NSQ
	Fanout       Fanout
	Worker       Worker
	Dispatch     Dispatch
	Auth         Auth
	FakeReceiver FakeReceiver
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func defaultBackoffSchedule() []time.Duration {
	return []time.Duration{1 * time.Second, 5 * time.Second, 15 * time.Second}
}

func parseBackoffSchedule(schedule string) []time.Duration {
	if schedule == "" {
		return defaultBackoffSchedule()
	}

	parts := strings.Split(schedule, ",")
	durations := make([]time.Duration, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if d, err := time.ParseDuration(part); err == nil {
			durations = append(durations, d)
		}
	}

	if len(durations) == 0 {
		// Fallback to default if parsing failed
		return defaultBackoffSchedule()
	}

	return durations
}

func FromEnv() Config {
	return Config{
		AppName:  getenv("APP_NAME", "hookline"),
		HTTPPort: getenv("HTTP_PORT", ":8080"),
		DB: DB{
			User: getenv("DB_USER", "postgres"),
			Pass: getenv("DB_PASS", "postgres"),
			Host: getenv("DB_HOST", "postgres"),
			Port: getenv("DB_PORT", "5432"),
			Name: getenv("DB_NAME", "hookline"),
		},
		NSQ: NSQ{
			NsqdTCPAddr:        getenv("NSQD_TCP_ADDR", "nsqd:4150"),
			LookupHTTPAddr:     getenv("NSQ_LOOKUP_HTTP_ADDR", "http://nsqlookupd:4161"),
			EventsTopic:        getenv("NSQ_EVENTS_TOPIC", "events"),
			DeliveriesTopic:    getenv("NSQ_DELIVERIES_TOPIC", "deliveries"),
			EventsDLQTopic:     getenv("NSQ_EVENTS_DLQ_TOPIC", "events_dlq"),
			DeliveriesDLQTopic: getenv("NSQ_DELIVERIES_DLQ_TOPIC", "deliveries_dlq"),
			FanoutChannel:      getenv("NSQ_FANOUT_CHANNEL", "fanout"),
			WorkerChannel:      getenv("NSQ_WORKER_CHANNEL", "workers"),
		},
		Fanout: Fanout{
			MaxAttempts:     getenvInt("FANOUT_MAX_ATTEMPTS", 4),
			BackoffSchedule: parseBackoffSchedule(getenv("FANOUT_BACKOFF_SCHEDULE", "")),
			JitterPercent:   getenvFloat("FANOUT_BACKOFF_JITTER_PCT", 0.25),
			PublishDLQ:      getenvBool("FANOUT_PUBLISH_DLQ_TOPIC", true),
			HTTPPort:        ":" + getenv("FANOUT_HTTP_PORT", "8082"),
		},
		Worker: Worker{
			MaxAttempts:     getenvInt("WORKER_MAX_ATTEMPTS", 4),
			BackoffSchedule: parseBackoffSchedule(getenv("WORKER_BACKOFF_SCHEDULE", "")),
			JitterPercent:   getenvFloat("WORKER_BACKOFF_JITTER_PCT", 0.25),
			PublishDLQ:      getenvBool("WORKER_PUBLISH_DLQ_TOPIC", true),
			HTTPTimeout:     getenvDuration("WORKER_HTTP_TIMEOUT", 15*time.Second),
			HTTPPort:        ":" + getenv("WORKER_HTTP_PORT", "8083"),
		},
		Dispatch: Dispatch{
			Backend:        getenv("DISPATCH_BACKEND", "nsq"),
			Capacity:       getenvInt("DISPATCH_CAPACITY", 1024),
			Mode:           getenv("DISPATCH_MODE", "block"),
			EnqueueTimeout: getenvDuration("DISPATCH_ENQUEUE_TIMEOUT", 5*time.Second),
			FanoutWorkers:  getenvInt("DISPATCH_FANOUT_WORKERS", 2),
			DeliverWorkers: getenvInt("DISPATCH_DELIVER_WORKERS", 8),
		},
		Auth: Auth{
			PublicKeyPEM: getenv("AUTH_PUBLIC_KEY_PEM", ""),
			Issuer:       getenv("AUTH_ISSUER", "hookline"),
			Audience:     getenv("AUTH_AUDIENCE", "hookline-api"),
		},
		FakeReceiver: FakeReceiver{
			FailFirstN:      getenvInt("FAIL_FIRST_N", 0),
			ResponseDelayMS: getenvInt("RESPONSE_DELAY_MS", 0),
			Port:            getenv("FAKE_RECEIVER_PORT", ":8081"),
			ReadTimeout:     getenvDuration("FAKE_RECEIVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getenvDuration("FAKE_RECEIVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:     getenvDuration("FAKE_RECEIVER_IDLE_TIMEOUT", 60*time.Second),
		},
	}
}

func (c Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DB.User, c.DB.Pass, c.DB.Host, c.DB.Port, c.DB.Name)
}
