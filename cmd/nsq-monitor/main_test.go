package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestUpdateMetrics(t *testing.T) {
	tests := []struct {
		name            string
		statsJSON       string
		statusCode      int
		wantErr         bool
		wantBacklog     float64
		wantEventsDepth float64
	}{
		{
			name: "counts watched channels and topic depth",
			statsJSON: `{
				"topics": [
					{
						"topic_name": "events",
						"depth": 3,
						"channels": [
							{"channel_name": "fanout", "depth": 5, "in_flight_count": 2},
							{"channel_name": "audit", "depth": 100, "in_flight_count": 0}
						]
					},
					{
						"topic_name": "deliveries",
						"depth": 0,
						"channels": [
							{"channel_name": "workers", "depth": 7, "in_flight_count": 1}
						]
					},
					{
						"topic_name": "unrelated",
						"depth": 50,
						"channels": []
					}
				]
			}`,
			statusCode:      http.StatusOK,
			wantBacklog:     15, // events depth 3 + fanout 5 + deliveries workers 7
			wantEventsDepth: 5,
		},
		{
			name:        "empty stats",
			statsJSON:   `{"topics": []}`,
			statusCode:  http.StatusOK,
			wantBacklog: 0,
		},
		{
			name:       "invalid json",
			statsJSON:  `{not json`,
			statusCode: http.StatusOK,
			wantErr:    true,
		},
		{
			name:       "nsqd error status",
			statsJSON:  `{}`,
			statusCode: http.StatusInternalServerError,
			wantErr:    true,
		},
	}

	watched := map[string]string{
		"events":     "fanout",
		"deliveries": "workers",
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/stats" || r.URL.Query().Get("format") != "json" {
					t.Errorf("unexpected request %s", r.URL.String())
				}
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.statsJSON))
			}))
			defer srv.Close()

			err := updateMetrics(strings.TrimPrefix(srv.URL, "http://"), watched)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("updateMetrics: %v", err)
			}

			if got := testutil.ToFloat64(queueBacklog); got != tt.wantBacklog {
				t.Errorf("backlog = %v, want %v", got, tt.wantBacklog)
			}
			if tt.wantEventsDepth != 0 {
				got := testutil.ToFloat64(channelDepth.WithLabelValues("events", "fanout"))
				if got != tt.wantEventsDepth {
					t.Errorf("events/fanout depth = %v, want %v", got, tt.wantEventsDepth)
				}
			}
		})
	}
}

func TestUpdateMetricsUnreachableHost(t *testing.T) {
	if err := updateMetrics("localhost:1", nil); err == nil {
		t.Fatal("expected error for unreachable nsqd")
	}
}
