package main

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/hookline/hookline/internal/config"
)

// fake-receiver is a stand-in subscriber endpoint for local runs: it can
// fail the first N requests and add artificial latency, which exercises the
// worker's non-2xx and timeout paths.

var (
	failFirstN    = 0
	reqCount      = 0
	responseDelay time.Duration
)

func main() {
	cfg := config.FromEnv().FakeReceiver
	failFirstN = cfg.FailFirstN
	responseDelay = time.Duration(cfg.ResponseDelayMS) * time.Millisecond

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(`{"ok":true}`)) })
	mux.HandleFunc("/hook", handleHook)

	srv := &http.Server{
		Addr:         cfg.Port,
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	log.Printf("fake-receiver listening on %s", cfg.Port)
	log.Fatal(srv.ListenAndServe())
}

func handleHook(w http.ResponseWriter, r *http.Request) {
	reqCount++
	b, _ := io.ReadAll(r.Body)
	defer r.Body.Close()

	if responseDelay > 0 {
		time.Sleep(responseDelay)
	}

	// Simulate flakiness: first N requests -> 500
	if reqCount <= failFirstN {
		log.Printf("FAILING (%d/%d) %s body=%s", reqCount, failFirstN, r.URL.Path, truncate(string(b), 160))
		http.Error(w, "temporary failure", http.StatusInternalServerError)
		return
	}

	log.Printf("fake-receiver OK %s correlation=%q body=%q", r.URL.Path, r.Header.Get("X-Correlation-Id"), truncate(string(b), 160))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`ok`))
}

// truncate truncates a string to the specified length and adds an ellipsis if truncated
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s...", s[:n])
}
