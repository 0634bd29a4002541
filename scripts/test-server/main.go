// Command test-server serves endpoints with controllable latency for trying
// volley locally:
//
//	go run ./scripts/test-server -addr :8080
//	volley run --url http://localhost:8080/delay/20ms -n 500 --concurrency 8
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"strconv"
	"sync/atomic"
	"time"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	mux := http.NewServeMux()

	// Responds immediately
	mux.HandleFunc("GET /status/{code}", func(w http.ResponseWriter, r *http.Request) {
		code, err := strconv.Atoi(r.PathValue("code"))
		if err != nil || code < 100 || code > 599 {
			http.Error(w, "invalid status code", http.StatusBadRequest)
			return
		}
		w.WriteHeader(code)
		fmt.Fprint(w, http.StatusText(code))
	})

	// Fixed latency, e.g. /delay/25ms
	mux.HandleFunc("GET /delay/{duration}", func(w http.ResponseWriter, r *http.Request) {
		d, err := time.ParseDuration(r.PathValue("duration"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		time.Sleep(d)
		fmt.Fprint(w, "OK")
	})

	// Exponentially distributed latency with the given mean, for a long tail
	mux.HandleFunc("GET /jitter/{mean}", func(w http.ResponseWriter, r *http.Request) {
		mean, err := time.ParseDuration(r.PathValue("mean"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		time.Sleep(time.Duration(rand.ExpFloat64() * float64(mean)))
		fmt.Fprint(w, "OK")
	})

	// Every nth request fails with 503
	var flakyCount atomic.Int64
	mux.HandleFunc("GET /flaky/{n}", func(w http.ResponseWriter, r *http.Request) {
		n, err := strconv.ParseInt(r.PathValue("n"), 10, 64)
		if err != nil || n < 1 {
			http.Error(w, "n must be a positive integer", http.StatusBadRequest)
			return
		}
		if flakyCount.Add(1)%n == 0 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, "OK")
	})

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "healthy")
	})

	server := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      time.Minute,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		ReadHeaderTimeout: 2 * time.Second,
	}

	logger.Info("test server listening", slog.String("addr", *addr))
	if err := server.ListenAndServe(); err != nil {
		logger.Error("server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
