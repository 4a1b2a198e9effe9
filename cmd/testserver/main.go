// testserver serves a scripted fake DSS backend for local runs of dss-ui
// and dssctl.
// Usage: go run ./cmd/testserver
package main

import (
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/seantiz/dss/internal/config"
	"github.com/seantiz/dss/internal/fakedss"
)

func main() {
	addr := ":5042"
	if v := os.Getenv("DSS_LISTEN_ADDR"); v != "" {
		addr = v
	}

	runningPolls := 3
	if v := os.Getenv("DSS_FAKE_RUNNING_POLLS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			log.Fatalf("invalid DSS_FAKE_RUNNING_POLLS %q", v)
		}
		runningPolls = n
	}

	models := []string{"knapsack.mzn"}
	if v := os.Getenv("DSS_FAKE_MODELS"); v != "" {
		models = strings.Split(v, ",")
	}

	logger := config.NewLogger(os.Stdout, config.ParseLogLevel(os.Getenv("DSS_LOG_LEVEL")))
	fake := fakedss.New(fakedss.Options{
		Models:       models,
		RunningPolls: runningPolls,
		Logger:       logger,
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           fake.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("testserver: starting", "addr", addr, "running_polls", runningPolls)
	if err := srv.ListenAndServe(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
