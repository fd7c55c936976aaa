// Simulator drives fake sync-job traffic through the observability engine
// so dashboards and metrics can be exercised without real marketplace
// credentials. It runs entirely in-process against the in-memory store.
package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"listing-sync/internal/models"
	"listing-sync/internal/observer"
	"listing-sync/internal/store"
)

func main() {
	zlog, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()
	logger := zlog.Sugar()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	jobs := envInt("SIM_JOBS", 3)
	perSecond := envInt("SIM_EVENTS_PER_SEC", 5)
	total := envInt("SIM_PRODUCTS_PER_JOB", 50)

	obs := observer.New(store.NewMemory(), logger, observer.Options{})
	go obs.Run(ctx)

	for i := 0; i < jobs; i++ {
		jobID := fmt.Sprintf("sim-job-%d", i+1)
		go runJob(ctx, obs, jobID, perSecond, total)
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			obs.Flush()
			return
		case <-ticker.C:
			for i := 0; i < jobs; i++ {
				jobID := fmt.Sprintf("sim-job-%d", i+1)
				if snap := obs.GetSnapshot(jobID); snap != nil {
					logger.Infow("snapshot",
						"job_id", snap.JobID,
						"state", snap.State,
						"processed", snap.Processed,
						"total_requests", snap.TotalRequests,
						"avg_latency_ms", snap.AvgLatencyMs,
						"requests_last_60s", snap.RequestsLast60s,
						"error_429", snap.Error429Count)
				}
			}
		}
	}
}

func runJob(ctx context.Context, obs *observer.Observer, jobID string, perSecond, total int) {
	running := models.StateRunning
	completed := models.StateCompleted
	totalCount := int64(total)
	obs.UpdateProgress(ctx, jobID, observer.ProgressUpdate{
		State: &running,
		Total: &totalCount,
	})

	interval := time.Second
	if perSecond > 0 {
		interval = time.Second / time.Duration(perSecond)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for i := 0; i < total; i++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		productID := fmt.Sprintf("prod-%04d", i+1)
		obs.LogEvent(ctx, jobID, randomEvent(productID))

		processed := int64(i + 1)
		step := "push-listing"
		obs.UpdateProgress(ctx, jobID, observer.ProgressUpdate{
			Processed:   &processed,
			Completed:   &processed,
			CurrentStep: &step,
		})
	}

	obs.UpdateProgress(ctx, jobID, observer.ProgressUpdate{State: &completed})
}

func randomEvent(productID string) observer.EventInput {
	status := 200
	var retryAfter *int64
	switch rand.Intn(20) {
	case 0:
		status = 429
		secs := int64(5 + rand.Intn(25))
		retryAfter = &secs
	case 1:
		status = 500
	}
	return observer.EventInput{
		ProductID:         productID,
		Operation:         "create-listing",
		HTTPMethod:        "POST",
		EndpointPath:      "/v2/listings",
		StatusCode:        &status,
		DurationMs:        int64(50 + rand.Intn(400)),
		RetryAfterSeconds: retryAfter,
	}
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
