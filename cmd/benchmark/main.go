package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Config holds the benchmark settings.
var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
	operation   string
	assetCode   string
	userCount   int
)

// Metrics
var (
	totalRequests uint64
	success200    uint64 // new movement or idempotent replay
	fail404       uint64 // unknown user/asset
	fail409       uint64 // idempotency conflict
	fail422       uint64 // insufficient funds
	failOther     uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API base URL")
	flag.IntVar(&concurrency, "workers", 10, "number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "test duration")
	flag.StringVar(&workload, "workload", "uniform", "workload type: uniform | hotspot")
	flag.StringVar(&operation, "op", "top-up", "operation: top-up | bonus | purchase")
	flag.StringVar(&assetCode, "asset", "GOLD_COIN", "asset code to move")
	flag.IntVar(&userCount, "users", 1000, "number of seeded benchmark users (bench_user_0..N-1)")
}

func main() {
	flag.Parse()
	log.Printf("starting benchmark: op=%s workload=%s workers=%d duration=%s", operation, workload, concurrency, duration)

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, start)
	}

	wg.Wait()
	printResults(time.Since(start))
}

func worker(wg *sync.WaitGroup, start time.Time) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Second}

	for time.Since(start) < duration {
		userID := pickUser()
		key := fmt.Sprintf("bench-%s-%s-%d", operation, userID, time.Now().UnixNano())

		payload := map[string]any{
			"userId":    userID,
			"assetCode": assetCode,
			"amount":    "1.00000000",
		}
		body, _ := json.Marshal(payload)

		req, _ := http.NewRequest(http.MethodPost, targetURL+"/api/v1/wallet/"+operation, bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", key)

		resp, err := client.Do(req)
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}

		atomic.AddUint64(&totalRequests, 1)
		switch resp.StatusCode {
		case http.StatusOK:
			atomic.AddUint64(&success200, 1)
		case http.StatusNotFound:
			atomic.AddUint64(&fail404, 1)
		case http.StatusConflict:
			atomic.AddUint64(&fail409, 1)
		case http.StatusUnprocessableEntity:
			atomic.AddUint64(&fail422, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
		resp.Body.Close()
	}
}

// pickUser returns a benchmark user id seeded by cmd/seeder. A hotspot
// workload concentrates most traffic on a single account to exercise
// lock contention on the Ledger Writer's sorted-pair locking.
func pickUser() string {
	if workload == "hotspot" && rand.Float32() < 0.90 {
		return "bench_user_0"
	}
	return fmt.Sprintf("bench_user_%d", rand.Intn(userCount))
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	s200 := atomic.LoadUint64(&success200)
	f404 := atomic.LoadUint64(&fail404)
	f409 := atomic.LoadUint64(&fail409)
	f422 := atomic.LoadUint64(&fail422)
	fErr := atomic.LoadUint64(&failOther)

	tps := float64(total) / d.Seconds()

	results := map[string]any{
		"operation":        operation,
		"workload":         workload,
		"duration_sec":     d.Seconds(),
		"total_requests":   total,
		"throughput_tps":   tps,
		"success":          s200,
		"not_found":        f404,
		"idempotency_conflict": f409,
		"insufficient_funds": f422,
		"errors":           fErr,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	filename := fmt.Sprintf("results_%s_%s.json", operation, workload)
	file, err := os.Create(filename)
	if err != nil {
		log.Printf("write results file: %v", err)
		return
	}
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}
