package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Config holds the benchmark settings
var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
)

// Metrics
var (
	totalRequests  uint64
	lifecyclesDone uint64 // full create -> enact -> consume runs
	pendingRetries uint64 // "pending" fence rejections
	failOther      uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "lifecycle", "Workload type: lifecycle | contention")
}

func main() {
	flag.Parse()
	log.Printf("Starting Benchmark: %s | Workers: %d | Duration: %s", workload, concurrency, duration)

	// In contention mode every worker hammers phase callbacks for one shared
	// transaction, exercising the pending fence rather than throughput.
	sharedID := createTransaction(&http.Client{Timeout: 5 * time.Second})

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, start, sharedID)
	}

	wg.Wait()
	printResults(time.Since(start))
}

func worker(wg *sync.WaitGroup, start time.Time, sharedID string) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Second}

	for time.Since(start) < duration {
		if workload == "contention" {
			postPhase(client, sharedID, "enact")
			continue
		}

		id := createTransaction(client)
		if id == "" {
			atomic.AddUint64(&failOther, 1)
			continue
		}
		if !postPhase(client, id, "enact") {
			continue
		}
		if postPhase(client, id, "consume") {
			atomic.AddUint64(&lifecyclesDone, 1)
		}
	}
}

func createTransaction(client *http.Client) string {
	payload := map[string]interface{}{
		"payer_id":    uuid.New().String(),
		"payer_name":  "Bench Payer",
		"payee_id":    uuid.New().String(),
		"payee_name":  "Bench Payee",
		"amount":      int64(100),
		"type_code":   5008,
		"type_label":  "ObjectSale",
		"object_name": "bench-widget",
		"sale_type":   1,
	}
	body, _ := json.Marshal(payload)

	req, _ := http.NewRequest("POST", targetURL+"/api/v1/transfers", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	atomic.AddUint64(&totalRequests, 1)

	if resp.StatusCode != 201 {
		return ""
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return ""
	}
	return created.ID
}

func postPhase(client *http.Client, id, phase string) bool {
	q := url.Values{}
	q.Set("id", id)
	q.Set("state", phase)

	resp, err := client.Post(targetURL+"/transactions/state?"+q.Encode(), "application/json", nil)
	if err != nil {
		atomic.AddUint64(&failOther, 1)
		return false
	}
	defer resp.Body.Close()
	atomic.AddUint64(&totalRequests, 1)

	var out struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		atomic.AddUint64(&failOther, 1)
		return false
	}
	if out.Message == "pending" {
		atomic.AddUint64(&pendingRetries, 1)
		return false
	}
	if !out.Success {
		atomic.AddUint64(&failOther, 1)
	}
	return out.Success
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	done := atomic.LoadUint64(&lifecyclesDone)
	pending := atomic.LoadUint64(&pendingRetries)
	fErr := atomic.LoadUint64(&failOther)

	results := map[string]interface{}{
		"workload":        workload,
		"duration_sec":    d.Seconds(),
		"total_requests":  total,
		"throughput_rps":  float64(total) / d.Seconds(),
		"lifecycles_done": done,
		"pending_retries": pending,
		"errors":          fErr,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	filename := fmt.Sprintf("results_%s.json", workload)
	file, _ := os.Create(filename)
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}
