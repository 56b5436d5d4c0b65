// Benchmark tool for load-testing Kestrel's scoring endpoint.
//
// Usage:
//   go run cmd/benchmark/main.go -url http://localhost:8080 -requests 10000
//
// This tool:
//   1. Synthesizes return requests across a pool of buyer personas
//   2. Sends each request to POST /score
//   3. Tracks the recommendation mix, scores, and flag counts
//   4. Reports latency and throughput
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// ScoreRequest mirrors the Kestrel API request format.
type ScoreRequest struct {
	BuyerID      string    `json:"buyer_id"`
	ProductID    string    `json:"product_id"`
	OrderID      string    `json:"order_id"`
	OrderDate    time.Time `json:"order_date"`
	OrderAmount  float64   `json:"order_amount"`
	ReturnReason string    `json:"return_reason"`
}

// ScoreResponse mirrors the Kestrel API response format.
type ScoreResponse struct {
	RequestID      string  `json:"request_id"`
	Score          float64 `json:"score"`
	RiskLevel      string  `json:"risk_level"`
	Recommendation string  `json:"recommendation"`
	Flags          []struct {
		Code string `json:"code"`
	} `json:"risk_flags"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	Approved int64
	Review   int64
	Denied   int64

	TotalProcessed int64
	TotalErrors    int64
	TotalFlags     int64

	ScoreSumMilli    int64 // scores * 1000, for an average without floats
	ProcessingTimeMs int64
}

var reasons = []string{
	"size_issue", "defective", "not_as_described", "changed_mind",
	"arrived_late", "damaged_in_shipping", "wrong_item", "other",
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	merchantID := flag.String("merchant", "benchmark-test", "Merchant ID for requests")
	total := flag.Int("requests", 10000, "Number of requests to send")
	buyers := flag.Int("buyers", 500, "Size of the buyer pool")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	seed := flag.Int64("seed", 1, "Request generator seed")
	verbose := flag.Bool("verbose", false, "Print each request result")
	flag.Parse()

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║           KESTREL BENCHMARK - Return Scoring Load             ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nKestrel URL: %s\n", *baseURL)
	fmt.Printf("Merchant ID: %s\n", *merchantID)
	fmt.Printf("Requests:    %d\n", *total)
	fmt.Printf("Buyer Pool:  %d\n", *buyers)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  cd kestrel && go run cmd/kestrel/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Kestrel is healthy")

	requests := generateRequests(*total, *buyers, *seed)
	fmt.Printf("✓ Generated %d requests\n", len(requests))

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(requests, *baseURL, *merchantID, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// generateRequests builds a synthetic request stream. A small slice of the
// buyer pool are serial returners who file far more requests than the rest,
// so per-buyer recency counters actually trip.
func generateRequests(total, buyerPool int, seed int64) []ScoreRequest {
	rng := rand.New(rand.NewSource(seed))
	serialCut := buyerPool / 10

	requests := make([]ScoreRequest, 0, total)
	for i := 0; i < total; i++ {
		var buyer int
		if rng.Float64() < 0.3 && serialCut > 0 {
			buyer = rng.Intn(serialCut)
		} else {
			buyer = rng.Intn(buyerPool)
		}

		daysAgo := 1 + rng.Intn(45)
		amount := 5 + rng.Float64()*1500

		requests = append(requests, ScoreRequest{
			BuyerID:      fmt.Sprintf("bench-buyer-%d", buyer),
			ProductID:    fmt.Sprintf("bench-product-%d", rng.Intn(200)),
			OrderID:      fmt.Sprintf("bench-order-%d", i),
			OrderDate:    time.Now().UTC().AddDate(0, 0, -daysAgo),
			OrderAmount:  float64(int(amount*100)) / 100,
			ReturnReason: reasons[rng.Intn(len(reasons))],
		})
	}
	return requests
}

func runBenchmark(requests []ScoreRequest, baseURL, merchantID string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan ScoreRequest, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for req := range work {
				start := time.Now()
				result, err := scoreRequest(client, baseURL, merchantID, req)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", req.OrderID, err)
					}
					continue
				}

				switch result.Recommendation {
				case "APPROVE":
					atomic.AddInt64(&metrics.Approved, 1)
				case "DENY":
					atomic.AddInt64(&metrics.Denied, 1)
				default:
					atomic.AddInt64(&metrics.Review, 1)
				}
				atomic.AddInt64(&metrics.TotalFlags, int64(len(result.Flags)))
				atomic.AddInt64(&metrics.ScoreSumMilli, int64(result.Score*1000))

				if verbose {
					fmt.Printf("%-16s | $%8.2f | %-20s | %-7s (%5.1f) | flags: %d\n",
						req.BuyerID,
						req.OrderAmount,
						req.ReturnReason,
						result.Recommendation,
						result.Score,
						len(result.Flags),
					)
				}
			}
		}()
	}

	for _, req := range requests {
		work <- req
	}
	close(work)

	wg.Wait()

	return metrics
}

func scoreRequest(client *http.Client, baseURL, merchantID string, req ScoreRequest) (*ScoreResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/score", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Merchant-ID", merchantID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result ScoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 REQUEST STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	scored := m.Approved + m.Review + m.Denied
	fmt.Printf("\n📈 RECOMMENDATION MIX\n")
	if scored > 0 {
		fmt.Printf("   APPROVE:  %8d (%.2f%%)\n", m.Approved, 100*float64(m.Approved)/float64(scored))
		fmt.Printf("   REVIEW:   %8d (%.2f%%)\n", m.Review, 100*float64(m.Review)/float64(scored))
		fmt.Printf("   DENY:     %8d (%.2f%%)\n", m.Denied, 100*float64(m.Denied)/float64(scored))
		fmt.Printf("   Avg Score: %.2f\n", float64(m.ScoreSumMilli)/1000/float64(scored))
		fmt.Printf("   Avg Flags: %.2f\n", float64(m.TotalFlags)/float64(scored))
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		rps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f req/sec\n", rps)
	}

	fmt.Println()
}
