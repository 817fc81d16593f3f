// loadtest нагружает витринный HTTP API сценарием "добавить в корзину и
// оформить заказ". Полезен для проверки поведения стока под конкуренцией:
// успешные чекауты против отказов по остатку.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type config struct {
	baseURL     string
	total       int
	concurrency int
	productID   int64
	quantity    int
	currency    string
	timeout     time.Duration
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
}

type report struct {
	Total           int            `json:"total"`
	Created         int64          `json:"created"`
	OutOfStock      int64          `json:"out_of_stock"`
	Contention      int64          `json:"contention"`
	Failed          int64          `json:"failed"`
	DurationSeconds float64        `json:"duration_seconds"`
	RPS             float64        `json:"rps"`
	LatencyMs       latencySummary `json:"latency_ms"`
}

type collector struct {
	mu        sync.Mutex
	latencies []float64
}

func (c *collector) observe(elapsed time.Duration) {
	c.mu.Lock()
	c.latencies = append(c.latencies, float64(elapsed.Milliseconds()))
	c.mu.Unlock()
}

func (c *collector) summary() latencySummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.latencies) == 0 {
		return latencySummary{}
	}

	sorted := append([]float64(nil), c.latencies...)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func main() {
	cfg := readConfig()

	var (
		created    atomic.Int64
		outOfStock atomic.Int64
		contention atomic.Int64
		failed     atomic.Int64
	)
	stats := &collector{}
	client := &http.Client{Timeout: cfg.timeout}

	jobs := make(chan int)
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < cfg.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range jobs {
				began := time.Now()
				status, err := runScenario(client, cfg)
				stats.observe(time.Since(began))

				switch {
				case err != nil:
					failed.Add(1)
				case status == http.StatusCreated:
					created.Add(1)
				case status == http.StatusUnprocessableEntity:
					outOfStock.Add(1)
				case status == http.StatusServiceUnavailable:
					contention.Add(1)
				default:
					failed.Add(1)
				}
			}
		}()
	}

	for i := 0; i < cfg.total; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	elapsed := time.Since(start)
	out := report{
		Total:           cfg.total,
		Created:         created.Load(),
		OutOfStock:      outOfStock.Load(),
		Contention:      contention.Load(),
		Failed:          failed.Load(),
		DurationSeconds: elapsed.Seconds(),
		RPS:             float64(cfg.total) / elapsed.Seconds(),
		LatencyMs:       stats.summary(),
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(out); err != nil {
		fail("encode report: %v", err)
	}
}

func readConfig() config {
	var cfg config
	flag.StringVar(&cfg.baseURL, "url", "http://localhost:8080", "storefront base URL")
	flag.IntVar(&cfg.total, "total", 100, "total checkout scenarios to run")
	flag.IntVar(&cfg.concurrency, "concurrency", 10, "concurrent workers")
	flag.Int64Var(&cfg.productID, "product", 1, "product id to buy")
	flag.IntVar(&cfg.quantity, "quantity", 1, "quantity per order")
	flag.StringVar(&cfg.currency, "currency", "USD", "checkout currency")
	flag.DurationVar(&cfg.timeout, "timeout", 10*time.Second, "per-request timeout")
	flag.Parse()

	if cfg.total <= 0 || cfg.concurrency <= 0 || cfg.quantity <= 0 {
		fail("total, concurrency and quantity must be > 0")
	}
	return cfg
}

// runScenario выполняет один проход: новая сессия, добавление товара,
// оформление заказа. Возвращает статус финального запроса.
func runScenario(client *http.Client, cfg config) (int, error) {
	sessionID := uuid.NewString()

	status, err := post(client, cfg.baseURL+"/cart/items", sessionID, map[string]any{
		"product_id": cfg.productID,
		"quantity":   cfg.quantity,
	})
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return status, nil
	}

	return post(client, cfg.baseURL+"/checkout", sessionID, map[string]any{
		"currency": cfg.currency,
		"shipping": map[string]string{
			"name":    "Load Test",
			"address": "1 Benchmark Rd",
			"city":    "Hanoi",
		},
	})
}

func post(client *http.Client, url, sessionID string, body any) (int, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Session-ID", sessionID)

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode, nil
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
