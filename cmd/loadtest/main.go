package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var vocabulary = strings.Fields(`cat dog parrot starling white black fluffy groomed
	long short tail collar eyes expressive fashionable well-groomed eugene
	brown spotted tiny huge loud quiet hungry sleepy`)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	Seed        int
	Parallel    float64
}

type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	cacheHits     atomic.Int64
	emptyResults  atomic.Int64
	latencies     []time.Duration
	latenciesMu   sync.Mutex
	statusCodes   map[int]*atomic.Int64
	statusCodesMu sync.Mutex
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]*atomic.Int64),
	}
}

func (s *Stats) RecordRequest(duration time.Duration, statusCode int, err error) {
	s.totalRequests.Add(1)

	if err != nil {
		s.errorCount.Add(1)
		return
	}

	if statusCode >= 200 && statusCode < 300 {
		s.successCount.Add(1)
	} else {
		s.errorCount.Add(1)
	}

	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, duration)
	s.latenciesMu.Unlock()

	s.statusCodesMu.Lock()
	if _, ok := s.statusCodes[statusCode]; !ok {
		s.statusCodes[statusCode] = &atomic.Int64{}
	}
	s.statusCodes[statusCode].Add(1)
	s.statusCodesMu.Unlock()
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the search server")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	seed := flag.Int("seed", 1000, "documents to add before the run, 0 to skip")
	parallel := flag.Float64("parallel", 0.5, "share of queries sent in parallel mode")
	flag.Parse()

	cfg := Config{
		BaseURL:     strings.TrimRight(*baseURL, "/"),
		Concurrency: *concurrency,
		Duration:    *duration,
		Seed:        *seed,
		Parallel:    *parallel,
	}

	fmt.Println("=== TF-IDF Search Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Seed docs:   %d\n", cfg.Seed)
	fmt.Println()

	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	if cfg.Seed > 0 {
		added, err := seedCorpus(client, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "seeding failed after %d documents: %v\n", added, err)
			os.Exit(1)
		}
		fmt.Printf("Seeded %d documents\n\n", added)
	}

	stats := runLoadTest(client, cfg)
	printReport(stats, cfg.Duration)
}

// randomText draws n words from the vocabulary.
func randomText(rng *rand.Rand, n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = vocabulary[rng.Intn(len(vocabulary))]
	}
	return strings.Join(words, " ")
}

// randomQuery returns two to four words, one in four of them a minus word.
func randomQuery(rng *rand.Rand) string {
	words := strings.Fields(randomText(rng, 2+rng.Intn(3)))
	for i := range words {
		if i > 0 && rng.Intn(4) == 0 {
			words[i] = "-" + words[i]
		}
	}
	return strings.Join(words, " ")
}

// seedCorpus adds cfg.Seed documents. Ids start at a clock-derived base so
// reruns against the same server rarely collide.
func seedCorpus(client *http.Client, cfg Config) (int, error) {
	rng := rand.New(rand.NewSource(1))
	statuses := []string{"ACTUAL", "ACTUAL", "ACTUAL", "IRRELEVANT", "BANNED"}
	base := int(time.Now().Unix() % 1_000_000 * 1000)

	for i := 0; i < cfg.Seed; i++ {
		body, _ := json.Marshal(map[string]any{
			"id":      base + i,
			"text":    randomText(rng, 3+rng.Intn(8)),
			"status":  statuses[rng.Intn(len(statuses))],
			"ratings": []int{rng.Intn(21) - 10, rng.Intn(21) - 10},
		})
		resp, err := client.Post(cfg.BaseURL+"/api/v1/documents", "application/json", bytes.NewReader(body))
		if err != nil {
			return i, err
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
			return i, fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
	}
	return cfg.Seed, nil
}

type searchResponse struct {
	Results  []json.RawMessage `json:"results"`
	CacheHit bool              `json:"cache_hit"`
}

func runLoadTest(client *http.Client, cfg Config) *Stats {
	stats := NewStats()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	fmt.Print("Running")

	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(workerID) + 100))

			for ctx.Err() == nil {
				mode := "sequential"
				if rng.Float64() < cfg.Parallel {
					mode = "parallel"
				}
				searchURL := fmt.Sprintf("%s/api/v1/search?q=%s&mode=%s",
					cfg.BaseURL, url.QueryEscape(randomQuery(rng)), mode)

				req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
				if err != nil {
					stats.RecordRequest(0, 0, err)
					continue
				}
				start := time.Now()
				resp, err := client.Do(req)
				duration := time.Since(start)

				if err != nil {
					if ctx.Err() == nil {
						stats.RecordRequest(duration, 0, err)
					}
					continue
				}
				var body searchResponse
				if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
					if body.CacheHit {
						stats.cacheHits.Add(1)
					}
					if len(body.Results) == 0 {
						stats.emptyResults.Add(1)
					}
				}
				_, _ = io.Copy(io.Discard, resp.Body)
				resp.Body.Close()

				stats.RecordRequest(duration, resp.StatusCode, nil)
			}
		}(w)
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	wg.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return stats
}

func printReport(stats *Stats, duration time.Duration) {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()
	errors := stats.errorCount.Load()

	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Successful:      %d\n", success)
	fmt.Printf("Errors:          %d\n", errors)
	fmt.Printf("Cache Hits:      %d\n", stats.cacheHits.Load())
	fmt.Printf("Empty Results:   %d\n", stats.emptyResults.Load())

	if total > 0 {
		errorRate := float64(errors) / float64(total) * 100
		fmt.Printf("Error Rate:      %.2f%%\n", errorRate)
		rps := float64(total) / duration.Seconds()
		fmt.Printf("Requests/sec:    %.2f\n", rps)
	}

	stats.latenciesMu.Lock()
	latencies := slices.Clone(stats.latencies)
	stats.latenciesMu.Unlock()

	if len(latencies) > 0 {
		slices.Sort(latencies)

		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		fmt.Println()
		fmt.Println("=== Latency ===")
		fmt.Printf("Min:    %s\n", latencies[0])
		fmt.Printf("Avg:    %s\n", avg)
		fmt.Printf("P50:    %s\n", percentile(latencies, 50))
		fmt.Printf("P90:    %s\n", percentile(latencies, 90))
		fmt.Printf("P95:    %s\n", percentile(latencies, 95))
		fmt.Printf("P99:    %s\n", percentile(latencies, 99))
		fmt.Printf("Max:    %s\n", latencies[len(latencies)-1])
	}

	fmt.Println()
	fmt.Println("=== Status Codes ===")
	stats.statusCodesMu.Lock()
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	for _, code := range codes {
		fmt.Printf("  %d: %d\n", code, stats.statusCodes[code].Load())
	}
	stats.statusCodesMu.Unlock()

	if total == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the server running?")
		os.Exit(1)
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}
