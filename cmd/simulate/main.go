// simulate hammers the accept endpoint with concurrent workers to exercise
// slot contention: many pending requests racing for few slots. It reports how
// many races were won, how many ended in "no availability," and the latency
// spread.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/careflowhq/teleconsult-scheduling/internal/config"
	"github.com/careflowhq/teleconsult-scheduling/internal/db"
)

type SimConfig struct {
	APIBaseURL   string
	Workers      int
	RequestLimit int
	ActorID      uuid.UUID
	PostgresDSN  string
}

type Metrics struct {
	Booked    int64
	NoSlots   int64
	Finalized int64
	Errors    int64

	mu        sync.Mutex
	latencies []time.Duration
}

func (m *Metrics) Record(latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencies = append(m.latencies, latency)
}

func (m *Metrics) Percentile(p float64) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.latencies) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(m.latencies))
	copy(sorted, m.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}

	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_URL", "http://127.0.0.1:8080"),
		Workers:      getInt("SIM_WORKERS", 16),
		RequestLimit: getInt("SIM_REQUEST_LIMIT", 500),
		PostgresDSN:  baseCfg.PostgresDSN,
	}

	if raw := os.Getenv("SIM_ACTOR_ID"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid SIM_ACTOR_ID")
		}
		cfg.ActorID = id
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	requests, err := loadPendingRequests(context.Background(), pool, cfg.RequestLimit)
	if err != nil {
		log.Fatal().Err(err).Msg("load pending requests")
	}
	if len(requests) == 0 {
		log.Fatal().Msg("no pending requests, run cmd/seed first")
	}

	if cfg.ActorID == uuid.Nil {
		// Borrow a seeded clinician as the accepting actor.
		if err := pool.QueryRow(context.Background(), `SELECT id FROM clinicians LIMIT 1`).Scan(&cfg.ActorID); err != nil {
			log.Fatal().Err(err).Msg("load clinician for actor id")
		}
	}

	log.Info().
		Int("workers", cfg.Workers).
		Int("requests", len(requests)).
		Msg("starting contention simulation")

	metrics := &Metrics{}
	client := &http.Client{Timeout: 10 * time.Second}

	var next int64 = -1
	var wg sync.WaitGroup
	start := time.Now()

	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := atomic.AddInt64(&next, 1)
				if int(i) >= len(requests) {
					return
				}
				doAccept(client, cfg, requests[i], metrics)
			}
		}()
	}

	wg.Wait()

	log.Info().
		Dur("took", time.Since(start)).
		Int64("booked", atomic.LoadInt64(&metrics.Booked)).
		Int64("no_slots", atomic.LoadInt64(&metrics.NoSlots)).
		Int64("finalized", atomic.LoadInt64(&metrics.Finalized)).
		Int64("errors", atomic.LoadInt64(&metrics.Errors)).
		Dur("p50", metrics.Percentile(0.50)).
		Dur("p95", metrics.Percentile(0.95)).
		Dur("p99", metrics.Percentile(0.99)).
		Msg("simulation complete")
}

func doAccept(client *http.Client, cfg SimConfig, requestID uuid.UUID, metrics *Metrics) {
	body, _ := json.Marshal(map[string]any{
		"notification_template":    "Your consultation is booked for {{.Start.Format \"15:04\"}}.",
		"assign_to_requester_only": false,
	})

	url := fmt.Sprintf("%s/requests/%s/accept", cfg.APIBaseURL, requestID)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		atomic.AddInt64(&metrics.Errors, 1)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-ID", cfg.ActorID.String())

	start := time.Now()
	resp, err := client.Do(req)
	metrics.Record(time.Since(start))
	if err != nil {
		atomic.AddInt64(&metrics.Errors, 1)
		return
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
		atomic.AddInt64(&metrics.Booked, 1)
	case http.StatusConflict:
		var errResp struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error == "request_already_finalized" {
			atomic.AddInt64(&metrics.Finalized, 1)
		} else {
			atomic.AddInt64(&metrics.NoSlots, 1)
		}
	default:
		atomic.AddInt64(&metrics.Errors, 1)
	}
}

func loadPendingRequests(ctx context.Context, pool *pgxpool.Pool, limit int) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, `
		SELECT id FROM consultation_requests
		WHERE status = 'pending'
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("load pending requests: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
