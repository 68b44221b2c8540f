package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/hackgods/telehealth-scheduling/internal/auth"
	"github.com/hackgods/telehealth-scheduling/internal/config"
	"github.com/hackgods/telehealth-scheduling/internal/db"
	"github.com/hackgods/telehealth-scheduling/internal/logging"
	"github.com/hackgods/telehealth-scheduling/internal/scheduling"
)

type SimConfig struct {
	APIBaseURL  string
	Duration    time.Duration
	Workers     int
	BurstSize   int
	CreateRatio float64
	CheckRatio  float64
	ReadRatio   float64
	DoctorLimit int
	Days        int
	PostgresDSN string
	JWTSecret   string
	ClinicTZ    string
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Busy      int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

// Record files a response by status. want is the status that counts as success.
func (om *OperationMetrics) Record(latency time.Duration, status, want int) {
	atomic.AddInt64(&om.Total, 1)
	switch status {
	case want:
		atomic.AddInt64(&om.Success, 1)
	case http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	case http.StatusServiceUnavailable:
		atomic.AddInt64(&om.Busy, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]
	return avg, min, max, p50, p95
}

func percentileIndex(n, p int) int {
	idx := n * p / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Create        OperationMetrics
	CheckConflict OperationMetrics
	WeekSchedule  OperationMetrics
	Burst         OperationMetrics
}

type Simulator struct {
	config  SimConfig
	doctors []uuid.UUID
	token   string
	client  *http.Client
	logger  zerolog.Logger
	metrics Metrics
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fatalLogger := logging.New("prod", "simulate")
		fatalLogger.Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New("dev", "simulate")
	if err := validateConfig(cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	logger.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Int("burst", cfg.BurstSize).
		Float64("create", cfg.CreateRatio).
		Float64("check", cfg.CheckRatio).
		Float64("read", cfg.ReadRatio).
		Msg("simulator starting")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	doctors, err := loadDoctors(ctx, pgPool, cfg.DoctorLimit)
	if err != nil {
		logger.Fatal().Err(err).Msg("load doctors")
	}
	logger.Info().Int("doctors", len(doctors)).Msg("loaded doctors")

	token, err := auth.Sign(cfg.JWTSecret, auth.Caller{ID: uuid.New(), Role: auth.RoleAdmin}, time.Hour)
	if err != nil {
		logger.Fatal().Err(err).Msg("sign token")
	}

	sim := &Simulator{
		config:  cfg,
		doctors: doctors,
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
	}

	sim.Run()
	winners := sim.Burst()
	sim.PrintReport(winners)

	verifyCtx, cancelVerify := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelVerify()
	if err := verify(verifyCtx, pgPool, doctors, cfg.ClinicTZ, logger); err != nil {
		logger.Fatal().Err(err).Msg("verification failed")
	}
	if winners != 1 {
		logger.Fatal().Int("winners", winners).Msg("burst on one slot must create exactly one block")
	}
	logger.Info().Msg("no overlapping active blocks or appointments found")
}

func loadConfig() (SimConfig, error) {
	baseCfg, err := config.Load()
	if err != nil {
		return SimConfig{}, err
	}

	cfg := SimConfig{
		APIBaseURL:  getEnv("SIM_API_BASE_URL", "http://localhost:"+baseCfg.HTTPPort),
		Duration:    getDuration("SIM_DURATION", 30*time.Second),
		Workers:     getInt("SIM_WORKERS", 10),
		BurstSize:   getInt("SIM_BURST_SIZE", 50),
		CreateRatio: getFloat("SIM_CREATE_RATIO", 0.5),
		CheckRatio:  getFloat("SIM_CHECK_RATIO", 0.2),
		ReadRatio:   getFloat("SIM_READ_RATIO", 0.3),
		DoctorLimit: getInt("SIM_DOCTOR_LIMIT", 5),
		Days:        getInt("SIM_DAYS", 7),
		PostgresDSN: baseCfg.PostgresDSN,
		JWTSecret:   baseCfg.JWTSecret,
		ClinicTZ:    baseCfg.ClinicTimezone,
	}

	total := cfg.CreateRatio + cfg.CheckRatio + cfg.ReadRatio
	if total > 0 {
		cfg.CreateRatio /= total
		cfg.CheckRatio /= total
		cfg.ReadRatio /= total
	}
	return cfg, nil
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.BurstSize <= 0 {
		return fmt.Errorf("SIM_BURST_SIZE must be > 0")
	}
	if cfg.Days <= 0 {
		return fmt.Errorf("SIM_DAYS must be > 0")
	}
	return nil
}

// loadDoctors keeps the pool small on purpose so workers collide.
func loadDoctors(ctx context.Context, pool *pgxpool.Pool, limit int) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, `SELECT id FROM doctors ORDER BY id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
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
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no doctors loaded, run cmd/seed first")
	}
	return ids, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.logger.Info().Dur("duration", s.config.Duration).Int("workers", s.config.Workers).Msg("starting mixed load")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}
	wg.Wait()

	s.logger.Info().Msg("mixed load complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		r := rng.Float64()
		switch {
		case r < s.config.CreateRatio:
			s.doCreate(ctx, rng)
		case r < s.config.CreateRatio+s.config.CheckRatio:
			s.doCheckConflict(ctx, rng)
		default:
			s.doWeekSchedule(ctx, rng)
		}
	}
}

// randomWindow picks a 30 to 90 minute window on a half-hour boundary
// during clinic hours.
func (s *Simulator) randomWindow(rng *rand.Rand) (doctorID uuid.UUID, date string, start, end scheduling.TimeOfDay) {
	doctorID = s.doctors[rng.Intn(len(s.doctors))]
	date = scheduling.FormatDate(time.Now().AddDate(0, 0, 1+rng.Intn(s.config.Days)))
	start = scheduling.NewTimeOfDay(8, 0) + scheduling.TimeOfDay(30*rng.Intn(20))
	end = start + scheduling.TimeOfDay(30*(1+rng.Intn(3)))
	return doctorID, date, start, end
}

func (s *Simulator) doCreate(ctx context.Context, rng *rand.Rand) {
	doctorID, date, start, end := s.randomWindow(rng)
	status, latency := s.post(ctx, fmt.Sprintf("/doctors/%s/time-blocks", doctorID), map[string]string{
		"date":       date,
		"start_time": start.String(),
		"end_time":   end.String(),
		"reason":     "simulated",
	})
	s.metrics.Create.Record(latency, status, http.StatusCreated)
}

func (s *Simulator) doCheckConflict(ctx context.Context, rng *rand.Rand) {
	doctorID, date, start, end := s.randomWindow(rng)
	status, latency := s.post(ctx, fmt.Sprintf("/doctors/%s/time-blocks/check-conflict", doctorID), map[string]string{
		"date":       date,
		"start_time": start.String(),
		"end_time":   end.String(),
	})
	s.metrics.CheckConflict.Record(latency, status, http.StatusOK)
}

func (s *Simulator) doWeekSchedule(ctx context.Context, rng *rand.Rand) {
	doctorID, date, _, _ := s.randomWindow(rng)
	status, latency := s.do(ctx, http.MethodGet, fmt.Sprintf("/doctors/%s/schedule/week?date=%s", doctorID, date), nil)
	s.metrics.WeekSchedule.Record(latency, status, http.StatusOK)
}

// Burst fires BurstSize identical creates at one slot past the mixed-load
// and seeded windows and returns how many were accepted.
func (s *Simulator) Burst() int {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	doctorID := s.doctors[0]
	date := scheduling.FormatDate(time.Now().AddDate(0, 0, s.config.Days+14+rand.Intn(300)))
	body := map[string]string{
		"date":       date,
		"start_time": "10:00",
		"end_time":   "11:00",
		"reason":     "burst",
	}

	s.logger.Info().Int("requests", s.config.BurstSize).Str("doctor_id", doctorID.String()).Str("date", date).Msg("starting burst")

	var winners atomic.Int64
	sem := semaphore.NewWeighted(int64(s.config.Workers))
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < s.config.BurstSize; i++ {
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			status, latency := s.post(gctx, fmt.Sprintf("/doctors/%s/time-blocks", doctorID), body)
			s.metrics.Burst.Record(latency, status, http.StatusCreated)
			if status == http.StatusCreated {
				winners.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	return int(winners.Load())
}

func (s *Simulator) post(ctx context.Context, path string, body any) (int, time.Duration) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, 0
	}
	return s.do(ctx, http.MethodPost, path, payload)
}

// do returns status 0 for transport failures.
func (s *Simulator) do(ctx context.Context, method, path string, payload []byte) (int, time.Duration) {
	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, 0
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return 0, latency
	}
	resp.Body.Close()
	return resp.StatusCode, latency
}

// verify checks the end state directly in Postgres: no two active blocks of
// one doctor overlap, and no active block overlaps a live appointment.
func verify(ctx context.Context, pool *pgxpool.Pool, doctors []uuid.UUID, clinicTZ string, logger zerolog.Logger) error {
	var blockOverlaps int
	err := pool.QueryRow(ctx, `
		SELECT count(*)
		FROM time_blocks a
		JOIN time_blocks b
		  ON a.doctor_id = b.doctor_id
		 AND a.id < b.id
		 AND tsrange(a.block_date + a.start_time, a.block_date + a.end_time, '[)')
		  && tsrange(b.block_date + b.start_time, b.block_date + b.end_time, '[)')
		WHERE a.state = 'active'
		  AND b.state = 'active'
		  AND a.doctor_id = ANY($1)
	`, doctors).Scan(&blockOverlaps)
	if err != nil {
		return fmt.Errorf("count block overlaps: %w", err)
	}

	var appointmentOverlaps int
	err = pool.QueryRow(ctx, `
		SELECT count(*)
		FROM time_blocks b
		JOIN appointments ap
		  ON ap.doctor_id = b.doctor_id
		 AND ap.status <> 'cancelled'
		 AND tsrange(b.block_date + b.start_time, b.block_date + b.end_time, '[)')
		  && tsrange(ap.scheduled_at AT TIME ZONE $2,
		             (ap.scheduled_at + make_interval(mins => ap.duration_minutes)) AT TIME ZONE $2, '[)')
		WHERE b.state = 'active'
		  AND b.doctor_id = ANY($1)
	`, doctors, clinicTZ).Scan(&appointmentOverlaps)
	if err != nil {
		return fmt.Errorf("count appointment overlaps: %w", err)
	}

	logger.Info().
		Int("block_overlaps", blockOverlaps).
		Int("appointment_overlaps", appointmentOverlaps).
		Msg("verification counts")

	if blockOverlaps > 0 || appointmentOverlaps > 0 {
		return fmt.Errorf("found %d overlapping block pairs and %d block/appointment overlaps", blockOverlaps, appointmentOverlaps)
	}
	return nil
}

func (s *Simulator) PrintReport(winners int) {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Doctors: %d\n", len(s.doctors))
	fmt.Println()

	printOperationReport("Create time block", &s.metrics.Create)
	printOperationReport("Check conflict", &s.metrics.CheckConflict)
	printOperationReport("Week schedule", &s.metrics.WeekSchedule)
	printOperationReport("Same-slot burst", &s.metrics.Burst)
	fmt.Printf("Burst winners: %d of %d\n", winners, s.config.BurstSize)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	busy := atomic.LoadInt64(&om.Busy)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	pct := func(n int64) float64 { return float64(n) / float64(total) * 100 }

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, pct(success))
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, pct(conflict))
	}
	if busy > 0 {
		fmt.Printf("  Busy: %d (%.1f%%)\n", busy, pct(busy))
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, pct(failed))
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
