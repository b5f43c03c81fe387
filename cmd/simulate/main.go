package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/physio-scheduling/internal/config"
	"github.com/hackgods/physio-scheduling/internal/db"
	"github.com/hackgods/physio-scheduling/internal/logging"
)

type SimConfig struct {
	APIBaseURL      string
	Duration        time.Duration
	Workers         int
	BookingRatio    float64
	CancelRatio     float64
	RescheduleRatio float64
	ReadRatio       float64
	WalkInRatio     float64
	DaysAhead       int
	PatientLimit    int
	PostgresDSN     string
}

type practitioner struct {
	ID       uuid.UUID
	ClinicID uuid.UUID
}

type DataPool struct {
	Patients      []uuid.UUID
	Practitioners []practitioner
	mu            sync.RWMutex
	appointments  []uuid.UUID
}

func (dp *DataPool) AddAppointment(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) GetRandomAppointment(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return uuid.Nil, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
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
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

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
	Booking    OperationMetrics
	Cancel     OperationMetrics
	Reschedule OperationMetrics
	Slots      OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	actorID uuid.UUID
	log     zerolog.Logger
}

func main() {
	cfg, base := loadConfig()
	log := logging.New(base.Env, base.LogLevel, "simulate", base.LogOptions()...)

	if err := validateConfig(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	log.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("booking", cfg.BookingRatio).
		Float64("cancel", cfg.CancelRatio).
		Float64("reschedule", cfg.RescheduleRatio).
		Float64("read", cfg.ReadRatio).
		Msg("simulator starting")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("load data pool")
	}
	log.Info().Int("patients", len(dataPool.Patients)).Int("practitioners", len(dataPool.Practitioners)).Msg("loaded")

	sim := &Simulator{
		config:  cfg,
		pool:    dataPool,
		client:  &http.Client{Timeout: 10 * time.Second},
		actorID: uuid.New(),
		log:     log,
	}

	sim.Run()
	sim.PrintReport()

	checkCtx, checkCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer checkCancel()
	if err := verifyIntegrity(checkCtx, pgPool); err != nil {
		log.Error().Err(err).Msg("integrity check failed")
		os.Exit(1)
	}
	log.Info().Msg("integrity check passed: no double bookings, course balances consistent")
}

func loadConfig() (SimConfig, config.Config) {
	baseCfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("failed to load base config")
	}

	cfg := SimConfig{
		APIBaseURL:      getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:        getDuration("SIM_DURATION", 30*time.Second),
		Workers:         getInt("SIM_WORKERS", 10),
		BookingRatio:    getFloat("SIM_BOOKING_RATIO", 0.5),
		CancelRatio:     getFloat("SIM_CANCEL_RATIO", 0.1),
		RescheduleRatio: getFloat("SIM_RESCHEDULE_RATIO", 0.15),
		ReadRatio:       getFloat("SIM_READ_RATIO", 0.25),
		WalkInRatio:     getFloat("SIM_WALK_IN_RATIO", 0.3),
		DaysAhead:       getInt("SIM_DAYS_AHEAD", 5),
		PatientLimit:    getInt("SIM_PATIENT_LIMIT", 2000),
		PostgresDSN:     baseCfg.PostgresDSN,
	}

	total := cfg.BookingRatio + cfg.CancelRatio + cfg.RescheduleRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.CancelRatio /= total
		cfg.RescheduleRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg, baseCfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.DaysAhead <= 0 {
		return fmt.Errorf("SIM_DAYS_AHEAD must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	rows, err := pool.Query(ctx, `SELECT id FROM patients LIMIT $1`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Patients = append(dataPool.Patients, id)
	}
	rows.Close()

	rows, err = pool.Query(ctx, `SELECT id, clinic_id FROM practitioners`)
	if err != nil {
		return nil, fmt.Errorf("load practitioners: %w", err)
	}
	for rows.Next() {
		var p practitioner
		if err := rows.Scan(&p.ID, &p.ClinicID); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Practitioners = append(dataPool.Practitioners, p)
	}
	rows.Close()

	if len(dataPool.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded, run seed first")
	}
	if len(dataPool.Practitioners) == 0 {
		return nil, fmt.Errorf("no practitioners loaded, run seed first")
	}
	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.log.Info().Msg("simulation complete")
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
		case r < s.config.BookingRatio:
			s.doBooking(ctx, rng)
		case r < s.config.BookingRatio+s.config.CancelRatio:
			s.doCancel(ctx, rng)
		case r < s.config.BookingRatio+s.config.CancelRatio+s.config.RescheduleRatio:
			s.doReschedule(ctx, rng)
		default:
			s.doSlots(ctx, rng)
		}
	}
}

// randomRange picks a 30 or 60 minute range inside 09:00-20:00 on one of
// the next DaysAhead days. Contention on a small grid is the point.
func (s *Simulator) randomRange(rng *rand.Rand) (date, start, end string) {
	day := time.Now().AddDate(0, 0, 1+rng.Intn(s.config.DaysAhead))
	startMin := 9*60 + 30*rng.Intn(21)
	length := 30 * (1 + rng.Intn(2))
	if startMin+length > 20*60 {
		length = 30
	}
	return day.Format("2006-01-02"), hhmm(startMin), hhmm(startMin + length)
}

func hhmm(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	p := s.pool.Practitioners[rng.Intn(len(s.pool.Practitioners))]
	date, start, end := s.randomRange(rng)

	body := map[string]any{
		"practitioner_id": p.ID,
		"clinic_id":       p.ClinicID,
		"date":            date,
		"start_time":      start,
		"end_time":        end,
	}
	if rng.Float64() < s.config.WalkInRatio {
		body["booking_kind"] = "WALK_IN"
		body["visitor_name"] = gofakeit.Name()
		body["visitor_phone"] = gofakeit.Numerify("08########")
	} else {
		body["booking_kind"] = "REGISTERED_PATIENT"
		body["patient_id"] = s.pool.Patients[rng.Intn(len(s.pool.Patients))]
	}

	began := time.Now()
	status, respBody, err := s.post(ctx, "/appointments", body)
	latency := time.Since(began)

	if err == nil && status == http.StatusCreated {
		var created struct {
			ID uuid.UUID `json:"id"`
		}
		if json.Unmarshal(respBody, &created) == nil && created.ID != uuid.Nil {
			s.pool.AddAppointment(created.ID)
		}
	}
	s.metrics.Booking.Record(latency, err == nil && status == http.StatusCreated, err == nil && status == http.StatusConflict)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	began := time.Now()
	status, _, err := s.post(ctx, "/appointments/"+id.String()+"/cancel", map[string]string{"reason": "simulated cancellation"})
	s.metrics.Cancel.Record(time.Since(began), err == nil && status == http.StatusOK, err == nil && status == http.StatusConflict)
}

func (s *Simulator) doReschedule(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}
	date, start, end := s.randomRange(rng)

	began := time.Now()
	status, _, err := s.post(ctx, "/appointments/"+id.String()+"/reschedule", map[string]string{
		"date": date, "start_time": start, "end_time": end,
	})
	s.metrics.Reschedule.Record(time.Since(began), err == nil && status == http.StatusOK, err == nil && status == http.StatusConflict)
}

func (s *Simulator) doSlots(ctx context.Context, rng *rand.Rand) {
	p := s.pool.Practitioners[rng.Intn(len(s.pool.Practitioners))]
	date, _, _ := s.randomRange(rng)

	began := time.Now()
	status, _, err := s.do(ctx, http.MethodGet,
		fmt.Sprintf("/clinics/%s/slots?date=%s&practitioner_id=%s", p.ClinicID, date, p.ID), nil)
	s.metrics.Slots.Record(time.Since(began), err == nil && status == http.StatusOK, false)
}

func (s *Simulator) post(ctx context.Context, path string, body any) (int, []byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return 0, nil, err
	}
	return s.do(ctx, http.MethodPost, path, bytes.NewReader(b))
}

func (s *Simulator) do(ctx context.Context, method, path string, body io.Reader) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-ID", s.actorID.String())
	req.Header.Set("X-Actor-Role", "MANAGER")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	return resp.StatusCode, respBody, err
}

// verifyIntegrity fails when two live appointments of one practitioner
// overlap or when a course balance disagrees with its ledger.
func verifyIntegrity(ctx context.Context, pool *pgxpool.Pool) error {
	var overlaps int
	if err := pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments a
		JOIN appointments b
		  ON a.practitioner_id = b.practitioner_id
		 AND a.appt_date = b.appt_date
		 AND a.id < b.id
		 AND a.start_time < b.end_time
		 AND a.end_time > b.start_time
		WHERE a.status <> 'CANCELLED' AND b.status <> 'CANCELLED'
	`).Scan(&overlaps); err != nil {
		return fmt.Errorf("overlap query: %w", err)
	}
	if overlaps > 0 {
		return fmt.Errorf("%d overlapping appointment pairs", overlaps)
	}

	var drift int
	if err := pool.QueryRow(ctx, `
		SELECT count(*)
		FROM courses c
		LEFT JOIN (
			SELECT course_id,
			       sum(CASE kind WHEN 'USE' THEN 1 ELSE -1 END) AS net
			FROM course_ledger
			GROUP BY course_id
		) l ON l.course_id = c.id
		WHERE c.used_sessions <> COALESCE(l.net, 0)
	`).Scan(&drift); err != nil {
		return fmt.Errorf("ledger query: %w", err)
	}
	if drift > 0 {
		return fmt.Errorf("%d courses disagree with their ledger", drift)
	}
	return nil
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Reschedule", &s.metrics.Reschedule)
	printOperationReport("Available slots", &s.metrics.Slots)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
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
