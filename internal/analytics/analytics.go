package analytics

import (
	"database/sql"
	"fmt"
	"math"
	"sort"
)

// DB is the interface for database queries used by analytics.
type DB interface {
	Conn() *sql.DB
	Rebind(query string) string
}

// boundedStages are the review stages whose loops are capped.
var boundedStages = []string{"review-code", "security-review", "review-tests", "run-qa"}

// LoopStat summarises one bounded review loop across runs.
type LoopStat struct {
	Stage       string  `json:"stage"`
	Runs        int     `json:"runs"`
	Executions  int     `json:"executions"`
	NoOps       int     `json:"no_ops"`
	AvgAttempts float64 `json:"avg_attempts"`
	MaxAttempts int     `json:"max_attempts"`
	Forced      int     `json:"forced"`
	ForcedPct   float64 `json:"forced_pct"`
}

// QueryLoopStats returns attempt and forced-acceptance counts per bounded
// review stage. ForcedPct is the share of runs whose loop ended because its
// cap was reached rather than by acceptance.
func QueryLoopStats(database DB, since string) ([]LoopStat, error) {
	query := `
		SELECT run_id, stage, attempt, forced, no_op
		FROM stage_runs
		WHERE stage IN (?, ?, ?, ?)`
	args := []any{boundedStages[0], boundedStages[1], boundedStages[2], boundedStages[3]}
	if since != "" {
		query += ` AND timestamp >= ?`
		args = append(args, since)
	}
	query += ` ORDER BY id`

	rows, err := database.Conn().Query(database.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query loop stats: %w", err)
	}
	defer rows.Close()

	type acc struct {
		stat       LoopStat
		maxPerRun  map[string]int
		forcedRuns map[string]bool
	}
	byStage := make(map[string]*acc)
	for rows.Next() {
		var runID, stage string
		var attempt int
		var forced, noOp bool
		if err := rows.Scan(&runID, &stage, &attempt, &forced, &noOp); err != nil {
			return nil, fmt.Errorf("scan loop stat: %w", err)
		}
		a := byStage[stage]
		if a == nil {
			a = &acc{stat: LoopStat{Stage: stage}, maxPerRun: map[string]int{}, forcedRuns: map[string]bool{}}
			byStage[stage] = a
		}
		if noOp {
			a.stat.NoOps++
		} else {
			a.stat.Executions++
		}
		if prev, ok := a.maxPerRun[runID]; !ok || attempt > prev {
			a.maxPerRun[runID] = attempt
		}
		if forced {
			a.stat.Forced++
			a.forcedRuns[runID] = true
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var results []LoopStat
	for _, stage := range boundedStages {
		a, ok := byStage[stage]
		if !ok {
			continue
		}
		var attempts []float64
		for _, n := range a.maxPerRun {
			attempts = append(attempts, float64(n))
			if n > a.stat.MaxAttempts {
				a.stat.MaxAttempts = n
			}
		}
		a.stat.Runs = len(a.maxPerRun)
		a.stat.AvgAttempts = avg(attempts)
		a.stat.ForcedPct = pct(len(a.forcedRuns), a.stat.Runs)
		results = append(results, a.stat)
	}
	return results, nil
}

// StageDuration holds duration stats for a stage.
type StageDuration struct {
	Stage string  `json:"stage"`
	Count int     `json:"count"`
	Avg   float64 `json:"avg_seconds"`
	P50   float64 `json:"p50_seconds"`
	P95   float64 `json:"p95_seconds"`
}

// QueryStageDurations returns average and percentile durations per stage.
// No-op executions are left out.
func QueryStageDurations(database DB, since string) ([]StageDuration, error) {
	query := `SELECT stage, duration_ms FROM stage_runs WHERE no_op = ?`
	args := []any{false}
	if since != "" {
		query += ` AND timestamp >= ?`
		args = append(args, since)
	}

	rows, err := database.Conn().Query(database.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query stage durations: %w", err)
	}
	defer rows.Close()

	stageDurations := make(map[string][]float64)
	for rows.Next() {
		var stage string
		var ms int64
		if err := rows.Scan(&stage, &ms); err != nil {
			return nil, fmt.Errorf("scan stage duration: %w", err)
		}
		stageDurations[stage] = append(stageDurations[stage], float64(ms)/1000)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var results []StageDuration
	for stage, durations := range stageDurations {
		sort.Float64s(durations)
		results = append(results, StageDuration{
			Stage: stage,
			Count: len(durations),
			Avg:   avg(durations),
			P50:   percentile(durations, 50),
			P95:   percentile(durations, 95),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Stage < results[j].Stage
	})
	return results, nil
}

// RunOutcomes counts how runs ended.
type RunOutcomes struct {
	Started   int     `json:"started"`
	Completed int     `json:"completed"`
	Failed    int     `json:"failed"`
	Aborted   int     `json:"aborted"`
	AvgSteps  float64 `json:"avg_steps"`
}

// QueryRunOutcomes returns run counts by outcome and the mean number of stage
// executions per run.
func QueryRunOutcomes(database DB, since string) (*RunOutcomes, error) {
	query := `
		SELECT
			SUM(CASE WHEN event = 'run_started' THEN 1 ELSE 0 END),
			SUM(CASE WHEN event = 'run_completed' THEN 1 ELSE 0 END),
			SUM(CASE WHEN event = 'run_failed' THEN 1 ELSE 0 END),
			SUM(CASE WHEN event = 'run_aborted' THEN 1 ELSE 0 END)
		FROM run_events`
	var args []any
	if since != "" {
		query += ` WHERE timestamp >= ?`
		args = append(args, since)
	}

	var started, completed, failed, aborted sql.NullInt64
	if err := database.Conn().QueryRow(database.Rebind(query), args...).Scan(&started, &completed, &failed, &aborted); err != nil {
		return nil, fmt.Errorf("query run outcomes: %w", err)
	}
	out := &RunOutcomes{
		Started:   int(started.Int64),
		Completed: int(completed.Int64),
		Failed:    int(failed.Int64),
		Aborted:   int(aborted.Int64),
	}

	stepQuery := `SELECT run_id, COUNT(*) FROM stage_runs`
	if since != "" {
		stepQuery += ` WHERE timestamp >= ?`
	}
	stepQuery += ` GROUP BY run_id`
	rows, err := database.Conn().Query(database.Rebind(stepQuery), args...)
	if err != nil {
		return nil, fmt.Errorf("query run steps: %w", err)
	}
	defer rows.Close()
	var steps []float64
	for rows.Next() {
		var runID string
		var n int
		if err := rows.Scan(&runID, &n); err != nil {
			return nil, fmt.Errorf("scan run steps: %w", err)
		}
		steps = append(steps, float64(n))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out.AvgSteps = avg(steps)
	return out, nil
}

// TimelineEvent is one line of a run's timeline.
type TimelineEvent struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Stage     string `json:"stage,omitempty"`
	Attempt   int    `json:"attempt,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// QueryRunTimeline returns the full event timeline for a run.
func QueryRunTimeline(database DB, runID string) ([]TimelineEvent, error) {
	rows, err := database.Conn().Query(database.Rebind(
		`SELECT timestamp, event, stage, attempt, detail
		 FROM run_events WHERE run_id = ? ORDER BY id`),
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query run events: %w", err)
	}
	defer rows.Close()

	var results []TimelineEvent
	for rows.Next() {
		var e TimelineEvent
		var stage, detail sql.NullString
		var attempt sql.NullInt64
		if err := rows.Scan(&e.Timestamp, &e.Event, &stage, &attempt, &detail); err != nil {
			return nil, fmt.Errorf("scan run event: %w", err)
		}
		e.Stage = stage.String
		e.Attempt = int(attempt.Int64)
		e.Detail = detail.String
		results = append(results, e)
	}
	return results, rows.Err()
}

// --- helpers ---

func avg(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return math.Round(sum/float64(len(values))*10) / 10
}

func percentile(sorted []float64, p int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := float64(p) / 100.0 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper || upper >= len(sorted) {
		return math.Round(sorted[lower]*10) / 10
	}
	weight := rank - float64(lower)
	return math.Round((sorted[lower]*(1-weight)+sorted[upper]*weight)*10) / 10
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(n)/float64(total)*1000) / 10
}
