package performance

import (
	"fmt"
	"time"
)

const (
	// a max duration above this multiple of the average is reported as variance
	varianceFactor = 3
	minSuccessRate = 0.9
	slowAverage    = 5 * time.Second
)

// Report summarises the recorded executions of one skill
type Report struct {
	SkillName       string        `json:"skill_name"`
	TotalExecutions int           `json:"total_executions"`
	Successes       int           `json:"successes"`
	SuccessRate     float64       `json:"success_rate"`
	AvgDuration     time.Duration `json:"avg_duration"`
	MinDuration     time.Duration `json:"min_duration"`
	MaxDuration     time.Duration `json:"max_duration"`
	LastRun         time.Time     `json:"last_run"`
	Bottlenecks     []string      `json:"bottlenecks"`
	Recommendations []string      `json:"recommendations"`
}

func newReport(row aggregateRow) *Report {
	r := &Report{
		SkillName:       row.SkillName,
		TotalExecutions: row.Total,
		Successes:       row.Successes,
		AvgDuration:     time.Duration(row.AvgNS),
		MinDuration:     time.Duration(row.MinNS),
		MaxDuration:     time.Duration(row.MaxNS),
		LastRun:         time.UnixMilli(row.LastRun).UTC(),
		Bottlenecks:     []string{},
		Recommendations: []string{},
	}
	if row.Total > 0 {
		r.SuccessRate = float64(row.Successes) / float64(row.Total)
	}

	if r.AvgDuration > 0 && r.MaxDuration > varianceFactor*r.AvgDuration {
		r.Bottlenecks = append(r.Bottlenecks, fmt.Sprintf("High variance in execution time (max: %.2fs)", r.MaxDuration.Seconds()))
	}
	if r.SuccessRate < minSuccessRate {
		r.Bottlenecks = append(r.Bottlenecks, fmt.Sprintf("Low success rate: %.1f%%", r.SuccessRate*100))
	}
	if r.AvgDuration > slowAverage {
		r.Recommendations = append(r.Recommendations, "Consider caching intermediate results")
	}
	if len(r.Bottlenecks) > 0 {
		r.Recommendations = append(r.Recommendations, "Review bottlenecks and optimize critical paths")
	}
	return r
}
