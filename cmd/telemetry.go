package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/khanhnv2901/safe-audit/internal/application/analysis"
	"github.com/khanhnv2901/safe-audit/internal/shared/constants"
)

type telemetryRecord struct {
	Timestamp          time.Time      `json:"timestamp"`
	Command            string         `json:"command"`
	TargetCount        int            `json:"target_count"`
	SuccessCount       int            `json:"success_count"`
	ErrorCount         int            `json:"error_count"`
	SuccessRate        float64        `json:"success_rate"`
	AverageScore       float64        `json:"average_score"`
	Ratings            map[string]int `json:"ratings,omitempty"`
	ErrorCategories    map[string]int `json:"error_categories,omitempty"`
	DurationSeconds    float64        `json:"duration_seconds"`
	AvgDurationPerSafe float64        `json:"avg_duration_per_safe"`
}

func newTelemetryRecord(command string, outcomes []analysis.Outcome, duration time.Duration) telemetryRecord {
	rec := telemetryRecord{
		Timestamp:       time.Now().UTC(),
		Command:         command,
		TargetCount:     len(outcomes),
		Ratings:         make(map[string]int),
		ErrorCategories: make(map[string]int),
		DurationSeconds: duration.Seconds(),
	}

	scoreSum := 0
	for _, o := range outcomes {
		if o.Failed() {
			rec.ErrorCount++
			rec.ErrorCategories[o.Category]++
			continue
		}
		rec.SuccessCount++
		scoreSum += o.Report.Score.Score
		rec.Ratings[string(o.Report.Score.Rating)]++
	}

	if rec.TargetCount > 0 {
		rec.SuccessRate = float64(rec.SuccessCount) / float64(rec.TargetCount) * 100
		rec.AvgDurationPerSafe = duration.Seconds() / float64(rec.TargetCount)
	}
	if rec.SuccessCount > 0 {
		rec.AverageScore = float64(scoreSum) / float64(rec.SuccessCount)
	}
	return rec
}

// recordTelemetry appends one JSON line describing a finished batch to path.
func recordTelemetry(path, command string, outcomes []analysis.Outcome, duration time.Duration) error {
	data, err := json.Marshal(newTelemetryRecord(command, outcomes, duration))
	if err != nil {
		return fmt.Errorf("marshal telemetry: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, constants.DefaultFilePerm)
	if err != nil {
		return fmt.Errorf("open telemetry file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write telemetry: %w", err)
	}

	return nil
}
