package store

import (
	"fmt"
	"time"
)

// StageStep is one stage of a run as reconstructed from its events.
type StageStep struct {
	Name        string
	Status      string
	StartedAt   string
	CompletedAt string
	DurationMs  int64
	Details     map[string]any
}

// BuildStageTimeline folds stage-change events into consecutive steps. A stage ends
// when the next one starts; the last stage stays running unless the run finished.
func BuildStageTimeline(events []RunEvent) []StageStep {
	steps := []StageStep{}
	for _, event := range events {
		switch NormalizeEventType(event.Type) {
		case EventStageChanged:
			name := firstString(event.Payload, "stage")
			if name == "" {
				name = fmt.Sprintf("stage-%d", event.Seq)
			}
			if len(steps) > 0 {
				closeStep(&steps[len(steps)-1], event.Timestamp, "completed")
			}
			steps = append(steps, StageStep{
				Name:      name,
				Status:    "running",
				StartedAt: event.Timestamp,
				Details:   withoutKey(event.Payload, "stage"),
			})
		case EventRunCompleted, EventRunFailed:
			if len(steps) == 0 {
				continue
			}
			status := "completed"
			if NormalizeEventType(event.Type) == EventRunFailed {
				status = "failed"
			}
			closeStep(&steps[len(steps)-1], event.Timestamp, status)
		}
	}
	return steps
}

func closeStep(step *StageStep, completedAt string, status string) {
	if step.CompletedAt != "" {
		return
	}
	step.Status = status
	step.CompletedAt = completedAt
	start, errStart := time.Parse(time.RFC3339Nano, step.StartedAt)
	end, errEnd := time.Parse(time.RFC3339Nano, completedAt)
	if errStart == nil && errEnd == nil && !end.Before(start) {
		step.DurationMs = end.Sub(start).Milliseconds()
	}
}

func firstString(payload map[string]any, keys ...string) string {
	for _, key := range keys {
		if value, ok := payload[key].(string); ok && value != "" {
			return value
		}
	}
	return ""
}

func withoutKey(payload map[string]any, key string) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		if k != key {
			out[k] = v
		}
	}
	return out
}
