package model

import "time"

const (
	JobWeeklyReset = "weekly_reset"
	JobReminder    = "reminder"
)

// SchedulerRun records that a scheduled job fired for a window.
type SchedulerRun struct {
	ID        int64     `json:"id"`
	Job       string    `json:"job"`
	WindowKey string    `json:"window_key"`
	RanAt     time.Time `json:"ran_at"`
}
