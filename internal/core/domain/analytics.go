package domain

import "time"

// StatsPeriod is the window of a message histogram.
type StatsPeriod string

const (
	Period24Hours StatsPeriod = "24h"
	Period7Days   StatsPeriod = "7days"
	Period30Days  StatsPeriod = "30days"
)

// ParseStatsPeriod accepts 24h, 7days and 30days. Empty means 7days.
func ParseStatsPeriod(s string) (StatsPeriod, error) {
	switch p := StatsPeriod(s); p {
	case "":
		return Period7Days, nil
	case Period24Hours, Period7Days, Period30Days:
		return p, nil
	default:
		return "", ErrInvalidPeriod
	}
}

// Buckets returns the bucket width and count for p.
func (p StatsPeriod) Buckets() (time.Duration, int) {
	switch p {
	case Period24Hours:
		return time.Hour, 24
	case Period30Days:
		return 24 * time.Hour, 30
	default:
		return 24 * time.Hour, 7
	}
}

type MessageBucket struct {
	Start time.Time `json:"start"`
	Count int       `json:"count"`
}

type MessageStats struct {
	Period  StatsPeriod     `json:"period"`
	Total   int             `json:"total"`
	Buckets []MessageBucket `json:"buckets"`
}

type ActivityStats struct {
	Connections    int              `json:"connections"`
	UniqueUsers    int              `json:"uniqueUsers"`
	RecentlyActive int              `json:"recentlyActive"`
	ByRole         map[UserRole]int `json:"byRole"`
}

type StreamStats struct {
	Live                   int              `json:"live"`
	Total                  int              `json:"total"`
	TotalDurationSeconds   int64            `json:"totalDurationSeconds"`
	AverageDurationSeconds int64            `json:"averageDurationSeconds"`
	Sessions               []*StreamSession `json:"sessions"`
}

type ModerationStats struct {
	ActiveBans   int                          `json:"activeBans"`
	ActiveMutes  int                          `json:"activeMutes"`
	ActionsToday int                          `json:"actionsToday"`
	ByAction     map[ModerationActionType]int `json:"byAction"`
}
