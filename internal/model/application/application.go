package application

import "time"

// Status tracks where a tier-upgrade application is in review.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Application is a user's request to move up one usage tier.
type Application struct {
	ID             string     `json:"id"`
	UserID         string     `json:"userId"`
	UserName       string     `json:"userName"`
	Email          string     `json:"email"`
	Department     string     `json:"department"`
	CurrentLevel   string     `json:"currentLevel"`
	RequestedLevel string     `json:"requestedLevel"`
	TasksCompleted int        `json:"tasksCompleted"`
	HoursUsed      int        `json:"hoursUsed"`
	TimeSaved      int        `json:"timeSaved"`
	Status         Status     `json:"status"`
	ReviewerID     string     `json:"reviewerId,omitempty"`
	ReviewNote     string     `json:"reviewNote,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	ReviewedAt     *time.Time `json:"reviewedAt,omitempty"`
}

// EstimateTimeSaved converts reported usage into saved minutes:
// five per completed task plus two per hour spent with the assistant.
func EstimateTimeSaved(tasksCompleted, hoursUsed int) int {
	return tasksCompleted*5 + hoursUsed*2
}

var levelOrder = []string{"L1", "L2", "L3"}

// NextLevel returns the tier after current, or "" when current is unknown or already the top.
func NextLevel(current string) string {
	for i, lvl := range levelOrder {
		if lvl == current && i+1 < len(levelOrder) {
			return levelOrder[i+1]
		}
	}
	return ""
}
