package reporting

import "time"

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// CallsSummaryRequest requests aggregated call metrics for one user.
type CallsSummaryRequest struct {
	UserID string    `json:"userId"`
	Range  TimeRange `json:"range"`
}

type CallsSummary struct {
	UserID string    `json:"userId"`
	Range  TimeRange `json:"range"`

	TotalCalls    int `json:"totalCalls"`
	OutgoingCalls int `json:"outgoingCalls"`
	IncomingCalls int `json:"incomingCalls"`
	GroupCalls    int `json:"groupCalls"`
	VideoCalls    int `json:"videoCalls"`

	FinishedCalls int `json:"finishedCalls"`
	CanceledCalls int `json:"canceledCalls"`
	RejectedCalls int `json:"rejectedCalls"`
	// MissedCalls are incoming calls that timed out unanswered.
	MissedCalls     int `json:"missedCalls"`
	OfflineCalls    int `json:"offlineCalls"`
	InProgressCalls int `json:"inProgressCalls"`

	TotalDurationSeconds   int `json:"totalDurationSeconds"`
	AverageDurationSeconds int `json:"averageDurationSeconds"`
}
