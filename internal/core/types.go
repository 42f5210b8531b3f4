package core

import (
	"time"
)

type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusSending   JobStatus = "sending"
	JobStatusPrinting  JobStatus = "printing"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// IsTerminal reports whether no further transitions are accepted.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CanTransitionTo encodes the job lifecycle:
// pending -> sending -> printing -> completed|failed, with sending -> failed
// on dispatch errors. A completion may also arrive before dispatch has
// recorded printing, so terminal states are reachable from sending too.
// Nothing skips sending.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch next {
	case JobStatusSending:
		return s == JobStatusPending
	case JobStatusPrinting:
		return s == JobStatusSending
	case JobStatusCompleted, JobStatusFailed:
		return s == JobStatusSending || s == JobStatusPrinting
	}
	return false
}

type PrintJob struct {
	JobID       string     `json:"jobId"`
	DiaryID     string     `json:"diaryId"`
	UserID      string     `json:"userId"`
	Status      JobStatus  `json:"status"`
	TotalPages  int        `json:"totalPages"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

type Page struct {
	PageNumber int    `json:"pageNumber"`
	ImageData  string `json:"imageData"`
}

type Diary struct {
	ID     string
	UserID string
	Title  string
	Date   string
}

// PrintableDiary is the pre-rendered page set produced when a diary is
// completed. Printing is only possible once it exists.
type PrintableDiary struct {
	DiaryID  string
	MimeType string
	Pages    []Page
}

type QueueEntryStatus string

const (
	QueueEntryQueued   QueueEntryStatus = "queued"
	QueueEntryPrinting QueueEntryStatus = "printing"
)

type QueueEntry struct {
	JobID     string
	DiaryID   string
	Title     string
	Date      string
	Pages     []Page
	MimeType  string
	Status    QueueEntryStatus
	CreatedAt time.Time
}

type PrinterStatus struct {
	Available bool   `json:"available"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
}
