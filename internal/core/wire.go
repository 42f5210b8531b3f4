package core

import (
	"time"
)

// PrintPayload is the body the controller posts to the print server.
type PrintPayload struct {
	JobID    string `json:"jobId"`
	DiaryID  string `json:"diaryId"`
	Title    string `json:"title"`
	Date     string `json:"date"`
	Pages    []Page `json:"pages"`
	MimeType string `json:"mimeType"`
}

type SubmitResponse struct {
	Success       bool   `json:"success"`
	Message       string `json:"message,omitempty"`
	QueuePosition int    `json:"queuePosition,omitempty"`
	Error         string `json:"error,omitempty"`
}

type ServerStatus struct {
	Success     bool   `json:"success"`
	Status      string `json:"status"`
	Message     string `json:"message"`
	Details     string `json:"details,omitempty"`
	QueueLength int    `json:"queueLength"`
	IsPrinting  bool   `json:"isPrinting"`
}

type QueueEntryView struct {
	JobID     string           `json:"jobId"`
	DiaryID   string           `json:"diaryId"`
	Title     string           `json:"title"`
	Date      string           `json:"date"`
	PageCount int              `json:"pageCount"`
	MimeType  string           `json:"mimeType"`
	Status    QueueEntryStatus `json:"status"`
	CreatedAt time.Time        `json:"createdAt"`
}

type QueueSnapshot struct {
	Success    bool             `json:"success"`
	Queue      []QueueEntryView `json:"queue"`
	IsPrinting bool             `json:"isPrinting"`
	Current    *QueueEntryView  `json:"current,omitempty"`
}

// Contains reports whether jobID is waiting in the queue or printing.
func (s *QueueSnapshot) Contains(jobID string) bool {
	if s.Current != nil && s.Current.JobID == jobID {
		return true
	}
	for _, e := range s.Queue {
		if e.JobID == jobID {
			return true
		}
	}
	return false
}

// CompletionNotice is the webhook body the print server sends back.
type CompletionNotice struct {
	JobID   string `json:"jobId"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// PrinterStatusReport is what the controller exposes to the frontend.
type PrinterStatusReport struct {
	Online  bool   `json:"online"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (e *QueueEntry) View() QueueEntryView {
	return QueueEntryView{
		JobID:     e.JobID,
		DiaryID:   e.DiaryID,
		Title:     e.Title,
		Date:      e.Date,
		PageCount: len(e.Pages),
		MimeType:  e.MimeType,
		Status:    e.Status,
		CreatedAt: e.CreatedAt,
	}
}
