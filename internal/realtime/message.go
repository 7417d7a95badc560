package realtime

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Event string

const (
	EventScanStarted      Event = "scan_started"
	EventScanProgress     Event = "scan_progress"
	EventUploadProgress   Event = "upload_progress"
	EventScanComplete     Event = "scan_complete"
	EventScanFailed       Event = "scan_failed"
	EventSessionRecovered Event = "session_recovered"
)

// Message is one background→UI notification. Delivery is at-least-once; consumers that
// act on a message dedupe on IdempotencyKey.
type Message struct {
	ID             uuid.UUID       `json:"id"`
	Channel        string          `json:"channel"`
	Event          Event           `json:"event"`
	CourseID       string          `json:"course_id"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	Summary        string          `json:"summary,omitempty"`
	Detail         string          `json:"detail,omitempty"`
	Data           json.RawMessage `json:"data,omitempty"`
	EmittedAt      time.Time       `json:"emitted_at"`
}

func CourseChannel(courseID string) string {
	return "course:" + strings.TrimSpace(courseID)
}

// CompletionKey is the idempotency key of a scan_complete notification.
func CompletionKey(courseID string, documentCount int) string {
	return courseID + ":" + strconv.Itoa(documentCount)
}

// NewMessage builds a course message. data is encoded eagerly so every transport
// carries the same bytes.
func NewMessage(courseID string, event Event, summary string, data any) (Message, error) {
	msg := Message{
		ID:       uuid.New(),
		Channel:  CourseChannel(courseID),
		Event:    event,
		CourseID: courseID,
		Summary:  summary,
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return Message{}, err
		}
		msg.Data = raw
	}
	return msg, nil
}

func (m Message) Decode(v any) error {
	if len(m.Data) == 0 {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// ScanCompleteData is the payload of EventScanComplete.
type ScanCompleteData struct {
	DocumentCount int    `json:"pdfCount"`
	Result        string `json:"result"`
	Uploaded      int    `json:"uploaded"`
	Skipped       int    `json:"skipped"`
	Failed        int    `json:"failed"`
	UpToDate      bool   `json:"upToDate"`
}

// ProgressData is the payload of progress-style events.
type ProgressData struct {
	Status          string `json:"status"`
	ProgressPercent int    `json:"progressPercent"`
	TimeLeftSeconds int    `json:"timeLeftSeconds"`
	StatusText      string `json:"statusText,omitempty"`
	Discovered      int    `json:"discovered,omitempty"`
}
