package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultDurationSeconds = 300
	DefaultStepCap         = 99999
	DateLayout             = "02/01/2006"
	ZeroElapsed            = "00:00"
)

type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// StopReason records what ended a run. The stopped state is the same for
// every reason.
type StopReason string

const (
	StopNone    StopReason = ""
	StopManual  StopReason = "manual"
	StopElapsed StopReason = "elapsed"
	StopStepCap StopReason = "step_cap"
)

// Session is an immutable snapshot of one step-counting run. Only Reduce
// produces new values.
type Session struct {
	ID             string     `json:"id"`
	DeviceID       string     `json:"deviceId,omitempty"`
	State          State      `json:"state"`
	StepCount      int        `json:"stepCount"`
	ElapsedSeconds int        `json:"elapsedSeconds"`
	ElapsedText    string     `json:"elapsedTime"`
	CompletionDate string     `json:"completionDate"`
	StopReason     StopReason `json:"stopReason,omitempty"`
	Run            uint64     `json:"run"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

func NewSession(id string, deviceID string) Session {
	if id == "" {
		id = uuid.New().String()
	}

	return Session{
		ID:          id,
		DeviceID:    deviceID,
		State:       StateIdle,
		ElapsedText: ZeroElapsed,
		UpdatedAt:   time.Now(),
	}
}

func (s Session) IsRunning() bool {
	return s.State == StateRunning
}

func (s Session) IsFinished() bool {
	return s.State == StateStopped
}

// Handoff is the record passed to the summary view.
func (s Session) Handoff() Handoff {
	return Handoff{
		ElapsedText:    s.ElapsedText,
		StepCount:      s.StepCount,
		CompletionDate: s.CompletionDate,
	}
}

// FormatElapsed renders seconds as MM:SS with leading zeros.
func FormatElapsed(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
