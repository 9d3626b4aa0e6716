package domain

import "time"

type EventKind int

const (
	EventStart EventKind = iota
	EventStop
	EventReset
	EventShow
	EventTick
	EventElapsed
	EventSensor
)

func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "start"
	case EventStop:
		return "stop"
	case EventReset:
		return "reset"
	case EventShow:
		return "show"
	case EventTick:
		return "tick"
	case EventElapsed:
		return "elapsed"
	case EventSensor:
		return "sensor"
	default:
		return "unknown"
	}
}

// Event is one input to the session. Tick, Elapsed and Sensor events carry
// the run number that produced them so events from a cancelled run can be
// dropped.
type Event struct {
	Kind    EventKind
	Run     uint64
	Seconds int
	Value   float64
	At      time.Time
}

func Start(at time.Time) Event { return Event{Kind: EventStart, At: at} }
func Stop(at time.Time) Event  { return Event{Kind: EventStop, At: at} }
func Reset(at time.Time) Event { return Event{Kind: EventReset, At: at} }
func Show(at time.Time) Event  { return Event{Kind: EventShow, At: at} }

func Tick(run uint64, seconds int, at time.Time) Event {
	return Event{Kind: EventTick, Run: run, Seconds: seconds, At: at}
}

func Elapsed(run uint64, seconds int, at time.Time) Event {
	return Event{Kind: EventElapsed, Run: run, Seconds: seconds, At: at}
}

func Sensor(run uint64, value float64, at time.Time) Event {
	return Event{Kind: EventSensor, Run: run, Value: value, At: at}
}

// Effect is a bit set of side effects the controller must perform after a
// transition.
type Effect uint8

const (
	EffectStartTimer Effect = 1 << iota
	EffectStopTimer
	EffectSubscribeSensor
	EffectUnsubscribeSensor
	EffectShowSummary
)

func (e Effect) Has(f Effect) bool {
	return e&f != 0
}

type Notice string

const (
	NoticeNone    Notice = ""
	NoticeTimeUp  Notice = "Time is up!"
	NoticeStepCap Notice = "Step limit reached, the run was stopped."
)

// StepValue is the only step-detector reading that counts as a step.
const StepValue = 1.0

type Outcome struct {
	Session Session
	Changed bool
	Effects Effect
	Notice  Notice
	Counted bool
	Handoff *Handoff
}

type Rules struct {
	StepCap    int
	DateLayout string
}

func DefaultRules() Rules {
	return Rules{
		StepCap:    DefaultStepCap,
		DateLayout: DateLayout,
	}
}

// Reduce applies ev to s. A rejected command returns s unchanged together
// with a *Rejection. Events that do not apply to the current state, such as
// a tick from a stopped run, return an unchanged outcome and no error.
func (r Rules) Reduce(s Session, ev Event) (Outcome, error) {
	switch ev.Kind {
	case EventStart:
		switch s.State {
		case StateRunning:
			return Outcome{Session: s}, ErrAlreadyRunning
		case StateStopped:
			return Outcome{Session: s}, ErrRunFinished
		}
		next := s
		next.State = StateRunning
		next.Run++
		next.StepCount = 0
		next.ElapsedSeconds = 0
		next.ElapsedText = ZeroElapsed
		next.CompletionDate = ""
		next.StopReason = StopNone
		next.UpdatedAt = ev.At
		return Outcome{
			Session: next,
			Changed: true,
			Effects: EffectStartTimer | EffectSubscribeSensor,
		}, nil

	case EventStop:
		if !s.IsRunning() {
			return Outcome{Session: s}, ErrNotRunning
		}
		return r.stop(s, StopManual, ev.At), nil

	case EventElapsed:
		if !s.IsRunning() || ev.Run != s.Run {
			return Outcome{Session: s}, nil
		}
		s.ElapsedSeconds = ev.Seconds
		s.ElapsedText = FormatElapsed(ev.Seconds)
		out := r.stop(s, StopElapsed, ev.At)
		out.Notice = NoticeTimeUp
		return out, nil

	case EventTick:
		if !s.IsRunning() || ev.Run != s.Run || ev.Seconds < s.ElapsedSeconds {
			return Outcome{Session: s}, nil
		}
		next := s
		next.ElapsedSeconds = ev.Seconds
		next.ElapsedText = FormatElapsed(ev.Seconds)
		next.UpdatedAt = ev.At
		return Outcome{Session: next, Changed: true}, nil

	case EventSensor:
		if !s.IsRunning() || ev.Run != s.Run || ev.Value != StepValue {
			return Outcome{Session: s}, nil
		}
		next := s
		next.StepCount++
		next.UpdatedAt = ev.At
		if r.StepCap > 0 && next.StepCount >= r.StepCap {
			out := r.stop(next, StopStepCap, ev.At)
			out.Notice = NoticeStepCap
			out.Counted = true
			return out, nil
		}
		return Outcome{Session: next, Changed: true, Counted: true}, nil

	case EventReset:
		if s.IsRunning() {
			return Outcome{Session: s}, ErrResetWhileRunning
		}
		next := s
		next.State = StateIdle
		next.StepCount = 0
		next.ElapsedSeconds = 0
		next.ElapsedText = ZeroElapsed
		next.CompletionDate = ""
		next.StopReason = StopNone
		next.UpdatedAt = ev.At
		return Outcome{Session: next, Changed: true}, nil

	case EventShow:
		switch s.State {
		case StateRunning:
			return Outcome{Session: s}, ErrShowWhileRunning
		case StateIdle:
			return Outcome{Session: s}, ErrNoFinishedRun
		}
		h := s.Handoff()
		return Outcome{Session: s, Effects: EffectShowSummary, Handoff: &h}, nil
	}

	return Outcome{Session: s}, nil
}

func (r Rules) stop(s Session, reason StopReason, at time.Time) Outcome {
	layout := r.DateLayout
	if layout == "" {
		layout = DateLayout
	}

	s.State = StateStopped
	s.StopReason = reason
	s.CompletionDate = at.Format(layout)
	s.UpdatedAt = at

	return Outcome{
		Session: s,
		Changed: true,
		Effects: EffectStopTimer | EffectUnsubscribeSensor,
	}
}
