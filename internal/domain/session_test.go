package domain

import (
	"errors"
	"testing"
	"time"
)

var testNow = time.Date(2026, time.March, 7, 9, 30, 0, 0, time.UTC)

func mustReduce(t *testing.T, r Rules, s Session, ev Event) Outcome {
	t.Helper()
	out, err := r.Reduce(s, ev)
	if err != nil {
		t.Fatalf("Reduce(%s) unexpected error: %v", ev.Kind, err)
	}
	return out
}

func runningSession(t *testing.T, r Rules) Session {
	t.Helper()
	return mustReduce(t, r, NewSession("s-1", "dev"), Start(testNow)).Session
}

func TestNewSessionIsIdle(t *testing.T) {
	s := NewSession("", "phone")

	if s.ID == "" {
		t.Fatalf("expected generated ID")
	}
	if s.State != StateIdle || s.IsRunning() || s.IsFinished() {
		t.Fatalf("new session state = %s, want idle", s.State)
	}
	if s.ElapsedText != ZeroElapsed {
		t.Fatalf("elapsed text = %q, want %q", s.ElapsedText, ZeroElapsed)
	}
	if s.CompletionDate != "" || s.StepCount != 0 {
		t.Fatalf("new session not zeroed: %+v", s)
	}
}

func TestFormatElapsed(t *testing.T) {
	tests := []struct {
		seconds int
		want    string
	}{
		{0, "00:00"},
		{9, "00:09"},
		{10, "00:10"},
		{59, "00:59"},
		{60, "01:00"},
		{125, "02:05"},
		{300, "05:00"},
		{-3, "00:00"},
	}
	for _, tt := range tests {
		if got := FormatElapsed(tt.seconds); got != tt.want {
			t.Errorf("FormatElapsed(%d) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestStartTransition(t *testing.T) {
	r := DefaultRules()
	out := mustReduce(t, r, NewSession("s-1", ""), Start(testNow))

	if !out.Session.IsRunning() {
		t.Fatalf("state = %s, want running", out.Session.State)
	}
	if out.Session.Run != 1 {
		t.Fatalf("run = %d, want 1", out.Session.Run)
	}
	if !out.Effects.Has(EffectStartTimer) || !out.Effects.Has(EffectSubscribeSensor) {
		t.Fatalf("start effects = %b, want timer and sensor", out.Effects)
	}
}

func TestStartTwiceIsRejected(t *testing.T) {
	r := DefaultRules()
	s := runningSession(t, r)
	s = mustReduce(t, r, s, Sensor(s.Run, 1, testNow)).Session

	out, err := r.Reduce(s, Start(testNow))
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second start error = %v, want ErrAlreadyRunning", err)
	}
	if out.Changed || out.Effects != 0 {
		t.Fatalf("rejected start must not change state")
	}
	if out.Session.StepCount != 1 || !out.Session.IsRunning() || out.Session.Run != 1 {
		t.Fatalf("session changed by rejected start: %+v", out.Session)
	}
}

func TestStartAfterStopIsRejected(t *testing.T) {
	r := DefaultRules()
	s := runningSession(t, r)
	s = mustReduce(t, r, s, Stop(testNow)).Session

	_, err := r.Reduce(s, Start(testNow))
	if !errors.Is(err, ErrRunFinished) {
		t.Fatalf("start after stop error = %v, want ErrRunFinished", err)
	}
}

func TestStopTransition(t *testing.T) {
	r := DefaultRules()
	s := runningSession(t, r)

	out := mustReduce(t, r, s, Stop(testNow))
	if out.Session.IsRunning() || !out.Session.IsFinished() {
		t.Fatalf("state = %s, want stopped", out.Session.State)
	}
	if out.Session.CompletionDate != "07/03/2026" {
		t.Fatalf("completion date = %q, want 07/03/2026", out.Session.CompletionDate)
	}
	if out.Session.StopReason != StopManual {
		t.Fatalf("stop reason = %q, want manual", out.Session.StopReason)
	}
	if !out.Effects.Has(EffectStopTimer) || !out.Effects.Has(EffectUnsubscribeSensor) {
		t.Fatalf("stop effects = %b", out.Effects)
	}
}

func TestStopWhenNotRunningIsRejected(t *testing.T) {
	r := DefaultRules()

	if _, err := r.Reduce(NewSession("s", ""), Stop(testNow)); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("stop from idle error = %v, want ErrNotRunning", err)
	}

	s := mustReduce(t, r, runningSession(t, r), Stop(testNow)).Session
	later := testNow.AddDate(0, 0, 1)
	out, err := r.Reduce(s, Stop(later))
	if !errors.Is(err, ErrNotRunning) {
		t.Fatalf("second stop error = %v, want ErrNotRunning", err)
	}
	if out.Session.CompletionDate != "07/03/2026" {
		t.Fatalf("completion date must be set exactly once, got %q", out.Session.CompletionDate)
	}
}

func TestTickUpdatesElapsedText(t *testing.T) {
	r := DefaultRules()
	s := runningSession(t, r)

	out := mustReduce(t, r, s, Tick(s.Run, 75, testNow))
	if out.Session.ElapsedText != "01:15" || out.Session.ElapsedSeconds != 75 {
		t.Fatalf("elapsed = %d %q, want 75 01:15", out.Session.ElapsedSeconds, out.Session.ElapsedText)
	}
}

func TestStaleEventsAreIgnored(t *testing.T) {
	r := DefaultRules()
	s := runningSession(t, r)
	s = mustReduce(t, r, s, Stop(testNow)).Session
	s = mustReduce(t, r, s, Reset(testNow)).Session
	s = mustReduce(t, r, s, Start(testNow)).Session

	if s.Run != 2 {
		t.Fatalf("run = %d, want 2", s.Run)
	}

	for _, ev := range []Event{
		Tick(1, 42, testNow),
		Sensor(1, 1, testNow),
		Elapsed(1, 300, testNow),
	} {
		out := mustReduce(t, r, s, ev)
		if out.Changed {
			t.Fatalf("%s from a cancelled run changed the session", ev.Kind)
		}
	}
}

func TestElapsedStopsRun(t *testing.T) {
	r := DefaultRules()
	s := runningSession(t, r)

	out := mustReduce(t, r, s, Elapsed(s.Run, DefaultDurationSeconds, testNow))
	if !out.Session.IsFinished() {
		t.Fatalf("state = %s, want stopped", out.Session.State)
	}
	if out.Session.ElapsedText != "05:00" {
		t.Fatalf("elapsed text = %q, want 05:00", out.Session.ElapsedText)
	}
	if out.Session.StopReason != StopElapsed || out.Notice != NoticeTimeUp {
		t.Fatalf("reason %q notice %q", out.Session.StopReason, out.Notice)
	}
	if out.Session.CompletionDate == "" {
		t.Fatalf("completion date not recorded")
	}
}

func TestOnlyStepValueCounts(t *testing.T) {
	r := DefaultRules()

	tests := []struct {
		name   string
		values []float64
		want   int
	}{
		{"single step", []float64{1}, 1},
		{"fallback zero ignored", []float64{0}, 0},
		{"other readings ignored", []float64{0.5, 2, -1, 1.0000001}, 0},
		{"mixed", []float64{1, 0, 1, 3, 1}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := runningSession(t, r)
			for _, v := range tt.values {
				s = mustReduce(t, r, s, Sensor(s.Run, v, testNow)).Session
			}
			if s.StepCount != tt.want {
				t.Fatalf("step count = %d, want %d", s.StepCount, tt.want)
			}
		})
	}
}

func TestAlternatingStepSequence(t *testing.T) {
	r := DefaultRules()

	for _, n := range []int{0, 1, 7, 250} {
		s := runningSession(t, r)
		for i := 0; i < n; i++ {
			s = mustReduce(t, r, s, Sensor(s.Run, 1.0, testNow)).Session
			s = mustReduce(t, r, s, Sensor(s.Run, 0.0, testNow)).Session
		}
		if s.StepCount != n {
			t.Fatalf("alternating length %d counted %d, want %d", 2*n, s.StepCount, n)
		}
	}
}

func TestSensorIgnoredUnlessRunning(t *testing.T) {
	r := DefaultRules()
	idle := NewSession("s", "")

	out := mustReduce(t, r, idle, Sensor(0, 1, testNow))
	if out.Changed || out.Session.StepCount != 0 {
		t.Fatalf("idle session counted a step")
	}

	stopped := mustReduce(t, r, runningSession(t, r), Stop(testNow)).Session
	out = mustReduce(t, r, stopped, Sensor(stopped.Run, 1, testNow))
	if out.Changed || out.Session.StepCount != 0 {
		t.Fatalf("stopped session counted a step")
	}
}

func TestStepCapStopsRun(t *testing.T) {
	r := DefaultRules()
	s := runningSession(t, r)
	s.StepCount = DefaultStepCap - 1

	out := mustReduce(t, r, s, Sensor(s.Run, 1, testNow))
	if out.Session.IsRunning() {
		t.Fatalf("session still running at step cap")
	}
	if out.Session.StepCount != DefaultStepCap {
		t.Fatalf("step count = %d, want %d", out.Session.StepCount, DefaultStepCap)
	}
	if out.Session.CompletionDate == "" {
		t.Fatalf("completion date not recorded on cap stop")
	}
	if out.Session.StopReason != StopStepCap || out.Notice != NoticeStepCap {
		t.Fatalf("reason %q notice %q", out.Session.StopReason, out.Notice)
	}
	if !out.Effects.Has(EffectUnsubscribeSensor) {
		t.Fatalf("cap stop must end the sensor subscription")
	}
}

func TestStepCapMatchesManualStop(t *testing.T) {
	r := Rules{StepCap: 3}
	capped := runningSession(t, r)
	for i := 0; i < 3; i++ {
		capped = mustReduce(t, r, capped, Sensor(capped.Run, 1, testNow)).Session
	}

	uncapped := Rules{}
	manual := runningSession(t, uncapped)
	for i := 0; i < 3; i++ {
		manual = mustReduce(t, uncapped, manual, Sensor(manual.Run, 1, testNow)).Session
	}
	manual = mustReduce(t, uncapped, manual, Stop(testNow)).Session

	capped.StopReason = manual.StopReason
	if capped != manual {
		t.Fatalf("cap stop state %+v differs from manual stop %+v", capped, manual)
	}
}

func TestResetAfterStop(t *testing.T) {
	r := DefaultRules()
	s := runningSession(t, r)
	s = mustReduce(t, r, s, Sensor(s.Run, 1, testNow)).Session
	s = mustReduce(t, r, s, Tick(s.Run, 12, testNow)).Session
	s = mustReduce(t, r, s, Stop(testNow)).Session

	s = mustReduce(t, r, s, Reset(testNow)).Session
	if s.StepCount != 0 || s.ElapsedText != "00:00" || s.CompletionDate != "" {
		t.Fatalf("reset left %+v", s)
	}
	if s.State != StateIdle {
		t.Fatalf("state = %s, want idle", s.State)
	}

	if _, err := r.Reduce(s, Show(testNow)); !errors.Is(err, ErrNoFinishedRun) {
		t.Fatalf("show after reset error = %v, want ErrNoFinishedRun", err)
	}

	s = mustReduce(t, r, s, Start(testNow)).Session
	s = mustReduce(t, r, s, Stop(testNow)).Session
	if _, err := r.Reduce(s, Show(testNow)); err != nil {
		t.Fatalf("show after new stop: %v", err)
	}
}

func TestResetWhileRunningIsRejected(t *testing.T) {
	r := DefaultRules()
	s := runningSession(t, r)

	out, err := r.Reduce(s, Reset(testNow))
	if !errors.Is(err, ErrResetWhileRunning) {
		t.Fatalf("reset error = %v, want ErrResetWhileRunning", err)
	}
	if !out.Session.IsRunning() {
		t.Fatalf("rejected reset stopped the run")
	}
}

func TestShow(t *testing.T) {
	r := DefaultRules()
	s := runningSession(t, r)

	if _, err := r.Reduce(s, Show(testNow)); !errors.Is(err, ErrShowWhileRunning) {
		t.Fatalf("show while running error = %v", err)
	}

	for i := 0; i < 100; i++ {
		s = mustReduce(t, r, s, Sensor(s.Run, 1, testNow)).Session
	}
	s = mustReduce(t, r, s, Tick(s.Run, 61, testNow)).Session
	s = mustReduce(t, r, s, Stop(testNow)).Session

	out := mustReduce(t, r, s, Show(testNow))
	if out.Changed {
		t.Fatalf("show must not mutate the session")
	}
	if out.Handoff == nil {
		t.Fatalf("show returned no handoff")
	}
	want := Handoff{ElapsedText: "01:01", StepCount: 100, CompletionDate: "07/03/2026"}
	if *out.Handoff != want {
		t.Fatalf("handoff = %+v, want %+v", *out.Handoff, want)
	}
}

func TestRejectionMessages(t *testing.T) {
	r, ok := AsRejection(ErrAlreadyRunning)
	if !ok || r.Code != "already_running" {
		t.Fatalf("AsRejection(ErrAlreadyRunning) = %v, %v", r, ok)
	}
	if _, ok := AsRejection(errors.New("boom")); ok {
		t.Fatalf("plain error reported as rejection")
	}
}
