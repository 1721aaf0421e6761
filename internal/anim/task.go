package anim

import "time"

// Task is one resumable, cancellable animation: a start time, a duration,
// an easing curve and a cancellation flag. The Scheduler advances it once
// per tick. Step receives eased progress; Finish runs once at completion
// and never after Cancel.
type Task struct {
	Name     string
	start    time.Duration
	duration time.Duration
	ease     Easing
	step     func(p float64)
	finish   func()

	cancelled bool
	done      bool
	progress  float64
}

// Cancel stops the task synchronously. Idempotent.
func (t *Task) Cancel() {
	if t == nil || t.done {
		return
	}
	t.cancelled = true
}

func (t *Task) Cancelled() bool { return t != nil && t.cancelled }
func (t *Task) Done() bool      { return t != nil && t.done }

// Active reports whether the task still waits for ticks.
func (t *Task) Active() bool { return t != nil && !t.cancelled && !t.done }

// Progress returns the last eased progress delivered to Step.
func (t *Task) Progress() float64 { return t.progress }

func (t *Task) Duration() time.Duration { return t.duration }

func (t *Task) advance(now time.Duration) bool {
	p := 1.0
	if t.duration > 0 {
		p = clamp01(float64(now-t.start) / float64(t.duration))
	}
	t.progress = t.ease(p)
	if t.step != nil {
		t.step(t.progress)
	}
	if t.cancelled {
		return false
	}
	if p < 1 {
		return false
	}
	t.done = true
	if t.finish != nil {
		t.finish()
	}
	return true
}

// Scheduler owns every in-flight task and a logical clock advanced by the
// tick. Single-goroutine access only (game loop).
type Scheduler struct {
	now   time.Duration
	tasks []*Task
}

func NewScheduler() *Scheduler {
	return &Scheduler{tasks: make([]*Task, 0, 16)}
}

// Now returns the scheduler clock.
func (s *Scheduler) Now() time.Duration { return s.now }

// Start schedules a task beginning at the current clock. A nil ease means
// Linear. The first Step call happens on the next Advance.
func (s *Scheduler) Start(name string, d time.Duration, ease Easing, step func(float64), finish func()) *Task {
	if ease == nil {
		ease = Linear
	}
	t := &Task{
		Name:     name,
		start:    s.now,
		duration: d,
		ease:     ease,
		step:     step,
		finish:   finish,
	}
	s.tasks = append(s.tasks, t)
	return t
}

// Advance moves the clock by dt and steps every active task. Tasks started
// from inside a callback begin on the following Advance. Returns the number
// of tasks that completed.
func (s *Scheduler) Advance(dt time.Duration) int {
	s.now += dt
	completed := 0
	n := len(s.tasks)
	for i := 0; i < n && i < len(s.tasks); i++ {
		t := s.tasks[i]
		if !t.Active() {
			continue
		}
		if t.advance(s.now) {
			completed++
		}
	}

	live := s.tasks[:0]
	for _, t := range s.tasks {
		if t.Active() {
			live = append(live, t)
		}
	}
	for i := len(live); i < len(s.tasks); i++ {
		s.tasks[i] = nil
	}
	s.tasks = live
	return completed
}

// Active returns the number of tasks still in flight.
func (s *Scheduler) Active() int {
	n := 0
	for _, t := range s.tasks {
		if t.Active() {
			n++
		}
	}
	return n
}

// CancelAll cancels every task.
func (s *Scheduler) CancelAll() {
	for _, t := range s.tasks {
		t.Cancel()
	}
	s.tasks = s.tasks[:0]
}
