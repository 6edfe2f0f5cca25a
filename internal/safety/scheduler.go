package safety

import (
	"sync"
	"time"
)

const (
	DefaultVisible  = 15 * time.Second
	DefaultInterval = 15 * time.Second
)

type State int

const (
	StateIdle State = iota
	StateWaiting
	StatePrompting
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StatePrompting:
		return "prompting"
	default:
		return "idle"
	}
}

// Prompter shows and hides the "are you okay?" prompt on the owner's device.
type Prompter interface {
	ShowPrompt()
	HidePrompt()
	// Busy reports whether another modal is open, in which case the prompt is skipped.
	Busy() bool
}

// Scheduler runs the periodic safety prompt. A prompt that times out only hides;
// escalation is left to the caller when the user answers "no".
//
// Prompter and gate are always called without the scheduler lock held.
type Scheduler struct {
	visible  time.Duration
	interval time.Duration
	prompter Prompter
	gate     func() bool

	mu    sync.Mutex
	state State
	gen   uint64
	stop  chan struct{}
	done  chan struct{}
	hide  *time.Timer
}

func NewScheduler(visible, interval time.Duration, prompter Prompter, gate func() bool) *Scheduler {
	if visible <= 0 {
		visible = DefaultVisible
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		visible:  visible,
		interval: interval,
		prompter: prompter,
		gate:     gate,
	}
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start (re)starts the cycle. The first prompt is shown right away, later ones
// once per visible+interval period. It is a no-op when the gate is closed.
func (s *Scheduler) Start() {
	s.Stop()
	if s.gate != nil && !s.gate() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return
	}
	s.gen++
	s.state = StateWaiting
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(s.gen, s.stop, s.done)
}

// Stop ends the cycle, hides a visible prompt and waits for the timer goroutine.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.state == StateIdle {
		s.mu.Unlock()
		return
	}
	wasPrompting := s.state == StatePrompting
	s.gen++
	s.state = StateIdle
	if s.hide != nil {
		s.hide.Stop()
		s.hide = nil
	}
	close(s.stop)
	done := s.done
	s.mu.Unlock()

	<-done
	if wasPrompting {
		s.prompter.HidePrompt()
	}
}

// Dismiss hides a visible prompt after the user answered. It reports whether a prompt was visible.
func (s *Scheduler) Dismiss() bool {
	s.mu.Lock()
	if s.state != StatePrompting {
		s.mu.Unlock()
		return false
	}
	s.state = StateWaiting
	if s.hide != nil {
		s.hide.Stop()
		s.hide = nil
	}
	s.mu.Unlock()

	s.prompter.HidePrompt()
	return true
}

func (s *Scheduler) run(gen uint64, stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.visible + s.interval)
	defer ticker.Stop()

	s.prompt(gen)
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.prompt(gen)
		}
	}
}

func (s *Scheduler) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen && s.state != StateIdle
}

func (s *Scheduler) prompt(gen uint64) {
	if !s.current(gen) {
		return
	}
	if s.gate != nil && !s.gate() {
		return
	}
	if s.prompter.Busy() {
		return
	}

	s.mu.Lock()
	if s.gen != gen || s.state == StateIdle {
		s.mu.Unlock()
		return
	}
	s.state = StatePrompting
	if s.hide != nil {
		s.hide.Stop()
	}
	s.hide = time.AfterFunc(s.visible, func() { s.expire(gen) })
	s.mu.Unlock()

	s.prompter.ShowPrompt()
}

func (s *Scheduler) expire(gen uint64) {
	s.mu.Lock()
	if s.gen != gen || s.state != StatePrompting {
		s.mu.Unlock()
		return
	}
	s.state = StateWaiting
	s.hide = nil
	s.mu.Unlock()

	s.prompter.HidePrompt()
}
