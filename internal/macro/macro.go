// Package macro runs keystroke macros: ordered steps that type text, press
// keys and wait. At most one macro runs at a time; requests made while one
// is running are dropped.
package macro

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// StepType selects what a step does.
type StepType string

const (
	PressKey   StepType = "press_key"
	TypeText   StepType = "type_text"
	PressEnter StepType = "press_enter"
	Delay      StepType = "delay"
)

// StepTypes lists every step type.
var StepTypes = []StepType{PressKey, TypeText, PressEnter, Delay}

// Valid reports whether t is a known step type.
func (t StepType) Valid() bool {
	switch t {
	case PressKey, TypeText, PressEnter, Delay:
		return true
	}
	return false
}

// Step is one macro action. Delay is in seconds and applies after the
// action.
type Step struct {
	Type  StepType `json:"type" mapstructure:"type"`
	Value string   `json:"value,omitempty" mapstructure:"value"`
	Enter bool     `json:"enter,omitempty" mapstructure:"enter"`
	Delay float64  `json:"delay,omitempty" mapstructure:"delay"`
}

// Validate checks the step type and delay.
func (s Step) Validate() error {
	if !s.Type.Valid() {
		return fmt.Errorf("unknown step type %q", s.Type)
	}
	if s.Delay < 0 || math.IsNaN(s.Delay) || math.IsInf(s.Delay, 0) {
		return fmt.Errorf("invalid delay %v", s.Delay)
	}
	return nil
}

func (s Step) wait() time.Duration {
	if s.Delay <= 0 {
		return 0
	}
	return time.Duration(s.Delay * float64(time.Second))
}

// Hotkey binds a key combination to a macro.
type Hotkey struct {
	ID     string `json:"id" mapstructure:"id"`
	Title  string `json:"title" mapstructure:"title"`
	Hotkey string `json:"hotkey" mapstructure:"hotkey"`
	Steps  []Step `json:"steps" mapstructure:"steps"`
}

// ManualID identifies macros started directly rather than by a hotkey.
const ManualID = "manual"

// Request asks the runner to execute steps.
type Request struct {
	HotkeyID string
	Hotkey   string
	Title    string
	Steps    []Step
}

// RequestFor builds a request from a hotkey.
func RequestFor(h Hotkey) Request {
	return Request{HotkeyID: h.ID, Hotkey: h.Hotkey, Title: h.Title, Steps: h.Steps}
}

// Output is where macro keystrokes go.
type Output interface {
	Write(text string) error
	Send(key string) error
}

// Observer receives run notifications. Any field may be nil. Callbacks run
// on the runner's worker goroutine.
type Observer struct {
	Started  func(Request)
	Failed   func(Request, error)
	Finished func(Request)
}

// ErrClosed is returned by a runner after Close.
var ErrClosed = errors.New("macro: runner closed")

// Runner executes macros on a dedicated worker goroutine.
type Runner struct {
	out Output
	obs Observer

	running atomic.Bool
	reqs    chan Request
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
}

// NewRunner starts a runner writing to out.
func NewRunner(out Output, obs Observer) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		out:    out,
		obs:    obs,
		reqs:   make(chan Request, 1),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go r.worker()
	return r
}

// Running reports whether a macro is in flight.
func (r *Runner) Running() bool {
	return r.running.Load()
}

// Trigger queues req and reports whether it was accepted. Requests with no
// steps, requests made while another macro runs and requests after Close
// are dropped.
func (r *Runner) Trigger(req Request) bool {
	if len(req.Steps) == 0 {
		return false
	}
	if r.ctx.Err() != nil {
		return false
	}
	if !r.running.CompareAndSwap(false, true) {
		return false
	}
	select {
	case r.reqs <- req:
		return true
	case <-r.ctx.Done():
		r.running.Store(false)
		return false
	}
}

// Close stops the worker. A macro in progress stops at its next step or
// delay.
func (r *Runner) Close() error {
	r.once.Do(func() {
		r.cancel()
		<-r.done
	})
	return nil
}

func (r *Runner) worker() {
	defer close(r.done)
	for {
		select {
		case <-r.ctx.Done():
			return
		case req := <-r.reqs:
			r.execute(req)
		}
	}
}

func (r *Runner) execute(req Request) {
	defer r.running.Store(false)

	if r.obs.Started != nil {
		r.obs.Started(req)
	}
	if err := r.runSteps(req.Steps); err != nil {
		if r.obs.Failed != nil {
			r.obs.Failed(req, err)
		}
		return
	}
	if r.obs.Finished != nil {
		r.obs.Finished(req)
	}
}

func (r *Runner) runSteps(steps []Step) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	for _, s := range steps {
		if r.ctx.Err() != nil {
			return ErrClosed
		}
		if err := r.step(s); err != nil {
			return err
		}
		if d := s.wait(); d > 0 {
			t := time.NewTimer(d)
			select {
			case <-t.C:
			case <-r.ctx.Done():
				t.Stop()
				return ErrClosed
			}
		}
	}
	return nil
}

func (r *Runner) step(s Step) error {
	switch s.Type {
	case PressKey:
		if s.Value != "" {
			return r.out.Send(s.Value)
		}
	case TypeText:
		if err := r.out.Write(s.Value); err != nil {
			return err
		}
		if s.Enter {
			return r.out.Send("enter")
		}
	case PressEnter:
		return r.out.Send("enter")
	case Delay:
	}
	return nil
}
