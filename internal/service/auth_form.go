package service

import (
	"context"
	"fmt"
	"sync"
)

// FormState 登录/注册表单状态
type FormState int

const (
	FormIdle FormState = iota
	FormSubmitting
	FormSuccess
	FormFailed
)

func (s FormState) String() string {
	switch s {
	case FormSubmitting:
		return "submitting"
	case FormSuccess:
		return "success"
	case FormFailed:
		return "failed"
	default:
		return "idle"
	}
}

// Outcome is the single result reported for one submission: either an error
// message or a success message.
type Outcome struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// AuthForm is the Idle -> Submitting -> {Success, Failed} machine of the
// sign-in / sign-up form. Failed goes back to Idle on the next edit. While
// submitting the inputs are disabled and further submissions are refused.
type AuthForm struct {
	mu      sync.Mutex
	state   FormState
	outcome *Outcome
}

func NewAuthForm() *AuthForm {
	return &AuthForm{}
}

func (f *AuthForm) State() FormState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Disabled reports whether inputs and the submit control are disabled.
func (f *AuthForm) Disabled() bool {
	return f.State() == FormSubmitting
}

// Outcome returns the outcome of the last finished submission, if any.
func (f *AuthForm) Outcome() (Outcome, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.outcome == nil {
		return Outcome{}, false
	}
	return *f.outcome, true
}

// Begin starts a submission and clears the previous outcome.
func (f *AuthForm) Begin() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == FormSubmitting {
		return ErrSubmitting
	}
	f.state = FormSubmitting
	f.outcome = nil
	return nil
}

// Finish ends the running submission. err decides the terminal state; on
// success successMsg is reported, on failure only the error's user message.
func (f *AuthForm) Finish(err error, successMsg string) Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	var o Outcome
	if err != nil {
		f.state = FormFailed
		o = Outcome{Message: UserMessage(err)}
	} else {
		f.state = FormSuccess
		o = Outcome{OK: true, Message: successMsg}
	}
	f.outcome = &o
	return o
}

// Edit records an input change. A failed form returns to Idle.
func (f *AuthForm) Edit() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == FormFailed {
		f.state = FormIdle
		f.outcome = nil
	}
}

// Submit runs action as one submission. The returned error is ErrSubmitting
// when another submission is in flight; action errors are reported in the Outcome.
func (f *AuthForm) Submit(ctx context.Context, successMsg string, action func(ctx context.Context) error) (Outcome, error) {
	if err := f.Begin(); err != nil {
		return Outcome{}, err
	}
	var actionErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				actionErr = fmt.Errorf("unexpected failure: %v", r)
			}
		}()
		actionErr = action(ctx)
	}()
	return f.Finish(actionErr, successMsg), nil
}
