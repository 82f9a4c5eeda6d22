package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"leadcapture/internal/answers"
	"leadcapture/pkg/domain"
)

var (
	// ErrAtStart is returned by Previous on the welcome step.
	ErrAtStart = errors.New("already at the first step")
	// ErrSubmitInFlight suppresses a second submit while one is pending.
	ErrSubmitInFlight = errors.New("submission already in flight")
	// ErrAlreadyDone rejects transitions after successful submission.
	ErrAlreadyDone = errors.New("questionnaire already submitted")
)

// StepError carries the inline validation message for the question that
// blocked a forward transition.
type StepError struct {
	QuestionID string
	Message    string
}

func (e *StepError) Error() string {
	return fmt.Sprintf("question %s: %s", e.QuestionID, e.Message)
}

// SubmitFunc performs the network submission of all answers. A returned error
// is retryable: the walker stays on the last step.
type SubmitFunc func(ctx context.Context, values map[string]domain.AnswerValue) error

// Walker steps through welcome (step 0), questions 1..N, and submission.
type Walker struct {
	mu         sync.Mutex
	sessionID  string
	questions  []domain.Question
	store      ProgressStore
	submit     SubmitFunc
	step       int
	values     map[string]domain.AnswerValue
	submitting bool
	done       bool
}

// NewWalker builds a walker at the welcome step.
func NewWalker(sessionID string, questions []domain.Question, store ProgressStore, submit SubmitFunc) *Walker {
	return &Walker{
		sessionID: sessionID,
		questions: questions,
		store:     store,
		submit:    submit,
		values:    make(map[string]domain.AnswerValue),
	}
}

// Resume loads persisted progress for the session, if any.
func (w *Walker) Resume(ctx context.Context) error {
	p, ok, err := w.store.Load(ctx, w.sessionID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if p.Step >= 0 && p.Step <= len(w.questions) {
		w.step = p.Step
	}
	if p.Answers != nil {
		w.values = p.Answers
	}
	return nil
}

// Step returns the current step: 0 for welcome, 1..N for questions.
func (w *Walker) Step() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

// Done reports whether submission succeeded.
func (w *Walker) Done() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.done
}

// Current returns the question shown at the current step; ok is false on the
// welcome step.
func (w *Walker) Current() (domain.Question, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step < 1 || w.step > len(w.questions) {
		return domain.Question{}, false
	}
	return w.questions[w.step-1], true
}

// SetAnswer records the answer for a question without advancing.
func (w *Walker) SetAnswer(questionID string, v domain.AnswerValue) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.values[questionID] = v
}

// Answers returns a copy of the recorded answers.
func (w *Walker) Answers() map[string]domain.AnswerValue {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]domain.AnswerValue, len(w.values))
	for k, v := range w.values {
		out[k] = v
	}
	return out
}

// Next advances one step. On a question step the current answer must pass
// validation unless the question is optional; a failure surfaces as a
// *StepError and the walker stays put. On the last step Next submits all
// answers; success is terminal, failure keeps the walker on the last step.
func (w *Walker) Next(ctx context.Context) error {
	w.mu.Lock()
	if w.done {
		w.mu.Unlock()
		return ErrAlreadyDone
	}
	if w.submitting {
		w.mu.Unlock()
		return ErrSubmitInFlight
	}

	if w.step >= 1 {
		q := w.questions[w.step-1]
		if verr := answers.Validate(q, w.values[q.ID]); verr != nil {
			w.mu.Unlock()
			return &StepError{QuestionID: verr.QuestionID, Message: verr.Message}
		}
	}

	if w.step == len(w.questions) {
		w.submitting = true
		values := make(map[string]domain.AnswerValue, len(w.values))
		for k, v := range w.values {
			values[k] = v
		}
		w.mu.Unlock()

		err := w.submit(ctx, values)

		w.mu.Lock()
		w.submitting = false
		if err != nil {
			w.mu.Unlock()
			return fmt.Errorf("submit answers: %w", err)
		}
		w.done = true
		w.mu.Unlock()
		_ = w.store.Clear(ctx, w.sessionID)
		return nil
	}

	w.step++
	w.mu.Unlock()
	return w.persist(ctx)
}

// Previous moves back one step. It is disabled on the welcome step.
func (w *Walker) Previous(ctx context.Context) error {
	w.mu.Lock()
	if w.done {
		w.mu.Unlock()
		return ErrAlreadyDone
	}
	if w.step == 0 {
		w.mu.Unlock()
		return ErrAtStart
	}
	w.step--
	w.mu.Unlock()
	return w.persist(ctx)
}

func (w *Walker) persist(ctx context.Context) error {
	w.mu.Lock()
	p := Progress{Step: w.step, Answers: make(map[string]domain.AnswerValue, len(w.values))}
	for k, v := range w.values {
		p.Answers[k] = v
	}
	w.mu.Unlock()
	return w.store.Save(ctx, w.sessionID, p)
}
