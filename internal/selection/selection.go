package selection

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrCanceled reports that the operator declined to choose.
var ErrCanceled = errors.New("selection canceled")

// Kind names what is being chosen.
type Kind string

const (
	KindCandidate  Kind = "candidate"
	KindKey        Kind = "key"
	KindInstrument Kind = "instrument"
	KindScore      Kind = "score"
)

// Request is one selection prompt.
type Request struct {
	Kind    Kind
	Title   string
	Message string
	Options []string
	// Default is the option index suggested to the operator.
	Default int
}

// Validate checks the request has something to choose from.
func (r Request) Validate() error {
	if len(r.Options) == 0 {
		return fmt.Errorf("%s selection has no options", r.Kind)
	}
	if r.Default < 0 || r.Default >= len(r.Options) {
		return fmt.Errorf("%s selection default %d out of range", r.Kind, r.Default)
	}
	return nil
}

// Selector picks one option of a request.
type Selector interface {
	Select(ctx context.Context, req Request) (int, error)
}

// Func adapts a function to Selector.
type Func func(ctx context.Context, req Request) (int, error)

func (f Func) Select(ctx context.Context, req Request) (int, error) { return f(ctx, req) }

// First always picks the request default.
type First struct{}

func (First) Select(ctx context.Context, req Request) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := req.Validate(); err != nil {
		return 0, ErrCanceled
	}
	return req.Default, nil
}

// Cancel declines every request.
type Cancel struct{}

func (Cancel) Select(context.Context, Request) (int, error) { return 0, ErrCanceled }

// Scripted answers requests from a fixed list of indexes; -1 cancels. Once the
// list is exhausted the default is chosen. Requests are recorded.
type Scripted struct {
	mu       sync.Mutex
	answers  []int
	requests []Request
}

// NewScripted returns a selector that replays answers.
func NewScripted(answers ...int) *Scripted {
	return &Scripted{answers: answers}
}

func (s *Scripted) Select(_ context.Context, req Request) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if err := req.Validate(); err != nil {
		return 0, ErrCanceled
	}
	if len(s.answers) == 0 {
		return req.Default, nil
	}
	answer := s.answers[0]
	s.answers = s.answers[1:]
	if answer < 0 || answer >= len(req.Options) {
		return 0, ErrCanceled
	}
	return answer, nil
}

// Requests returns every request seen so far.
func (s *Scripted) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}
