// Package conversation holds the chat session: the bound index, the
// conversation history and the grounded question answering on top of them.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xhad/docuchat/internal/logger"
	"github.com/xhad/docuchat/internal/models"
	"github.com/xhad/docuchat/internal/types"
	"github.com/xhad/docuchat/pkg/errs"
	"github.com/xhad/docuchat/pkg/retriever"
)

type State int

const (
	StateUninitialized State = iota
	StateReady
)

func (s State) String() string {
	if s == StateReady {
		return "ready"
	}
	return "uninitialized"
}

type SessionConfig struct {
	// K is the number of segments retrieved per question.
	K int
}

// binding is what State and Index report without taking the session lock.
type binding struct {
	state State
	index types.VectorIndex
}

// Session is the single chat session of a process. All methods are safe
// for concurrent use. State and Index never wait on the session lock;
// everything else runs one at a time.
type Session struct {
	mu        sync.Mutex
	config    SessionConfig
	model     types.LanguageModel
	embedder  types.Embedder
	index     types.VectorIndex
	retriever types.Retriever
	history   models.History
	state     State
	bound     atomic.Pointer[binding]
	now       func() time.Time
}

func NewWithConfig(model types.LanguageModel, embedder types.Embedder, config SessionConfig) (*Session, error) {
	if model == nil {
		return nil, errors.New("language model is required")
	}
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if config.K <= 0 {
		config.K = retriever.DefaultK
	}
	return &Session{
		config:   config,
		model:    model,
		embedder: embedder,
		now:      time.Now,
	}, nil
}

func New(model types.LanguageModel, embedder types.Embedder) (*Session, error) {
	return NewWithConfig(model, embedder, SessionConfig{})
}

// Initialize binds the session to an index and starts with an empty
// history.
func (s *Session) Initialize(index types.VectorIndex) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index == nil {
		return &errs.InitializationError{Reason: "no index"}
	}
	if index.Closed() {
		return &errs.InitializationError{Reason: fmt.Sprintf("index at %q is closed", index.Path())}
	}

	r, err := retriever.NewWithConfig(s.embedder, index, retriever.RetrieverConfig{K: s.config.K})
	if err != nil {
		return &errs.InitializationError{Reason: err.Error()}
	}

	s.index = index
	s.retriever = r
	s.history = nil
	s.state = StateReady
	s.bound.Store(&binding{state: StateReady, index: index})

	logger.Debug("session initialized", "index", index.Path(), "records", index.Count())
	return nil
}

// Ask answers a question from the indexed context. A language model
// failure does not return an error: the answer is a description of the
// failure and the history is left as it was.
func (s *Session) Ask(ctx context.Context, question string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateReady {
		return "", errs.ErrNotReady
	}

	segments, err := s.retriever.Retrieve(ctx, question, s.config.K)
	if err != nil {
		return "", fmt.Errorf("failed to retrieve context: %w", err)
	}

	prompt := BuildPrompt(segments, s.history, question)

	answer, err := s.model.Generate(ctx, prompt)
	if err == nil && strings.TrimSpace(answer) == "" {
		err = &errs.LanguageModelError{Err: errors.New("empty answer")}
	}
	if err != nil {
		cause := err
		var lmErr *errs.LanguageModelError
		if errors.As(err, &lmErr) && lmErr.Err != nil {
			cause = lmErr.Err
		}
		logger.Error("Error generating response", "error", err)
		return fmt.Sprintf("Error generating response: %v", cause), nil
	}

	at := s.now()
	s.history = append(s.history,
		models.Turn{Role: models.RoleUser, Text: question, At: at},
		models.Turn{Role: models.RoleAssistant, Text: answer, At: at},
	)

	logger.Debug("answered question", "segments", len(segments), "turns", len(s.history))
	return answer, nil
}

// ClearHistory empties the history. The index is untouched.
func (s *Session) ClearHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
}

// History returns a copy of the turns so far.
func (s *Session) History() models.History {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Clone()
}

func (s *Session) State() State {
	if b := s.bound.Load(); b != nil {
		return b.state
	}
	return StateUninitialized
}

// Index returns the bound index, or nil before Initialize.
func (s *Session) Index() types.VectorIndex {
	if b := s.bound.Load(); b != nil {
		return b.index
	}
	return nil
}

// Locker exposes the session lock so ingestion into the bound index can be
// serialized with Ask.
func (s *Session) Locker() sync.Locker {
	return &s.mu
}

// Close releases the bound index and returns the session to the
// uninitialized state.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index == nil {
		return nil
	}
	err := s.index.Close()
	s.index = nil
	s.retriever = nil
	s.history = nil
	s.state = StateUninitialized
	s.bound.Store(nil)
	return err
}
