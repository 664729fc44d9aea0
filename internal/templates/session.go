package templates

import (
	"context"
	"errors"
	"sync"

	"github.com/MarcoPoloResearchLab/packstudio/backend/internal/canvas"
)

var (
	// ErrSessionBusy indicates a load or render already in flight on the session.
	ErrSessionBusy = errors.New("templates: editing session busy")
	// ErrSessionNotLoaded indicates an operation that needs a graph before Load.
	ErrSessionNotLoaded = errors.New("templates: editing session not loaded")
	// ErrSessionClosed indicates use after Close.
	ErrSessionClosed = errors.New("templates: editing session closed")
)

// RenderFunc produces preview bytes from a loaded graph.
type RenderFunc func(ctx context.Context, graph *canvas.Graph) ([]byte, error)

type sessionState int

const (
	sessionIdle sessionState = iota
	sessionLoading
	sessionReady
	sessionRendering
)

// Session owns the live graph of one editing session. Loading and preview
// rendering never overlap; a replaced or abandoned graph is always disposed.
type Session struct {
	deserializer *Deserializer

	mu     sync.Mutex
	state  sessionState
	closed bool
	graph  *canvas.Graph
}

// NewSession constructs an idle session.
func NewSession(deserializer *Deserializer) *Session {
	return &Session{deserializer: deserializer}
}

// Load replaces the session graph with one built from raw elements. On
// failure the previous graph is kept.
func (s *Session) Load(ctx context.Context, raw []byte) error {
	return s.load(func() (*canvas.Graph, error) {
		return s.deserializer.Deserialize(ctx, raw)
	})
}

// LoadElements is Load for already decoded elements.
func (s *Session) LoadElements(ctx context.Context, elements Elements) error {
	return s.load(func() (*canvas.Graph, error) {
		return s.deserializer.Build(ctx, elements)
	})
}

func (s *Session) load(build func() (*canvas.Graph, error)) error {
	if err := s.begin(sessionLoading); err != nil {
		return err
	}
	graph, err := build()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.settle()
		return err
	}
	if s.closed {
		graph.Dispose()
		s.settle()
		return ErrSessionClosed
	}
	s.graph.Dispose()
	s.graph = graph
	s.state = sessionReady
	return nil
}

// Graph returns the loaded graph for editing.
func (s *Session) Graph() (*canvas.Graph, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.closed:
		return nil, ErrSessionClosed
	case s.state == sessionLoading || s.state == sessionRendering:
		return nil, ErrSessionBusy
	case s.graph == nil:
		return nil, ErrSessionNotLoaded
	}
	return s.graph, nil
}

// RenderPreview runs render against the loaded graph.
func (s *Session) RenderPreview(ctx context.Context, render RenderFunc) ([]byte, error) {
	if err := s.begin(sessionRendering); err != nil {
		return nil, err
	}
	s.mu.Lock()
	graph := s.graph
	s.mu.Unlock()

	output, err := render(ctx, graph)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.settle()
	if err != nil {
		return nil, err
	}
	return output, nil
}

// Close disposes the graph. If a load or render is in flight, disposal happens
// when it finishes. Close is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.state == sessionLoading || s.state == sessionRendering {
		return
	}
	s.graph.Dispose()
	s.graph = nil
}

func (s *Session) begin(next sessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if s.state == sessionLoading || s.state == sessionRendering {
		return ErrSessionBusy
	}
	if next == sessionRendering && s.graph == nil {
		return ErrSessionNotLoaded
	}
	s.state = next
	return nil
}

// settle ends an in-flight operation. Callers hold mu.
func (s *Session) settle() {
	if s.closed {
		s.graph.Dispose()
		s.graph = nil
		s.state = sessionIdle
		return
	}
	if s.graph == nil {
		s.state = sessionIdle
		return
	}
	s.state = sessionReady
}
