package resolver

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInitialized is returned when the embedding engine is used before
	// it was loaded or after it was closed.
	ErrNotInitialized = errors.New("embedder is not initialized")
	// ErrClosed is returned once the resolver or its worker has shut down.
	ErrClosed = errors.New("resolver is closed")
)

// CorpusLoadError reports malformed corpus configuration.
type CorpusLoadError struct {
	Source string
	// Entry is the zero-based entry index, or -1 when the whole source failed.
	Entry int
	Err   error
}

func (e *CorpusLoadError) Error() string {
	src := e.Source
	if src == "" {
		src = "corpus"
	}
	if e.Entry >= 0 {
		return fmt.Sprintf("load %s: entry %d: %v", src, e.Entry, e.Err)
	}
	return fmt.Sprintf("load %s: %v", src, e.Err)
}

func (e *CorpusLoadError) Unwrap() error { return e.Err }

// InitError reports that the inference engine could not be loaded.
type InitError struct {
	ModelID string
	Err     error
}

func (e *InitError) Error() string {
	if e.ModelID == "" {
		return fmt.Sprintf("init embedder: %v", e.Err)
	}
	return fmt.Sprintf("init embedder %s: %v", e.ModelID, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// EmbedError reports a failed embedding call.
type EmbedError struct {
	Text string
	Err  error
}

func (e *EmbedError) Error() string {
	return fmt.Sprintf("embed %q: %v", e.Text, e.Err)
}

func (e *EmbedError) Unwrap() error { return e.Err }
