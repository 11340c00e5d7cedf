package catalog

import (
	"context"
	"errors"

	"sheetfetch/internal/services"
	"sheetfetch/internal/sheet"
)

var (
	// ErrOrchestrationNotFound reports that the selected song has no
	// orchestration arrangement.
	ErrOrchestrationNotFound = errors.New("orchestration not found")
	// ErrInstrumentNotFound reports that a part is not in the parts menu.
	ErrInstrumentNotFound = errors.New("instrument not found")
	// ErrNoKeys reports that the key menu was empty.
	ErrNoKeys = errors.New("no keys offered")
)

// Client drives one catalog session. Calls mutate shared browser state and
// must not run concurrently; wrap implementations in a Session.
type Client interface {
	// Search returns up to sheet.MaxCandidates song results in catalog order.
	Search(ctx context.Context, query string) ([]sheet.Candidate, error)
	// SelectCandidate opens a result's orchestration and returns the offered
	// keys, first being the catalog default, which is left selected.
	SelectCandidate(ctx context.Context, candidate sheet.Candidate) ([]string, error)
	// SelectKey switches the arrangement key and returns the raw part labels.
	SelectKey(ctx context.Context, key string) ([]string, error)
	// SelectInstrument opens a part's preview.
	SelectInstrument(ctx context.Context, name string) error
	// NextPage advances the preview; false means there is no next page.
	NextPage(ctx context.Context) (bool, error)
	// CurrentPageImageURL returns the preview image URL, or "" when none is
	// shown.
	CurrentPageImageURL(ctx context.Context) (string, error)
	// Fetch downloads a page image.
	Fetch(ctx context.Context, url string) ([]byte, error)
	// Screenshot captures the current session view as PNG.
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

// IsNotFound reports whether err is one of the soft not-found outcomes.
func IsNotFound(err error) bool {
	return errors.Is(err, services.ErrNotFound) ||
		errors.Is(err, ErrOrchestrationNotFound) ||
		errors.Is(err, ErrInstrumentNotFound) ||
		errors.Is(err, ErrNoKeys)
}
