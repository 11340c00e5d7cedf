package testsupport

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"sheetfetch/internal/catalog"
	"sheetfetch/internal/locks"
	"sheetfetch/internal/services"
	"sheetfetch/internal/sheet"
)

// FakeSong is one search result served by FakeCatalog.
type FakeSong struct {
	Title  string
	Artist string
	// Keys offered by the key menu; empty with Orchestration true yields
	// ErrNoKeys.
	Keys []string
	// NoOrchestration makes SelectCandidate fail with
	// catalog.ErrOrchestrationNotFound.
	NoOrchestration bool
	// Parts is the raw part menu, shared by every key.
	Parts []string
	// Pages maps a part label to its preview image URLs in order.
	Pages map[string][]string
	// Wrap makes NextPage on the last page return to the first one.
	Wrap bool
}

// FakeCatalog is an in-memory catalog.Client. Every call marks Holders as
// held so tests can assert that calls never overlap.
type FakeCatalog struct {
	mu      sync.Mutex
	Results map[string][]FakeSong
	// Images maps URL to body; a URL missing here fails to fetch.
	Images  map[string][]byte
	Holders *locks.Instrumented

	calls     []string
	searched  []FakeSong
	song      *FakeSong
	key       string
	part      string
	page      int
	closed    bool
	fetchHook func(url string) error
}

var _ catalog.Client = (*FakeCatalog)(nil)

// NewFakeCatalog returns an empty fake.
func NewFakeCatalog() *FakeCatalog {
	return &FakeCatalog{
		Results: map[string][]FakeSong{},
		Images:  map[string][]byte{},
		Holders: locks.NewInstrumented("session-holders"),
	}
}

// OnFetch installs a hook consulted before every fetch.
func (f *FakeCatalog) OnFetch(hook func(url string) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchHook = hook
}

// Calls returns the operation log.
func (f *FakeCatalog) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *FakeCatalog) enter(call string) func() {
	f.Holders.Enter()
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
	// Give an unguarded concurrent caller a chance to overlap.
	runtime.Gosched()
	return f.Holders.Exit
}

func (f *FakeCatalog) Search(ctx context.Context, query string) ([]sheet.Candidate, error) {
	defer f.enter("search " + query)()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searched = f.Results[query]
	f.song, f.key, f.part, f.page = nil, "", "", 0
	out := make([]sheet.Candidate, 0, len(f.searched))
	for i, s := range f.searched {
		out = append(out, sheet.Candidate{Index: i + 1, Position: i + 1, Title: s.Title, Artist: s.Artist})
	}
	return out, nil
}

func (f *FakeCatalog) SelectCandidate(ctx context.Context, c sheet.Candidate) ([]string, error) {
	defer f.enter(fmt.Sprintf("select candidate %d", c.Position))()
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.Position < 1 || c.Position > len(f.searched) {
		return nil, services.Wrap(services.ErrNotFound, "fake", "select candidate", "no such result", nil)
	}
	song := &f.searched[c.Position-1]
	if song.NoOrchestration {
		return nil, catalog.ErrOrchestrationNotFound
	}
	if len(song.Keys) == 0 {
		return nil, catalog.ErrNoKeys
	}
	f.song, f.key, f.part, f.page = song, song.Keys[0], "", 0
	return append([]string(nil), song.Keys...), nil
}

func (f *FakeCatalog) SelectKey(ctx context.Context, key string) ([]string, error) {
	defer f.enter("select key " + key)()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.song == nil {
		return nil, fmt.Errorf("no song selected")
	}
	for _, k := range f.song.Keys {
		if k == key {
			f.key = key
		}
	}
	return append([]string(nil), f.song.Parts...), nil
}

func (f *FakeCatalog) SelectInstrument(ctx context.Context, name string) error {
	defer f.enter("select instrument " + name)()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.song == nil {
		return fmt.Errorf("no song selected")
	}
	if part, ok := catalog.MatchInstrument(f.song.Parts, name); ok {
		f.part, f.page = part, 0
		return nil
	}
	return catalog.ErrInstrumentNotFound
}

func (f *FakeCatalog) NextPage(ctx context.Context) (bool, error) {
	defer f.enter("next page")()
	f.mu.Lock()
	defer f.mu.Unlock()
	pages := f.currentPagesLocked()
	switch {
	case f.page+1 < len(pages):
		f.page++
		return true, nil
	case f.song != nil && f.song.Wrap && len(pages) > 0:
		f.page = 0
		return true, nil
	default:
		return false, nil
	}
}

func (f *FakeCatalog) CurrentPageImageURL(ctx context.Context) (string, error) {
	defer f.enter("read page image")()
	f.mu.Lock()
	defer f.mu.Unlock()
	pages := f.currentPagesLocked()
	if f.page >= len(pages) {
		return "", nil
	}
	return pages[f.page], nil
}

func (f *FakeCatalog) Fetch(ctx context.Context, url string) ([]byte, error) {
	defer f.enter("fetch " + url)()
	f.mu.Lock()
	hook := f.fetchHook
	data, ok := f.Images[url]
	f.mu.Unlock()
	if hook != nil {
		if err := hook(url); err != nil {
			return nil, err
		}
	}
	if !ok {
		return nil, services.Wrap(services.ErrNetwork, "fake", "fetch page", url+" returned 404", nil)
	}
	return data, nil
}

func (f *FakeCatalog) Screenshot(ctx context.Context) ([]byte, error) {
	defer f.enter("screenshot")()
	return []byte("\x89PNG fake"), nil
}

func (f *FakeCatalog) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Closed reports whether Close was called.
func (f *FakeCatalog) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *FakeCatalog) currentPagesLocked() []string {
	if f.song == nil || f.part == "" {
		return nil
	}
	return f.song.Pages[f.part]
}
