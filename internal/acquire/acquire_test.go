package acquire_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"sheetfetch/internal/acquire"
	"sheetfetch/internal/catalog"
	"sheetfetch/internal/locks"
	"sheetfetch/internal/progress"
	"sheetfetch/internal/selection"
	"sheetfetch/internal/services"
	"sheetfetch/internal/sheet"
	"sheetfetch/internal/testsupport"
	"sheetfetch/internal/transpose"
)

const cdn = "https://cdn.example/"

func holyFake(pages ...string) *testsupport.FakeCatalog {
	fake := testsupport.NewFakeCatalog()
	urls := make([]string, len(pages))
	for i, p := range pages {
		urls[i] = cdn + p
		fake.Images[cdn+p] = []byte("png:" + p)
	}
	fake.Results["holy"] = []testsupport.FakeSong{
		{Title: "Holy", Artist: "Someone", NoOrchestration: true},
		{
			Title:  "Holy",
			Artist: "Artist",
			Keys:   []string{"C", "D", "Eb"},
			Parts:  []string{"Conductor's Score", "Viola", "Trumpet 1,2", "Viola", "Cover"},
			Pages:  map[string][]string{"Viola": urls},
			Wrap:   true,
		},
	}
	return fake
}

func newController(t *testing.T, client catalog.Client, sel selection.Selector, opts acquire.Options) *acquire.Controller {
	t.Helper()
	session := catalog.NewSession(client, locks.New("session"), nil, catalog.SessionOptions{}, nil)
	return acquire.NewController(session, sel, nil, opts, nil)
}

func TestControllerHappyPath(t *testing.T) {
	fake := holyFake("holy-viola_001.png", "holy-viola_002.png", "holy-viola_003.png")
	sel := selection.NewScripted()
	ctrl := newController(t, fake, sel, acquire.Options{})
	ctx := context.Background()
	rec := &progress.Recorder{}

	candidates, err := ctrl.Search(ctx, "holy", rec)
	if err != nil || len(candidates) != 2 {
		t.Fatalf("Search: %v %v", candidates, err)
	}
	keys, err := ctrl.Select(ctx, candidates[1], rec)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	res, err := ctrl.Negotiate(ctx, keys, "Viola", " d ", rec)
	if err != nil {
		t.Fatalf("Negotiate: %v", err)
	}
	if res != (acquire.Resolution{Instrument: "Viola", Key: "D"}) {
		t.Fatalf("unexpected resolution %+v", res)
	}
	if len(sel.Requests()) != 0 {
		t.Fatalf("exact key should not prompt, got %+v", sel.Requests())
	}
	parts, err := ctrl.Parts(ctx, rec)
	if err != nil {
		t.Fatalf("Parts: %v", err)
	}
	if want := []string{"Viola", "Trumpet 1,2"}; !reflect.DeepEqual(parts, want) {
		t.Fatalf("parts = %v, want %v", parts, want)
	}
	part, err := ctrl.ResolveInstrument(ctx, parts, "viola")
	if err != nil || part != "Viola" {
		t.Fatalf("ResolveInstrument: %q %v", part, err)
	}

	staging := t.TempDir()
	pages, err := ctrl.Download(ctx, part, staging, rec)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if len(pages) != 3 {
		t.Fatalf("expected 3 pages before wrap, got %d", len(pages))
	}
	for i, page := range pages {
		if page.Sequence != i || page.Instrument != "Viola" {
			t.Fatalf("unexpected page %+v", page)
		}
		data, err := os.ReadFile(page.Path)
		if err != nil || string(data) != "png:"+page.Name {
			t.Fatalf("page %s not written: %q %v", page.Path, data, err)
		}
		if filepath.Dir(page.Path) != filepath.Join(staging, "Viola") {
			t.Fatalf("page written outside the part directory: %s", page.Path)
		}
	}
	if err := ctrl.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	want := []acquire.State{
		acquire.StateIdle, acquire.StateSearching, acquire.StateSongSelected, acquire.StateKeyNegotiated,
		acquire.StatePartsEnumerated, acquire.StateDownloading, acquire.StateDone,
	}
	if got := ctrl.Machine().History(); !reflect.DeepEqual(got, want) {
		t.Fatalf("history = %v, want %v", got, want)
	}
}

func TestSearchWithoutResultsFinishes(t *testing.T) {
	ctrl := newController(t, testsupport.NewFakeCatalog(), nil, acquire.Options{})
	candidates, err := ctrl.Search(context.Background(), "nothing", nil)
	if err != nil || len(candidates) != 0 {
		t.Fatalf("expected no results without error, got %v %v", candidates, err)
	}
	if ctrl.Machine().State() != acquire.StateDone || ctrl.Machine().Reason() != acquire.ReasonNoResults {
		t.Fatalf("unexpected state %s/%s", ctrl.Machine().State(), ctrl.Machine().Reason())
	}
}

func TestOrchestrationNotFoundIsSoftFailure(t *testing.T) {
	ctrl := newController(t, holyFake("a_001.png"), nil, acquire.Options{})
	candidates, _ := ctrl.Search(context.Background(), "holy", nil)
	_, err := ctrl.Select(context.Background(), candidates[0], nil)
	if !errors.Is(err, catalog.ErrOrchestrationNotFound) {
		t.Fatalf("expected ErrOrchestrationNotFound, got %v", err)
	}
	if services.Classify(err) != services.SeveritySoft {
		t.Fatal("orchestration miss should be soft")
	}
	if ctrl.Machine().Reason() != acquire.ReasonOrchestrationNotFound {
		t.Fatalf("unexpected reason %s", ctrl.Machine().Reason())
	}

	// The next candidate starts from a fresh search.
	candidates, _ = ctrl.Search(context.Background(), "holy", nil)
	if _, err := ctrl.Select(context.Background(), candidates[1], nil); err != nil {
		t.Fatalf("second candidate: %v", err)
	}
}

func TestNegotiateOffersKeysThenSuggestions(t *testing.T) {
	keys := []string{"C", "Eb"}
	suggestions := transpose.ComputeSuggestions(keys, "Clarinet 1/2", "D").All()
	if len(suggestions) == 0 {
		t.Fatal("expected suggestions")
	}

	tests := []struct {
		name   string
		answer int
		want   acquire.Resolution
	}{
		{"plain key", 1, acquire.Resolution{Instrument: "Clarinet 1/2", Key: "Eb"}},
		{"suggestion", 2, acquire.Resolution{Instrument: suggestions[0].Instrument, Key: suggestions[0].Key, Substituted: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := testsupport.NewFakeCatalog()
			fake.Results["song"] = []testsupport.FakeSong{{Title: "Song", Keys: keys, Parts: []string{"Clarinet 1/2"}}}
			sel := selection.NewScripted(tt.answer)
			ctrl := newController(t, fake, sel, acquire.Options{})
			candidates, _ := ctrl.Search(context.Background(), "song", nil)
			offered, err := ctrl.Select(context.Background(), candidates[0], nil)
			if err != nil {
				t.Fatal(err)
			}
			res, err := ctrl.Negotiate(context.Background(), offered, "Clarinet 1/2", "D", nil)
			if err != nil {
				t.Fatalf("Negotiate: %v", err)
			}
			if res != tt.want {
				t.Fatalf("resolution = %+v, want %+v", res, tt.want)
			}
			reqs := sel.Requests()
			if len(reqs) != 1 || reqs[0].Kind != selection.KindKey {
				t.Fatalf("expected one key request, got %+v", reqs)
			}
			opts := reqs[0].Options
			if opts[0] != "Clarinet 1/2 in C" || opts[1] != "Clarinet 1/2 in Eb" || opts[2] != suggestions[0].Label() {
				t.Fatalf("unexpected options %v", opts)
			}
			if len(opts) != len(keys)+len(suggestions) {
				t.Fatalf("expected %d options, got %d", len(keys)+len(suggestions), len(opts))
			}
		})
	}
}

func TestNegotiateCancelFailsWithKeyNotResolved(t *testing.T) {
	fake := testsupport.NewFakeCatalog()
	fake.Results["song"] = []testsupport.FakeSong{{Title: "Song", Keys: []string{"C"}, Parts: []string{"Viola"}}}
	ctrl := newController(t, fake, selection.Cancel{}, acquire.Options{})
	candidates, _ := ctrl.Search(context.Background(), "song", nil)
	keys, _ := ctrl.Select(context.Background(), candidates[0], nil)

	_, err := ctrl.Negotiate(context.Background(), keys, "Viola", "F#", nil)
	if !errors.Is(err, acquire.ErrKeyNotResolved) || !errors.Is(err, services.ErrCanceled) {
		t.Fatalf("expected canceled key negotiation, got %v", err)
	}
	if ctrl.Machine().State() != acquire.StateFailed || ctrl.Machine().Reason() != acquire.ReasonKeyNotResolved {
		t.Fatalf("unexpected state %s/%s", ctrl.Machine().State(), ctrl.Machine().Reason())
	}
}

func TestPartsEmptyAfterFiltering(t *testing.T) {
	fake := testsupport.NewFakeCatalog()
	fake.Results["song"] = []testsupport.FakeSong{{Title: "Song", Keys: []string{"C"}, Parts: []string{"Cover", "Lead Sheet (SAT)"}}}
	ctrl := newController(t, fake, nil, acquire.Options{})
	candidates, _ := ctrl.Search(context.Background(), "song", nil)
	keys, _ := ctrl.Select(context.Background(), candidates[0], nil)
	if _, err := ctrl.Negotiate(context.Background(), keys, "Viola", "C", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := ctrl.Parts(context.Background(), nil); !errors.Is(err, acquire.ErrNoPartsFound) {
		t.Fatalf("expected ErrNoPartsFound, got %v", err)
	}
	if ctrl.Machine().Reason() != acquire.ReasonNoPartsFound {
		t.Fatalf("unexpected reason %s", ctrl.Machine().Reason())
	}
}

func TestResolveInstrumentCancel(t *testing.T) {
	ctrl := newController(t, holyFake("a_001.png"), selection.Cancel{}, acquire.Options{})
	ctx := context.Background()
	candidates, _ := ctrl.Search(ctx, "holy", nil)
	keys, _ := ctrl.Select(ctx, candidates[1], nil)
	_, _ = ctrl.Negotiate(ctx, keys, "Viola", "C", nil)
	parts, _ := ctrl.Parts(ctx, nil)
	_, err := ctrl.ResolveInstrument(ctx, parts, "Oboe")
	if !errors.Is(err, acquire.ErrInstrumentNotResolved) || !errors.Is(err, services.ErrCanceled) {
		t.Fatalf("expected canceled instrument resolution, got %v", err)
	}
}

// prepared walks the controller to PartsEnumerated on the Viola part.
func prepared(t *testing.T, client catalog.Client, opts acquire.Options) *acquire.Controller {
	t.Helper()
	ctx := context.Background()
	ctrl := newController(t, client, nil, opts)
	candidates, err := ctrl.Search(ctx, "holy", nil)
	if err != nil {
		t.Fatal(err)
	}
	keys, err := ctrl.Select(ctx, candidates[1], nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ctrl.Negotiate(ctx, keys, "Viola", "C", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := ctrl.Parts(ctx, nil); err != nil {
		t.Fatal(err)
	}
	return ctrl
}

func pageNames(pages []sheet.Page) []string {
	out := make([]string, len(pages))
	for i, p := range pages {
		out[i] = p.Name
	}
	return out
}

func TestDownloadSkipsFailedFetch(t *testing.T) {
	fake := holyFake("s_001.png", "s_002.png", "s_003.png")
	fake.OnFetch(func(url string) error {
		if url == cdn+"s_002.png" {
			return services.Wrap(services.ErrNetwork, "test", "fetch", "boom", nil)
		}
		return nil
	})
	ctrl := prepared(t, fake, acquire.Options{})
	rec := &progress.Recorder{}
	pages, err := ctrl.Download(context.Background(), "Viola", t.TempDir(), rec)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if got := pageNames(pages); !reflect.DeepEqual(got, []string{"s_001.png", "s_003.png"}) {
		t.Fatalf("pages = %v", got)
	}
	if pages[1].Sequence != 1 {
		t.Fatalf("sequence should follow saved pages, got %d", pages[1].Sequence)
	}
}

func TestDownloadDeduplicatesURLs(t *testing.T) {
	fake := holyFake("d_001.png", "d_002.png", "d_002.png", "d_003.png")
	ctrl := prepared(t, fake, acquire.Options{})
	pages, err := ctrl.Download(context.Background(), "Viola", t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := pageNames(pages); !reflect.DeepEqual(got, []string{"d_001.png", "d_002.png", "d_003.png"}) {
		t.Fatalf("pages = %v", got)
	}
	fetches := 0
	for _, call := range fake.Calls() {
		if call == "fetch "+cdn+"d_002.png" {
			fetches++
		}
	}
	if fetches != 1 {
		t.Fatalf("duplicate url fetched %d times", fetches)
	}
}

func TestDownloadToleratesStaleFirstPage(t *testing.T) {
	// The preview still shows page 001 after the first NextPage.
	fake := holyFake("holy-viola_001.png", "holy-viola_001.png", "holy-viola_002.png", "holy-viola_003.png")
	ctrl := prepared(t, fake, acquire.Options{})
	pages, err := ctrl.Download(context.Background(), "Viola", t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"holy-viola_001.png", "holy-viola_002.png", "holy-viola_003.png"}
	if got := pageNames(pages); !reflect.DeepEqual(got, want) {
		t.Fatalf("pages = %v, want %v", got, want)
	}
}

func TestDownloadStopsWhenPreviewNeverAdvances(t *testing.T) {
	fake := holyFake("f_001.png", "f_002.png", "f_002.png", "f_002.png", "f_002.png", "f_002.png", "f_003.png")
	ctrl := prepared(t, fake, acquire.Options{PaginationRetries: 1})
	pages, err := ctrl.Download(context.Background(), "Viola", t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := pageNames(pages); !reflect.DeepEqual(got, []string{"f_001.png", "f_002.png"}) {
		t.Fatalf("pages = %v", got)
	}
}

func TestDownloadSkipsURLsFetchedForAnotherPart(t *testing.T) {
	fake := holyFake("v_001.png", "shared_002.png")
	fake.Images[cdn+"t_001.png"] = []byte("png:t_001.png")
	song := &fake.Results["holy"][1]
	song.Wrap = false
	song.Pages["Trumpet 1,2"] = []string{cdn + "t_001.png", cdn + "shared_002.png"}

	ctrl := prepared(t, fake, acquire.Options{})
	ctx := context.Background()
	dir := t.TempDir()
	if _, err := ctrl.Download(ctx, "Viola", dir, nil); err != nil {
		t.Fatal(err)
	}
	pages, err := ctrl.Download(ctx, "Trumpet 1,2", dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := pageNames(pages); !reflect.DeepEqual(got, []string{"t_001.png"}) {
		t.Fatalf("pages = %v", got)
	}
	fetches := 0
	for _, call := range fake.Calls() {
		if call == "fetch "+cdn+"shared_002.png" {
			fetches++
		}
	}
	if fetches != 1 {
		t.Fatalf("shared url fetched %d times within one song", fetches)
	}

	// A new search starts a new song and forgets the fetched set.
	candidates, err := ctrl.Search(ctx, "holy", nil)
	if err != nil || len(candidates) != 2 {
		t.Fatalf("Search: %v %v", candidates, err)
	}
	keys, err := ctrl.Select(ctx, candidates[1], nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ctrl.Negotiate(ctx, keys, "Viola", "C", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := ctrl.Parts(ctx, nil); err != nil {
		t.Fatal(err)
	}
	pages, err = ctrl.Download(ctx, "Viola", t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := pageNames(pages); !reflect.DeepEqual(got, []string{"v_001.png", "shared_002.png"}) {
		t.Fatalf("pages after new search = %v", got)
	}
}

func TestDownloadStopsAtMaxPages(t *testing.T) {
	fake := holyFake("m_001.png", "m_002.png", "m_003.png", "m_004.png")
	ctrl := prepared(t, fake, acquire.Options{MaxPages: 2})
	pages, err := ctrl.Download(context.Background(), "Viola", t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) != 2 {
		t.Fatalf("expected cap of 2 pages, got %d", len(pages))
	}
}

type flakyNext struct {
	*testsupport.FakeCatalog
	timeouts int
	calls    int
}

func (f *flakyNext) NextPage(ctx context.Context) (bool, error) {
	f.calls++
	if f.timeouts > 0 {
		f.timeouts--
		return false, services.Wrap(services.ErrTimeout, "test", "next page", "slow", nil)
	}
	return f.FakeCatalog.NextPage(ctx)
}

func TestDownloadRetriesPaginationTimeouts(t *testing.T) {
	client := &flakyNext{FakeCatalog: holyFake("r_001.png", "r_002.png"), timeouts: 2}
	ctrl := prepared(t, client, acquire.Options{PaginationRetries: 2})
	pages, err := ctrl.Download(context.Background(), "Viola", t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) != 2 {
		t.Fatalf("expected both pages after retries, got %v", pageNames(pages))
	}

	client = &flakyNext{FakeCatalog: holyFake("r_001.png", "r_002.png"), timeouts: 5}
	ctrl = prepared(t, client, acquire.Options{PaginationRetries: 1})
	pages, err = ctrl.Download(context.Background(), "Viola", t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) != 1 || client.calls != 2 {
		t.Fatalf("expected one page and two attempts, got %v after %d calls", pageNames(pages), client.calls)
	}
}

func TestDownloadWithoutPages(t *testing.T) {
	fake := holyFake()
	ctrl := prepared(t, fake, acquire.Options{})
	_, err := ctrl.Download(context.Background(), "Viola", t.TempDir(), nil)
	if !errors.Is(err, acquire.ErrNoPages) {
		t.Fatalf("expected ErrNoPages, got %v", err)
	}
	if ctrl.Machine().State() != acquire.StateDownloading {
		t.Fatalf("part failures should leave the machine downloading, got %s", ctrl.Machine().State())
	}
	ctrl.Abandon(acquire.ReasonNoPages)
	if ctrl.Machine().Reason() != acquire.ReasonNoPages {
		t.Fatalf("unexpected reason %s", ctrl.Machine().Reason())
	}
}

func TestMachineRejectsSkippedStates(t *testing.T) {
	m := acquire.NewMachine()
	if err := m.Transition(acquire.StateDownloading); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := m.Transition(acquire.StateSearching); err != nil {
		t.Fatal(err)
	}
	if err := m.Finish(acquire.ReasonNoResults); err != nil {
		t.Fatal(err)
	}
	if err := m.Transition(acquire.StateSearching); err == nil {
		t.Fatal("done is terminal until reset")
	}
	m.Reset()
	if m.State() != acquire.StateIdle || m.Reason() != acquire.ReasonNone {
		t.Fatalf("reset left %s/%s", m.State(), m.Reason())
	}
	if !acquire.CanTransition(acquire.StateDownloading, acquire.StateDownloading) {
		t.Fatal("multiple parts download in sequence")
	}
}
