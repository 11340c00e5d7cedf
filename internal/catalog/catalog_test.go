package catalog_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"sheetfetch/internal/catalog"
	"sheetfetch/internal/files"
	"sheetfetch/internal/locks"
	"sheetfetch/internal/logging"
	"sheetfetch/internal/services"
	"sheetfetch/internal/sheet"
	"sheetfetch/internal/testsupport"
)

func TestFilterParts(t *testing.T) {
	raw := []string{
		"Conductor's Score", "Trumpet 1,2", "  Trumpet 1,2 ", "Cover", "Lead Sheet (SAT)",
		"", "French Horn 1/2", "Rhythm Chart", "CONDUCTOR'S SCORE (Full)",
	}
	got := catalog.FilterParts(raw)
	want := []string{"Trumpet 1,2", "French Horn 1/2", "Rhythm Chart"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("FilterParts = %v, want %v", got, want)
	}
}

func TestMatchInstrumentLooseForm(t *testing.T) {
	parts := []string{"Trumpet 1,2", "Alto-Sax", "Clarinet 1/2"}
	tests := []struct {
		requested string
		want      string
		ok        bool
	}{
		{"trumpet 12", "Trumpet 1,2", true},
		{"Alto Sax", "Alto-Sax", true},
		{" clarinet 1/2 ", "Clarinet 1/2", true},
		{"Viola", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := catalog.MatchInstrument(parts, tt.requested)
		if got != tt.want || ok != tt.ok {
			t.Errorf("MatchInstrument(%q) = %q,%v want %q,%v", tt.requested, got, ok, tt.want, tt.ok)
		}
	}
	if horn, ok := catalog.HornPart([]string{"Viola", "French Horn 1/2"}); !ok || horn != "French Horn 1/2" {
		t.Fatalf("HornPart = %q %v", horn, ok)
	}
}

func TestIsSongResult(t *testing.T) {
	for subtitle, want := range map[string]bool{
		"Chris Tomlin":               true,
		"Hymn Collection":            false,
		"Christmas Song Book Vol. 2": false,
		"":                           false,
	} {
		if got := catalog.IsSongResult(subtitle); got != want {
			t.Errorf("IsSongResult(%q) = %v, want %v", subtitle, got, want)
		}
	}
}

func TestCapCandidatesRenumbers(t *testing.T) {
	in := make([]sheet.Candidate, 7)
	for i := range in {
		in[i] = sheet.Candidate{Index: 10 + i, Position: 3 + i}
	}
	out := catalog.CapCandidates(in)
	if len(out) != sheet.MaxCandidates {
		t.Fatalf("expected %d candidates, got %d", sheet.MaxCandidates, len(out))
	}
	if out[0].Index != 1 || out[4].Index != 5 || out[0].Position != 3 {
		t.Fatalf("unexpected numbering %+v", out)
	}
}

func newFake() *testsupport.FakeCatalog {
	fake := testsupport.NewFakeCatalog()
	fake.Results["holy"] = []testsupport.FakeSong{{
		Title:  "Holy",
		Artist: "Artist",
		Keys:   []string{"C", "D"},
		Parts:  []string{"Viola"},
		Pages:  map[string][]string{"Viola": {"https://cdn/holy-viola_001.png"}},
	}}
	fake.Images["https://cdn/holy-viola_001.png"] = []byte("png")
	return fake
}

func TestSessionSerializesConcurrentCallers(t *testing.T) {
	fake := newFake()
	session := catalog.NewSession(fake, locks.New("session"), nil, catalog.SessionOptions{}, logging.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_, _ = session.Search(context.Background(), "holy")
				_, _ = session.CurrentPageImageURL(context.Background())
				_, _ = session.Fetch(context.Background(), "https://cdn/holy-viola_001.png")
			}
		}()
	}
	wg.Wait()
	if got := fake.Holders.MaxHolders(); got != 1 {
		t.Fatalf("session operations interleaved: max holders %d", got)
	}
}

type slowClient struct {
	*testsupport.FakeCatalog
}

func (s slowClient) NextPage(ctx context.Context) (bool, error) {
	<-ctx.Done()
	return false, ctx.Err()
}

func TestSessionTimeoutIsSoftAndScreenshotSaved(t *testing.T) {
	dir := t.TempDir()
	fake := newFake()
	session := catalog.NewSession(slowClient{fake}, nil, files.NewManager(nil, nil), catalog.SessionOptions{
		OperationTimeout: 5 * time.Millisecond,
		ScreenshotDir:    dir,
	}, nil)

	_, err := session.NextPage(context.Background())
	if !services.IsTimeout(err) || !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || !strings.HasPrefix(entries[0].Name(), "screenshot-next_page-") {
		t.Fatalf("expected one screenshot, got %v", entries)
	}
}

func TestSessionSkipsScreenshotForNotFound(t *testing.T) {
	dir := t.TempDir()
	fake := newFake()
	fake.Results["none"] = []testsupport.FakeSong{{Title: "X", NoOrchestration: true}}
	session := catalog.NewSession(fake, nil, nil, catalog.SessionOptions{ScreenshotDir: dir}, nil)

	candidates, err := session.Search(context.Background(), "none")
	if err != nil || len(candidates) != 1 {
		t.Fatalf("search: %v %v", candidates, err)
	}
	if _, err := session.SelectCandidate(context.Background(), candidates[0]); !errors.Is(err, catalog.ErrOrchestrationNotFound) {
		t.Fatalf("expected ErrOrchestrationNotFound, got %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("no screenshot expected for not-found outcomes, got %v", entries)
	}
}

func TestSessionReturnsParentCancellation(t *testing.T) {
	session := catalog.NewSession(slowClient{newFake()}, nil, nil, catalog.SessionOptions{OperationTimeout: time.Minute}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	if _, err := session.NextPage(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "sheetfetch-test" {
			t.Errorf("unexpected user agent %q", r.Header.Get("User-Agent"))
		}
		if r.URL.Path == "/missing_002.png" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("image-bytes"))
	}))
	defer srv.Close()

	fetcher := catalog.NewHTTPFetcher(time.Second, "sheetfetch-test")
	data, err := fetcher.Fetch(context.Background(), srv.URL+"/song_001.png")
	if err != nil || string(data) != "image-bytes" {
		t.Fatalf("Fetch: %q %v", data, err)
	}
	if _, err := fetcher.Fetch(context.Background(), srv.URL+"/missing_002.png"); !errors.Is(err, services.ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
}
