package browser

import (
	"strings"
	"testing"
)

func TestParseResultsKeepsSongsAndDOMPositions(t *testing.T) {
	raw := []rawResult{
		{Title: "Holy Forever", Line: "Chris Tomlin\nextra", Subtitle: "Chris Tomlin", Image: "https://img/1.png"},
		{Title: "Worship Hits", Line: "Various", Subtitle: "Song Collection"},
		{Title: "", Line: "", Subtitle: ""},
		{Title: "Holy", Line: "Songbook\n", Subtitle: "Christmas Songbook"},
		{Title: " Holy Spirit ", Line: "Jesus Culture\nmore", Subtitle: "Francesca Battistelli"},
		{Title: "Untitled Card", Line: "stray line", Subtitle: ""},
	}
	got := parseResults(raw)
	if len(got) != 2 {
		t.Fatalf("expected 2 songs, got %+v", got)
	}
	first := got[0]
	if first.Index != 1 || first.Position != 1 || first.Title != "Holy Forever" || first.Artist != "Chris Tomlin" || first.Preview != "" {
		t.Fatalf("unexpected first candidate %+v", first)
	}
	if first.ImageURL != "https://img/1.png" {
		t.Fatalf("image url lost: %+v", first)
	}
	second := got[1]
	if second.Index != 2 || second.Position != 5 {
		t.Fatalf("expected index 2 at DOM position 5, got %+v", second)
	}
	if second.Title != "Holy Spirit" || second.Artist != "Jesus Culture" || second.Preview != "Francesca Battistelli" {
		t.Fatalf("unexpected second candidate %+v", second)
	}
}

func TestParseResultsCapsAtFive(t *testing.T) {
	raw := make([]rawResult, 9)
	for i := range raw {
		raw[i] = rawResult{Title: "Song", Subtitle: "Artist"}
	}
	got := parseResults(raw)
	if len(got) != 5 || got[4].Position != 5 {
		t.Fatalf("expected five candidates, got %+v", got)
	}
}

func TestButtonWithTextQuoting(t *testing.T) {
	tests := map[string]string{
		"Trumpet 1,2":        "'Trumpet 1,2'",
		"Conductor's  Score": `"Conductor's Score"`,
		`Bari "Low" Sax's`:   `concat('Bari "Low" Sax',"'",'s')`,
		`'quoted" both`:      `concat("'",'quoted" both')`,
	}
	for label, literal := range tests {
		got := buttonWithText("//ul//button", label)
		want := "(//ul//button)[normalize-space(.)=" + literal + "]"
		if got != want {
			t.Errorf("buttonWithText(%q) = %s, want %s", label, got, want)
		}
	}
}

func TestScriptsEmbedQuotedXPaths(t *testing.T) {
	script := resultsScript()
	if !strings.Contains(script, `\"page-wrapper\"`) {
		t.Fatalf("expected JSON-escaped xpath in script: %s", script)
	}
	if !strings.Contains(existsScript(xpathNextButton), "sheet-nav-gradient-button-right") {
		t.Fatal("exists script should embed the xpath")
	}
	if got := resultLink(3); !strings.HasSuffix(got, "app-product-list-item[3]/div/a/div") {
		t.Fatalf("unexpected result link %s", got)
	}
}
