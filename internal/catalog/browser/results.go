package browser

import (
	"encoding/json"
	"fmt"
	"strings"

	"sheetfetch/internal/catalog"
	"sheetfetch/internal/sheet"
)

// rawResult is what the extraction script reports for one result item.
type rawResult struct {
	Title    string `json:"title"`
	Line     string `json:"line"`
	Subtitle string `json:"subtitle"`
	Image    string `json:"image"`
}

// parseResults turns raw result items into song candidates. Items with no
// text are ignored, collections and books are dropped, and Position keeps the
// DOM slot so the right item can be clicked later.
func parseResults(raw []rawResult) []sheet.Candidate {
	var out []sheet.Candidate
	for i, item := range raw {
		title := strings.TrimSpace(item.Title)
		subtitle := strings.TrimSpace(item.Subtitle)
		line := ""
		if subtitle != "" {
			line = strings.TrimSpace(strings.SplitN(item.Line, "\n", 2)[0])
		}
		if line == subtitle {
			line = ""
		}

		var lines []string
		for _, text := range []string{title, line, subtitle} {
			if text != "" {
				lines = append(lines, text)
			}
		}
		if len(lines) == 0 || !catalog.IsSongResult(subtitle) {
			continue
		}

		candidate := sheet.Candidate{
			Index:    len(out) + 1,
			Position: i + 1,
			Title:    lines[0],
			ImageURL: strings.TrimSpace(item.Image),
		}
		if len(lines) > 1 {
			candidate.Artist = lines[1]
		}
		if len(lines) > 2 {
			candidate.Preview = lines[2]
		}
		out = append(out, candidate)
		if len(out) >= sheet.MaxCandidates {
			break
		}
	}
	return out
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// resultsScript collects title, lines, and preview image of every result item
// under the results container.
func resultsScript() string {
	return fmt.Sprintf(`(() => {
  const one = (ctx, path) => document.evaluate(path, ctx, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
  const text = (ctx, path) => { const n = one(ctx, path); return n ? n.innerText || "" : ""; };
  const items = document.evaluate(%s, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
  const out = [];
  for (let i = 0; i < items.snapshotLength; i++) {
    const item = items.snapshotItem(i);
    const img = one(item, %s);
    out.push({
      title: text(item, %s),
      line: text(item, %s),
      subtitle: text(item, %s),
      image: img ? img.getAttribute("src") || "" : "",
    });
  }
  return out;
})()`, jsString(xpathResultItems), jsString(relImage), jsString(relTitle), jsString(relLine), jsString(relSubtitle))
}

// buttonTextsScript returns the visible text of every node matching path.
func buttonTextsScript(path string) string {
	return fmt.Sprintf(`(() => {
  const nodes = document.evaluate(%s, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
  const out = [];
  for (let i = 0; i < nodes.snapshotLength; i++) {
    out.push(nodes.snapshotItem(i).innerText || "");
  }
  return out;
})()`, jsString(path))
}

// existsScript reports whether path matches any node.
func existsScript(path string) string {
	return fmt.Sprintf(`document.evaluate(%s, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue !== null`, jsString(path))
}
