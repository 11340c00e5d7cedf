package browser

import (
	"fmt"
	"strings"
)

// Element locations on the catalog pages. The catalog is an Ionic app, so most
// anchors are long absolute paths under the router outlet.
const (
	productSelector = `//*[@id="page-wrapper"]/ion-router-outlet/app-product-page/ion-content/div/div/div[3]/div/div[1]/div[2]/div[1]/app-product-sheet-selector/div`

	xpathSearchBar     = `//*[@id="search-input-wrap"]/input`
	xpathResultsParent = `//*[@id="page-wrapper"]/ion-router-outlet/app-page-search/ion-content/div/div/div/app-search/div`
	xpathResultItems   = xpathResultsParent + `/app-product-list-item`
	xpathChordsButton  = productSelector + `/div[1]/button`
	xpathOrchestration = `//h3[contains(text(), 'Orchestration')]/ancestor::div[4]`
	xpathKeyButton     = productSelector + `/div[3]/app-product-selector-key/div/button`
	xpathKeyButtons    = productSelector + `/div[3]/app-product-selector-key/div/ul//button`
	xpathPartsButton   = productSelector + `/div[2]/div/button`
	xpathPartButtons   = productSelector + `/div[2]/div/ul//button`
	xpathPageImage     = `//*[@id="preview-sheets"]/div/div[1]/div/img`
	xpathNextButton    = `//button[contains(@class, 'sheet-nav-gradient-button-right')]`
)

// Paths relative to one result item.
const (
	relTitle    = `./div/a/div/h5`
	relSubtitle = `./div/a/div/span/span`
	relLine     = `./div/a/div/span`
	relImage    = `./div/div[1]/div/app-product-audio-preview-image/div/img`
)

// resultLink addresses the clickable area of the result at a 1-based DOM
// position.
func resultLink(position int) string {
	return fmt.Sprintf("%s[%d]/div/a/div", xpathResultItems, position)
}

// buttonWithText addresses the button under scope whose trimmed text equals
// label. Labels containing both quote kinds are matched through concat().
func buttonWithText(scope, label string) string {
	label = strings.Join(strings.Fields(label), " ")
	return fmt.Sprintf("(%s)[normalize-space(.)=%s]", scope, xpathLiteral(label))
}

func xpathLiteral(s string) string {
	switch {
	case !strings.Contains(s, "'"):
		return "'" + s + "'"
	case !strings.Contains(s, `"`):
		return `"` + s + `"`
	}
	out := "concat("
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			if i > start {
				out += "'" + s[start:i] + "',"
			}
			out += `"'",`
			start = i + 1
		}
	}
	if start < len(s) {
		out += "'" + s[start:] + "',"
	}
	return out[:len(out)-1] + ")"
}
