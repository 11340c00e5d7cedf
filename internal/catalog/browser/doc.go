// Package browser drives the sheet music catalog through a headless Chromium
// tab using chromedp. It implements catalog.Client; callers are expected to
// wrap it in a catalog.Session so calls are serialized and bounded.
package browser
