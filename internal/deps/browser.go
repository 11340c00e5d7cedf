package deps

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// browserNames are tried in order when no browser is configured.
var browserNames = []string{
	"google-chrome",
	"google-chrome-stable",
	"chromium",
	"chromium-browser",
	"chrome",
	"msedge",
}

// macBrowsers are application bundle executables checked on darwin.
var macBrowsers = []string{
	"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	"/Applications/Chromium.app/Contents/MacOS/Chromium",
}

// ResolveBrowser returns the Chromium-family executable the catalog session
// drives. A configured command wins when it resolves; otherwise the usual
// names are searched on PATH.
func ResolveBrowser(configured string) (string, bool) {
	if configured = strings.TrimSpace(configured); configured != "" {
		if resolved, err := exec.LookPath(configured); err == nil {
			return resolved, true
		}
		return configured, false
	}
	for _, name := range browserNames {
		if resolved, err := exec.LookPath(name); err == nil {
			return resolved, true
		}
	}
	if runtime.GOOS == "darwin" {
		for _, path := range macBrowsers {
			if info, err := os.Stat(path); err == nil && isExecutable(info) {
				return path, true
			}
		}
	}
	return "", false
}

// CheckBrowser reports the browser ResolveBrowser would pick.
func CheckBrowser(configured string) Status {
	status := Status{
		Name:        "Browser",
		Description: "Drives the catalog search and page previews",
	}
	resolved, ok := ResolveBrowser(configured)
	status.Command = resolved
	status.Available = ok
	switch {
	case ok:
	case strings.TrimSpace(configured) != "":
		status.Detail = fmt.Sprintf("configured browser %q not found", strings.TrimSpace(configured))
	default:
		status.Detail = "no Chrome or Chromium executable found on PATH"
	}
	return status
}

func isExecutable(info os.FileInfo) bool {
	if info == nil {
		return false
	}
	if info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
