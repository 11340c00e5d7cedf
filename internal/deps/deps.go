package deps

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

// ErrNoDisplay means there is no desktop session to show a folder in.
var ErrNoDisplay = errors.New("no graphical session to open a folder in")

// Status reports whether one external program is usable.
type Status struct {
	Name        string
	Command     string
	Description string
	// Optional programs only disable a convenience when missing.
	Optional    bool
	Available   bool
	Detail      string
}

// FolderOpener names the command that reveals a folder in the platform file
// manager. Linux needs an X11 or Wayland session.
func FolderOpener() (string, error) {
	switch runtime.GOOS {
	case "darwin":
		return "open", nil
	case "windows":
		return "explorer", nil
	}
	if os.Getenv("DISPLAY") == "" && os.Getenv("WAYLAND_DISPLAY") == "" {
		return "", ErrNoDisplay
	}
	return "xdg-open", nil
}

// CheckFolderOpener reports the program used to show the song folder after
// a single-song download.
func CheckFolderOpener() Status {
	status := Status{
		Name:        "Folder opener",
		Description: "Shows the saved score after a single-song download",
		Optional:    true,
	}
	name, err := FolderOpener()
	if err != nil {
		status.Detail = err.Error()
		return status
	}
	resolved, err := exec.LookPath(name)
	if err != nil {
		status.Command = name
		status.Detail = fmt.Sprintf("%s not found on PATH", name)
		return status
	}
	status.Command = resolved
	status.Available = true
	return status
}
