package batch

import (
	"context"
	"os/exec"

	"sheetfetch/internal/deps"
)

// openFolder reveals dir in the platform file manager without waiting for it.
func openFolder(_ context.Context, dir string) error {
	name, err := deps.FolderOpener()
	if err != nil {
		return err
	}
	cmd := exec.Command(name, dir)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
