package preflight

import (
	"context"

	"sheetfetch/internal/config"
	"sheetfetch/internal/deps"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Detail   string
	// Optional results never count as failures.
	Optional bool `json:",omitempty"`
}

// Options selects the optional checks.
type Options struct {
	// SkipNetwork leaves out the catalog reachability check.
	SkipNetwork bool
}

// RunAll executes the preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config, opts Options) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Download directory", cfg.Paths.DownloadDir),
		CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		FromStatus(deps.CheckBrowser(cfg.Catalog.BrowserPath)),
		FromStatus(deps.CheckFolderOpener()),
		CheckModelDir("Watermark model", cfg.Models.WatermarkDir),
		CheckModelDir("Upscale model", cfg.Models.UpscaleDir),
	}
	if !opts.SkipNetwork {
		results = append(results, CheckCatalog(ctx, cfg.Catalog.BaseURL, cfg.Catalog.UserAgent))
	}
	return results
}

// Failed returns the required results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed && !r.Optional {
			out = append(out, r)
		}
	}
	return out
}

// FromStatus converts a dependency status into a check result.
func FromStatus(status deps.Status) Result {
	detail := status.Detail
	if status.Available {
		detail = status.Command
	}
	return Result{Name: status.Name, Passed: status.Available, Detail: detail, Optional: status.Optional}
}
