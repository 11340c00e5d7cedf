package restore

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"sync"

	"sheetfetch/internal/logging"
	"sheetfetch/internal/progress"
	"sheetfetch/internal/services"
	"sheetfetch/internal/sheet"
	"sheetfetch/internal/tensor"
)

// Status texts emitted at the start of each stage.
const (
	StatusWatermark = "Removing watermarks"
	StatusUpscale   = "Upscaling images"
)

// Options controls canvas sizes, tiling, and checkpoint locations.
type Options struct {
	WatermarkDir string
	UpscaleDir   string
	// InputWidth x InputHeight is the watermark network canvas.
	InputWidth  int
	InputHeight int
	// OutputWidth x OutputHeight is the final page canvas.
	OutputWidth  int
	OutputHeight int
	TileWidth    int
	TileHeight   int
	TilePadding  int
	Workers      int
}

// DefaultOptions returns the geometry the shipped checkpoints were trained for.
func DefaultOptions() Options {
	return Options{
		InputWidth:   612,
		InputHeight:  792,
		OutputWidth:  1700,
		OutputHeight: 2200,
		TileWidth:    850,
		TileHeight:   550,
		TilePadding:  16,
	}
}

// NetworkLoader builds a network from a checkpoint directory.
type NetworkLoader func(dir string) (Network, error)

// LoadUNet loads the best watermark-removal checkpoint from dir.
func LoadUNet(dir string) (Network, error) {
	ckpt, err := LoadBestCheckpoint(dir)
	if err != nil {
		return nil, err
	}
	net, err := NewUNet(ckpt.State)
	if err != nil {
		return nil, services.Wrap(services.ErrModelLoad, "restore", "build watermark network", ckpt.Path, err)
	}
	return net, nil
}

// LoadVDSR loads the best super-resolution checkpoint from dir.
func LoadVDSR(dir string) (Network, error) {
	ckpt, err := LoadBestCheckpoint(dir)
	if err != nil {
		return nil, err
	}
	net, err := NewVDSR(ckpt.State)
	if err != nil {
		return nil, services.Wrap(services.ErrModelLoad, "restore", "build upscale network", ckpt.Path, err)
	}
	return net, nil
}

// Pipeline runs downloaded pages through watermark removal then
// super-resolution. Networks load on first use and are reused; a failed load
// is retried by the next call. Restore calls are serialized.
type Pipeline struct {
	opts   Options
	logger *slog.Logger
	pool   *tensor.Pool

	loadWatermark NetworkLoader
	loadUpscale   NetworkLoader

	mu        sync.Mutex
	watermark Network
	upscale   Network
}

// New constructs a pipeline that loads checkpoints from opts directories.
func New(opts Options, logger *slog.Logger) *Pipeline {
	return NewWithLoaders(opts, LoadUNet, LoadVDSR, logger)
}

// NewWithLoaders constructs a pipeline with custom network loaders.
func NewWithLoaders(opts Options, watermark, upscale NetworkLoader, logger *slog.Logger) *Pipeline {
	defaults := DefaultOptions()
	if opts.InputWidth <= 0 || opts.InputHeight <= 0 {
		opts.InputWidth, opts.InputHeight = defaults.InputWidth, defaults.InputHeight
	}
	if opts.OutputWidth <= 0 || opts.OutputHeight <= 0 {
		opts.OutputWidth, opts.OutputHeight = defaults.OutputWidth, defaults.OutputHeight
	}
	if opts.TileWidth <= 0 || opts.TileHeight <= 0 {
		opts.TileWidth, opts.TileHeight = defaults.TileWidth, defaults.TileHeight
	}
	if opts.TilePadding < 0 {
		opts.TilePadding = 0
	}
	return &Pipeline{
		opts:          opts,
		logger:        logging.NewComponentLogger(logger, "restore"),
		pool:          tensor.NewPool(opts.Workers),
		loadWatermark: watermark,
		loadUpscale:   upscale,
	}
}

// Options returns the effective options.
func (p *Pipeline) Options() Options {
	return p.opts
}

// Load loads both networks if they are not loaded yet.
func (p *Pipeline) Load(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loadLocked(ctx)
}

func (p *Pipeline) loadLocked(ctx context.Context) error {
	logger := logging.WithContext(ctx, p.logger)
	if p.watermark == nil {
		net, err := p.loadWatermark(p.opts.WatermarkDir)
		if err != nil {
			return err
		}
		p.watermark = net
		logger.Info("watermark model loaded", logging.String("dir", p.opts.WatermarkDir))
	}
	if p.upscale == nil {
		net, err := p.loadUpscale(p.opts.UpscaleDir)
		if err != nil {
			return err
		}
		p.upscale = net
		logger.Info("upscale model loaded", logging.String("dir", p.opts.UpscaleDir))
	}
	return nil
}

// Restore processes pages in order. A page that cannot be read or processed
// is logged and skipped; the result keeps the order of the surviving pages.
// Model load failures are returned as ErrModelLoad.
func (p *Pipeline) Restore(ctx context.Context, pages []sheet.Page, sink progress.Sink) ([]sheet.RestoredPage, error) {
	sink = progress.OrNop(sink)
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.loadLocked(ctx); err != nil {
		return nil, err
	}
	logger := logging.WithContext(ctx, p.logger)

	type stagedPage struct {
		page sheet.Page
		t    *tensor.Tensor
	}

	sink.Status(StatusWatermark)
	sink.Progress(0)
	cleaned := make([]stagedPage, 0, len(pages))
	for i, page := range pages {
		out, err := p.removeWatermark(ctx, page)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			logging.WarnWithContext(logger, "watermark removal failed; page skipped", "restore_page_failed",
				logging.String("page", page.Name),
				logging.Error(err),
				logging.String(logging.FieldImpact, "page missing from the assembled score"),
			)
			sink.Log(fmt.Sprintf("Skipping %s: %v", page.Name, err))
		} else {
			cleaned = append(cleaned, stagedPage{page: page, t: out})
		}
		sink.Progress(progress.Percent(i+1, len(pages)))
	}

	sink.Status(StatusUpscale)
	sink.Progress(0)
	restored := make([]sheet.RestoredPage, 0, len(cleaned))
	for i, staged := range cleaned {
		img, err := p.upscalePage(ctx, staged.t)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			logging.WarnWithContext(logger, "upscaling failed; page skipped", "restore_page_failed",
				logging.String("page", staged.page.Name),
				logging.Error(err),
				logging.String(logging.FieldImpact, "page missing from the assembled score"),
			)
			sink.Log(fmt.Sprintf("Skipping %s: %v", staged.page.Name, err))
		} else {
			restored = append(restored, sheet.RestoredPage{
				Instrument: staged.page.Instrument,
				Sequence:   staged.page.Sequence,
				Name:       staged.page.Name,
				Image:      img,
			})
		}
		sink.Progress(progress.Percent(i+1, len(cleaned)))
	}

	logger.Debug("pages restored",
		logging.Int("requested", len(pages)),
		logging.Int("restored", len(restored)),
	)
	return restored, nil
}

func (p *Pipeline) removeWatermark(ctx context.Context, page sheet.Page) (*tensor.Tensor, error) {
	data, err := os.ReadFile(page.Path)
	if err != nil {
		return nil, services.Wrap(services.ErrFilesystem, "restore", "read page", page.Name, err)
	}
	img, err := DecodeImage(data)
	if err != nil {
		return nil, err
	}
	in := ImageToTensor(img, p.opts.InputWidth, p.opts.InputHeight)
	out, err := p.watermark.Forward(ctx, p.pool, in)
	if err != nil {
		return nil, err
	}
	if out.C != 1 {
		return nil, errors.New("watermark network returned a multi-channel tensor")
	}
	return out, nil
}

func (p *Pipeline) upscalePage(ctx context.Context, cleaned *tensor.Tensor) (*image.Gray, error) {
	out, err := p.Upscale(ctx, cleaned)
	if err != nil {
		return nil, err
	}
	return TensorToGray(out)
}

// Upscale resizes a cleaned page to the output canvas with nearest-neighbour
// sampling, pads it with white, and runs the super-resolution network tile by
// tile in row-major order. Each tile is fed with its padding border, which is
// cropped from the result before it is written back; tiles are not blended.
func (p *Pipeline) Upscale(ctx context.Context, cleaned *tensor.Tensor) (*tensor.Tensor, error) {
	if p.upscale == nil {
		return nil, services.Wrap(services.ErrModelLoad, "restore", "upscale", "upscale network not loaded", nil)
	}
	return upscaleTiled(ctx, p.upscale, p.pool, cleaned, p.opts)
}

func upscaleTiled(ctx context.Context, net Network, pool *tensor.Pool, cleaned *tensor.Tensor, opts Options) (*tensor.Tensor, error) {
	up := tensor.ResizeNearest(cleaned, opts.OutputHeight, opts.OutputWidth)
	pad := opts.TilePadding
	padded := tensor.Pad(up, pad, 1.0)
	out := tensor.New(up.C, up.H, up.W)

	for top := 0; top < up.H; top += opts.TileHeight {
		for left := 0; left < up.W; left += opts.TileWidth {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			tile := tensor.Crop(padded, top, left, opts.TileHeight+2*pad, opts.TileWidth+2*pad)
			result, err := net.Forward(ctx, pool, tile)
			if err != nil {
				return nil, fmt.Errorf("tile (%d,%d): %w", top, left, err)
			}
			inner := tensor.Crop(result, pad, pad, result.H-2*pad, result.W-2*pad)
			if err := tensor.Paste(out, inner, top, left); err != nil {
				return nil, fmt.Errorf("tile (%d,%d): %w", top, left, err)
			}
		}
	}
	return out, nil
}
