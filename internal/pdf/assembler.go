package pdf

import (
	"context"
	"errors"
	"fmt"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-pdf/fpdf"

	"sheetfetch/internal/files"
	"sheetfetch/internal/logging"
	"sheetfetch/internal/progress"
	"sheetfetch/internal/services"
	"sheetfetch/internal/sheet"
)

// Page geometry in points; one point per restored pixel.
const (
	PageWidth  = 1700.0
	PageHeight = 2200.0
)

// ErrNoPages reports that no page could be embedded.
var ErrNoPages = errors.New("no pages could be embedded")

// Assembler writes PDFs through a files.Manager so every temp file and output
// write happens under the filesystem lock.
type Assembler struct {
	files   *files.Manager
	tempDir string
	logger  *slog.Logger
}

// NewAssembler returns an assembler that stages per-page PNGs in tempDir.
// An empty tempDir uses the destination directory of each PDF.
func NewAssembler(fm *files.Manager, tempDir string, logger *slog.Logger) *Assembler {
	if fm == nil {
		fm = files.NewManager(nil, logger)
	}
	return &Assembler{files: fm, tempDir: tempDir, logger: logging.NewComponentLogger(logger, "pdf")}
}

// Assemble writes the pages for instrument into destDir. The file name comes
// from the first page's source name with its _NNN suffix removed.
func (a *Assembler) Assemble(ctx context.Context, instrument string, pages []sheet.RestoredPage, destDir string, sink progress.Sink) (string, error) {
	if len(pages) == 0 {
		return "", services.Wrap(services.ErrValidation, "pdf", "assemble", instrument, ErrNoPages)
	}
	path := filepath.Join(destDir, sheet.ScoreFileName(pages[0].Name))
	if err := a.AssembleFile(ctx, pages, path, sink); err != nil {
		return "", err
	}
	return path, nil
}

// AssembleFile writes pages, in order, to path. A page that fails to encode or
// embed is skipped. When nothing could be embedded no file is written.
func (a *Assembler) AssembleFile(ctx context.Context, pages []sheet.RestoredPage, path string, sink progress.Sink) error {
	sink = progress.OrNop(sink)
	logger := logging.WithContext(ctx, a.logger)
	if len(pages) == 0 {
		return services.Wrap(services.ErrValidation, "pdf", "assemble", filepath.Base(path), ErrNoPages)
	}

	tempDir := a.tempDir
	if tempDir == "" {
		tempDir = filepath.Dir(path)
	}

	doc := fpdf.NewCustom(&fpdf.InitType{
		UnitStr: "pt",
		Size:    fpdf.SizeType{Wd: PageWidth, Ht: PageHeight},
	})
	doc.SetMargins(0, 0, 0)
	doc.SetAutoPageBreak(false, 0)

	sink.Status("Creating " + filepath.Base(path))
	embedded := 0
	for i, page := range pages {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := a.embed(doc, page, tempDir); err != nil {
			logging.WarnWithContext(logger, "page not embedded; skipped", "pdf_page_failed",
				logging.String("page", page.Name),
				logging.String("pdf", filepath.Base(path)),
				logging.Error(err),
				logging.String(logging.FieldImpact, "page missing from the assembled score"),
			)
			sink.Log(fmt.Sprintf("Skipping %s in %s: %v", page.Name, filepath.Base(path), err))
		} else {
			embedded++
		}
		sink.Progress(progress.Percent(i+1, len(pages)))
	}
	if embedded == 0 {
		return services.Wrap(services.ErrValidation, "pdf", "assemble", filepath.Base(path), ErrNoPages)
	}

	if err := a.files.WriteWith(path, func(w io.Writer) error {
		return doc.Output(w)
	}); err != nil {
		return err
	}
	logger.Info("score assembled",
		logging.Path(path),
		logging.Int("pages", embedded),
		logging.Int("skipped", len(pages)-embedded),
		logging.String(logging.FieldEventType, "pdf_written"),
	)
	return nil
}

// embed stages one page as a temporary PNG, registers it with doc, and draws
// it on a new page. The temp file is removed on every path.
func (a *Assembler) embed(doc *fpdf.Fpdf, page sheet.RestoredPage, tempDir string) (err error) {
	if page.Image == nil {
		return errors.New("page has no image")
	}
	tempPath, err := a.files.CreateTemp(tempDir, "page-*.png")
	if err != nil {
		return err
	}
	defer func() {
		if rmErr := a.files.Remove(tempPath); rmErr != nil && err == nil {
			err = rmErr
		}
	}()

	if err := a.files.WriteWith(tempPath, func(w io.Writer) error {
		return png.Encode(w, page.Image)
	}); err != nil {
		return err
	}
	if _, statErr := os.Stat(tempPath); statErr != nil {
		return statErr
	}

	opts := fpdf.ImageOptions{ImageType: "PNG"}
	doc.RegisterImageOptions(tempPath, opts)
	if doc.Err() {
		err := doc.Error()
		doc.ClearError()
		return fmt.Errorf("register image: %w", err)
	}
	doc.AddPage()
	doc.ImageOptions(tempPath, 0, 0, PageWidth, PageHeight, false, opts, 0, "")
	if doc.Err() {
		return fmt.Errorf("draw image: %w", doc.Error())
	}
	return nil
}
