package connector

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"knowledge-platform/internal/config"
	"knowledge-platform/models"
)

// supported extensions when the source does not configure include patterns
var defaultExtensions = map[string]bool{
	".txt": true, ".md": true, ".pdf": true, ".html": true, ".htm": true,
	".csv": true, ".json": true, ".xlsx": true, ".xlsm": true,
}

// LocalDirConnector walks a filesystem path and extracts text per supported
// file type, falling back to OCR when extraction yields no text and OCR is
// enabled for the source.
type LocalDirConnector struct {
	cfg *config.Config
	ocr *OCRClient
}

func NewLocalDirConnector(cfg *config.Config, ocr *OCRClient) *LocalDirConnector {
	return &LocalDirConnector{cfg: cfg, ocr: ocr}
}

func (c *LocalDirConnector) Type() string { return models.SourceTypeLocalDir }

func (c *LocalDirConnector) Validate(_ context.Context, spec FetchSpec) error {
	info, err := os.Stat(spec.Source.Location)
	if err != nil {
		return fmt.Errorf("cannot access directory %q: %w", spec.Source.Location, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%q is not a directory", spec.Source.Location)
	}
	return nil
}

func (c *LocalDirConnector) Fetch(ctx context.Context, spec FetchSpec) (<-chan Item, <-chan ItemError) {
	items := make(chan Item)
	errs := make(chan ItemError)

	go func() {
		defer close(items)
		defer close(errs)

		root := spec.Source.Location
		include := spec.Source.Params.Include

		// checked once per run so a down sidecar does not cost a probe per file
		ocrAvailable := spec.Source.Params.OCREnabled && c.ocr != nil && c.ocr.Healthy(ctx)

		walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err != nil {
				emitErr(ctx, errs, path, err)
				return nil // keep walking siblings
			}
			if d.IsDir() {
				if strings.HasPrefix(d.Name(), ".") && path != root {
					return filepath.SkipDir
				}
				return nil
			}
			if !c.wanted(d.Name(), include) {
				return nil
			}

			rel, relErr := filepath.Rel(root, path)
			if relErr != nil {
				rel = path
			}

			extracted, extractErr := ExtractFile(path)
			if extractErr != nil {
				emitErr(ctx, errs, rel, extractErr)
				return nil
			}

			// OCR fallback for scanned documents that yield no text
			if extracted.Text == "" && ocrAvailable {
				ocrText, ocrErr := c.ocr.ExtractText(ctx, path)
				if ocrErr != nil {
					emitErr(ctx, errs, rel, fmt.Errorf("ocr fallback: %w", ocrErr))
					return nil
				}
				extracted.Text = ocrText
			}

			if extracted.Text == "" {
				emitErr(ctx, errs, rel, fmt.Errorf("no extractable text"))
				return nil
			}

			if !emit(ctx, items, Item{
				ID:        rel,
				Path:      rel,
				Text:      extracted.Text,
				PageCount: extracted.Pages,
				Meta:      map[string]string{"absolute_path": path},
			}) {
				return ctx.Err()
			}
			return nil
		})

		if walkErr != nil && ctx.Err() == nil {
			emitErr(ctx, errs, root, walkErr)
		}
	}()

	return items, errs
}

func (c *LocalDirConnector) wanted(name string, include []string) bool {
	if len(include) > 0 {
		for _, pattern := range include {
			if ok, _ := filepath.Match(pattern, name); ok {
				return true
			}
		}
		return false
	}
	return defaultExtensions[strings.ToLower(filepath.Ext(name))]
}
