package preprocess

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/obafela/doc-pipeline/constants"
	"github.com/obafela/doc-pipeline/internal/common"
)

// Preprocessor turns a document file into per-page contents ready for
// extraction. Pages are text bytes for DOCX and image bytes for
// everything else.
type Preprocessor interface {
	Preprocess(ctx context.Context, path string, declared constants.Format) (constants.Format, [][]byte, error)
}

type Config struct {
	Pdftoppm string // binary name or absolute path; if empty -> "pdftoppm"
	DPI      int    // rasterization DPI for PDF pages, default 150
	MaxPages int    // cap on pages taken from one PDF, default 50
}

type FSPreprocessor struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *FSPreprocessor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 150
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 50
	}
	return &FSPreprocessor{cfg: cfg, runner: execRunner{}, logger: logger}
}

// DetectFormat resolves the document format from the declared type, or
// from the file extension when no type was declared.
func DetectFormat(path string, declared constants.Format) (constants.Format, error) {
	if declared != "" {
		for _, f := range constants.Formats {
			if f == declared {
				return f, nil
			}
		}
		return "", common.NewAppError("UNSUPPORTED_FORMAT",
			fmt.Sprintf("declared type %q not supported", declared),
			common.ErrUnsupportedFormat)
	}
	format := constants.MapExtToFormat(filepath.Ext(path))
	if format == "" {
		return "", common.NewAppError("UNSUPPORTED_FORMAT",
			fmt.Sprintf("extension %q not supported", filepath.Ext(path)),
			common.ErrUnsupportedFormat)
	}
	return format, nil
}

// Preprocess detects the format and returns page contents: the raw image
// bytes for a single image, one rendered PNG per PDF page, or the
// document text for DOCX.
func (p *FSPreprocessor) Preprocess(ctx context.Context, path string, declared constants.Format) (constants.Format, [][]byte, error) {
	format, err := DetectFormat(path, declared)
	if err != nil {
		return "", nil, err
	}
	p.logger.Debug("preprocess start", "path", path, "format", format)

	switch {
	case format.IsImage():
		data, err := os.ReadFile(path)
		if err != nil {
			return format, nil, common.WrapError(err, "read image")
		}
		return format, [][]byte{data}, nil

	case format == constants.DOCX:
		text, err := readDOCXText(path)
		if err != nil {
			return format, nil, err
		}
		return format, [][]byte{[]byte(text)}, nil

	case format == constants.PDF:
		pages, err := p.renderPDF(ctx, path)
		if err != nil {
			return format, nil, err
		}
		return format, pages, nil

	default:
		return "", nil, common.NewAppError("UNSUPPORTED_FORMAT",
			fmt.Sprintf("no preprocessing for format %q", format),
			common.ErrUnsupportedFormat)
	}
}

// renderPDF rasterizes PDF pages to PNGs with pdftoppm and reads them
// back, capped at MaxPages.
func (p *FSPreprocessor) renderPDF(ctx context.Context, path string) ([][]byte, error) {
	tmpDir, err := os.MkdirTemp("", "dp-pp-*")
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			p.logger.Warn("failed to remove temp dir", "path", tmpDir, "error", err)
		}
	}()

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -r 150 -png <in.pdf> <tmp/page>
	_, errb, err := p.runner.Run(ctx, p.cfg.Pdftoppm, "-r", fmt.Sprintf("%d", p.cfg.DPI), "-png", path, prefix)
	if err != nil {
		return nil, common.NewAppError("PDF_RENDER",
			fmt.Sprintf("pdftoppm failed: %s", truncate(string(errb), 512)),
			common.ErrCorrupt)
	}

	// collect generated pngs (prefix-1.png, prefix-2.png, ...)
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if len(matches) == 0 {
		return nil, common.NewAppError("PDF_RENDER",
			"pdftoppm produced no pages", common.ErrCorrupt)
	}
	if len(matches) > p.cfg.MaxPages {
		p.logger.Warn("pdf page cap applied",
			"path", path, "pages", len(matches), "cap", p.cfg.MaxPages)
		matches = matches[:p.cfg.MaxPages]
	}

	pages := make([][]byte, 0, len(matches))
	for _, img := range matches {
		data, err := os.ReadFile(img)
		if err != nil {
			return nil, common.WrapError(err, "read rendered page")
		}
		pages = append(pages, data)
	}
	return pages, nil
}
