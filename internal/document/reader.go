package document

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"log/slog"
	"strings"

	"github.com/gen2brain/go-fitz"

	"github.com/okellar/invoiceflow/internal/common"
)

// TextExtractionResult is the reader's output for one document.
type TextExtractionResult struct {
	Text      string
	UsedOCR   bool
	PageCount int
}

// PageOCR runs OCR over one rendered page image (PNG bytes).
type PageOCR interface {
	Recognize(ctx context.Context, pngData []byte) (string, error)
}

// Config holds reader settings.
type Config struct {
	// MinTextDensity is the minimum character count a page's text layer
	// must carry; below it the page is rasterized and OCR'd instead.
	MinTextDensity int
}

// Reader turns raw PDF bytes into page text, falling back to OCR per page
// when the text layer is too thin.
type Reader struct {
	cfg    Config
	ocr    PageOCR
	logger *slog.Logger
}

func NewReader(cfg Config, ocr PageOCR, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MinTextDensity <= 0 {
		cfg.MinTextDensity = 32
	}
	return &Reader{cfg: cfg, ocr: ocr, logger: logger}
}

// Read extracts text from a PDF. It fails with common.ErrInvalidDocument
// when the bytes are not a parseable PDF or no text can be recovered at all.
func (r *Reader) Read(ctx context.Context, data []byte, fileName string) (TextExtractionResult, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return TextExtractionResult{}, fmt.Errorf("%w: %s: %v", common.ErrInvalidDocument, fileName, err)
	}
	defer func() {
		if cerr := doc.Close(); cerr != nil {
			r.logger.Warn("document.close_failed", "file", fileName, "error", cerr)
		}
	}()

	pages := doc.NumPage()
	if pages == 0 {
		return TextExtractionResult{}, fmt.Errorf("%w: %s: zero pages", common.ErrInvalidDocument, fileName)
	}

	var b strings.Builder
	usedOCR := false
	for i := 0; i < pages; i++ {
		if err := ctx.Err(); err != nil {
			return TextExtractionResult{}, err
		}
		text, terr := doc.Text(i)
		if terr != nil {
			r.logger.Warn("document.text_layer_failed", "file", fileName, "page", i, "error", terr)
			text = ""
		}
		if len(strings.TrimSpace(text)) < r.cfg.MinTextDensity && r.ocr != nil {
			ocrText, oerr := r.ocrPage(ctx, doc, i)
			if oerr != nil {
				r.logger.Warn("document.ocr_failed", "file", fileName, "page", i, "error", oerr)
			} else if len(strings.TrimSpace(ocrText)) > len(strings.TrimSpace(text)) {
				text = ocrText
				usedOCR = true
			}
		}
		if b.Len() > 0 {
			b.WriteString("\n\f\n") // page break marker
		}
		b.WriteString(text)
	}

	full := strings.TrimSpace(b.String())
	if full == "" {
		return TextExtractionResult{}, fmt.Errorf("%w: %s: no extractable text", common.ErrInvalidDocument, fileName)
	}

	r.logger.Info("document.read.ok",
		"file", fileName,
		"pages", pages,
		"used_ocr", usedOCR,
		"text_len", len(full),
	)
	return TextExtractionResult{Text: full, UsedOCR: usedOCR, PageCount: pages}, nil
}

// ocrPage rasterizes one page and hands it to the OCR engine. The rendered
// image lives only in memory; there is nothing to clean up on failure.
func (r *Reader) ocrPage(ctx context.Context, doc *fitz.Document, page int) (string, error) {
	img, err := doc.Image(page)
	if err != nil {
		return "", fmt.Errorf("rasterize page %d: %w", page, err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode page %d: %w", page, err)
	}
	return r.ocr.Recognize(ctx, buf.Bytes())
}
