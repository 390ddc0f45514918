package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ProgressEvery is the page interval between progress reports.
const ProgressEvery = 10

// ProgressFunc receives the number of processed pages out of the total.
type ProgressFunc func(done, total int)

// PDFExtractor pulls plain text out of a PDF page by page.
type PDFExtractor struct {
	logger   *slog.Logger
	progress ProgressFunc
}

func NewPDFExtractor(logger *slog.Logger, progress ProgressFunc) *PDFExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &PDFExtractor{logger: logger, progress: progress}
}

// Extract returns the text of every readable page, each followed by a newline.
// Pages that fail are skipped; an unreadable document or one without pages is an error.
func (e *PDFExtractor) Extract(ctx context.Context, data []byte) (string, int, error) {
	if len(data) == 0 {
		return "", 0, errors.New("pdf is empty")
	}
	r, err := openReader(data)
	if err != nil {
		return "", 0, fmt.Errorf("open pdf: %w", err)
	}
	total := r.NumPage()
	if total == 0 {
		return "", 0, errors.New("pdf has no pages")
	}

	var sb strings.Builder
	skipped := 0
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return "", 0, err
		}
		text, err := pageText(r, i)
		if err != nil {
			skipped++
			e.logger.Warn("skipping unreadable page", "page", i, "error", err)
		} else {
			sb.WriteString(text)
			sb.WriteString("\n")
		}
		if i%ProgressEvery == 0 || i == total {
			e.logger.Info("extracting pdf", "pages", i, "total", total)
			if e.progress != nil {
				e.progress(i, total)
			}
		}
	}
	if skipped == total {
		return "", total, fmt.Errorf("no readable text in %d pages", total)
	}
	return sb.String(), total, nil
}

// The pdf reader panics on some malformed inputs.
func openReader(data []byte) (r *pdf.Reader, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("malformed pdf: %v", p)
		}
	}()
	return pdf.NewReader(bytes.NewReader(data), int64(len(data)))
}

func pageText(r *pdf.Reader, i int) (text string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("malformed page: %v", p)
		}
	}()
	page := r.Page(i)
	if page.V.IsNull() {
		return "", errors.New("page is null")
	}
	return page.GetPlainText(nil)
}
