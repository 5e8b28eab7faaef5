package pdfinfo

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ledongthuc/pdf"
	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/kirillkom/pdf-converter/internal/core/domain"
)

// Counter reads page counts in-process. pdfcpu is strict about structure,
// so documents it refuses are retried with the more lenient reader.
type Counter struct{}

func NewCounter() *Counter {
	return &Counter{}
}

func (c *Counter) CountPages(path string) (int, error) {
	n, strictErr := pdfapi.PageCountFile(path)
	if strictErr == nil && n > 0 {
		return n, nil
	}

	n, lenientErr := countLenient(path)
	if lenientErr == nil && n > 0 {
		slog.Debug("page_count_fallback", "path", path, "strict_error", strictErr)
		return n, nil
	}

	err := errors.Join(strictErr, lenientErr)
	if err == nil {
		err = fmt.Errorf("document has no pages")
	}
	return 0, domain.WrapError(domain.ErrInvalidInput, "count pages", err)
}

func countLenient(path string) (n int, err error) {
	// The lenient reader panics on some malformed trailers.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("read pdf: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()
	return r.NumPage(), nil
}
