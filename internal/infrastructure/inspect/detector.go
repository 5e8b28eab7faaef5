package inspect

import (
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"

	"github.com/kirillkom/pdf-converter/internal/core/domain"
)

// textSniffLimit bounds how much of a text upload is checked for valid UTF-8.
const textSniffLimit = 1 << 20

var kindByMime = map[string]domain.FileKind{
	"application/pdf":  domain.KindPDF,
	"image/jpeg":       domain.KindImage,
	"image/png":        domain.KindImage,
	"image/webp":       domain.KindImage,
	domain.MimeDOCX:    domain.KindWord,
	domain.MimePPTX:    domain.KindPresentation,
	domain.MimeXLSX:    domain.KindSpreadsheet,
	"text/plain":       domain.KindText,
	"text/csv":         domain.KindText,
	"application/json": domain.KindText,
}

// Detector identifies files by their content, not their name.
type Detector struct{}

func NewDetector() *Detector {
	return &Detector{}
}

// Detect returns the detected kind and MIME type. Content the converter has
// no use for, including empty files, is rejected as invalid input.
func (d *Detector) Detect(path string) (domain.FileKind, string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", "", fmt.Errorf("stat upload: %w", err)
	}
	if info.Size() == 0 {
		return "", "", domain.WrapError(domain.ErrInvalidInput, "detect", fmt.Errorf("file is empty"))
	}

	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return "", "", fmt.Errorf("detect content type: %w", err)
	}

	for m := mtype; m != nil; m = m.Parent() {
		kind, ok := kindByMime[baseMime(m.String())]
		if !ok {
			continue
		}
		if kind == domain.KindText {
			ok, err := isUTF8Text(path)
			if err != nil {
				return "", "", err
			}
			if !ok {
				break
			}
		}
		return kind, baseMime(mtype.String()), nil
	}

	return "", mtype.String(), domain.WrapError(domain.ErrInvalidInput, "detect",
		fmt.Errorf("unsupported content type %s", mtype.String()))
}

func isUTF8Text(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("open text upload: %w", err)
	}
	defer f.Close()

	buf := make([]byte, textSniffLimit)
	n, err := io.ReadFull(f, buf)
	switch err {
	case nil:
		// Only a prefix was read; a multibyte rune may be cut at the end.
		raw := buf[:n]
		for i := 0; i < utf8.UTFMax-1 && len(raw) > 0 && !utf8.Valid(raw); i++ {
			raw = raw[:len(raw)-1]
		}
		return utf8.Valid(raw), nil
	case io.EOF, io.ErrUnexpectedEOF:
		return utf8.Valid(buf[:n]), nil
	default:
		return false, fmt.Errorf("read text upload: %w", err)
	}
}

func baseMime(m string) string {
	for i := 0; i < len(m); i++ {
		if m[i] == ';' {
			return m[:i]
		}
	}
	return m
}
