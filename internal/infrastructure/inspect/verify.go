package inspect

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/pdf-converter/internal/core/domain"
)

// ooxmlParts are the parts a tool-written package must contain to be opened
// by an office suite.
var ooxmlParts = map[string]string{
	".docx": "word/document.xml",
	".pptx": "ppt/presentation.xml",
}

// Verifier looks inside produced files, by extension, for the minimum
// structure of a usable document.
type Verifier struct{}

func NewVerifier() *Verifier {
	return &Verifier{}
}

func (v *Verifier) Verify(path string) error {
	var err error
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".pdf":
		err = verifyPDFHeader(path)
	case ".jpg", ".jpeg":
		err = verifyMagic(path, []byte{0xFF, 0xD8, 0xFF})
	case ".xlsx":
		err = verifyWorkbook(path)
	case ".docx", ".pptx":
		err = verifyPackage(path, ooxmlParts[ext])
	}
	if err != nil {
		return domain.WrapError(domain.ErrOutputInaccessible, "verify "+filepath.Base(path), err)
	}
	return nil
}

func verifyPDFHeader(path string) error {
	head, err := readHead(path, 1024)
	if err != nil {
		return err
	}
	if !bytes.Contains(head, []byte("%PDF-")) {
		return fmt.Errorf("missing PDF header")
	}
	return nil
}

func verifyMagic(path string, magic []byte) error {
	head, err := readHead(path, len(magic))
	if err != nil {
		return err
	}
	if !bytes.Equal(head, magic) {
		return fmt.Errorf("unexpected file signature")
	}
	return nil
}

func verifyWorkbook(path string) error {
	wb, err := excelize.OpenFile(path)
	if err != nil {
		return fmt.Errorf("open workbook: %w", err)
	}
	defer wb.Close()
	if len(wb.GetSheetList()) == 0 {
		return fmt.Errorf("workbook has no sheets")
	}
	return nil
}

func verifyPackage(path, mainPart string) error {
	r, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("open package: %w", err)
	}
	defer r.Close()

	var hasTypes, hasMain bool
	for _, f := range r.File {
		switch f.Name {
		case "[Content_Types].xml":
			hasTypes = true
		case mainPart:
			hasMain = true
		}
	}
	if !hasTypes || !hasMain {
		return fmt.Errorf("package is missing %s", mainPart)
	}
	return nil
}

func readHead(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open output: %w", err)
	}
	defer f.Close()

	buf := make([]byte, n)
	read, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("read output: %w", err)
	}
	return buf[:read], nil
}
