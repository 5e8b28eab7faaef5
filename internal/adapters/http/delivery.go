package httpadapter

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/kirillkom/pdf-converter/internal/core/domain"
)

const (
	jobIDHeader         = "X-Job-Id"
	signatureKindHeader = "X-Signature-Kind"
)

// deliver streams the result. One artifact is sent as is; several are zipped
// on the fly under archiveName. Once the status line is out, failures can only
// be returned to the caller for logging.
func deliver(w http.ResponseWriter, result *domain.ConversionResult, archiveName string) error {
	if result == nil || len(result.Artifacts) == 0 {
		return errors.New("conversion produced no artifacts")
	}

	w.Header().Set(jobIDHeader, result.JobID)
	if kind := result.Metadata["signature_kind"]; kind != "" {
		w.Header().Set(signatureKindHeader, kind)
	}

	if len(result.Artifacts) == 1 {
		return deliverFile(w, result.Artifacts[0])
	}
	return deliverArchive(w, result.Artifacts, archiveName)
}

func deliverFile(w http.ResponseWriter, artifact domain.OutputArtifact) error {
	f, err := os.Open(artifact.Path)
	if err != nil {
		return domain.WrapError(domain.ErrOutputInaccessible, "deliver", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return domain.WrapError(domain.ErrOutputInaccessible, "deliver", err)
	}

	w.Header().Set("Content-Type", artifact.MimeType)
	w.Header().Set("Content-Disposition", attachment(artifact.SuggestedFilename))
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("stream %s: %w", artifact.SuggestedFilename, err)
	}
	return nil
}

func deliverArchive(w http.ResponseWriter, artifacts []domain.OutputArtifact, archiveName string) error {
	// Open everything first so a missing artifact still yields an error response.
	files := make([]*os.File, 0, len(artifacts))
	defer func() {
		for _, f := range files {
			_ = f.Close()
		}
	}()
	for _, a := range artifacts {
		f, err := os.Open(a.Path)
		if err != nil {
			return domain.WrapError(domain.ErrOutputInaccessible, "deliver", err)
		}
		files = append(files, f)
	}

	w.Header().Set("Content-Type", domain.MimeZIP)
	w.Header().Set("Content-Disposition", attachment(archiveName))
	w.WriteHeader(http.StatusOK)

	zw := zip.NewWriter(w)
	now := time.Now()
	for i, a := range artifacts {
		method := zip.Deflate
		if a.MimeType == domain.MimeJPEG {
			method = zip.Store
		}
		entry, err := zw.CreateHeader(&zip.FileHeader{
			Name:     a.SuggestedFilename,
			Method:   method,
			Modified: now,
		})
		if err != nil {
			return fmt.Errorf("zip entry %s: %w", a.SuggestedFilename, err)
		}
		if _, err := io.Copy(entry, files[i]); err != nil {
			return fmt.Errorf("zip copy %s: %w", a.SuggestedFilename, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("zip close: %w", err)
	}
	return nil
}

func attachment(filename string) string {
	if filename == "" {
		filename = "download"
	}
	if quotable(filename) {
		return `attachment; filename="` + filename + `"`
	}
	// Non-ASCII names go out in RFC 2231 form.
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": filename}); v != "" {
		return v
	}
	return `attachment; filename="download"`
}

func quotable(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < 0x20 || c >= 0x7f || c == '"' || c == '\\' {
			return false
		}
	}
	return true
}
