package httpadapter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/kirillkom/pdf-converter/internal/core/domain"
)

const (
	maxFieldBytes   = 64 << 10
	formOverheadCap = 1 << 20
)

type upload struct {
	files  []domain.UploadedFile
	params domain.Params
}

// readUpload streams every file part of a multipart body into the uploads
// directory. Files already received are discarded when anything fails.
func (rt *Router) readUpload(w http.ResponseWriter, r *http.Request, spec route) (upload, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		return upload{}, domain.WrapError(domain.ErrInvalidInput, "read upload", errors.New("multipart/form-data body is required"))
	}

	limit := int64(spec.maxFiles)*rt.cfg.MaxFileSize + formOverheadCap
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	reader, err := r.MultipartReader()
	if err != nil {
		return upload{}, domain.WrapError(domain.ErrInvalidInput, "read upload", err)
	}

	up := upload{params: domain.Params{}}
	fail := func(err error) (upload, error) {
		rt.uploads.Discard(context.WithoutCancel(r.Context()), up.files)
		return upload{}, err
	}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fail(bodyError(err))
		}

		if part.FileName() == "" {
			value, err := io.ReadAll(io.LimitReader(part, maxFieldBytes+1))
			_ = part.Close()
			if err != nil {
				return fail(bodyError(err))
			}
			if len(value) > maxFieldBytes {
				return fail(domain.WrapError(domain.ErrInvalidInput, "read upload", fmt.Errorf("field %q is too long", part.FormName())))
			}
			up.params[part.FormName()] = string(value)
			continue
		}

		if part.FormName() != spec.field {
			_ = part.Close()
			return fail(domain.WrapError(domain.ErrInvalidInput, "read upload", fmt.Errorf("unexpected file field %q, expected %q", part.FormName(), spec.field)))
		}
		if len(up.files) >= spec.maxFiles {
			_ = part.Close()
			return fail(domain.WrapError(domain.ErrInvalidInput, "read upload", errors.New("too many files uploaded")))
		}
		name := filepath.Base(part.FileName())
		if ext := filepath.Ext(name); !rt.cfg.AllowsExtension(ext) {
			_ = part.Close()
			return fail(domain.WrapError(domain.ErrInvalidInput, "read upload", fmt.Errorf("file type %q is not allowed", ext)))
		}

		file, err := rt.uploads.Receive(r.Context(), name, part)
		_ = part.Close()
		if err != nil {
			return fail(bodyError(err))
		}
		up.files = append(up.files, file)
	}

	if len(up.files) < spec.minFiles {
		return fail(domain.WrapError(domain.ErrInvalidInput, "read upload", errors.New(spec.missingMessage())))
	}
	return up, nil
}
