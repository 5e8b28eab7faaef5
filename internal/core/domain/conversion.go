package domain

import (
	"path"
	"strings"
	"time"
	"unicode"
)

type Operation string

const (
	OpMerge         Operation = "merge"
	OpSplit         Operation = "split"
	OpCompress      Operation = "compress"
	OpRasterize     Operation = "rasterize"
	OpImageCompose  Operation = "image-compose"
	OpOfficeConvert Operation = "office-convert"
	OpEdit          Operation = "edit"
	OpSign          Operation = "sign"
	OpWatermark     Operation = "watermark"
	OpTextRender    Operation = "text-render"
)

// Stage is a step of the conversion state machine.
type Stage string

const (
	StageValidating      Stage = "validating"
	StageBuildingCommand Stage = "building_command"
	StageExecuting       Stage = "executing"
	StageLocatingOutput  Stage = "locating_output"
	StageVerifying       Stage = "verifying"
	StageDone            Stage = "done"
	StageFailed          Stage = "failed"
)

type FileKind string

const (
	KindPDF          FileKind = "pdf"
	KindImage        FileKind = "image"
	KindWord         FileKind = "word"
	KindPresentation FileKind = "presentation"
	KindSpreadsheet  FileKind = "spreadsheet"
	KindText         FileKind = "text"
)

type ScratchKind string

const (
	ScratchUpload ScratchKind = "upload"
	ScratchOutput ScratchKind = "output"
	// ScratchWork holds per-invocation tool state such as office profiles.
	ScratchWork ScratchKind = "work"
)

// UploadedFile is a received file already stored in the uploads directory.
type UploadedFile struct {
	Path              string `json:"-"`
	OriginalName      string `json:"original_name"`
	SizeBytes         int64  `json:"size_bytes"`
	DeclaredExtension string `json:"declared_extension"`
}

// Stem is the original name without directory and extension.
func (f UploadedFile) Stem() string {
	// Backslashes count as separators too; archive tools on Windows honour them.
	base := path.Base(strings.ReplaceAll(f.OriginalName, `\`, "/"))
	stem := strings.TrimSuffix(base, path.Ext(base))
	stem = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return '_'
		}
		return r
	}, stem)
	if stem == "" || stem == "." || stem == ".." || stem == "/" {
		return "document"
	}
	return stem
}

// OutputArtifact is only built after the file was seen on disk with a non-zero size.
type OutputArtifact struct {
	Path              string `json:"-"`
	SuggestedFilename string `json:"filename"`
	MimeType          string `json:"mime_type"`
	SizeBytes         int64  `json:"size_bytes"`
	Page              int    `json:"page,omitempty"`
}

type ConversionResult struct {
	JobID     string            `json:"job_id"`
	Operation Operation         `json:"operation"`
	Inputs    []UploadedFile    `json:"-"`
	Artifacts []OutputArtifact  `json:"artifacts"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Duration  time.Duration     `json:"-"`
}

// Paths lists every file the result still owns on disk.
func (r *ConversionResult) Paths() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.Inputs)+len(r.Artifacts))
	for _, in := range r.Inputs {
		out = append(out, in.Path)
	}
	for _, a := range r.Artifacts {
		out = append(out, a.Path)
	}
	return out
}

const (
	MimePDF  = "application/pdf"
	MimeJPEG = "image/jpeg"
	MimePNG  = "image/png"
	MimeWEBP = "image/webp"
	MimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimePPTX = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	MimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MimeZIP  = "application/zip"
	MimeText = "text/plain"
)

func MimeForExtension(ext string) string {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "pdf":
		return MimePDF
	case "jpg", "jpeg":
		return MimeJPEG
	case "png":
		return MimePNG
	case "webp":
		return MimeWEBP
	case "docx":
		return MimeDOCX
	case "pptx":
		return MimePPTX
	case "xlsx":
		return MimeXLSX
	case "zip":
		return MimeZIP
	case "txt":
		return MimeText
	default:
		return "application/octet-stream"
	}
}

// KindForExtension is the content kind a declared extension promises.
func KindForExtension(ext string) FileKind {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "pdf":
		return KindPDF
	case "jpg", "jpeg", "png", "webp":
		return KindImage
	case "docx", "doc", "odt", "rtf":
		return KindWord
	case "pptx", "ppt", "odp":
		return KindPresentation
	case "xlsx", "xls", "ods":
		return KindSpreadsheet
	case "txt", "csv", "md":
		return KindText
	default:
		return ""
	}
}
