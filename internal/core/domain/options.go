package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Params is the flat key-value form of operation parameters as received from a request.
type Params map[string]string

func (p Params) str(key string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(p[key])
}

func (p Params) intOr(op, key string, fallback int) (int, error) {
	raw := p.str(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, WrapError(ErrInvalidInput, op, fmt.Errorf("%s must be an integer, got %q", key, raw))
	}
	return n, nil
}

func (p Params) floatOr(op, key string, fallback float64) (float64, error) {
	raw := p.str(key)
	if raw == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, WrapError(ErrInvalidInput, op, fmt.Errorf("%s must be a number, got %q", key, raw))
	}
	return f, nil
}

func (p Params) boolOr(op, key string, fallback bool) (bool, error) {
	raw := p.str(key)
	if raw == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, WrapError(ErrInvalidInput, op, fmt.Errorf("%s must be a boolean, got %q", key, raw))
	}
	return b, nil
}

type SplitMode string

const (
	SplitIndividual SplitMode = "individual"
	SplitRange      SplitMode = "range"
)

type SplitOptions struct {
	Mode       SplitMode
	PageRanges string
}

func NewSplitOptions(p Params) (SplitOptions, error) {
	opts := SplitOptions{
		Mode:       SplitMode(strings.ToLower(p.str("mode"))),
		PageRanges: p.str("pageRanges"),
	}
	if opts.Mode == "" {
		opts.Mode = SplitIndividual
	}
	return opts, opts.Validate()
}

func (o SplitOptions) Validate() error {
	switch o.Mode {
	case SplitIndividual:
		return nil
	case SplitRange:
		if o.PageRanges == "" {
			return WrapError(ErrInvalidInput, "split", fmt.Errorf("pageRanges is required in range mode"))
		}
		return nil
	default:
		return WrapError(ErrInvalidInput, "split", fmt.Errorf("unknown split mode %q", o.Mode))
	}
}

type CompressOptions struct {
	Quality string
}

var compressQualities = map[string]struct{}{
	"screen":   {},
	"ebook":    {},
	"printer":  {},
	"prepress": {},
}

// NewCompressOptions never fails; unknown qualities fall back to ebook.
func NewCompressOptions(p Params) CompressOptions {
	q := strings.ToLower(p.str("quality"))
	if _, ok := compressQualities[q]; !ok {
		q = "ebook"
	}
	return CompressOptions{Quality: q}
}

type RasterizeOptions struct {
	DPI     int
	Quality int
}

func NewRasterizeOptions(p Params) (RasterizeOptions, error) {
	dpi, err := p.intOr("rasterize", "dpi", 150)
	if err != nil {
		return RasterizeOptions{}, err
	}
	quality, err := p.intOr("rasterize", "quality", 90)
	if err != nil {
		return RasterizeOptions{}, err
	}
	opts := RasterizeOptions{DPI: dpi, Quality: quality}
	return opts, opts.Validate()
}

func (o RasterizeOptions) Validate() error {
	if o.DPI < 72 || o.DPI > 600 {
		return WrapError(ErrInvalidInput, "rasterize", fmt.Errorf("dpi must be between 72 and 600, got %d", o.DPI))
	}
	if o.Quality < 1 || o.Quality > 100 {
		return WrapError(ErrInvalidInput, "rasterize", fmt.Errorf("quality must be between 1 and 100, got %d", o.Quality))
	}
	return nil
}

type ImageComposeOptions struct {
	PageSize   string
	Quality    int
	AutoRotate bool
}

var pageSizes = map[string]string{
	"letter": "Letter",
	"a4":     "A4",
	"legal":  "Legal",
}

func NewImageComposeOptions(p Params) (ImageComposeOptions, error) {
	quality, err := p.intOr("image-compose", "quality", 85)
	if err != nil {
		return ImageComposeOptions{}, err
	}
	autoRotate, err := p.boolOr("image-compose", "autoRotate", true)
	if err != nil {
		return ImageComposeOptions{}, err
	}
	size := strings.ToLower(p.str("pageSize"))
	if size == "" {
		size = "letter"
	}
	opts := ImageComposeOptions{PageSize: size, Quality: quality, AutoRotate: autoRotate}
	return opts, opts.Validate()
}

func (o ImageComposeOptions) Validate() error {
	if _, ok := pageSizes[o.PageSize]; !ok {
		return WrapError(ErrInvalidInput, "image-compose", fmt.Errorf("unsupported page size %q", o.PageSize))
	}
	if o.Quality < 1 || o.Quality > 100 {
		return WrapError(ErrInvalidInput, "image-compose", fmt.Errorf("quality must be between 1 and 100, got %d", o.Quality))
	}
	return nil
}

// PageGeometry is the page name understood by the image tool.
func (o ImageComposeOptions) PageGeometry() string {
	return pageSizes[o.PageSize]
}

type EditOperation string

const (
	EditRotate      EditOperation = "rotate"
	EditRemovePages EditOperation = "remove-pages"
	EditDecrypt     EditOperation = "decrypt"
)

type EditOptions struct {
	Operation EditOperation
	Angle     int
	Pages     string
	Password  string
}

func NewEditOptions(p Params) (EditOptions, error) {
	angle, err := p.intOr("edit", "angle", 90)
	if err != nil {
		return EditOptions{}, err
	}
	opts := EditOptions{
		Operation: EditOperation(strings.ToLower(p.str("operation"))),
		Angle:     angle,
		Pages:     p.str("pages"),
		Password:  p["password"],
	}
	if opts.Operation == "" {
		opts.Operation = EditRotate
	}
	return opts, opts.Validate()
}

func (o EditOptions) Validate() error {
	switch o.Operation {
	case EditRotate:
		switch o.Angle {
		case 90, -90, 180, 270:
			return nil
		default:
			return WrapError(ErrInvalidInput, "edit", fmt.Errorf("rotation angle must be one of 90, -90, 180, 270, got %d", o.Angle))
		}
	case EditRemovePages:
		if o.Pages == "" {
			return WrapError(ErrInvalidInput, "edit", fmt.Errorf("pages are required for remove-pages"))
		}
		return nil
	case EditDecrypt:
		if o.Password == "" {
			return WrapError(ErrInvalidInput, "edit", fmt.Errorf("password is required for decrypt"))
		}
		return nil
	default:
		return WrapError(ErrInvalidInput, "edit", fmt.Errorf("unknown edit operation %q", o.Operation))
	}
}

// RotatePages is the page selection for rotate, defaulting to every page.
func (o EditOptions) RotatePages() string {
	if o.Pages == "" {
		return "1-z"
	}
	return o.Pages
}

type OfficeTarget string

const (
	TargetPDF  OfficeTarget = "pdf"
	TargetDOCX OfficeTarget = "docx"
	TargetPPTX OfficeTarget = "pptx"
	TargetXLSX OfficeTarget = "xlsx"
)

type OfficeOptions struct {
	Target OfficeTarget
	// Source restricts which input kind is accepted when converting to PDF.
	Source FileKind
}

func (o OfficeOptions) Validate() error {
	switch o.Target {
	case TargetDOCX, TargetPPTX, TargetXLSX:
		return nil
	case TargetPDF:
		switch o.Source {
		case KindWord, KindPresentation, KindSpreadsheet, "":
			return nil
		}
		return WrapError(ErrInvalidInput, "office-convert", fmt.Errorf("cannot convert %s to pdf", o.Source))
	default:
		return WrapError(ErrInvalidInput, "office-convert", fmt.Errorf("unsupported target format %q", o.Target))
	}
}

type SignOptions struct {
	SignerName  string
	Reason      string
	Location    string
	ContactInfo string
}

func NewSignOptions(p Params) (SignOptions, error) {
	opts := SignOptions{
		SignerName:  p.str("signerName"),
		Reason:      p.str("reason"),
		Location:    p.str("location"),
		ContactInfo: p.str("contactInfo"),
	}
	if opts.SignerName == "" {
		opts.SignerName = "Document Signer"
	}
	if opts.Reason == "" {
		opts.Reason = "Document approval"
	}
	if opts.Location == "" {
		opts.Location = "Digital"
	}
	return opts, opts.Validate()
}

func (o SignOptions) Validate() error {
	for name, v := range map[string]string{"signerName": o.SignerName, "reason": o.Reason, "location": o.Location, "contactInfo": o.ContactInfo} {
		if utf8.RuneCountInString(v) > 128 {
			return WrapError(ErrInvalidInput, "sign", fmt.Errorf("%s is longer than 128 characters", name))
		}
	}
	return nil
}

type WatermarkOptions struct {
	Text     string
	Position string
	Opacity  float64
	FontSize int
	Angle    int
	Color    string
}

// WatermarkPositions maps a position name to page coordinates in points.
var WatermarkPositions = map[string][2]int{
	"center":       {300, 420},
	"top-left":     {100, 700},
	"top-right":    {400, 700},
	"bottom-left":  {100, 100},
	"bottom-right": {400, 100},
}

// WatermarkColors maps a color name to an RGB triple.
var WatermarkColors = map[string]string{
	"gray":  "0.5 0.5 0.5",
	"red":   "1 0 0",
	"blue":  "0 0 1",
	"black": "0 0 0",
}

func NewWatermarkOptions(p Params) (WatermarkOptions, error) {
	opacity, err := p.floatOr("watermark", "opacity", 0.3)
	if err != nil {
		return WatermarkOptions{}, err
	}
	fontSize, err := p.intOr("watermark", "fontSize", 48)
	if err != nil {
		return WatermarkOptions{}, err
	}
	angle, err := p.intOr("watermark", "angle", 45)
	if err != nil {
		return WatermarkOptions{}, err
	}
	opts := WatermarkOptions{
		Text:     p.str("text"),
		Position: strings.ToLower(p.str("position")),
		Opacity:  opacity,
		FontSize: fontSize,
		Angle:    angle,
		Color:    strings.ToLower(p.str("color")),
	}
	if opts.Text == "" {
		opts.Text = "CONFIDENTIAL"
	}
	if opts.Position == "" {
		opts.Position = "center"
	}
	if opts.Color == "" {
		opts.Color = "gray"
	}
	return opts, opts.Validate()
}

func (o WatermarkOptions) Validate() error {
	if !(o.Opacity >= 0.1 && o.Opacity <= 1.0) {
		return WrapError(ErrInvalidInput, "watermark", fmt.Errorf("opacity must be between 0.1 and 1.0"))
	}
	if o.FontSize < 6 || o.FontSize > 200 {
		return WrapError(ErrInvalidInput, "watermark", fmt.Errorf("fontSize must be between 6 and 200, got %d", o.FontSize))
	}
	if o.Angle < -360 || o.Angle > 360 {
		return WrapError(ErrInvalidInput, "watermark", fmt.Errorf("angle must be between -360 and 360, got %d", o.Angle))
	}
	if _, ok := WatermarkPositions[o.Position]; !ok {
		return WrapError(ErrInvalidInput, "watermark", fmt.Errorf("unknown position %q", o.Position))
	}
	if _, ok := WatermarkColors[o.Color]; !ok {
		return WrapError(ErrInvalidInput, "watermark", fmt.Errorf("unknown color %q", o.Color))
	}
	if utf8.RuneCountInString(o.Text) > 200 {
		return WrapError(ErrInvalidInput, "watermark", fmt.Errorf("text is longer than 200 characters"))
	}
	return nil
}
