package domain

const (
	ToolQPDF        = "qpdf"
	ToolGhostscript = "ghostscript"
	ToolLibreOffice = "libreoffice"
	ToolPoppler     = "poppler"
	ToolImageMagick = "imagemagick"
	ToolTesseract   = "tesseract"
	ToolOpenSSL     = "openssl"
)

// ToolPath is a configured external executable. Available is decided once at startup.
type ToolPath struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	VersionFlag string `json:"-"`
	Available   bool   `json:"available"`
}
