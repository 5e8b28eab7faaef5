package pdfinfo

import (
	"fmt"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PropertyWriter adds custom entries to a PDF's document information dictionary.
type PropertyWriter struct {
	conf *model.Configuration
}

func NewPropertyWriter() *PropertyWriter {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &PropertyWriter{conf: conf}
}

// WriteProperties rewrites path in place. Empty values are skipped.
func (w *PropertyWriter) WriteProperties(path string, props map[string]string) error {
	filtered := make(map[string]string, len(props))
	for k, v := range props {
		if k != "" && v != "" {
			filtered[k] = v
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	if err := pdfapi.AddPropertiesFile(path, "", filtered, w.conf); err != nil {
		return fmt.Errorf("add pdf properties: %w", err)
	}
	return nil
}
