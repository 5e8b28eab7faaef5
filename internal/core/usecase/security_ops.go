package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/pdf-converter/internal/core/domain"
)

// SignatureKind marks signed outputs as carrying metadata only. No signature
// dictionary is attached, so PDF readers will not report a verified signature.
const SignatureKind = "metadata-only"

// Sign generates a throwaway self-signed certificate, rewrites the PDF and
// records the signer details and certificate fingerprint in its document
// information. Key, certificate and PKCS#12 bundle never outlive the call.
func (uc *ConversionUseCase) Sign(ctx context.Context, input domain.UploadedFile, opts domain.SignOptions) (*domain.ConversionResult, error) {
	inputs := []domain.UploadedFile{input}
	return uc.run(ctx, domain.OpSign, inputs, func(ctx context.Context, p *pipeline) ([]domain.OutputArtifact, error) {
		if err := opts.Validate(); err != nil {
			return nil, err
		}
		if _, err := p.requireKind(inputs, domain.KindPDF); err != nil {
			return nil, err
		}

		keyPath := p.workPath("signer_key.pem")
		certPath := p.workPath("signer_cert.pem")
		bundlePath := p.workPath("signer.p12")

		req, err := p.command(domain.ToolOpenSSL).
			flag("req", "-x509", "-newkey", "rsa:2048", "-keyout").path(keyPath).
			flag("-out").path(certPath).
			flag("-days", "365", "-nodes", "-subj").
			value("/CN=" + escapeSubjectValue(opts.SignerName) + "/O=PDFConverter/C=US").
			build()
		if err != nil {
			return nil, err
		}
		if _, err := p.exec(ctx, req, uc.timeouts.OpenSSL); err != nil {
			return nil, fmt.Errorf("generate certificate: %w", err)
		}

		fp, err := p.command(domain.ToolOpenSSL).
			flag("x509", "-noout", "-fingerprint", "-sha256", "-in").path(certPath).
			build()
		if err != nil {
			return nil, err
		}
		fpRes, err := p.exec(ctx, fp, uc.timeouts.OpenSSL)
		if err != nil {
			return nil, fmt.Errorf("read certificate fingerprint: %w", err)
		}
		fingerprint := parseFingerprint(fpRes.Stdout)

		bundle, err := p.command(domain.ToolOpenSSL).
			flag("pkcs12", "-export", "-out").path(bundlePath).
			flag("-inkey").path(keyPath).
			flag("-in").path(certPath).
			flag("-passout", "pass:").
			build()
		if err != nil {
			return nil, err
		}
		if _, err := p.exec(ctx, bundle, uc.timeouts.OpenSSL); err != nil {
			return nil, fmt.Errorf("create certificate bundle: %w", err)
		}

		suggested := input.Stem() + "_signed.pdf"
		out := p.outputPath(suggested)
		rewrite, err := p.command(domain.ToolQPDF).
			flag("--compress-streams=y", "--object-streams=generate").
			path(input.Path, out).
			build()
		if err != nil {
			return nil, err
		}
		if _, err := p.exec(ctx, rewrite, uc.timeouts.Sign); err != nil {
			return nil, err
		}
		if err := p.locate(out); err != nil {
			return nil, err
		}

		signedAt := uc.now().UTC().Format(time.RFC3339)
		props := map[string]string{
			"SignedBy":               opts.SignerName,
			"SignatureReason":        opts.Reason,
			"SignatureLocation":      opts.Location,
			"SignedAt":               signedAt,
			"SignatureKind":          SignatureKind,
			"CertificateFingerprint": fingerprint,
		}
		if opts.ContactInfo != "" {
			props["SignerContact"] = opts.ContactInfo
		}
		embedded := false
		if uc.props != nil {
			if err := uc.props.WriteProperties(out, props); err != nil {
				slog.Warn("signature_properties_failed", "job_id", p.jobID, "error", err)
			} else {
				embedded = true
			}
		}

		artifact, err := p.verify(out, suggested, 0)
		if err != nil {
			return nil, err
		}

		p.setMeta("signature_kind", SignatureKind)
		p.setMeta("signer_name", opts.SignerName)
		p.setMeta("reason", opts.Reason)
		p.setMeta("location", opts.Location)
		p.setMeta("signed_at", signedAt)
		p.setMeta("properties_embedded", strconv.FormatBool(embedded))
		if fingerprint != "" {
			p.setMeta("certificate_sha256", fingerprint)
		}
		return []domain.OutputArtifact{artifact}, nil
	})
}

// escapeSubjectValue escapes the characters openssl treats as separators in
// a -subj distinguished name.
func escapeSubjectValue(v string) string {
	var b strings.Builder
	for _, r := range v {
		switch r {
		case '\\', '/', '=', '+', ',':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// parseFingerprint reads "sha256 Fingerprint=AB:CD:..." in either case.
func parseFingerprint(out string) string {
	line := strings.TrimSpace(out)
	if i := strings.IndexByte(line, '='); i >= 0 && strings.Contains(strings.ToLower(line[:i]), "fingerprint") {
		return strings.TrimSpace(line[i+1:])
	}
	return ""
}

// Watermark stamps text on every page. The PostScript descriptor installs an
// EndPage procedure, so it must come before the PDF on the command line.
func (uc *ConversionUseCase) Watermark(ctx context.Context, input domain.UploadedFile, opts domain.WatermarkOptions) (*domain.ConversionResult, error) {
	inputs := []domain.UploadedFile{input}
	return uc.run(ctx, domain.OpWatermark, inputs, func(ctx context.Context, p *pipeline) ([]domain.OutputArtifact, error) {
		if err := opts.Validate(); err != nil {
			return nil, err
		}
		if _, err := p.requireKind(inputs, domain.KindPDF); err != nil {
			return nil, err
		}
		if _, err := uc.escaper.Quote(opts.Text); err != nil {
			return nil, p.invalid("watermark text: %v", err)
		}

		p.enter(domain.StageBuildingCommand)
		descriptor := p.workPath("watermark.ps")
		if err := os.WriteFile(descriptor, []byte(watermarkPostScript(opts)), 0o600); err != nil {
			return nil, fmt.Errorf("%s: write descriptor: %w", p.op, err)
		}

		suggested := input.Stem() + "_watermarked.pdf"
		out := p.outputPath(suggested)
		cmd, err := p.command(domain.ToolGhostscript).
			flag("-dBATCH", "-dNOPAUSE", "-dQUIET", "-dALLOWPSTRANSPARENCY", "-sDEVICE=pdfwrite",
				"-dPDFSETTINGS=/prepress", "-sOutputFile="+out).
			path(descriptor, input.Path).
			build()
		if err != nil {
			return nil, err
		}
		if _, err := p.exec(ctx, cmd, uc.timeouts.Watermark); err != nil {
			return nil, err
		}
		p.setMeta("text", opts.Text)
		p.setMeta("position", opts.Position)
		return p.finalize(out, suggested)
	})
}

func watermarkPostScript(o domain.WatermarkOptions) string {
	pos := domain.WatermarkPositions[o.Position]
	opacity := strconv.FormatFloat(o.Opacity, 'f', -1, 64)

	var b strings.Builder
	b.WriteString("%!PS\n")
	b.WriteString("<< /EndPage {\n")
	b.WriteString("  exch pop 2 ne {\n")
	b.WriteString("    gsave\n")
	fmt.Fprintf(&b, "    %d %d translate\n", pos[0], pos[1])
	fmt.Fprintf(&b, "    %d rotate\n", o.Angle)
	fmt.Fprintf(&b, "    %s setrgbcolor\n", domain.WatermarkColors[o.Color])
	fmt.Fprintf(&b, "    /.setfillconstantalpha where { pop %[1]s .setfillconstantalpha } { /.setopacityalpha where { pop %[1]s .setopacityalpha } if } ifelse\n", opacity)
	fmt.Fprintf(&b, "    /Helvetica-Bold findfont %d scalefont setfont\n", o.FontSize)
	fmt.Fprintf(&b, "    (%s) dup stringwidth pop 2 div neg 0 moveto show\n", postScriptString(o.Text))
	b.WriteString("    grestore\n")
	b.WriteString("    true\n")
	b.WriteString("  } { false } ifelse\n")
	b.WriteString("} bind >> setpagedevice\n")
	return b.String()
}

// postScriptString escapes text for a (...) literal. Bytes outside printable
// ASCII are written as octal escapes.
func postScriptString(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' || c == '(' || c == ')':
			b.WriteByte('\\')
			b.WriteByte(c)
		case c < 0x20 || c > 0x7e:
			fmt.Fprintf(&b, "\\%03o", c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
