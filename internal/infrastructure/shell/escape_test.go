package shell

import (
	"errors"
	"os/exec"
	"testing"
)

var hostileValues = []string{
	"plain",
	"with space",
	"semi;colon",
	"pipe|pipe",
	"amp&amp",
	"$HOME",
	"`id`",
	"$(id)",
	`double"quote`,
	"single'quote",
	"''",
	"new\nline",
	"tab\there",
	"glob*?[a]",
	"~user",
	"#comment",
	"back\\slash",
	"-rf /",
	"unicode ✓ текст",
	"",
}

func TestQuoteRoundTripsThroughShell(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	esc := NewEscaper()
	for _, value := range hostileValues {
		quoted, err := esc.Quote(value)
		if err != nil {
			t.Fatalf("Quote(%q) error = %v", value, err)
		}
		out, err := exec.Command(sh, "-c", "printf '%s|' "+quoted).Output()
		if err != nil {
			t.Fatalf("sh -c for %q: %v", value, err)
		}
		if got := string(out); got != value+"|" {
			t.Fatalf("round trip mismatch: want %q, got %q (token %s)", value+"|", got, quoted)
		}
	}
}

func TestQuoteProducesSingleArgument(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	esc := NewEscaper()
	for _, value := range hostileValues {
		quoted, err := esc.Quote(value)
		if err != nil {
			t.Fatalf("Quote(%q) error = %v", value, err)
		}
		out, err := exec.Command(sh, "-c", "set -- "+quoted+"; printf %s $#").Output()
		if err != nil {
			t.Fatalf("sh -c for %q: %v", value, err)
		}
		if string(out) != "1" {
			t.Fatalf("expected one argument for %q, got %s", value, out)
		}
	}
}

func TestQuoteRejectsNUL(t *testing.T) {
	_, err := NewEscaper().Quote("a\x00b")
	if !errors.Is(err, ErrNULByte) {
		t.Fatalf("expected ErrNULByte, got %v", err)
	}
}

func TestQuoteRejectsInvalidUTF8(t *testing.T) {
	_, err := NewEscaper().Quote(string([]byte{0xff, 0xfe}))
	if !errors.Is(err, ErrInvalidUTF8) {
		t.Fatalf("expected ErrInvalidUTF8, got %v", err)
	}
}

func TestJoinStopsOnRejectedValue(t *testing.T) {
	if _, err := NewEscaper().Join("ok", "bad\x00"); err == nil {
		t.Fatalf("expected error")
	}
	line, err := NewEscaper().Join("a b", "c")
	if err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	if line != "'a b' c" {
		t.Fatalf("unexpected join result %q", line)
	}
}
