package refcode

import (
	"regexp"
	"strings"
	"testing"
)

func TestNewShape(t *testing.T) {
	re := regexp.MustCompile(`^DN-[A-HJ-NP-Z2-9]{8}$`)
	for i := 0; i < 1000; i++ {
		code := New()
		if !re.MatchString(code) {
			t.Fatalf("unexpected code shape: %q", code)
		}
		for _, c := range "0O1I" {
			if strings.ContainsRune(code[3:], c) {
				t.Fatalf("ambiguous character %q in %q", c, code)
			}
		}
	}
}

func TestNewVaries(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		seen[New()] = true
	}
	// Not a uniqueness guarantee, just a sanity check on the entropy source.
	if len(seen) < 190 {
		t.Fatalf("suspiciously many duplicate codes: %d unique of 200", len(seen))
	}
}
