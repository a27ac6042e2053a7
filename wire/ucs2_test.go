package wire_test

import (
	"testing"

	"github.com/ha1tch/tdsdriver/wire"
)

func TestUCS2RoundTrip(t *testing.T) {
	cases := []string{
		"",
		"sa",
		"hello world",
		"sérveur", // non-ASCII, exercises the 2-byte-per-rune path
	}
	for _, s := range cases {
		encoded := wire.StringToUCS2(s)
		if len(encoded)%2 != 0 {
			t.Fatalf("StringToUCS2(%q): odd byte length %d", s, len(encoded))
		}
		got := wire.UCS2ToString(encoded)
		if got != s {
			t.Errorf("round trip: got %q, want %q", got, s)
		}
	}
}

func TestManglePasswordRoundTrip(t *testing.T) {
	cases := []string{"", "p@ssw0rd!", "sérveur-secret"}
	for _, pw := range cases {
		mangled := wire.ManglePassword(pw)
		demangled := wire.DemanglePassword(mangled)
		if demangled != pw {
			t.Errorf("mangle round trip: got %q, want %q", demangled, pw)
		}
	}
}

func TestManglePasswordChangesBytes(t *testing.T) {
	pw := "secret"
	plain := wire.StringToUCS2(pw)
	mangled := wire.ManglePassword(pw)
	if len(mangled) != len(plain) {
		t.Fatalf("mangled length %d, want %d", len(mangled), len(plain))
	}
	same := true
	for i := range plain {
		if plain[i] != mangled[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("ManglePassword did not alter the UCS-2 bytes")
	}
}
