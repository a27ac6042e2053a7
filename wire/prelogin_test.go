package wire_test

import (
	"testing"

	"github.com/ha1tch/tdsdriver/wire"
)

func TestPreloginRequestEncodeParsesBack(t *testing.T) {
	req := wire.PreloginRequest{
		Version:    0x01000000,
		SubBuild:   0,
		Encryption: wire.EncryptOn,
		Instance:   "MSSQLSERVER",
		ThreadID:   1234,
	}
	encoded := req.Encode()
	if len(encoded) == 0 {
		t.Fatal("Encode produced no bytes")
	}

	// PreloginRequest.Encode and ParsePreloginResponse share the same
	// token/offset/length option layout, so a request payload parses
	// back cleanly even though the two sides populate different fields.
	resp, err := wire.ParsePreloginResponse(encoded)
	if err != nil {
		t.Fatalf("ParsePreloginResponse: %v", err)
	}
	if resp.Encryption != wire.EncryptOn {
		t.Errorf("Encryption: got %d, want %d", resp.Encryption, wire.EncryptOn)
	}
	if resp.Instance != "MSSQLSERVER" {
		t.Errorf("Instance: got %q, want %q", resp.Instance, "MSSQLSERVER")
	}
	if resp.ThreadID != 1234 {
		t.Errorf("ThreadID: got %d, want %d", resp.ThreadID, 1234)
	}
}

func TestPreloginRequestEncodeEmptyInstance(t *testing.T) {
	req := wire.PreloginRequest{Version: 0x01000000, Encryption: wire.EncryptNotSup}
	encoded := req.Encode()
	resp, err := wire.ParsePreloginResponse(encoded)
	if err != nil {
		t.Fatalf("ParsePreloginResponse: %v", err)
	}
	if resp.Instance != "" {
		t.Errorf("Instance: got %q, want empty", resp.Instance)
	}
	if resp.Encryption != wire.EncryptNotSup {
		t.Errorf("Encryption: got %d, want %d", resp.Encryption, wire.EncryptNotSup)
	}
}

func TestParsePreloginResponseEmptyInput(t *testing.T) {
	if _, err := wire.ParsePreloginResponse(nil); err == nil {
		t.Fatal("expected an error for empty input")
	}
}

func TestParsePreloginResponseTruncatedHeader(t *testing.T) {
	// A single option token byte with no offset/length, and no terminator.
	if _, err := wire.ParsePreloginResponse([]byte{wire.PreloginVersion}); err == nil {
		t.Fatal("expected an error for a truncated option header")
	}
}

func TestVersionString(t *testing.T) {
	if got := wire.VersionString(wire.VerTDS74); got != "7.4" {
		t.Errorf("VersionString(VerTDS74): got %q, want %q", got, "7.4")
	}
	if got := wire.VersionString(0xDEADBEEF); got == "" {
		t.Error("VersionString of an unknown version returned an empty string")
	}
}
