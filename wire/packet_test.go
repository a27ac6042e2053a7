package wire_test

import (
	"bytes"
	"testing"

	"github.com/ha1tch/tdsdriver/wire"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := wire.Header{
		Type:     wire.PacketSQLBatch,
		Status:   wire.StatusEOM,
		Length:   wire.HeaderSize + 10,
		SPID:     42,
		PacketID: 3,
		Window:   0,
	}

	var buf bytes.Buffer
	if err := h.Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if buf.Len() != wire.HeaderSize {
		t.Fatalf("expected %d bytes, got %d", wire.HeaderSize, buf.Len())
	}

	got, err := wire.ReadHeader(&buf)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if got != h {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, h)
	}
}

func TestHeaderPayloadLength(t *testing.T) {
	h := wire.Header{Length: wire.HeaderSize + 100}
	if got := h.PayloadLength(); got != 100 {
		t.Fatalf("PayloadLength: got %d, want 100", got)
	}

	zero := wire.Header{Length: wire.HeaderSize}
	if got := zero.PayloadLength(); got != 0 {
		t.Fatalf("PayloadLength of empty packet: got %d, want 0", got)
	}
}

func TestHeaderIsLastPacket(t *testing.T) {
	last := wire.Header{Status: wire.StatusEOM}
	if !last.IsLastPacket() {
		t.Fatal("expected StatusEOM to be the last packet")
	}
	mid := wire.Header{Status: wire.StatusNormal}
	if mid.IsLastPacket() {
		t.Fatal("expected StatusNormal to not be the last packet")
	}
}

func TestHeaderIsResetConnection(t *testing.T) {
	cases := []struct {
		status wire.PacketStatus
		want   bool
	}{
		{wire.StatusNormal, false},
		{wire.StatusResetConnection, true},
		{wire.StatusResetConnectionSkipTran, true},
		{wire.StatusEOM | wire.StatusResetConnection, true},
	}
	for _, c := range cases {
		h := wire.Header{Status: c.status}
		if got := h.IsResetConnection(); got != c.want {
			t.Errorf("status %v: got %v, want %v", c.status, got, c.want)
		}
	}
}

func TestPacketTypeString(t *testing.T) {
	if wire.PacketSQLBatch.String() != "SQL_BATCH" {
		t.Fatalf("unexpected String(): %s", wire.PacketSQLBatch.String())
	}
	if got := wire.PacketType(0xEE).String(); got == "" {
		t.Fatalf("unknown packet type rendered empty string")
	}
}
