// Package wire implements the TDS packet framing and payload encoders the
// driver core drives: packet headers, PRELOGIN, LOGIN7, SQL_BATCH,
// RPC_REQUEST and TRANSACTION_MANAGER payloads, plus the column/type
// vocabulary the token reader decodes values against.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// PacketType identifies the type of TDS packet carried in a header.
type PacketType uint8

const (
	PacketSQLBatch      PacketType = 1
	PacketRPCRequest    PacketType = 3
	PacketTabularResult PacketType = 4
	PacketAttention     PacketType = 6
	PacketBulkLoad      PacketType = 7
	PacketFedAuthToken  PacketType = 8
	PacketTransMgrReq   PacketType = 14
	PacketLogin7        PacketType = 16
	PacketSSPIMessage   PacketType = 17
	PacketPrelogin      PacketType = 18
)

func (p PacketType) String() string {
	switch p {
	case PacketSQLBatch:
		return "SQL_BATCH"
	case PacketRPCRequest:
		return "RPC_REQUEST"
	case PacketTabularResult:
		return "TABULAR_RESULT"
	case PacketAttention:
		return "ATTENTION"
	case PacketBulkLoad:
		return "BULK_LOAD"
	case PacketFedAuthToken:
		return "FEDAUTH_TOKEN"
	case PacketTransMgrReq:
		return "TRANS_MGR_REQ"
	case PacketLogin7:
		return "LOGIN7"
	case PacketSSPIMessage:
		return "SSPI_MESSAGE"
	case PacketPrelogin:
		return "PRELOGIN"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(p))
	}
}

// PacketStatus are the header status bits.
type PacketStatus uint8

const (
	StatusNormal                  PacketStatus = 0x00
	StatusEOM                     PacketStatus = 0x01
	StatusIgnore                  PacketStatus = 0x02
	StatusResetConnection         PacketStatus = 0x08
	StatusResetConnectionSkipTran PacketStatus = 0x10
)

const (
	HeaderSize        = 8
	DefaultPacketSize = 4096
	MaxPacketSize     = 32767
	MinPacketSize     = 512
)

// Header is the 8-byte TDS packet header.
type Header struct {
	Type     PacketType
	Status   PacketStatus
	Length   uint16 // total packet length, header included
	SPID     uint16
	PacketID uint8
	Window   uint8
}

// ReadHeader reads a packet header from r.
func ReadHeader(r io.Reader) (Header, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Header{}, err
	}
	return Header{
		Type:     PacketType(buf[0]),
		Status:   PacketStatus(buf[1]),
		Length:   binary.BigEndian.Uint16(buf[2:4]),
		SPID:     binary.BigEndian.Uint16(buf[4:6]),
		PacketID: buf[6],
		Window:   buf[7],
	}, nil
}

// Write writes the header to w.
func (h Header) Write(w io.Writer) error {
	var buf [HeaderSize]byte
	buf[0] = byte(h.Type)
	buf[1] = byte(h.Status)
	binary.BigEndian.PutUint16(buf[2:4], h.Length)
	binary.BigEndian.PutUint16(buf[4:6], h.SPID)
	buf[6] = h.PacketID
	buf[7] = h.Window
	_, err := w.Write(buf[:])
	return err
}

// PayloadLength returns the payload length (header excluded).
func (h Header) PayloadLength() int {
	if h.Length <= HeaderSize {
		return 0
	}
	return int(h.Length) - HeaderSize
}

// IsLastPacket reports whether this packet ends a logical message.
func (h Header) IsLastPacket() bool {
	return h.Status&StatusEOM != 0
}

// IsResetConnection reports whether the reset-connection bit is set.
func (h Header) IsResetConnection() bool {
	return h.Status&(StatusResetConnection|StatusResetConnectionSkipTran) != 0
}
