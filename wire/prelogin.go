package wire

import (
	"encoding/binary"
	"fmt"
)

// TDS protocol version constants, carried in both PRELOGIN and LOGIN7.
const (
	VerTDS70     uint32 = 0x70000000
	VerTDS71     uint32 = 0x71000000
	VerTDS71Rev1 uint32 = 0x71000001
	VerTDS72     uint32 = 0x72090002
	VerTDS73A    uint32 = 0x730A0003
	VerTDS73B    uint32 = 0x730B0003
	VerTDS74     uint32 = 0x74000004
)

// VersionString returns a human-readable TDS version string.
func VersionString(ver uint32) string {
	switch ver {
	case VerTDS70:
		return "7.0"
	case VerTDS71:
		return "7.1"
	case VerTDS71Rev1:
		return "7.1 Rev 1"
	case VerTDS72:
		return "7.2"
	case VerTDS73A:
		return "7.3A"
	case VerTDS73B:
		return "7.3B"
	case VerTDS74:
		return "7.4"
	default:
		return fmt.Sprintf("unknown (0x%08X)", ver)
	}
}

// PRELOGIN option tokens.
const (
	PreloginVersion    uint8 = 0x00
	PreloginEncryption uint8 = 0x01
	PreloginInstOpt    uint8 = 0x02
	PreloginThreadID   uint8 = 0x03
	PreloginMARS       uint8 = 0x04
	PreloginTraceID    uint8 = 0x05
	PreloginFedAuth    uint8 = 0x06
	PreloginNonceOpt   uint8 = 0x07
	PreloginTerminator uint8 = 0xFF
)

// Encryption negotiation values.
const (
	EncryptOff    uint8 = 0x00
	EncryptOn     uint8 = 0x01
	EncryptNotSup uint8 = 0x02
	EncryptReq    uint8 = 0x03
)

// PreloginRequest is the client's outbound PRELOGIN payload.
type PreloginRequest struct {
	Version    uint32 // client program version, 4-byte + 2-byte subbuild packed
	SubBuild   uint16
	Encryption uint8
	Instance   string
	ThreadID   uint32
	MARS       uint8
}

// Encode builds the PRELOGIN request byte payload (option headers followed
// by option data), mirroring PreloginResponse.Encode in the teacher's
// server-side prelogin.go but for the client-sent option set (no FEDAUTH,
// no nonce — this driver does not implement federated auth).
func (r PreloginRequest) Encode() []byte {
	versionData := make([]byte, 6)
	binary.BigEndian.PutUint32(versionData[0:4], r.Version)
	binary.BigEndian.PutUint16(versionData[4:6], r.SubBuild)

	instanceData := []byte(r.Instance)
	instanceData = append(instanceData, 0)

	const numOptions = 4 // VERSION, ENCRYPTION, INSTOPT, THREADID
	headerSize := numOptions*5 + 1

	offset := uint16(headerSize)
	offsets := make([]uint16, numOptions)
	lengths := make([]uint16, numOptions)

	offsets[0] = offset
	lengths[0] = uint16(len(versionData))
	offset += lengths[0]

	offsets[1] = offset
	lengths[1] = 1
	offset += lengths[1]

	offsets[2] = offset
	lengths[2] = uint16(len(instanceData))
	offset += lengths[2]

	offsets[3] = offset
	lengths[3] = 4
	offset += lengths[3]

	buf := make([]byte, int(offset))
	pos := 0
	tokens := []uint8{PreloginVersion, PreloginEncryption, PreloginInstOpt, PreloginThreadID}
	for i, tok := range tokens {
		buf[pos] = tok
		binary.BigEndian.PutUint16(buf[pos+1:pos+3], offsets[i])
		binary.BigEndian.PutUint16(buf[pos+3:pos+5], lengths[i])
		pos += 5
	}
	buf[pos] = PreloginTerminator
	pos++

	copy(buf[pos:], versionData)
	pos += len(versionData)

	buf[pos] = r.Encryption
	pos++

	copy(buf[pos:], instanceData)
	pos += len(instanceData)

	binary.BigEndian.PutUint32(buf[pos:pos+4], r.ThreadID)

	return buf
}

// PreloginResponse is the server's reply, as decoded by the driver.
type PreloginResponse struct {
	VersionMajor    uint8
	VersionMinor    uint8
	VersionBuild    uint16
	VersionSubBuild uint16
	Encryption      uint8
	Instance        string
	ThreadID        uint32
	MARS            uint8
	FedAuth         uint8
}

type preloginOption struct {
	offset uint16
	length uint16
}

// ParsePreloginResponse decodes a server PRELOGIN response payload,
// reversing PreloginRequest.Encode's option-header/option-data layout
// (same wire shape the teacher parses client-side in ParsePrelogin).
func ParsePreloginResponse(data []byte) (*PreloginResponse, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("wire: empty prelogin response")
	}

	options := make(map[uint8]preloginOption)
	offset := 0
	for {
		if offset >= len(data) {
			return nil, fmt.Errorf("wire: prelogin response truncated reading options")
		}
		token := data[offset]
		if token == PreloginTerminator {
			break
		}
		if offset+5 > len(data) {
			return nil, fmt.Errorf("wire: prelogin option header truncated")
		}
		options[token] = preloginOption{
			offset: binary.BigEndian.Uint16(data[offset+1 : offset+3]),
			length: binary.BigEndian.Uint16(data[offset+3 : offset+5]),
		}
		offset += 5
	}

	resp := &PreloginResponse{}
	for tok, opt := range options {
		start := int(opt.offset)
		end := start + int(opt.length)
		if end > len(data) {
			return nil, fmt.Errorf("wire: prelogin option %d out of bounds", tok)
		}
		value := data[start:end]

		switch tok {
		case PreloginVersion:
			if len(value) >= 6 {
				resp.VersionMajor = value[0]
				resp.VersionMinor = value[1]
				resp.VersionBuild = binary.BigEndian.Uint16(value[2:4])
				resp.VersionSubBuild = binary.BigEndian.Uint16(value[4:6])
			}
		case PreloginEncryption:
			if len(value) >= 1 {
				resp.Encryption = value[0]
			}
		case PreloginInstOpt:
			for i, b := range value {
				if b == 0 {
					resp.Instance = string(value[:i])
					break
				}
			}
		case PreloginThreadID:
			if len(value) >= 4 {
				resp.ThreadID = binary.BigEndian.Uint32(value)
			}
		case PreloginMARS:
			if len(value) >= 1 {
				resp.MARS = value[0]
			}
		case PreloginFedAuth:
			if len(value) >= 1 {
				resp.FedAuth = value[0]
			}
		}
	}

	return resp, nil
}
