package wire

import "encoding/binary"

// LOGIN7 option flag bits, reused verbatim from the wire layout the teacher
// parses server-side in pkg/tds/login.go (ParseLogin7) — this driver
// writes the same fields in the client-to-server direction.
const (
	FlagByteOrder uint8 = 0x01
	FlagChar      uint8 = 0x02
	FlagFloat     uint8 = 0x0C
	FlagDumpLoad  uint8 = 0x10
	FlagUseDB     uint8 = 0x20
	FlagDatabase  uint8 = 0x40
	FlagSetLang   uint8 = 0x80

	FlagODBC        uint8 = 0x02
	FlagIntSecurity uint8 = 0x80

	FlagReadOnlyIntent uint8 = 0x20
)

// Login7HeaderSize is the fixed portion length of a LOGIN7 packet.
const Login7HeaderSize = 94

// Login7Request holds everything needed to build a client LOGIN7 payload.
type Login7Request struct {
	TDSVersion    uint32
	PacketSize    uint32
	ClientProgVer uint32
	ClientPID     uint32
	ClientLCID    uint32

	HostName   string
	UserName   string
	Password   string
	AppName    string
	ServerName string
	CtlIntName string
	Language   string
	Database   string

	ReadOnlyIntent bool
}

// Encode builds the full LOGIN7 payload: fixed 94-byte header followed by
// the UCS-2 variable-length string block, in the exact offset/length
// layout ParseLogin7 expects (grounded on pkg/tds/login.go, reversed for
// the client-encode direction).
func (r Login7Request) Encode() []byte {
	type field struct {
		data []byte
	}
	hostName := StringToUCS2(r.HostName)
	userName := StringToUCS2(r.UserName)
	password := ManglePassword(r.Password)
	appName := StringToUCS2(r.AppName)
	serverName := StringToUCS2(r.ServerName)
	ctlIntName := StringToUCS2(r.CtlIntName)
	language := StringToUCS2(r.Language)
	database := StringToUCS2(r.Database)

	fields := []field{
		{hostName}, {userName}, {password}, {appName},
		{serverName}, {}, /* extension offset placeholder, unused */
		{ctlIntName}, {language}, {database},
	}

	varDataLen := 0
	for _, f := range fields {
		varDataLen += len(f.data)
	}

	totalLen := Login7HeaderSize + varDataLen
	buf := make([]byte, totalLen)

	binary.LittleEndian.PutUint32(buf[0:4], uint32(totalLen))
	binary.LittleEndian.PutUint32(buf[4:8], r.TDSVersion)
	binary.LittleEndian.PutUint32(buf[8:12], r.PacketSize)
	binary.LittleEndian.PutUint32(buf[12:16], r.ClientProgVer)
	binary.LittleEndian.PutUint32(buf[16:20], r.ClientPID)
	binary.LittleEndian.PutUint32(buf[20:24], 0) // ConnectionID, server-assigned only on reconnect

	optionFlags1 := FlagByteOrder | FlagChar | FlagFloat | FlagDumpLoad | FlagUseDB | FlagSetLang
	if r.Database != "" {
		optionFlags1 |= FlagDatabase
	}
	buf[24] = optionFlags1
	buf[25] = FlagODBC
	typeFlags := uint8(0)
	if r.ReadOnlyIntent {
		typeFlags |= FlagReadOnlyIntent
	}
	buf[26] = typeFlags
	buf[27] = 0 // OptionFlags3

	binary.LittleEndian.PutUint32(buf[28:32], 0) // ClientTimeZone
	binary.LittleEndian.PutUint32(buf[32:36], r.ClientLCID)

	pos := Login7HeaderSize
	offset := uint16(Login7HeaderSize)

	writeField := func(headerOffset int, data []byte, charCount int) {
		binary.LittleEndian.PutUint16(buf[headerOffset:headerOffset+2], offset)
		binary.LittleEndian.PutUint16(buf[headerOffset+2:headerOffset+4], uint16(charCount))
		copy(buf[pos:], data)
		pos += len(data)
		offset += uint16(len(data))
	}

	writeField(36, hostName, len(r.HostName))
	writeField(40, userName, len(r.UserName))
	writeField(44, password, len(r.Password))
	writeField(48, appName, len(r.AppName))
	writeField(52, serverName, len(r.ServerName))
	// ExtensionOffset/Length (56:60) left zero: no feature extensions sent.
	writeField(60, ctlIntName, len(r.CtlIntName))
	writeField(64, language, len(r.Language))
	writeField(68, database, len(r.Database))

	// ClientID (72:78) left zero — no MAC address reported.
	// SSPI (78:82), AtchDBFile (82:86), ChangePassword (86:90) left zero:
	// integrated auth and attach-db-filename are not implemented.
	binary.LittleEndian.PutUint32(buf[90:94], 0) // SSPILongLength

	return buf
}
