package token

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ha1tch/tdsdriver/wire"
)

// tdsEpoch is the TDS DATETIME/DATETIME4 reference date (1900-01-01).
var tdsEpoch = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

// Reader decodes a byte-tagged TDS token stream and invokes one Handler
// method per token. It is fed via Consume, which may be called with
// partial message fragments; bytes that do not yet form a complete token
// are buffered until the next call, mirroring the teacher's ResultSetWriter
// per-type switch (pkg/tds/types.go) but for the read direction.
type Reader struct {
	handler Handler
	buf     []byte
	columns []wire.Column
}

// NewReader creates a token reader delivering events to h.
func NewReader(h Handler) *Reader {
	return &Reader{handler: h}
}

// Consume appends data to the pending buffer and decodes as many complete
// tokens as are available.
func (r *Reader) Consume(data []byte) {
	r.buf = append(r.buf, data...)

	for len(r.buf) > 0 {
		consumed, err := r.decodeOne(r.buf)
		if err != nil {
			r.handler.TokenStreamError(err)
			r.buf = nil
			return
		}
		if consumed == 0 {
			return // incomplete token, wait for more data
		}
		r.buf = r.buf[consumed:]
	}
}

// decodeOne attempts to decode a single token from buf. It returns
// consumed=0 when buf does not yet hold a complete token.
func (r *Reader) decodeOne(buf []byte) (int, error) {
	if len(buf) < 1 {
		return 0, nil
	}
	tok := Type(buf[0])

	switch tok {
	case TypeLoginAck:
		return r.decodeLoginAck(buf)
	case TypeError:
		return r.decodeInfoOrError(buf, true)
	case TypeInfo:
		return r.decodeInfoOrError(buf, false)
	case TypeEnvChange:
		return r.decodeEnvChange(buf)
	case TypeColMetadata:
		return r.decodeColMetadata(buf)
	case TypeOrder:
		return r.decodeOrder(buf)
	case TypeRow:
		return r.decodeRow(buf)
	case TypeNBCRow:
		return r.decodeNBCRow(buf)
	case TypeReturnStatus:
		return r.decodeReturnStatus(buf)
	case TypeReturnValue:
		return r.decodeReturnValue(buf)
	case TypeDone:
		return r.decodeDone(buf, r.handler.Done)
	case TypeDoneProc:
		return r.decodeDone(buf, r.handler.DoneProc)
	case TypeDoneInProc:
		return r.decodeDone(buf, r.handler.DoneInProc)
	case TypeFeatureExtAck, TypeSSPI, TypeFedAuthInfo:
		return r.decodeSkipLenPrefixed(buf)
	default:
		return 0, fmt.Errorf("token: unknown token type 0x%02X", buf[0])
	}
}

func u16(b []byte) uint16 { return binary.LittleEndian.Uint16(b) }
func u32(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }

// decodeSkipLenPrefixed skips a token whose body is a USHORT length prefix
// followed by that many bytes — used for token types this driver observes
// but does not act on (feature ack, SSPI, federated-auth info).
func (r *Reader) decodeSkipLenPrefixed(buf []byte) (int, error) {
	if len(buf) < 3 {
		return 0, nil
	}
	length := int(u16(buf[1:3]))
	total := 3 + length
	if len(buf) < total {
		return 0, nil
	}
	return total, nil
}

func (r *Reader) decodeLoginAck(buf []byte) (int, error) {
	if len(buf) < 3 {
		return 0, nil
	}
	length := int(u16(buf[1:3]))
	total := 3 + length
	if len(buf) < total {
		return 0, nil
	}
	body := buf[3:total]
	if len(body) < 1+4+1 {
		return 0, fmt.Errorf("token: LOGINACK truncated")
	}
	iface := LoginAckInterface(body[0])
	tdsVersion := binary.BigEndian.Uint32(body[1:5])
	nameLen := int(body[5])
	pos := 6
	if pos+nameLen*2+4 > len(body) {
		return 0, fmt.Errorf("token: LOGINACK name/version truncated")
	}
	progName := wire.UCS2ToString(body[pos : pos+nameLen*2])
	pos += nameLen * 2
	progVer := binary.BigEndian.Uint32(body[pos : pos+4])

	r.handler.LoginAck(LoginAck{
		Interface:  iface,
		TDSVersion: tdsVersion,
		ProgName:   progName,
		ProgVer:    progVer,
	})
	return total, nil
}

func (r *Reader) decodeInfoOrError(buf []byte, isError bool) (int, error) {
	if len(buf) < 3 {
		return 0, nil
	}
	length := int(u16(buf[1:3]))
	total := 3 + length
	if len(buf) < total {
		return 0, nil
	}
	body := buf[3:total]
	pos := 0
	if len(body) < 4+1+1+2 {
		return 0, fmt.Errorf("token: INFO/ERROR truncated")
	}
	number := int32(u32(body[pos:]))
	pos += 4
	state := body[pos]
	pos++
	class := body[pos]
	pos++
	msgLen := int(u16(body[pos:]))
	pos += 2
	if pos+msgLen*2 > len(body) {
		return 0, fmt.Errorf("token: INFO/ERROR message truncated")
	}
	message := wire.UCS2ToString(body[pos : pos+msgLen*2])
	pos += msgLen * 2

	if pos >= len(body) {
		return 0, fmt.Errorf("token: INFO/ERROR server name truncated")
	}
	serverLen := int(body[pos])
	pos++
	if pos+serverLen*2 > len(body) {
		return 0, fmt.Errorf("token: INFO/ERROR server name truncated")
	}
	serverName := wire.UCS2ToString(body[pos : pos+serverLen*2])
	pos += serverLen * 2

	if pos >= len(body) {
		return 0, fmt.Errorf("token: INFO/ERROR proc name truncated")
	}
	procLen := int(body[pos])
	pos++
	if pos+procLen*2 > len(body) {
		return 0, fmt.Errorf("token: INFO/ERROR proc name truncated")
	}
	procName := wire.UCS2ToString(body[pos : pos+procLen*2])
	pos += procLen * 2

	var lineNumber int32
	if pos+4 <= len(body) {
		lineNumber = int32(u32(body[pos:]))
	}

	msg := InfoMsg{
		Number:     number,
		State:      state,
		Class:      class,
		Message:    message,
		ServerName: serverName,
		ProcName:   procName,
		LineNumber: lineNumber,
	}
	if isError {
		r.handler.ErrorMessage(msg)
	} else {
		r.handler.InfoMessage(msg)
	}
	return total, nil
}

func (r *Reader) decodeEnvChange(buf []byte) (int, error) {
	if len(buf) < 3 {
		return 0, nil
	}
	length := int(u16(buf[1:3]))
	total := 3 + length
	if len(buf) < total {
		return 0, nil
	}
	body := buf[3:total]
	if len(body) < 1 {
		return 0, fmt.Errorf("token: ENVCHANGE truncated")
	}
	envType := body[0]
	pos := 1

	readStrField := func() (string, error) {
		if pos >= len(body) {
			return "", fmt.Errorf("token: ENVCHANGE field truncated")
		}
		l := int(body[pos])
		pos++
		if pos+l*2 > len(body) {
			return "", fmt.Errorf("token: ENVCHANGE field truncated")
		}
		s := wire.UCS2ToString(body[pos : pos+l*2])
		pos += l * 2
		return s, nil
	}

	switch envType {
	case EnvDatabase, EnvLanguage, EnvCharset, EnvPacketSize:
		newValue, err := readStrField()
		if err != nil {
			return 0, err
		}
		oldValue, err := readStrField()
		if err != nil {
			return 0, err
		}
		switch envType {
		case EnvDatabase:
			r.handler.DatabaseChange(newValue, oldValue)
		case EnvLanguage:
			r.handler.LanguageChange(newValue, oldValue)
		case EnvCharset:
			r.handler.CharsetChange(newValue, oldValue)
		case EnvPacketSize:
			var size int
			fmt.Sscanf(newValue, "%d", &size)
			if size > 0 {
				r.handler.PacketSizeChange(size)
			}
		}
	case EnvBeginTran, EnvCommitTran, EnvRollbackTran, EnvResetConnAck:
		if pos >= len(body) {
			return 0, fmt.Errorf("token: ENVCHANGE descriptor truncated")
		}
		newLen := int(body[pos])
		pos++
		var descriptor [8]byte
		if newLen >= 8 && pos+8 <= len(body) {
			copy(descriptor[:], body[pos:pos+8])
		}
		pos += newLen
		if pos < len(body) {
			oldLen := int(body[pos])
			pos += 1 + oldLen
		}
		switch envType {
		case EnvBeginTran:
			r.handler.BeginTransaction(descriptor)
		case EnvCommitTran:
			r.handler.CommitTransaction(descriptor)
		case EnvRollbackTran:
			r.handler.RollbackTransaction(descriptor)
		case EnvResetConnAck:
			r.handler.ResetConnection(descriptor)
		}
	default:
		// Routing, collation, mirror-partner and similar ENVCHANGEs are not
		// acted on by this driver core; the length prefix already let us
		// skip the whole token.
	}
	return total, nil
}

func (r *Reader) decodeColMetadata(buf []byte) (int, error) {
	if len(buf) < 3 {
		return 0, nil
	}
	count := u16(buf[1:3])
	pos := 3
	if count == 0xFFFF {
		r.columns = nil
		return pos, nil
	}

	columns := make([]wire.Column, 0, count)
	for i := 0; i < int(count); i++ {
		col, n, ok := parseColumn(buf[pos:])
		if !ok {
			return 0, nil
		}
		columns = append(columns, col)
		pos += n
	}
	r.columns = columns
	r.handler.ColumnMetadata(columns)
	return pos, nil
}

// parseColumn parses one COLMETADATA column entry: UserType, Flags,
// TYPE_INFO, column name. Returns ok=false if buf does not yet hold a
// complete entry.
func parseColumn(buf []byte) (wire.Column, int, bool) {
	if len(buf) < 4+2+1 {
		return wire.Column{}, 0, false
	}
	userType := u32(buf[0:4])
	flags := u16(buf[4:6])
	pos := 6

	col := wire.Column{UserType: userType, Flags: flags}
	typ := wire.SQLType(buf[pos])
	col.Type = typ
	pos++

	switch typ {
	case wire.TypeNull, wire.TypeInt1, wire.TypeBit, wire.TypeInt2, wire.TypeInt4,
		wire.TypeInt8, wire.TypeFloat4, wire.TypeFloat8, wire.TypeMoney,
		wire.TypeMoney4, wire.TypeDateTime, wire.TypeDateTime4:
		// fixed-length: no further TYPE_INFO
	case wire.TypeIntN, wire.TypeBitN, wire.TypeFloatN, wire.TypeMoneyN,
		wire.TypeDateTimeN, wire.TypeGUID:
		if len(buf) < pos+1 {
			return wire.Column{}, 0, false
		}
		col.Length = uint32(buf[pos])
		pos++
	case wire.TypeDateN:
		// no further TYPE_INFO
	case wire.TypeTimeN, wire.TypeDateTime2N, wire.TypeDateTimeOffsetN:
		if len(buf) < pos+1 {
			return wire.Column{}, 0, false
		}
		col.Scale = buf[pos]
		pos++
	case wire.TypeDecimalN, wire.TypeNumericN:
		if len(buf) < pos+3 {
			return wire.Column{}, 0, false
		}
		col.Length = uint32(buf[pos])
		col.Precision = buf[pos+1]
		col.Scale = buf[pos+2]
		pos += 3
	case wire.TypeChar, wire.TypeVarChar, wire.TypeBinary, wire.TypeVarBinary:
		if len(buf) < pos+1 {
			return wire.Column{}, 0, false
		}
		col.Length = uint32(buf[pos])
		pos++
		if typ == wire.TypeChar || typ == wire.TypeVarChar {
			if len(buf) < pos+5 {
				return wire.Column{}, 0, false
			}
			col.Collation = append([]byte(nil), buf[pos:pos+5]...)
			pos += 5
		}
	case wire.TypeBigVarChar, wire.TypeBigChar, wire.TypeBigVarBin, wire.TypeBigBinary,
		wire.TypeNVarChar, wire.TypeNChar:
		if len(buf) < pos+2 {
			return wire.Column{}, 0, false
		}
		col.Length = uint32(u16(buf[pos : pos+2]))
		pos += 2
		if typ == wire.TypeBigVarChar || typ == wire.TypeBigChar ||
			typ == wire.TypeNVarChar || typ == wire.TypeNChar {
			if len(buf) < pos+5 {
				return wire.Column{}, 0, false
			}
			col.Collation = append([]byte(nil), buf[pos:pos+5]...)
			pos += 5
		}
	case wire.TypeText, wire.TypeNText, wire.TypeImage:
		if len(buf) < pos+4 {
			return wire.Column{}, 0, false
		}
		col.Length = u32(buf[pos : pos+4])
		pos += 4
		if typ == wire.TypeText || typ == wire.TypeNText {
			if len(buf) < pos+5 {
				return wire.Column{}, 0, false
			}
			col.Collation = append([]byte(nil), buf[pos:pos+5]...)
			pos += 5
		}
		// TABLENAME parts skipped: server-assigned, not needed by this core
	default:
		// Unsupported/rare type: treat as opaque fixed-length 0; callers
		// that need it can extend parseColumn.
	}

	if len(buf) < pos+1 {
		return wire.Column{}, 0, false
	}
	nameLen := int(buf[pos])
	pos++
	if len(buf) < pos+nameLen*2 {
		return wire.Column{}, 0, false
	}
	col.Name = wire.UCS2ToString(buf[pos : pos+nameLen*2])
	pos += nameLen * 2

	return col, pos, true
}

func (r *Reader) decodeOrder(buf []byte) (int, error) {
	if len(buf) < 3 {
		return 0, nil
	}
	length := int(u16(buf[1:3]))
	total := 3 + length
	if len(buf) < total {
		return 0, nil
	}
	body := buf[3:total]
	ids := make([]uint16, 0, len(body)/2)
	for i := 0; i+2 <= len(body); i += 2 {
		ids = append(ids, u16(body[i:i+2]))
	}
	r.handler.Order(ids)
	return total, nil
}

func (r *Reader) decodeRow(buf []byte) (int, error) {
	pos := 1
	row := make(Row, len(r.columns))
	for i, col := range r.columns {
		v, n, ok, err := decodeValue(buf[pos:], col)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, nil
		}
		row[i] = v
		pos += n
	}
	r.handler.Row(row)
	return pos, nil
}

func (r *Reader) decodeNBCRow(buf []byte) (int, error) {
	pos := 1
	nullBitmapLen := (len(r.columns) + 7) / 8
	if len(buf) < pos+nullBitmapLen {
		return 0, nil
	}
	bitmap := buf[pos : pos+nullBitmapLen]
	pos += nullBitmapLen

	row := make(Row, len(r.columns))
	for i, col := range r.columns {
		isNull := bitmap[i/8]&(1<<uint(i%8)) != 0
		if isNull {
			row[i] = nil
			continue
		}
		v, n, ok, err := decodeValue(buf[pos:], col)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, nil
		}
		row[i] = v
		pos += n
	}
	r.handler.Row(row)
	return pos, nil
}

func (r *Reader) decodeReturnStatus(buf []byte) (int, error) {
	if len(buf) < 5 {
		return 0, nil
	}
	value := int32(u32(buf[1:5]))
	r.handler.ReturnStatus(value)
	return 5, nil
}

func (r *Reader) decodeReturnValue(buf []byte) (int, error) {
	if len(buf) < 3 {
		return 0, nil
	}
	length := int(u16(buf[1:3]))
	total := 3 + length
	if len(buf) < total {
		return 0, nil
	}
	body := buf[3:total]
	if len(body) < 2+1 {
		return 0, fmt.Errorf("token: RETURNVALUE truncated")
	}
	ordinal := u16(body[0:2])
	pos := 2
	nameLen := int(body[pos])
	pos++
	if pos+nameLen*2 > len(body) {
		return 0, fmt.Errorf("token: RETURNVALUE name truncated")
	}
	paramName := wire.UCS2ToString(body[pos : pos+nameLen*2])
	pos += nameLen * 2

	if pos+1+4+2 > len(body) {
		return 0, fmt.Errorf("token: RETURNVALUE status/usertype/flags truncated")
	}
	pos++ // status
	userType := u32(body[pos : pos+4])
	pos += 4
	flags := u16(body[pos : pos+2])
	pos += 2

	col, n, ok := parseTypeInfoNoName(body[pos:])
	if !ok {
		return 0, fmt.Errorf("token: RETURNVALUE TYPE_INFO truncated")
	}
	col.UserType = userType
	col.Flags = flags
	pos += n

	value, _, ok, err := decodeValue(body[pos:], col)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("token: RETURNVALUE value truncated")
	}

	r.handler.ReturnValue(ReturnValue{Ordinal: ordinal, ParamName: paramName, Column: col, Value: value})
	return total, nil
}

// parseTypeInfoNoName parses a TYPE_INFO block not followed by a column
// name field, reusing parseColumn's switch by appending a synthetic
// zero-length name.
func parseTypeInfoNoName(buf []byte) (wire.Column, int, bool) {
	padded := append(append([]byte{}, buf...), 0)
	col, n, ok := parseColumnFromTypeInfo(padded)
	return col, n, ok
}

func parseColumnFromTypeInfo(buf []byte) (wire.Column, int, bool) {
	col, n, ok := parseColumn(buf)
	if ok {
		n-- // exclude the synthetic name-length byte we appended
	}
	return col, n, ok
}

func (r *Reader) decodeDone(buf []byte, emit func(Done)) (int, error) {
	if len(buf) < 1+2+2+8 {
		return 0, nil
	}
	status := u16(buf[1:3])
	curCmd := u16(buf[3:5])
	rowCount := binary.LittleEndian.Uint64(buf[5:13])
	emit(Done{Status: status, CurCmd: curCmd, RowCount: rowCount})
	return 13, nil
}

// decodeValue decodes one column value (length/null-marker prefixed per
// its TYPE_INFO), returning ok=false if buf does not yet hold the whole
// value.
func decodeValue(buf []byte, col wire.Column) (interface{}, int, bool, error) {
	switch col.Type {
	case wire.TypeNull:
		return nil, 0, true, nil

	case wire.TypeInt1:
		if len(buf) < 1 {
			return nil, 0, false, nil
		}
		return int64(buf[0]), 1, true, nil
	case wire.TypeBit:
		if len(buf) < 1 {
			return nil, 0, false, nil
		}
		return buf[0] != 0, 1, true, nil
	case wire.TypeInt2:
		if len(buf) < 2 {
			return nil, 0, false, nil
		}
		return int64(int16(u16(buf))), 2, true, nil
	case wire.TypeInt4:
		if len(buf) < 4 {
			return nil, 0, false, nil
		}
		return int64(int32(u32(buf))), 4, true, nil
	case wire.TypeInt8:
		if len(buf) < 8 {
			return nil, 0, false, nil
		}
		return int64(binary.LittleEndian.Uint64(buf)), 8, true, nil
	case wire.TypeFloat4:
		if len(buf) < 4 {
			return nil, 0, false, nil
		}
		return float64(math.Float32frombits(u32(buf))), 4, true, nil
	case wire.TypeFloat8:
		if len(buf) < 8 {
			return nil, 0, false, nil
		}
		return math.Float64frombits(binary.LittleEndian.Uint64(buf)), 8, true, nil

	case wire.TypeIntN, wire.TypeBitN, wire.TypeFloatN, wire.TypeMoneyN, wire.TypeDateTimeN, wire.TypeGUID:
		return decodeNLenValue(buf, col)

	case wire.TypeDateN:
		if len(buf) < 1 {
			return nil, 0, false, nil
		}
		l := int(buf[0])
		if l == 0 {
			return nil, 1, true, nil
		}
		if len(buf) < 1+l {
			return nil, 0, false, nil
		}
		return decodeDate(buf[1 : 1+l]), 1 + l, true, nil

	case wire.TypeTimeN, wire.TypeDateTime2N, wire.TypeDateTimeOffsetN:
		if len(buf) < 1 {
			return nil, 0, false, nil
		}
		l := int(buf[0])
		if l == 0 {
			return nil, 1, true, nil
		}
		if len(buf) < 1+l {
			return nil, 0, false, nil
		}
		raw := append([]byte(nil), buf[1:1+l]...)
		return raw, 1 + l, true, nil

	case wire.TypeDecimalN, wire.TypeNumericN:
		if len(buf) < 1 {
			return nil, 0, false, nil
		}
		l := int(buf[0])
		if l == 0 {
			return nil, 1, true, nil
		}
		if len(buf) < 1+l {
			return nil, 0, false, nil
		}
		return decodeDecimal(buf[1:1+l], col.Scale), 1 + l, true, nil

	case wire.TypeChar, wire.TypeVarChar, wire.TypeBinary, wire.TypeVarBinary:
		if len(buf) < 1 {
			return nil, 0, false, nil
		}
		l := int(buf[0])
		if l == 0xFF {
			return nil, 1, true, nil
		}
		if len(buf) < 1+l {
			return nil, 0, false, nil
		}
		data := append([]byte(nil), buf[1:1+l]...)
		if col.Type == wire.TypeChar || col.Type == wire.TypeVarChar {
			return string(data), 1 + l, true, nil
		}
		return data, 1 + l, true, nil

	case wire.TypeBigVarChar, wire.TypeBigChar, wire.TypeBigVarBin, wire.TypeBigBinary,
		wire.TypeNVarChar, wire.TypeNChar:
		if len(buf) < 2 {
			return nil, 0, false, nil
		}
		l := int(u16(buf))
		if l == 0xFFFF {
			return nil, 2, true, nil
		}
		if len(buf) < 2+l {
			return nil, 0, false, nil
		}
		data := buf[2 : 2+l]
		switch col.Type {
		case wire.TypeBigVarBin, wire.TypeBigBinary:
			return append([]byte(nil), data...), 2 + l, true, nil
		case wire.TypeNVarChar, wire.TypeNChar:
			return wire.UCS2ToString(data), 2 + l, true, nil
		default:
			return string(data), 2 + l, true, nil
		}

	case wire.TypeText, wire.TypeNText, wire.TypeImage:
		if len(buf) < 1 {
			return nil, 0, false, nil
		}
		if buf[0] == 0 {
			return nil, 1, true, nil
		}
		// textptr len + textptr bytes + timestamp(8) + data len(4) + data
		pos := 1
		if len(buf) < pos {
			return nil, 0, false, nil
		}
		textPtrLen := int(buf[0])
		pos = 1 + textPtrLen + 8
		if len(buf) < pos+4 {
			return nil, 0, false, nil
		}
		dataLen := int(u32(buf[pos : pos+4]))
		pos += 4
		if len(buf) < pos+dataLen {
			return nil, 0, false, nil
		}
		data := buf[pos : pos+dataLen]
		if col.Type == wire.TypeNText {
			return wire.UCS2ToString(data), pos + dataLen, true, nil
		}
		return string(append([]byte(nil), data...)), pos + dataLen, true, nil

	default:
		return nil, 0, false, fmt.Errorf("token: decoding value for unsupported type %s", col.Type)
	}
}

func decodeNLenValue(buf []byte, col wire.Column) (interface{}, int, bool, error) {
	if len(buf) < 1 {
		return nil, 0, false, nil
	}
	l := int(buf[0])
	if l == 0 {
		return nil, 1, true, nil
	}
	if len(buf) < 1+l {
		return nil, 0, false, nil
	}
	body := buf[1 : 1+l]
	pos := 1 + l

	switch col.Type {
	case wire.TypeIntN:
		switch l {
		case 1:
			return int64(body[0]), pos, true, nil
		case 2:
			return int64(int16(u16(body))), pos, true, nil
		case 4:
			return int64(int32(u32(body))), pos, true, nil
		case 8:
			return int64(binary.LittleEndian.Uint64(body)), pos, true, nil
		}
	case wire.TypeBitN:
		return body[0] != 0, pos, true, nil
	case wire.TypeFloatN:
		switch l {
		case 4:
			return float64(math.Float32frombits(u32(body))), pos, true, nil
		case 8:
			return math.Float64frombits(binary.LittleEndian.Uint64(body)), pos, true, nil
		}
	case wire.TypeMoneyN:
		switch l {
		case 4:
			return float64(int32(u32(body))) / 10000.0, pos, true, nil
		case 8:
			hi := int32(u32(body[0:4]))
			lo := u32(body[4:8])
			v := (int64(hi) << 32) | int64(lo)
			return float64(v) / 10000.0, pos, true, nil
		}
	case wire.TypeDateTimeN:
		switch l {
		case 4:
			days := int16(u16(body[0:2]))
			mins := u16(body[2:4])
			return decodeSmallDateTime(days, mins), pos, true, nil
		case 8:
			days := int32(u32(body[0:4]))
			ticks := u32(body[4:8])
			return decodeDateTime(days, ticks), pos, true, nil
		}
	case wire.TypeGUID:
		return append([]byte(nil), body...), pos, true, nil
	}
	return append([]byte(nil), body...), pos, true, nil
}

// dateEpoch is TDS DATEN's reference date (0001-01-01).
var dateEpoch = time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC)

func decodeDate(body []byte) time.Time {
	if len(body) < 3 {
		return time.Time{}
	}
	days := uint32(body[0]) | uint32(body[1])<<8 | uint32(body[2])<<16
	return dateEpoch.AddDate(0, 0, int(days))
}

func decodeSmallDateTime(days int16, minutes uint16) time.Time {
	return tdsEpoch.AddDate(0, 0, int(days)).Add(time.Duration(minutes) * time.Minute)
}

func decodeDateTime(days int32, ticks uint32) time.Time {
	// ticks are 1/300th of a second.
	nanos := (time.Duration(ticks) * time.Second) / 300
	return tdsEpoch.AddDate(0, 0, int(days)).Add(nanos)
}

func decodeDecimal(body []byte, scale uint8) decimal.Decimal {
	if len(body) < 1 {
		return decimal.Zero
	}
	sign := body[0]
	var val uint64
	for i := len(body) - 1; i >= 1; i-- {
		val = val<<8 | uint64(body[i])
	}
	d := decimal.New(int64(val), -int32(scale))
	if sign == 0 {
		d = d.Neg()
	}
	return d
}
