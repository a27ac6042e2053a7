package wire

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// System stored procedure IDs, reused from tds/rpc.go's ProcID* constants
// (decode side); this driver only needs the subset used by Prepare/
// Execute/Unprepare/ad-hoc-exec wrappers.
const (
	ProcIDExecuteSQL uint16 = 10
	ProcIDPrepare    uint16 = 11
	ProcIDExecute    uint16 = 12
	ProcIDPrepExec   uint16 = 13
	ProcIDUnprepare  uint16 = 15
)

// RPC option flags (RPC_REQUEST OptionFlags).
const (
	RPCOptionWithRecomp  uint16 = 0x0001
	RPCOptionNoMetaData  uint16 = 0x0002
	RPCOptionReuseCursor uint16 = 0x0004
)

// Parameter status flags.
const (
	ParamByRefValue   uint8 = 0x01
	ParamDefaultValue uint8 = 0x02
	ParamEncrypted    uint8 = 0x08
)

// RPCParam is one input or output parameter of an RPC request.
type RPCParam struct {
	Name     string
	Output   bool
	Type     SQLType
	Length   uint32 // declared max length for variable-length types
	Scale    uint8  // for decimal/numeric
	Value    interface{}
}

// RPCRequest describes a client-issued RPC_REQUEST, addressed either by
// system procedure ID (ProcID != 0) or by name.
type RPCRequest struct {
	ProcID   uint16
	ProcName string
	Options  uint16
	Params   []RPCParam
}

// Encode builds the RPC_REQUEST payload: ALL_HEADERS, procedure name/ID,
// option flags, then each parameter's name/status/TYPE_INFO/value —
// the same layout ParseRPCRequest decodes server-side, written instead of
// read.
func (req RPCRequest) Encode(txnDescriptor [8]byte) ([]byte, error) {
	buf := allHeaders(txnDescriptor)

	if req.ProcID != 0 {
		buf = appendU16(buf, 0xFFFF)
		buf = appendU16(buf, req.ProcID)
	} else {
		nameBytes := StringToUCS2(req.ProcName)
		buf = appendU16(buf, uint16(len(req.ProcName)))
		buf = append(buf, nameBytes...)
	}

	buf = appendU16(buf, req.Options)

	for _, p := range req.Params {
		encoded, err := encodeRPCParam(p)
		if err != nil {
			return nil, fmt.Errorf("wire: encoding parameter %q: %w", p.Name, err)
		}
		buf = append(buf, encoded...)
	}

	return buf, nil
}

func encodeRPCParam(p RPCParam) ([]byte, error) {
	var buf []byte

	name := p.Name
	if name != "" {
		name = "@" + name
	}
	nameBytes := StringToUCS2(name)
	buf = append(buf, byte(len([]rune(name))))
	buf = append(buf, nameBytes...)

	status := uint8(0)
	if p.Output {
		status |= ParamByRefValue
	}
	buf = append(buf, status)

	typeInfo, err := encodeParamTypeInfo(p)
	if err != nil {
		return nil, err
	}
	buf = append(buf, typeInfo...)

	value, err := encodeParamValue(p)
	if err != nil {
		return nil, err
	}
	buf = append(buf, value...)

	return buf, nil
}

// encodeParamTypeInfo writes the TYPE_INFO byte sequence for a parameter,
// choosing a wire type from the Go value when p.Type is zero.
func encodeParamTypeInfo(p RPCParam) ([]byte, error) {
	t := p.Type
	if t == 0 {
		t = inferSQLType(p.Value)
	}

	switch t {
	case TypeNull:
		return []byte{byte(TypeNull)}, nil
	case TypeInt1, TypeInt2, TypeInt4, TypeInt8:
		return typeInfoIntN(intNFor(t))
	case TypeIntN:
		return typeInfoIntN(8)
	case TypeFloat4, TypeFloat8, TypeFloatN:
		size := byte(8)
		if t == TypeFloat4 {
			size = 4
		}
		return []byte{byte(TypeFloatN), size}, nil
	case TypeBit:
		return []byte{byte(TypeBitN), 1}, nil
	case TypeNVarChar:
		length := p.Length
		if length == 0 {
			length = 4000
		}
		buf := []byte{byte(TypeNVarChar)}
		buf = appendU16(buf, uint16(length*2))
		buf = append(buf, DefaultCollation...)
		return buf, nil
	case TypeBigVarBin:
		length := p.Length
		if length == 0 {
			length = 8000
		}
		buf := []byte{byte(TypeBigVarBin)}
		buf = appendU16(buf, uint16(length))
		return buf, nil
	case TypeDecimalN, TypeNumericN:
		buf := []byte{byte(TypeDecimalN), 38, 38, p.Scale}
		return buf, nil
	default:
		return nil, fmt.Errorf("unsupported parameter type %s", t)
	}
}

func intNFor(t SQLType) byte {
	switch t {
	case TypeInt1:
		return 1
	case TypeInt2:
		return 2
	case TypeInt4:
		return 4
	case TypeInt8:
		return 8
	}
	return 8
}

func typeInfoIntN(size byte) ([]byte, error) {
	return []byte{byte(TypeIntN), size}, nil
}

func inferSQLType(v interface{}) SQLType {
	switch v.(type) {
	case nil:
		return TypeNull
	case bool:
		return TypeBit
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return TypeIntN
	case float32, float64:
		return TypeFloatN
	case string:
		return TypeNVarChar
	case []byte:
		return TypeBigVarBin
	case decimal.Decimal:
		return TypeDecimalN
	default:
		return TypeNVarChar
	}
}

func encodeParamValue(p RPCParam) ([]byte, error) {
	t := p.Type
	if t == 0 {
		t = inferSQLType(p.Value)
	}

	if p.Value == nil {
		return encodeNullValue(t, p.Scale)
	}

	switch t {
	case TypeNull:
		return nil, nil
	case TypeBit, TypeBitN:
		v, err := toBool(p.Value)
		if err != nil {
			return nil, err
		}
		b := byte(0)
		if v {
			b = 1
		}
		return []byte{1, b}, nil
	case TypeInt1, TypeInt2, TypeInt4, TypeInt8, TypeIntN:
		v, err := toInt64(p.Value)
		if err != nil {
			return nil, err
		}
		size := intNFor(t)
		if t == TypeIntN {
			size = 8
		}
		buf := make([]byte, 1+int(size))
		buf[0] = size
		switch size {
		case 1:
			buf[1] = byte(v)
		case 2:
			binary.LittleEndian.PutUint16(buf[1:], uint16(v))
		case 4:
			binary.LittleEndian.PutUint32(buf[1:], uint32(v))
		case 8:
			binary.LittleEndian.PutUint64(buf[1:], uint64(v))
		}
		return buf, nil
	case TypeFloat4, TypeFloat8, TypeFloatN:
		v, err := toFloat64(p.Value)
		if err != nil {
			return nil, err
		}
		size := byte(8)
		if t == TypeFloat4 {
			size = 4
		}
		buf := make([]byte, 1+int(size))
		buf[0] = size
		if size == 4 {
			binary.LittleEndian.PutUint32(buf[1:], math.Float32bits(float32(v)))
		} else {
			binary.LittleEndian.PutUint64(buf[1:], math.Float64bits(v))
		}
		return buf, nil
	case TypeNVarChar, TypeNChar:
		s, err := toStringVal(p.Value)
		if err != nil {
			return nil, err
		}
		data := StringToUCS2(s)
		buf := make([]byte, 2, 2+len(data))
		binary.LittleEndian.PutUint16(buf, uint16(len(data)))
		return append(buf, data...), nil
	case TypeBigVarBin, TypeVarBinary:
		data, err := toBytesVal(p.Value)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, 2, 2+len(data))
		binary.LittleEndian.PutUint16(buf, uint16(len(data)))
		return append(buf, data...), nil
	case TypeDecimalN, TypeNumericN:
		return encodeDecimalValue(p.Value, p.Scale)
	default:
		return nil, fmt.Errorf("unsupported parameter value type %s", t)
	}
}

func encodeNullValue(t SQLType, scale uint8) ([]byte, error) {
	switch t {
	case TypeNull:
		return nil, nil
	case TypeBit, TypeBitN:
		return []byte{0}, nil
	case TypeInt1, TypeInt2, TypeInt4, TypeInt8, TypeIntN:
		return []byte{0}, nil
	case TypeFloat4, TypeFloat8, TypeFloatN:
		return []byte{0}, nil
	case TypeNVarChar, TypeNChar:
		return []byte{0xFF, 0xFF}, nil
	case TypeBigVarBin, TypeVarBinary:
		return []byte{0xFF, 0xFF}, nil
	case TypeDecimalN, TypeNumericN:
		return []byte{0}, nil
	default:
		return []byte{0}, nil
	}
}

// encodeDecimalValue writes a DECIMALN/NUMERICN value, following the same
// sign-byte + little-endian-magnitude layout the teacher writes in
// tds/token.go's writeDecimalValue, driven from a shopspring/decimal value
// shifted to an integer coefficient at the column's scale.
func encodeDecimalValue(v interface{}, scale uint8) ([]byte, error) {
	d, ok := v.(decimal.Decimal)
	if !ok {
		s, err := toStringVal(v)
		if err != nil {
			return nil, fmt.Errorf("value is not a decimal.Decimal: %v", v)
		}
		parsed, err := decimal.NewFromString(s)
		if err != nil {
			return nil, err
		}
		d = parsed
	}

	negative := d.Sign() < 0
	scaled := d.Abs().Shift(int32(scale)).Truncate(0)
	val := scaled.BigInt().Uint64()

	byteLen := byte(5)
	switch {
	case val > 0xFFFFFFFF:
		byteLen = 9
	}

	buf := make([]byte, 0, 1+int(byteLen))
	buf = append(buf, byteLen)
	if negative {
		buf = append(buf, 0)
	} else {
		buf = append(buf, 1)
	}
	for i := byte(0); i < byteLen-1; i++ {
		buf = append(buf, byte(val))
		val >>= 8
	}
	return buf, nil
}

func toBool(v interface{}) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case int:
		return x != 0, nil
	default:
		return false, fmt.Errorf("cannot convert %T to bool", v)
	}
}

func toInt64(v interface{}) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint:
		return int64(x), nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		return int64(x), nil
	default:
		return 0, fmt.Errorf("cannot convert %T to int64", v)
	}
}

func toFloat64(v interface{}) (float64, error) {
	switch x := v.(type) {
	case float32:
		return float64(x), nil
	case float64:
		return x, nil
	default:
		n, err := toInt64(v)
		if err != nil {
			return 0, fmt.Errorf("cannot convert %T to float64", v)
		}
		return float64(n), nil
	}
}

func toStringVal(v interface{}) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("cannot convert %T to string", v)
	}
	return s, nil
}

func toBytesVal(v interface{}) ([]byte, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("cannot convert %T to []byte", v)
	}
	return b, nil
}
