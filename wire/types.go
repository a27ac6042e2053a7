package wire

import "fmt"

// SQLType is the SQL Server wire type tag used in TYPE_INFO and token
// streams, reused byte-for-byte from pkg/tds/types.go.
type SQLType uint8

const (
	TypeNull      SQLType = 0x1F
	TypeInt1      SQLType = 0x30
	TypeBit       SQLType = 0x32
	TypeInt2      SQLType = 0x34
	TypeInt4      SQLType = 0x38
	TypeDateTime4 SQLType = 0x3A
	TypeFloat4    SQLType = 0x3B
	TypeMoney     SQLType = 0x3C
	TypeDateTime  SQLType = 0x3D
	TypeFloat8    SQLType = 0x3E
	TypeMoney4    SQLType = 0x7A
	TypeInt8      SQLType = 0x7F

	TypeGUID            SQLType = 0x24
	TypeIntN            SQLType = 0x26
	TypeDecimal         SQLType = 0x37
	TypeNumeric         SQLType = 0x3F
	TypeBitN            SQLType = 0x68
	TypeDecimalN        SQLType = 0x6A
	TypeNumericN        SQLType = 0x6C
	TypeFloatN          SQLType = 0x6D
	TypeMoneyN          SQLType = 0x6E
	TypeDateTimeN       SQLType = 0x6F
	TypeDateN           SQLType = 0x28
	TypeTimeN           SQLType = 0x29
	TypeDateTime2N      SQLType = 0x2A
	TypeDateTimeOffsetN SQLType = 0x2B

	TypeChar      SQLType = 0x2F
	TypeVarChar   SQLType = 0x27
	TypeBinary    SQLType = 0x2D
	TypeVarBinary SQLType = 0x25

	TypeBigVarBin  SQLType = 0xA5
	TypeBigVarChar SQLType = 0xA7
	TypeBigBinary  SQLType = 0xAD
	TypeBigChar    SQLType = 0xAF
	TypeNVarChar   SQLType = 0xE7
	TypeNChar      SQLType = 0xEF
	TypeXML        SQLType = 0xF1
	TypeUDT        SQLType = 0xF0

	TypeText      SQLType = 0x23
	TypeImage     SQLType = 0x22
	TypeNText     SQLType = 0x63
	TypeSSVariant SQLType = 0x62
)

func (t SQLType) String() string {
	switch t {
	case TypeNull:
		return "NULL"
	case TypeInt1:
		return "TINYINT"
	case TypeBit, TypeBitN:
		return "BIT"
	case TypeInt2:
		return "SMALLINT"
	case TypeInt4:
		return "INT"
	case TypeInt8:
		return "BIGINT"
	case TypeIntN:
		return "INTN"
	case TypeFloat4:
		return "REAL"
	case TypeFloat8, TypeFloatN:
		return "FLOAT"
	case TypeDateTime, TypeDateTimeN:
		return "DATETIME"
	case TypeDateTime4:
		return "SMALLDATETIME"
	case TypeMoney, TypeMoneyN:
		return "MONEY"
	case TypeMoney4:
		return "SMALLMONEY"
	case TypeGUID:
		return "UNIQUEIDENTIFIER"
	case TypeDateN:
		return "DATE"
	case TypeTimeN:
		return "TIME"
	case TypeDateTime2N:
		return "DATETIME2"
	case TypeDateTimeOffsetN:
		return "DATETIMEOFFSET"
	case TypeDecimalN, TypeNumericN, TypeDecimal, TypeNumeric:
		return "DECIMAL"
	case TypeChar, TypeBigChar:
		return "CHAR"
	case TypeVarChar, TypeBigVarChar:
		return "VARCHAR"
	case TypeBinary, TypeBigBinary:
		return "BINARY"
	case TypeVarBinary, TypeBigVarBin:
		return "VARBINARY"
	case TypeNVarChar:
		return "NVARCHAR"
	case TypeNChar:
		return "NCHAR"
	case TypeText:
		return "TEXT"
	case TypeNText:
		return "NTEXT"
	case TypeXML:
		return "XML"
	default:
		return fmt.Sprintf("TYPE(0x%02X)", uint8(t))
	}
}

// FixedLength reports whether t has no TYPE_INFO beyond the type byte.
func (t SQLType) FixedLength() bool {
	switch t {
	case TypeInt1, TypeBit, TypeInt2, TypeInt4, TypeInt8,
		TypeFloat4, TypeFloat8, TypeMoney, TypeMoney4,
		TypeDateTime, TypeDateTime4, TypeNull:
		return true
	}
	return false
}

// Column flag bits (COLMETADATA Flags field).
const (
	ColFlagNullable        uint16 = 0x0001
	ColFlagCaseSen         uint16 = 0x0002
	ColFlagUpdateable      uint16 = 0x0008
	ColFlagIdentity        uint16 = 0x0010
	ColFlagComputed        uint16 = 0x0020
	ColFlagFixedLenCLR     uint16 = 0x0100
	ColFlagSparseColumn    uint16 = 0x0400
	ColFlagEncrypted       uint16 = 0x0800
	ColFlagHidden          uint16 = 0x2000
	ColFlagKey             uint16 = 0x4000
	ColFlagNullableUnknown uint16 = 0x8000
)

// Column describes one column from a COLMETADATA/RETURNVALUE TYPE_INFO.
type Column struct {
	Name      string
	Type      SQLType
	Length    uint32
	Precision uint8
	Scale     uint8
	Collation []byte
	Flags     uint16
	UserType  uint32
}

// Nullable reports whether the column's flags mark it nullable.
func (c Column) Nullable() bool {
	return c.Flags&ColFlagNullable != 0
}

// DefaultCollation is SQL_Latin1_General_CP1_CI_AS, used when a server
// does not report column collation explicitly.
var DefaultCollation = []byte{0x09, 0x04, 0xD0, 0x00, 0x34}
