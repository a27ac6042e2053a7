package token

import "github.com/ha1tch/tdsdriver/wire"

// InfoMsg carries an INFO or ERROR token's fields (same wire shape).
type InfoMsg struct {
	Number     int32
	State      uint8
	Class      uint8
	Message    string
	ServerName string
	ProcName   string
	LineNumber int32
}

// LoginAck carries a LOGINACK token's fields.
type LoginAck struct {
	Interface  LoginAckInterface
	TDSVersion uint32
	ProgName   string
	ProgVer    uint32
}

// Done carries a DONE/DONEPROC/DONEINPROC token's fields.
type Done struct {
	Status   uint16
	CurCmd   uint16
	RowCount uint64
}

// Attention reports whether the DONE carries the attention-ack bit.
func (d Done) Attention() bool { return d.Status&DoneAttn != 0 }

// More reports whether further result sets follow.
func (d Done) More() bool { return d.Status&DoneMore != 0 }

// HasError reports whether the DONE carries the error bit.
func (d Done) HasError() bool { return d.Status&(DoneError|DoneSrvError) != 0 }

// HasCount reports whether RowCount is meaningful.
func (d Done) HasCount() bool { return d.Status&DoneCount != 0 }

// ReturnValue carries a RETURNVALUE token (procedure output parameter).
type ReturnValue struct {
	Ordinal   uint16
	ParamName string
	Column    wire.Column
	Value     interface{}
}

// Row is one decoded row: one value per column of the active COLMETADATA.
type Row []interface{}

// Handler receives one call per decoded token. The Connection is the sole
// implementation; it is the only mutator of connection/request state, per
// the single-writer concurrency model this parser is embedded in.
type Handler interface {
	InfoMessage(InfoMsg)
	DatabaseChange(newValue, oldValue string)
	LanguageChange(newValue, oldValue string)
	CharsetChange(newValue, oldValue string)
	ErrorMessage(InfoMsg)
	LoginAck(LoginAck)
	PacketSizeChange(newSize int)
	BeginTransaction(descriptor [8]byte)
	CommitTransaction(descriptor [8]byte)
	RollbackTransaction(descriptor [8]byte)
	ColumnMetadata(columns []wire.Column)
	Order(columnIDs []uint16)
	Row(Row)
	ReturnStatus(value int32)
	ReturnValue(ReturnValue)
	DoneProc(Done)
	DoneInProc(Done)
	Done(Done)
	ResetConnection(descriptor [8]byte)
	TokenStreamError(err error)
}
