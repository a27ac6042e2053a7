package wire

// SQLBatchPayload builds the SQL_BATCH message body: an ALL_HEADERS block
// carrying the transaction descriptor and outstanding request count,
// followed by the UCS-2 encoded batch text. Grounded on the ALL_HEADERS
// skip logic read server-side in tds/rpc.go's ParseRPCRequest, reused here
// to construct rather than skip that block.
func SQLBatchPayload(txnDescriptor [8]byte, sql string) []byte {
	headers := allHeaders(txnDescriptor)
	text := StringToUCS2(sql)
	buf := make([]byte, 0, len(headers)+len(text))
	buf = append(buf, headers...)
	buf = append(buf, text...)
	return buf
}

// allHeaders builds the TDS 7.2+ ALL_HEADERS block: a 4-byte total length,
// then one transaction-descriptor header (4-byte length, 2-byte type 0x0002,
// 8-byte descriptor, 4-byte outstanding-request count).
func allHeaders(txnDescriptor [8]byte) []byte {
	const headerType = uint16(2) // transaction descriptor header
	headerLen := uint32(4 + 2 + 8 + 4)
	totalLen := uint32(4) + headerLen

	buf := make([]byte, totalLen)
	putU32(buf[0:4], totalLen)
	putU32(buf[4:8], headerLen)
	putU16(buf[8:10], headerType)
	copy(buf[10:18], txnDescriptor[:])
	putU32(buf[18:22], 1) // outstanding request count, always 1: no multiplexing
	return buf
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func putU16(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}
