package tds

import (
	"encoding/binary"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/ha1tch/tdsdriver/token"
	"github.com/ha1tch/tdsdriver/wire"
)

// --- fake TDS server wire helpers ---------------------------------------

func readPacket(conn net.Conn) (wire.Header, []byte, error) {
	h, err := wire.ReadHeader(conn)
	if err != nil {
		return h, nil, err
	}
	payload := make([]byte, h.PayloadLength())
	if _, err := io.ReadFull(conn, payload); err != nil {
		return h, nil, err
	}
	return h, payload, nil
}

// readMessage reassembles packets until the EOM bit, mirroring what
// framing.Framer does on the other end of the same wire.
func readMessage(conn net.Conn) (wire.PacketType, []byte, error) {
	var pktType wire.PacketType
	var buf []byte
	for {
		h, payload, err := readPacket(conn)
		if err != nil {
			return 0, nil, err
		}
		pktType = h.Type
		buf = append(buf, payload...)
		if h.IsLastPacket() {
			break
		}
	}
	return pktType, buf, nil
}

func writeMessage(conn net.Conn, pktType wire.PacketType, payload []byte) error {
	h := wire.Header{Type: pktType, Status: wire.StatusEOM, Length: uint16(wire.HeaderSize + len(payload))}
	if err := h.Write(conn); err != nil {
		return err
	}
	_, err := conn.Write(payload)
	return err
}

// buildPreloginResponse reuses PreloginRequest.Encode as a response
// payload: request and response share the same option/offset/length
// layout (see wire/prelogin_test.go), so this is a real server's
// PRELOGIN reply in every byte that handlePreloginResponse reads.
func buildPreloginResponse(encryption uint8) []byte {
	req := wire.PreloginRequest{Version: 0x0A000000, Encryption: encryption}
	return req.Encode()
}

func buildLoginAckToken(progName string, tdsVersion, progVer uint32) []byte {
	name := wire.StringToUCS2(progName)
	body := make([]byte, 0, 1+4+1+len(name)+4)
	body = append(body, 0x74) // interface: SQL2012
	verBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(verBuf, tdsVersion)
	body = append(body, verBuf...)
	body = append(body, byte(len([]rune(progName))))
	body = append(body, name...)
	pvBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(pvBuf, progVer)
	body = append(body, pvBuf...)

	tok := make([]byte, 3)
	tok[0] = byte(token.TypeLoginAck)
	binary.LittleEndian.PutUint16(tok[1:3], uint16(len(body)))
	return append(tok, body...)
}

func buildDoneToken(tokType token.Type, status, curCmd uint16, rowCount uint64) []byte {
	buf := make([]byte, 13)
	buf[0] = byte(tokType)
	binary.LittleEndian.PutUint16(buf[1:3], status)
	binary.LittleEndian.PutUint16(buf[3:5], curCmd)
	binary.LittleEndian.PutUint64(buf[5:13], rowCount)
	return buf
}

func buildErrorToken(number int32, message string) []byte {
	msg := wire.StringToUCS2(message)
	body := make([]byte, 0, 4+1+1+2+len(msg)+1+1+4)
	numBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(numBuf, uint32(number))
	body = append(body, numBuf...)
	body = append(body, 0) // state
	body = append(body, 1) // class
	msgLenBuf := make([]byte, 2)
	binary.LittleEndian.PutUint16(msgLenBuf, uint16(len([]rune(message))))
	body = append(body, msgLenBuf...)
	body = append(body, msg...)
	body = append(body, 0) // server name length
	body = append(body, 0) // proc name length
	lineBuf := make([]byte, 4)
	body = append(body, lineBuf...)

	tok := make([]byte, 3)
	tok[0] = byte(token.TypeError)
	binary.LittleEndian.PutUint16(tok[1:3], uint16(len(body)))
	return append(tok, body...)
}

func buildColMetadataInt4(name string) []byte {
	nameBytes := wire.StringToUCS2(name)
	col := make([]byte, 0, 4+2+1+1+len(nameBytes))
	col = append(col, 0, 0, 0, 0) // UserType
	col = append(col, 0, 0)       // Flags
	col = append(col, byte(wire.TypeInt4))
	col = append(col, byte(len([]rune(name))))
	col = append(col, nameBytes...)

	buf := make([]byte, 3, 3+len(col))
	buf[0] = byte(token.TypeColMetadata)
	binary.LittleEndian.PutUint16(buf[1:3], 1) // one column
	return append(buf, col...)
}

func buildRowInt4(value int32) []byte {
	buf := make([]byte, 5)
	buf[0] = byte(token.TypeRow)
	binary.LittleEndian.PutUint32(buf[1:5], uint32(value))
	return buf
}

// --- fake server driving a real Connection through Connect ---------------

// fakeServer listens on 127.0.0.1 and hands each accepted connection to
// serve, running in its own goroutine so the test's Connect() call can
// proceed concurrently exactly as it would against a real server.
func fakeServer(t *testing.T, serve func(conn net.Conn)) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		serve(conn)
	}()
	return ln.Addr().String()
}

func testConfig(t *testing.T, addr string) Config {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split addr: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse port %q: %v", portStr, err)
	}
	return Config{
		Server:                           host,
		Port:                             port,
		UserName:                         "sa",
		Password:                         "pw",
		Database:                         "master",
		ConnectTimeout:                   2 * time.Second,
		RequestTimeout:                   2 * time.Second,
		RowCollectionOnRequestCompletion: true,
	}
}

func acceptLoginSuccess(conn net.Conn) error {
	defer conn.Close()

	if _, _, err := readMessage(conn); err != nil { // PRELOGIN
		return err
	}
	if err := writeMessage(conn, wire.PacketPrelogin, buildPreloginResponse(wire.EncryptNotSup)); err != nil {
		return err
	}
	if _, _, err := readMessage(conn); err != nil { // LOGIN7
		return err
	}

	var loginResp []byte
	loginResp = append(loginResp, buildLoginAckToken("Microsoft SQL Server", wire.VerTDS74, 0x0C000000)...)
	loginResp = append(loginResp, buildDoneToken(token.TypeDone, 0, 0, 0)...)
	if err := writeMessage(conn, wire.PacketTabularResult, loginResp); err != nil {
		return err
	}

	// Next message: the fixed initial-SQL batch the client sends itself,
	// before Connect returns. Acknowledge it with a plain terminal DONE.
	if _, _, err := readMessage(conn); err != nil {
		return err
	}
	if err := writeMessage(conn, wire.PacketTabularResult, buildDoneToken(token.TypeDone, 0, 0, 0)); err != nil {
		return err
	}

	// Next message: the SQL_BATCH from ExecSQLBatch.
	if _, _, err := readMessage(conn); err != nil {
		return err
	}
	var resultResp []byte
	resultResp = append(resultResp, buildColMetadataInt4("n")...)
	resultResp = append(resultResp, buildRowInt4(42)...)
	resultResp = append(resultResp, buildDoneToken(token.TypeDone, token.DoneCount, 0, 1)...)
	return writeMessage(conn, wire.PacketTabularResult, resultResp)
}

func TestConnectSucceedsAndRunsExecSQLBatch(t *testing.T) {
	addr := fakeServer(t, func(conn net.Conn) {
		if err := acceptLoginSuccess(conn); err != nil && err != io.EOF {
			t.Logf("fake server: %v", err)
		}
	})

	conn, err := Connect(testConfig(t, addr), nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	if conn.state != StateLoggedIn {
		t.Fatalf("state after Connect: got %v, want StateLoggedIn", conn.state)
	}

	type outcome struct {
		err      error
		rowCount int64
		rows     []token.Row
	}
	result := make(chan outcome, 1)
	conn.ExecSQLBatch("select 42 as n", func(err error, rowCount int64, rows []token.Row) {
		result <- outcome{err, rowCount, rows}
	})

	select {
	case o := <-result:
		if o.err != nil {
			t.Fatalf("ExecSQLBatch: unexpected error %v", o.err)
		}
		if o.rowCount != 1 {
			t.Errorf("rowCount: got %d, want 1", o.rowCount)
		}
		if len(o.rows) != 1 || len(o.rows[0]) != 1 || o.rows[0][0].(int64) != 42 {
			t.Errorf("rows: got %v, want one row with value 42", o.rows)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ExecSQLBatch result")
	}
}

func acceptLoginRejected(conn net.Conn) error {
	defer conn.Close()

	if _, _, err := readMessage(conn); err != nil { // PRELOGIN
		return err
	}
	if err := writeMessage(conn, wire.PacketPrelogin, buildPreloginResponse(wire.EncryptNotSup)); err != nil {
		return err
	}
	if _, _, err := readMessage(conn); err != nil { // LOGIN7
		return err
	}

	var loginResp []byte
	loginResp = append(loginResp, buildErrorToken(18456, "Login failed for user 'sa'.")...)
	loginResp = append(loginResp, buildDoneToken(token.TypeDone, 0, 0, 0)...)
	return writeMessage(conn, wire.PacketTabularResult, loginResp)
}

func TestConnectFailsOnRejectedLogin(t *testing.T) {
	addr := fakeServer(t, func(conn net.Conn) {
		if err := acceptLoginRejected(conn); err != nil && err != io.EOF {
			t.Logf("fake server: %v", err)
		}
	})

	_, err := Connect(testConfig(t, addr), nil)
	if err == nil {
		t.Fatal("expected Connect to fail when the server rejects login")
	}
}

func TestConnectFailsWhenDoneArrivesWithoutLoginAck(t *testing.T) {
	addr := fakeServer(t, func(conn net.Conn) {
		defer conn.Close()
		if _, _, err := readMessage(conn); err != nil {
			return
		}
		if err := writeMessage(conn, wire.PacketPrelogin, buildPreloginResponse(wire.EncryptNotSup)); err != nil {
			return
		}
		if _, _, err := readMessage(conn); err != nil {
			return
		}
		// No LOGINACK at all, just a terminal DONE.
		_ = writeMessage(conn, wire.PacketTabularResult, buildDoneToken(token.TypeDone, 0, 0, 0))
	})

	_, err := Connect(testConfig(t, addr), nil)
	if err == nil {
		t.Fatal("expected Connect to fail when DONE arrives with no prior LOGINACK")
	}
}

func TestCommitWithoutTransactionFailsSynchronously(t *testing.T) {
	addr := fakeServer(t, func(conn net.Conn) {
		if err := acceptLoginSuccess(conn); err != nil && err != io.EOF {
			t.Logf("fake server: %v", err)
		}
	})

	conn, err := Connect(testConfig(t, addr), nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	// Drain the one result message the fake server still sends, so its
	// goroutine doesn't block forever on a write nobody reads.
	done := make(chan error, 1)
	conn.ExecSQLBatch("select 42 as n", func(err error, rowCount int64, rows []token.Row) {
		done <- err
	})
	<-done

	errCh := make(chan error, 1)
	conn.Commit("", func(err error) { errCh <- err })

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected Commit with no open transaction to fail")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Commit callback")
	}
}
