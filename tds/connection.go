package tds

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ha1tch/tdsdriver/framing"
	"github.com/ha1tch/tdsdriver/tdserrors"
	"github.com/ha1tch/tdsdriver/tdslog"
	"github.com/ha1tch/tdsdriver/token"
	"github.com/ha1tch/tdsdriver/wire"
)

// Connection is a single logical task over one TDS socket: a single
// goroutine (run) owns every field below and is the only mutator of FSM
// state, matching the cooperative-scheduling model the framing and
// token-reader layers are built to feed. Every public method that can be
// called from another goroutine posts a closure onto commands instead of
// touching a field directly — the same shape the teacher's
// protocol/tds/connection.go gives its per-connection state machine, but
// built on channels/closures instead of the source protocol's explicit
// handler dispatch loop.
type Connection struct {
	cfg     Config
	handler EventHandler

	logConn *tdslog.CategoryLogger
	logProto *tdslog.CategoryLogger
	logTxn  *tdslog.CategoryLogger

	rawConn  net.Conn
	framer   *framing.Framer
	tokenRdr *token.Reader

	state   state
	request *Request
	txns    *txnStack

	loggedIn         bool
	loginErr         error
	negotiatedVer    uint32
	packetSize       int
	procReturnStatus *int32
	msgBuf           []byte

	commands      chan func(*Connection)
	connectResult chan error
	connectTimer  *time.Timer
	timeoutCh     chan struct{}

	requestTimer     *time.Timer
	requestTimeoutCh chan struct{}
	cancelTimer      *time.Timer
	cancelTimeoutCh  chan struct{}

	closeOnce sync.Once
	closedCh  chan struct{}
}

// Connect dials server, runs PRELOGIN/LOGIN7 to completion (including an
// optional TLS upgrade) and returns once the FSM reaches LoggedIn or the
// attempt fails — the same outcome handler.OnConnect reports, so callers
// that don't need the event stream can ignore handler entirely.
func Connect(cfg Config, handler EventHandler) (*Connection, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if handler == nil {
		handler = NopEventHandler{}
	}

	port := cfg.Port
	if cfg.InstanceName != "" {
		resolved, err := cfg.InstanceLookup.Resolve(context.Background(), cfg.Server, cfg.InstanceName)
		if err != nil {
			return nil, tdserrors.WrapConnectionError(err, tdserrors.EInstLookup, fmt.Sprintf("resolving instance %q", cfg.InstanceName))
		}
		port = resolved
	}

	addr := net.JoinHostPort(cfg.Server, strconv.Itoa(port))
	rawConn, err := net.DialTimeout("tcp", addr, cfg.ConnectTimeout)
	if err != nil {
		return nil, tdserrors.WrapConnectionError(err, tdserrors.ESocket, "dialing "+addr)
	}

	c := &Connection{
		cfg:           cfg,
		handler:       handler,
		logConn:       cfg.Logger.Connection(),
		logProto:      cfg.Logger.Protocol(),
		logTxn:        cfg.Logger.Transaction(),
		rawConn:       rawConn,
		state:         StateConnecting,
		txns:          newTxnStack(),
		packetSize:    cfg.PacketSize,
		commands:         make(chan func(*Connection), 16),
		connectResult:    make(chan error, 1),
		timeoutCh:        make(chan struct{}, 1),
		requestTimeoutCh: make(chan struct{}, 1),
		cancelTimeoutCh:  make(chan struct{}, 1),
		closedCh:         make(chan struct{}),
	}
	c.tokenRdr = token.NewReader(c)
	c.framer = framing.NewFramer(rawConn, cfg.PacketSize)
	c.connectTimer = time.AfterFunc(cfg.ConnectTimeout, func() {
		select {
		case c.timeoutCh <- struct{}{}:
		default:
		}
	})

	go c.run()

	if err := <-c.connectResult; err != nil {
		return nil, err
	}
	return c, nil
}

// post sends cmd to the run goroutine for execution, or drops it silently
// if the connection has already reached Final — commands never block a
// caller past closedCh closing.
func (c *Connection) post(cmd func(*Connection)) {
	select {
	case c.commands <- cmd:
	case <-c.closedCh:
	}
}

// run is the connection's single logical task: it owns state, request,
// txns and every other field on Connection, selecting over the framer's
// event channel, posted commands, and the connect timer until the FSM
// reaches Final.
func (c *Connection) run() {
	defer c.cleanup()
	c.beginConnect()
	for c.state != StateFinal {
		select {
		case ev, ok := <-c.framer.Events():
			if !ok {
				return
			}
			c.handleFramerEvent(ev)
		case cmd := <-c.commands:
			cmd(c)
		case <-c.timeoutCh:
			c.onConnectTimeout()
		case <-c.requestTimeoutCh:
			c.onRequestTimeout()
		case <-c.cancelTimeoutCh:
			c.onCancelTimeout()
		}
	}
}

func (c *Connection) cleanup() {
	c.connectTimer.Stop()
	c.stopRequestTimer()
	c.stopCancelTimer()
	c.framer.Close()
	c.closeOnce.Do(func() { close(c.closedCh) })
}

func (c *Connection) stopRequestTimer() {
	if c.requestTimer != nil {
		c.requestTimer.Stop()
		c.requestTimer = nil
	}
}

func (c *Connection) stopCancelTimer() {
	if c.cancelTimer != nil {
		c.cancelTimer.Stop()
		c.cancelTimer = nil
	}
}

// sendAttention sends ATTENTION for the active request and arms the
// cancel-ack timer: a server that never acknowledges the attention within
// CancelTimeout is treated as a fatal protocol stall.
func (c *Connection) sendAttention() error {
	if err := c.framer.SendMessage(wire.PacketAttention, nil); err != nil {
		return err
	}
	c.state = StateSentAttention
	if c.cfg.CancelTimeout > 0 {
		c.cancelTimer = time.AfterFunc(c.cfg.CancelTimeout, func() {
			select {
			case c.cancelTimeoutCh <- struct{}{}:
			default:
			}
		})
	}
	return nil
}

// onRequestTimeout fires RequestTimeout after a request was sent with no
// terminal DONE yet; it cancels the request rather than failing it
// outright, mirroring how Cancel behaves.
func (c *Connection) onRequestTimeout() {
	if c.request == nil || c.state != StateSentClientRequest {
		return
	}
	if err := c.sendAttention(); err != nil {
		c.fatal(tdserrors.WrapConnectionError(err, tdserrors.ESocket, "sending ATTENTION after request timeout"))
		return
	}
	c.request.setError(tdserrors.NewRequestError(tdserrors.ETimeout, "request timed out"))
}

// onCancelTimeout fires when a sent ATTENTION goes unacknowledged past
// CancelTimeout — per I1 this closes the whole connection, since the
// server's token stream is no longer trustworthy.
func (c *Connection) onCancelTimeout() {
	c.fatal(tdserrors.NewConnectionError(tdserrors.ETimeout, "attention not acknowledged within cancel timeout"))
}

// beginConnect sends the client's PRELOGIN packet, the first message of
// every TDS session.
func (c *Connection) beginConnect() {
	c.logConn.Debug("sending prelogin", "server", c.cfg.Server)
	req := wire.PreloginRequest{
		Version:  0x01000000,
		ThreadID: uint32(os.Getpid()),
	}
	if c.cfg.Encrypt {
		req.Encryption = wire.EncryptOn
	} else {
		req.Encryption = wire.EncryptNotSup
	}
	if err := c.framer.SendMessage(wire.PacketPrelogin, req.Encode()); err != nil {
		c.failConnect(tdserrors.WrapConnectionError(err, tdserrors.ESocket, "sending PRELOGIN"))
		return
	}
	c.state = StateSentPrelogin
}

func (c *Connection) handleFramerEvent(ev framing.Event) {
	switch ev.Type {
	case framing.EventData:
		c.onData(ev.Payload)
	case framing.EventMessage:
		c.onMessage(ev.Payload)
	case framing.EventTLSReady:
		c.onTLSReady()
	case framing.EventSocketError:
		c.onSocketError(ev.Err)
	}
}

// onData handles a non-final packet's payload. Every state but the two
// PRELOGIN states feeds the token reader directly — it buffers across
// calls internally, so there is nothing extra to accumulate here.
func (c *Connection) onData(payload []byte) {
	switch c.state {
	case StateSentPrelogin, StateSentTLSSSLNegotiation:
		c.msgBuf = append(c.msgBuf, payload...)
	default:
		c.tokenRdr.Consume(payload)
	}
}

// onMessage handles the final packet of a message. Payload is only that
// last chunk; msgBuf (PRELOGIN states only) already holds everything
// before it.
func (c *Connection) onMessage(payload []byte) {
	switch c.state {
	case StateSentPrelogin, StateSentTLSSSLNegotiation:
		c.msgBuf = append(c.msgBuf, payload...)
		data := c.msgBuf
		c.msgBuf = nil
		c.handlePreloginResponse(data)
	default:
		c.tokenRdr.Consume(payload)
	}
}

// handlePreloginResponse decides, from the server's PRELOGIN reply,
// whether to negotiate TLS before LOGIN7 or send LOGIN7 in plaintext.
// ResolvePrelogin is called exactly once here, on both branches, per its
// contract.
func (c *Connection) handlePreloginResponse(data []byte) {
	resp, err := wire.ParsePreloginResponse(data)
	if err != nil {
		c.failConnect(tdserrors.WrapConnectionError(err, tdserrors.ELogin, "parsing PRELOGIN response"))
		return
	}
	c.logConn.Debug("prelogin response",
		"serverVersion", fmt.Sprintf("%d.%d.%d", resp.VersionMajor, resp.VersionMinor, resp.VersionBuild),
		"encryption", resp.Encryption)

	login7Payload := c.buildLogin7()
	startTLS := c.cfg.Encrypt || resp.Encryption == wire.EncryptOn || resp.Encryption == wire.EncryptReq

	if startTLS {
		c.state = StateSentTLSSSLNegotiation
		tlsCfg := c.cfg.TLSConfig
		if tlsCfg == nil {
			tlsCfg = &tls.Config{}
		}
		c.framer.ResolvePrelogin(true, tlsCfg, login7Payload)
		return
	}

	c.framer.ResolvePrelogin(false, nil, nil)
	if err := c.framer.SendMessage(wire.PacketLogin7, login7Payload); err != nil {
		c.failConnect(tdserrors.WrapConnectionError(err, tdserrors.ESocket, "sending LOGIN7"))
		return
	}
	c.state = StateSentLogin7WithStandardLogin
}

func (c *Connection) buildLogin7() []byte {
	hostname, _ := os.Hostname()
	req := wire.Login7Request{
		TDSVersion:    c.cfg.TDSVersion,
		PacketSize:    uint32(c.cfg.PacketSize),
		ClientProgVer: 0x07000000,
		ClientPID:     uint32(os.Getpid()),
		ClientLCID:    0x00000409, // en-US
		HostName:      hostname,
		UserName:      c.cfg.UserName,
		Password:      c.cfg.Password,
		AppName:       c.cfg.AppName,
		ServerName:    c.cfg.Server,
		CtlIntName:    "ODBC",
		Database:      c.cfg.Database,
	}
	return req.Encode()
}

// onTLSReady fires once the framer's TLS handshake completes and LOGIN7
// has already been sent over it — the collapsed equivalent of the
// tlsNegotiated+message pair, since nothing this FSM does differs between
// "TLS is up" and "TLS is up and LOGIN7 is already on the wire".
func (c *Connection) onTLSReady() {
	c.handler.OnSecure()
	c.state = StateSentLogin7WithStandardLogin
}

func (c *Connection) onSocketError(err error) {
	wrapped := tdserrors.WrapConnectionError(err, tdserrors.ESocket, "connection closed")
	if !c.loggedIn {
		c.failConnect(wrapped)
		return
	}
	c.fatal(wrapped)
}

func (c *Connection) onConnectTimeout() {
	if c.loggedIn && c.state != StateLoggedInSendingInitialSQL {
		return
	}
	c.failConnect(tdserrors.NewConnectionError(tdserrors.ETimeout, "connect timed out"))
}

// failConnect ends a connection attempt that never reached LoggedIn.
func (c *Connection) failConnect(err error) {
	if c.loginErr == nil {
		c.loginErr = err
	}
	select {
	case c.connectResult <- err:
	default:
	}
	c.handler.OnConnect(err)
	c.transitionFinal()
}

// fatal ends an established connection (I1: any protocol-level error
// while logged in closes the whole connection, not just the active
// request).
func (c *Connection) fatal(err error) {
	c.stopRequestTimer()
	c.stopCancelTimer()
	if c.request != nil {
		req := c.request
		c.request = nil
		req.setError(err)
		req.finish()
	}
	c.handler.OnError(err)
	c.transitionFinal()
}

func (c *Connection) transitionFinal() {
	if c.state == StateFinal {
		return
	}
	c.state = StateFinal
	c.handler.OnEnd()
}

// completeRequest releases the active Request back to nil and invokes its
// completion hook. Called on a terminal DONE (not DONEPROC/DONEINPROC)
// with the More bit clear.
func (c *Connection) completeRequest() {
	req := c.request
	c.request = nil
	c.procReturnStatus = nil
	c.stopRequestTimer()
	c.stopCancelTimer()
	if req.canceled && req.err == nil {
		req.setError(tdserrors.NewRequestError(tdserrors.ECancel, "request canceled"))
	}
	c.state = StateLoggedIn
	req.finish()
}

// --- token.Handler -----------------------------------------------------

func (c *Connection) InfoMessage(msg token.InfoMsg) {
	c.handler.OnInfoMessage(msg)
}

func (c *Connection) DatabaseChange(newValue, oldValue string) {
	c.handler.OnDatabaseChange(newValue, oldValue)
}

func (c *Connection) LanguageChange(newValue, oldValue string) {
	c.handler.OnLanguageChange(newValue, oldValue)
}

func (c *Connection) CharsetChange(newValue, oldValue string) {
	c.handler.OnCharsetChange(newValue, oldValue)
}

// ErrorMessage routes an ERROR token to the active request (EREQUEST) if
// logged in with a request outstanding, or to the login outcome
// (ELOGIN) otherwise.
func (c *Connection) ErrorMessage(msg token.InfoMsg) {
	c.handler.OnErrorMessage(msg)
	if c.loggedIn {
		if c.request != nil {
			err := tdserrors.NewRequestError(tdserrors.ERequest, msg.Message).
				WithField("number", msg.Number).
				WithField("procName", msg.ProcName).
				WithField("lineNumber", msg.LineNumber)
			c.request.setError(err)
		}
		return
	}
	if c.loginErr == nil {
		c.loginErr = tdserrors.NewConnectionError(tdserrors.ELogin, "login rejected: "+msg.Message).
			WithField("number", msg.Number)
	}
}

func (c *Connection) LoginAck(ack token.LoginAck) {
	if ack.TDSVersion == 0 || ack.Interface == 0 {
		if c.loginErr == nil {
			c.loginErr = tdserrors.NewConnectionError(tdserrors.ELogin, "server rejected login: invalid LOGINACK")
		}
		return
	}
	c.negotiatedVer = ack.TDSVersion
	c.loggedIn = true
	c.logConn.Info("login acknowledged", "tdsVersion", wire.VersionString(ack.TDSVersion), "serverProgVer", ack.ProgVer)
}

func (c *Connection) PacketSizeChange(newSize int) {
	c.packetSize = newSize
	c.framer.SetPacketSize(newSize)
	c.logProto.Debug("packet size changed", "newSize", newSize)
}

func (c *Connection) BeginTransaction(descriptor [8]byte) {
	c.txns.pushDescriptor(descriptor)
	c.logTxn.Debug("transaction began")
}

func (c *Connection) CommitTransaction(descriptor [8]byte) {
	c.txns.popDescriptor()
	c.logTxn.Debug("transaction committed")
}

func (c *Connection) RollbackTransaction(descriptor [8]byte) {
	c.txns.popDescriptor()
	c.logTxn.Debug("transaction rolled back")
}

// ColumnMetadata, Order and Row all require an active request (I1): a
// server that sends result-set tokens outside a request is a protocol
// violation serious enough to close the whole connection.
func (c *Connection) ColumnMetadata(columns []wire.Column) {
	if c.request == nil {
		c.fatal(tdserrors.NewConnectionError(tdserrors.EInvalidState, "COLMETADATA received with no active request"))
		return
	}
	c.request.setColumns(columns, c.cfg.UseColumnNames)
}

func (c *Connection) Order(columnIDs []uint16) {
	if c.request == nil {
		c.fatal(tdserrors.NewConnectionError(tdserrors.EInvalidState, "ORDER received with no active request"))
	}
}

func (c *Connection) Row(row token.Row) {
	if c.request == nil {
		c.fatal(tdserrors.NewConnectionError(tdserrors.EInvalidState, "ROW received with no active request"))
		return
	}
	if c.cfg.RowCollectionOnRequestCompletion || c.cfg.RowCollectionOnDone {
		c.request.rows = append(c.request.rows, row)
	}
}

func (c *Connection) ReturnStatus(value int32) {
	v := value
	c.procReturnStatus = &v
	if c.request != nil {
		c.request.returnStatus = &v
	}
}

func (c *Connection) ReturnValue(rv token.ReturnValue) {
	if c.request != nil {
		c.request.returnValues = append(c.request.returnValues, rv)
	}
}

func (c *Connection) DoneProc(d token.Done) { c.onDone(d, false) }

func (c *Connection) DoneInProc(d token.Done) { c.onDone(d, true) }

// Done both folds in the DONE token like DoneProc/DoneInProc and, when it
// is the final DONE of the whole request (no More bit), completes the
// request — DONEPROC/DONEINPROC never end the request on their own,
// since more tokens for the same request follow them. Before the FSM
// ever reaches LoggedIn, the terminal DONE instead marks the end of
// either the LOGIN7 response message (routed to finishLogin) or the
// initial-SQL batch sent on its heels (routed to completeConnect).
func (c *Connection) Done(d token.Done) {
	switch c.state {
	case StateSentLogin7WithStandardLogin:
		if !d.More() {
			c.finishLogin()
		}
		return
	case StateLoggedInSendingInitialSQL:
		if !d.More() {
			c.completeConnect()
		}
		return
	}
	c.onDone(d, false)
	if c.request == nil || d.More() {
		return
	}
	// Per the "Attention ack ambiguity" design note (spec.md §9): once
	// ATTENTION is sent, any message before the attention-bearing DONE
	// must be skipped rather than completing the request early — a
	// server can legitimately finish sending an in-flight result set
	// before it gets to processing the cancel. Only a DONE that actually
	// carries the attention bit ends the request while in this state.
	if c.state == StateSentAttention && !c.request.canceled {
		return
	}
	c.completeRequest()
}

// finishLogin reacts to the LOGIN7 response stream's terminal DONE: a
// prior LOGINACK-less stream or an ERROR token recorded in loginErr
// fails the connect attempt outright; otherwise it enters
// LoggedInSendingInitialSql and issues the fixed session-options batch
// spec.md §6 requires before a connect attempt can be reported as
// successful.
func (c *Connection) finishLogin() {
	if c.loginErr != nil {
		c.failConnect(c.loginErr)
		return
	}
	if !c.loggedIn {
		c.failConnect(tdserrors.NewConnectionError(tdserrors.ELogin, "login response ended without a LOGINACK"))
		return
	}
	c.sendInitialSQL()
}

// sendInitialSQL issues the fixed session-options batch — set textsize,
// the ANSI/ARITHABORT flags, language, dateformat and the configured
// isolation level — that every successful login sends before the
// connection is usable, per spec.md §6 ("Initial SQL (sent verbatim
// after login)"). Reset reuses the same batch text to put an already
// logged-in session's options back to this same baseline.
func (c *Connection) sendInitialSQL() {
	c.state = StateLoggedInSendingInitialSQL
	payload := wire.SQLBatchPayload(c.txns.current(), initialSQLBatch(c.cfg))
	if err := c.framer.SendMessage(wire.PacketSQLBatch, payload); err != nil {
		c.failConnect(tdserrors.WrapConnectionError(err, tdserrors.ESocket, "sending initial SQL"))
	}
}

// completeConnect ends a successful connect attempt once the initial
// SQL batch's own terminal DONE arrives (I5: the connect-timer's
// disarm-on-success point is after initial SQL, not after LOGINACK).
func (c *Connection) completeConnect() {
	c.connectTimer.Stop()
	c.state = StateLoggedIn
	select {
	case c.connectResult <- nil:
	default:
	}
	c.handler.OnConnect(nil)
}

// initialSQLBatch renders spec.md §6's fixed session-options text,
// parameterized only by the two options the spec calls out as
// configurable: textsize and isolation level.
func initialSQLBatch(cfg Config) string {
	return fmt.Sprintf(
		"set textsize %d\n"+
			"set quoted_identifier on\n"+
			"set arithabort off\n"+
			"set numeric_roundabort off\n"+
			"set ansi_warnings on\n"+
			"set ansi_padding on\n"+
			"set ansi_nulls on\n"+
			"set concat_null_yields_null on\n"+
			"set cursor_close_on_commit off\n"+
			"set implicit_transactions off\n"+
			"set language us_english\n"+
			"set dateformat mdy\n"+
			"set datefirst 7\n"+
			"set transaction isolation level %s\n",
		cfg.TextSize, isolationLevelSQL(cfg.IsolationLevel))
}

// isolationLevelSQL renders level as the T-SQL keyword phrase
// SET TRANSACTION ISOLATION LEVEL expects, defaulting to read committed
// for the zero value (Config.withDefaults already fills this in, but
// initialSQLBatch takes a plain Config so it stays defensive here too).
func isolationLevelSQL(level wire.IsolationLevel) string {
	switch level {
	case wire.IsolationReadUncommitted:
		return "read uncommitted"
	case wire.IsolationRepeatableRead:
		return "repeatable read"
	case wire.IsolationSerializable:
		return "serializable"
	case wire.IsolationSnapshot:
		return "snapshot"
	default:
		return "read committed"
	}
}

func (c *Connection) onDone(d token.Done, inProc bool) {
	if c.request == nil {
		return
	}
	if d.HasCount() {
		c.request.addRowCount(d.RowCount)
	}
	if d.HasError() && c.request.err == nil {
		c.request.setError(tdserrors.NewRequestError(tdserrors.ERequest, "request completed with an error"))
	}
	if d.Attention() {
		c.request.canceled = true
	}
	if c.cfg.RowCollectionOnDone && !inProc {
		c.request.rows = nil
	}
}

func (c *Connection) ResetConnection(descriptor [8]byte) {
	c.handler.OnResetConnection()
}

func (c *Connection) TokenStreamError(err error) {
	c.fatal(tdserrors.WrapConnectionError(err, tdserrors.EInvalidState, "token stream decode error"))
}

// --- request dispatch ---------------------------------------------------

// makeRequestRaw sends payload as pktType and installs it as the active
// request (I2), or fails fast via onComplete if the FSM isn't LoggedIn.
func (c *Connection) makeRequestRaw(pktType wire.PacketType, payload []byte, onComplete func(*Request)) {
	if c.state != StateLoggedIn {
		if onComplete != nil {
			onComplete(&Request{err: tdserrors.NewRequestError(tdserrors.EInvalidState,
				fmt.Sprintf("cannot start a request while in state %s", c.state))})
		}
		return
	}
	pt := requestSQLBatch
	if pktType == wire.PacketRPCRequest {
		pt = requestRPC
	}
	req := newRequest(pt, payload, onComplete)
	c.request = req
	if err := c.framer.SendMessage(pktType, payload); err != nil {
		c.request = nil
		req.setError(tdserrors.WrapRequestError(err, tdserrors.ESocket, "sending request"))
		req.finish()
		return
	}
	c.state = StateSentClientRequest
	if c.cfg.RequestTimeout > 0 {
		c.requestTimer = time.AfterFunc(c.cfg.RequestTimeout, func() {
			select {
			case c.requestTimeoutCh <- struct{}{}:
			default:
			}
		})
	}
}

// --- public API ----------------------------------------------------------

// ExecSQLBatch sends sql as an ad-hoc SQL_BATCH.
func (c *Connection) ExecSQLBatch(sql string, cb Callback) {
	c.post(func(conn *Connection) {
		payload := wire.SQLBatchPayload(conn.txns.current(), sql)
		conn.makeRequestRaw(wire.PacketSQLBatch, payload, callbackComplete(cb))
	})
}

// ExecSQL runs sql via sp_executesql with params bound positionally.
func (c *Connection) ExecSQL(sql string, params []wire.RPCParam, cb Callback) {
	c.post(func(conn *Connection) {
		all := make([]wire.RPCParam, 0, len(params)+1)
		all = append(all, wire.RPCParam{Type: wire.TypeNVarChar, Value: sql})
		all = append(all, params...)
		req := wire.RPCRequest{ProcID: wire.ProcIDExecuteSQL, Params: all}
		payload, err := req.Encode(conn.txns.current())
		if err != nil {
			if cb != nil {
				cb(tdserrors.WrapRequestError(err, tdserrors.ERequest, "encoding sp_executesql request"), 0, nil)
			}
			return
		}
		conn.makeRequestRaw(wire.PacketRPCRequest, payload, callbackComplete(cb))
	})
}

// CallProcedure invokes a named stored procedure with params.
func (c *Connection) CallProcedure(name string, params []wire.RPCParam, cb Callback) {
	c.post(func(conn *Connection) {
		req := wire.RPCRequest{ProcName: name, Params: params}
		payload, err := req.Encode(conn.txns.current())
		if err != nil {
			if cb != nil {
				cb(tdserrors.WrapRequestError(err, tdserrors.ERequest, "encoding RPC request"), 0, nil)
			}
			return
		}
		conn.makeRequestRaw(wire.PacketRPCRequest, payload, callbackComplete(cb))
	})
}

// Prepare calls sp_prepare for sql and reports the server-assigned
// statement handle; unlike ExecSQL/CallProcedure, its outcome can't be
// expressed as a Callback because it must read the @handle RETURNVALUE,
// which is why it builds its own onComplete directly.
func (c *Connection) Prepare(sql string, params []wire.RPCParam, cb func(err error, handle int32)) {
	c.post(func(conn *Connection) {
		all := []wire.RPCParam{
			{Name: "handle", Output: true, Type: wire.TypeIntN},
			{Type: wire.TypeNVarChar, Value: formatParamDefs(params)},
			{Type: wire.TypeNVarChar, Value: sql},
		}
		req := wire.RPCRequest{ProcID: wire.ProcIDPrepare, Params: all}
		payload, err := req.Encode(conn.txns.current())
		if err != nil {
			if cb != nil {
				cb(tdserrors.WrapRequestError(err, tdserrors.ERequest, "encoding sp_prepare request"), 0)
			}
			return
		}
		conn.makeRequestRaw(wire.PacketRPCRequest, payload, func(r *Request) {
			if cb == nil {
				return
			}
			if r.err != nil {
				cb(r.err, 0)
				return
			}
			cb(nil, handleFromReturnValues(r.returnValues))
		})
	})
}

// Execute runs a previously prepared statement by handle.
func (c *Connection) Execute(handle int32, params []wire.RPCParam, cb Callback) {
	c.post(func(conn *Connection) {
		all := append([]wire.RPCParam{{Type: wire.TypeIntN, Value: int64(handle)}}, params...)
		req := wire.RPCRequest{ProcID: wire.ProcIDExecute, Params: all}
		payload, err := req.Encode(conn.txns.current())
		if err != nil {
			if cb != nil {
				cb(tdserrors.WrapRequestError(err, tdserrors.ERequest, "encoding sp_execute request"), 0, nil)
			}
			return
		}
		conn.makeRequestRaw(wire.PacketRPCRequest, payload, callbackComplete(cb))
	})
}

// Unprepare releases a previously prepared statement handle.
func (c *Connection) Unprepare(handle int32, cb func(err error)) {
	c.post(func(conn *Connection) {
		req := wire.RPCRequest{ProcID: wire.ProcIDUnprepare, Params: []wire.RPCParam{{Type: wire.TypeIntN, Value: int64(handle)}}}
		payload, err := req.Encode(conn.txns.current())
		if err != nil {
			if cb != nil {
				cb(tdserrors.WrapRequestError(err, tdserrors.ERequest, "encoding sp_unprepare request"))
			}
			return
		}
		conn.makeRequestRaw(wire.PacketRPCRequest, payload, func(r *Request) {
			if cb != nil {
				cb(r.err)
			}
		})
	})
}

// Cancel sends ATTENTION for the active request, if any, and reports
// whether one was actually sent.
func (c *Connection) Cancel() bool {
	result := make(chan bool, 1)
	c.post(func(conn *Connection) {
		if conn.request == nil || conn.state != StateSentClientRequest {
			result <- false
			return
		}
		if err := conn.sendAttention(); err != nil {
			result <- false
			return
		}
		result <- true
	})
	select {
	case ok := <-result:
		return ok
	case <-c.closedCh:
		return false
	}
}

// Begin opens a transaction with the given name and isolation level.
// Fails synchronously if the negotiated TDS version predates 7.2, the
// version that introduced ALL_HEADERS transaction descriptors — per
// spec.md §7's "caller misuse: transactions requested on TDS < 7.2".
func (c *Connection) Begin(name string, isolation wire.IsolationLevel, cb func(err error)) {
	c.post(func(conn *Connection) {
		if conn.negotiatedVer < wire.VerTDS72 {
			if cb != nil {
				cb(tdserrors.NewRequestError(tdserrors.EInvalidState, "transactions require TDS 7.2 or later"))
			}
			return
		}
		payload := wire.BeginTransactionPayload(conn.txns.current(), isolation, name)
		conn.txns.pushOpen(Transaction{Name: name, Isolation: isolation})
		conn.makeRequestRaw(wire.PacketTransMgrReq, payload, func(r *Request) {
			if cb != nil {
				cb(r.err)
			}
		})
	})
}

// Commit commits the innermost open transaction, failing synchronously
// with ENOTRNINPROG if none is open.
func (c *Connection) Commit(name string, cb func(err error)) {
	c.post(func(conn *Connection) {
		if !conn.txns.inTransaction() {
			if cb != nil {
				cb(tdserrors.NewRequestError(tdserrors.ENotInTran, "no transaction in progress"))
			}
			return
		}
		conn.txns.popOpen()
		payload := wire.CommitTransactionPayload(conn.txns.current(), name)
		conn.makeRequestRaw(wire.PacketTransMgrReq, payload, func(r *Request) {
			if cb != nil {
				cb(r.err)
			}
		})
	})
}

// Rollback rolls back the innermost open transaction, failing
// synchronously with ENOTRNINPROG if none is open.
func (c *Connection) Rollback(name string, cb func(err error)) {
	c.post(func(conn *Connection) {
		if !conn.txns.inTransaction() {
			if cb != nil {
				cb(tdserrors.NewRequestError(tdserrors.ENotInTran, "no transaction in progress"))
			}
			return
		}
		conn.txns.popOpen()
		payload := wire.RollbackTransactionPayload(conn.txns.current(), name)
		conn.makeRequestRaw(wire.PacketTransMgrReq, payload, func(r *Request) {
			if cb != nil {
				cb(r.err)
			}
		})
	})
}

// Reset sends the initial-SQL batch with the reset-connection bit
// armed, returning the session's non-transactional state (SET options,
// temp tables) to the same baseline login establishes, without a fresh
// LOGIN7 (spec.md §4.6: "issues the initial-SQL batch").
func (c *Connection) Reset(cb func(err error)) {
	c.post(func(conn *Connection) {
		conn.framer.RequestReset()
		payload := wire.SQLBatchPayload(conn.txns.current(), initialSQLBatch(conn.cfg))
		conn.makeRequestRaw(wire.PacketSQLBatch, payload, func(r *Request) {
			if cb != nil {
				cb(r.err)
			}
		})
	})
}

// Close ends the connection, however Final is reached: no further
// commands are accepted once closedCh is closed.
func (c *Connection) Close() {
	c.post(func(conn *Connection) {
		conn.transitionFinal()
	})
}

// formatParamDefs renders params as the @name type[, ...] declaration
// string sp_prepare/sp_executesql expect as their @params argument.
func formatParamDefs(params []wire.RPCParam) string {
	var b strings.Builder
	for i, p := range params {
		if i > 0 {
			b.WriteString(", ")
		}
		name := p.Name
		if name == "" {
			name = fmt.Sprintf("p%d", i+1)
		}
		fmt.Fprintf(&b, "@%s %s", name, p.Type)
		if p.Output {
			b.WriteString(" OUTPUT")
		}
	}
	return b.String()
}

// handleFromReturnValues extracts the @handle output parameter sp_prepare
// returns as its first RETURNVALUE.
func handleFromReturnValues(values []token.ReturnValue) int32 {
	for _, rv := range values {
		switch v := rv.Value.(type) {
		case int64:
			return int32(v)
		case int32:
			return v
		}
	}
	return 0
}
