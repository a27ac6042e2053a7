package tds

// state names one of the nine nodes of the connection FSM. Dispatch is a
// switch on c.state inside each *Connection method that reacts to an
// event (framer events, DONE tokens); there is no per-state handler table.
type state int

const (
	StateConnecting state = iota
	StateSentPrelogin
	StateSentTLSSSLNegotiation
	StateSentLogin7WithStandardLogin
	StateLoggedInSendingInitialSQL
	StateLoggedIn
	StateSentClientRequest
	StateSentAttention
	StateFinal
)

func (s state) String() string {
	switch s {
	case StateConnecting:
		return "Connecting"
	case StateSentPrelogin:
		return "SentPrelogin"
	case StateSentTLSSSLNegotiation:
		return "SentTLSSSLNegotiation"
	case StateSentLogin7WithStandardLogin:
		return "SentLogin7WithStandardLogin"
	case StateLoggedInSendingInitialSQL:
		return "LoggedInSendingInitialSql"
	case StateLoggedIn:
		return "LoggedIn"
	case StateSentClientRequest:
		return "SentClientRequest"
	case StateSentAttention:
		return "SentAttention"
	case StateFinal:
		return "Final"
	default:
		return "Unknown"
	}
}
