package wsapi

// clientMessage is the text-frame JSON grammar accepted from a client:
// {"type":"resize","cols":132,"rows":40} or {"type":"ping"}. Unknown
// types and malformed JSON are logged and ignored per spec §6.
type clientMessage struct {
	Type string `json:"type"`
	Cols int    `json:"cols"`
	Rows int    `json:"rows"`
}

type sessionMessage struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type pongMessage struct {
	Type string `json:"type"`
}

const (
	msgTypeResize  = "resize"
	msgTypePing    = "ping"
	msgTypeSession = "session"
	msgTypePong    = "pong"
)

const (
	defaultCols = 80
	defaultRows = 24
)
