package signal

import (
	"encoding/json"
	"fmt"
)

const jsonrpcVersion = "2.0"

// request is an outgoing JSON-RPC 2.0 request.
type request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      string `json:"id,omitempty"`
}

// incoming is any line the daemon writes: a response (ID set) or a
// notification (Method set, no ID).
type incoming struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

func (m incoming) isNotification() bool {
	return m.Method != "" && len(m.ID) == 0
}

// idString returns the response id as text, whether it was sent as a string or number.
func (m incoming) idString() string {
	if len(m.ID) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(m.ID, &s); err == nil {
		return s
	}
	return string(m.ID)
}

// RPCError is an error object returned by the daemon.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("signal-cli error %d: %s", e.Code, e.Message)
}

// Group is one entry of listGroups.
type Group struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsMember  bool   `json:"isMember"`
	IsBlocked bool   `json:"isBlocked"`
}

type attachmentResult struct {
	Data string `json:"data"`
}
