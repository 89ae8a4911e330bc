package rpc

import "encoding/json"

const (
	jsonRPCVersion = "2.0"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeDuplicateTx    = -32010
	codeRateLimited    = -32020
	codeVaultError     = -32030
	codeNotFound       = -32040
)

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// VaultErrorData accompanies codeVaultError with the stable vault code.
type VaultErrorData struct {
	Code uint32 `json:"code"`
	Name string `json:"name"`
}

// EventsQuery is the parameter object of vault_listEvents.
type EventsQuery struct {
	Type    string `json:"type,omitempty"`
	Account string `json:"account,omitempty"`
	AfterID uint64 `json:"afterId,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}
