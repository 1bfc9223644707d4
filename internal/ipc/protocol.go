// Package ipc exposes a read-only query protocol over a Unix domain
// socket: a client asks for the latest control-bus frame, musical
// grid, style classification, diagnostics snapshot, or the running
// configuration, and gets exactly one JSON response back. There is no
// authentication, pairing, or push-streaming here (spec section 9
// puts encoder/UI pairing and playback control out of scope) — the
// socket is local-only and every command is a single read of an
// already-published snapshot cell.
package ipc

import (
	"encoding/json"
	"fmt"
)

// CommandType names one of the handful of read-only queries this
// socket answers.
type CommandType string

const (
	CmdGetControlBus  CommandType = "getControlBus"
	CmdGetGrid        CommandType = "getGrid"
	CmdGetStyle       CommandType = "getStyle"
	CmdGetDiagnostics CommandType = "getDiagnostics"
	CmdGetConfig      CommandType = "getConfig"
)

// Request is a single client query. None of the current commands take
// a request body, but Data is kept for forward compatibility the same
// way the teacher's protocol carries an optional payload alongside
// every command.
type Request struct {
	Cmd  CommandType     `json:"cmd"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Response is the single reply to a Request.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// EncodeRequest encodes a request to JSON.
func EncodeRequest(req *Request) ([]byte, error) {
	return json.Marshal(req)
}

// DecodeRequest decodes a request from JSON.
func DecodeRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to decode request: %w", err)
	}
	return &req, nil
}

// EncodeResponse encodes a response to JSON.
func EncodeResponse(resp *Response) ([]byte, error) {
	return json.Marshal(resp)
}

// DecodeResponse decodes a response from JSON.
func DecodeResponse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &resp, nil
}

// NewSuccessResponse marshals data into a successful response.
func NewSuccessResponse(data interface{}) (*Response, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, err
		}
	}
	return &Response{Success: true, Data: rawData}, nil
}

// NewErrorResponse builds an error response carrying msg.
func NewErrorResponse(msg string) *Response {
	return &Response{Success: false, Error: msg}
}
