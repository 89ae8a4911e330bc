package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"epochvault/core/auth"
	"epochvault/core/host"
	"epochvault/crypto"
	"epochvault/indexer"
	"epochvault/native/vault"
)

type methodHandler func(s *Server, r *http.Request, req *RPCRequest) (interface{}, int, *RPCError)

var rpcMethods = map[string]methodHandler{
	"vault_invoke":        (*Server).handleInvoke,
	"vault_chainId":       (*Server).handleChainID,
	"vault_getOffer":      (*Server).handleGetOffer,
	"vault_getRequest":    (*Server).handleGetRequest,
	"vault_listRequests":  (*Server).handleListRequests,
	"vault_getEpoch":      (*Server).handleGetEpoch,
	"vault_getRedeemRate": (*Server).handleGetRedeemRate,
	"vault_listEvents":    (*Server).handleListEvents,
	"vault_getReceipt":    (*Server).handleGetReceipt,
	"token_getBalance":    (*Server).handleGetBalance,
	"token_getAllowance":  (*Server).handleGetAllowance,
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj})
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result})
}

// handle is the JSON-RPC entry point.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, s.maxBody)
	defer func() {
		_ = reader.Close()
	}()
	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, http.StatusRequestEntityTooLarge, nil, codeInvalidRequest,
				fmt.Sprintf("request body exceeds %d bytes", maxBytesErr.Limit), nil)
			return
		}
		writeError(w, http.StatusBadRequest, nil, codeParseError, "failed to read request body", err.Error())
		return
	}
	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	handler, ok := rpcMethods[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
		return
	}
	result, status, rpcErr := handler(s, r, &req)
	if rpcErr != nil {
		writeError(w, status, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	writeResult(w, req.ID, result)
}

func invalidParams(message string, data interface{}) (interface{}, int, *RPCError) {
	return nil, http.StatusBadRequest, &RPCError{Code: codeInvalidParams, Message: message, Data: data}
}

// queryError maps a read failure onto a JSON-RPC error.
func queryError(err error) (interface{}, int, *RPCError) {
	if code, ok := vault.CodeOf(err); ok {
		return nil, http.StatusBadRequest, &RPCError{
			Code:    codeVaultError,
			Message: err.Error(),
			Data:    VaultErrorData{Code: uint32(code), Name: code.String()},
		}
	}
	if errors.Is(err, indexer.ErrNotFound) {
		return nil, http.StatusNotFound, &RPCError{Code: codeNotFound, Message: err.Error()}
	}
	return nil, http.StatusInternalServerError, &RPCError{Code: codeServerError, Message: err.Error()}
}

func stringParam(req *RPCRequest, idx int, name string) (string, *RPCError) {
	if len(req.Params) <= idx {
		return "", &RPCError{Code: codeInvalidParams, Message: name + " parameter required"}
	}
	var value string
	if err := json.Unmarshal(req.Params[idx], &value); err != nil {
		return "", &RPCError{Code: codeInvalidParams, Message: "invalid " + name, Data: err.Error()}
	}
	return strings.TrimSpace(value), nil
}

func accountParam(req *RPCRequest, idx int, name string) ([20]byte, *RPCError) {
	raw, rpcErr := stringParam(req, idx, name)
	if rpcErr != nil {
		return [20]byte{}, rpcErr
	}
	addr, err := crypto.ParseAccount(raw)
	if err != nil {
		return [20]byte{}, &RPCError{Code: codeInvalidParams, Message: "invalid " + name, Data: err.Error()}
	}
	return addr, nil
}

func (s *Server) handleInvoke(r *http.Request, req *RPCRequest) (interface{}, int, *RPCError) {
	if authErr := s.requireAuth(r); authErr != nil {
		return nil, http.StatusUnauthorized, authErr
	}
	if len(req.Params) != 1 {
		return invalidParams("invocation parameter required", nil)
	}
	var inv auth.Invocation
	if err := json.Unmarshal(req.Params[0], &inv); err != nil {
		return invalidParams("invalid invocation format", err.Error())
	}
	receipt, err := s.backend.Invoke(r.Context(), &inv)
	if err != nil {
		switch {
		case errors.Is(err, host.ErrReplay):
			return nil, http.StatusConflict, &RPCError{Code: codeDuplicateTx, Message: err.Error()}
		case errors.Is(err, host.ErrInvalidArgs),
			errors.Is(err, host.ErrUnknownMethod),
			errors.Is(err, host.ErrChainIDMismatch),
			errors.Is(err, host.ErrNoSigners),
			errors.Is(err, auth.ErrMalformedSig),
			errors.Is(err, auth.ErrMissingMethod),
			errors.Is(err, auth.ErrDuplicateSigners):
			return invalidParams(err.Error(), nil)
		}
		return nil, http.StatusInternalServerError, &RPCError{Code: codeServerError, Message: err.Error()}
	}
	return receipt, http.StatusOK, nil
}

func (s *Server) handleChainID(_ *http.Request, _ *RPCRequest) (interface{}, int, *RPCError) {
	return strconv.FormatUint(s.backend.ChainID(), 10), http.StatusOK, nil
}

func (s *Server) handleGetOffer(_ *http.Request, _ *RPCRequest) (interface{}, int, *RPCError) {
	offer, err := s.backend.Offer()
	if err != nil {
		return queryError(err)
	}
	return offer, http.StatusOK, nil
}

func (s *Server) handleGetRequest(_ *http.Request, req *RPCRequest) (interface{}, int, *RPCError) {
	addr, rpcErr := accountParam(req, 0, "address")
	if rpcErr != nil {
		return nil, http.StatusBadRequest, rpcErr
	}
	view, err := s.backend.Request(addr)
	if err != nil {
		return queryError(err)
	}
	return view, http.StatusOK, nil
}

func (s *Server) handleListRequests(_ *http.Request, _ *RPCRequest) (interface{}, int, *RPCError) {
	views, err := s.backend.Requests()
	if err != nil {
		return queryError(err)
	}
	return views, http.StatusOK, nil
}

func (s *Server) handleGetEpoch(_ *http.Request, _ *RPCRequest) (interface{}, int, *RPCError) {
	view, err := s.backend.Epoch()
	if err != nil {
		return queryError(err)
	}
	return view, http.StatusOK, nil
}

func (s *Server) handleGetRedeemRate(_ *http.Request, req *RPCRequest) (interface{}, int, *RPCError) {
	if len(req.Params) != 1 {
		return invalidParams("epoch parameter required", nil)
	}
	var epochID uint32
	if err := json.Unmarshal(req.Params[0], &epochID); err != nil {
		var wrapper struct {
			Epoch *uint32 `json:"epoch"`
		}
		if err := json.Unmarshal(req.Params[0], &wrapper); err != nil || wrapper.Epoch == nil {
			return invalidParams("invalid epoch parameter", nil)
		}
		epochID = *wrapper.Epoch
	}
	view, err := s.backend.RedeemRate(epochID)
	if err != nil {
		return queryError(err)
	}
	return view, http.StatusOK, nil
}

func (s *Server) handleGetBalance(_ *http.Request, req *RPCRequest) (interface{}, int, *RPCError) {
	token, rpcErr := stringParam(req, 0, "token")
	if rpcErr != nil {
		return nil, http.StatusBadRequest, rpcErr
	}
	addr, rpcErr := accountParam(req, 1, "address")
	if rpcErr != nil {
		return nil, http.StatusBadRequest, rpcErr
	}
	view, err := s.backend.Balance(token, addr)
	if err != nil {
		return queryError(err)
	}
	return view, http.StatusOK, nil
}

func (s *Server) handleGetAllowance(_ *http.Request, req *RPCRequest) (interface{}, int, *RPCError) {
	token, rpcErr := stringParam(req, 0, "token")
	if rpcErr != nil {
		return nil, http.StatusBadRequest, rpcErr
	}
	owner, rpcErr := accountParam(req, 1, "owner")
	if rpcErr != nil {
		return nil, http.StatusBadRequest, rpcErr
	}
	spender, rpcErr := accountParam(req, 2, "spender")
	if rpcErr != nil {
		return nil, http.StatusBadRequest, rpcErr
	}
	view, err := s.backend.Allowance(token, owner, spender)
	if err != nil {
		return queryError(err)
	}
	return view, http.StatusOK, nil
}

func (s *Server) handleListEvents(r *http.Request, req *RPCRequest) (interface{}, int, *RPCError) {
	if s.archive == nil {
		return nil, http.StatusServiceUnavailable, &RPCError{Code: codeServerError, Message: "event archive disabled"}
	}
	var query EventsQuery
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params[0], &query); err != nil {
			return invalidParams("invalid events query", err.Error())
		}
	}
	list, err := s.archive.ListEvents(r.Context(), indexer.Filter{
		Type:    query.Type,
		Account: query.Account,
		AfterID: query.AfterID,
		Limit:   query.Limit,
	})
	if err != nil {
		return queryError(err)
	}
	return list, http.StatusOK, nil
}

func (s *Server) handleGetReceipt(r *http.Request, req *RPCRequest) (interface{}, int, *RPCError) {
	if s.archive == nil {
		return nil, http.StatusServiceUnavailable, &RPCError{Code: codeServerError, Message: "event archive disabled"}
	}
	digest, rpcErr := stringParam(req, 0, "digest")
	if rpcErr != nil {
		return nil, http.StatusBadRequest, rpcErr
	}
	record, err := s.archive.Invocation(r.Context(), digest)
	if err != nil {
		return queryError(err)
	}
	return record, http.StatusOK, nil
}
