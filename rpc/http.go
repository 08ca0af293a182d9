package rpc

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nftrental/native/rental"
	"nftrental/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeNotFound       = -32040
	codeForbidden      = -32041
	codeConflict       = -32042
	codePaymentShort   = -32043
)

// Server exposes the rental engine over JSON-RPC 2.0. Mutating operations are
// serialized through a single mutex, matching the engine's transactional
// execution model.
type Server struct {
	mu        sync.Mutex
	engine    *rental.Engine
	authToken string
	metrics   *observability.RPCMetrics
	logger    *slog.Logger
}

// NewServer wraps an engine in an RPC server. When authToken is empty the
// mutating surface is open; production deployments always set a token.
func NewServer(engine *rental.Engine, authToken string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine:    engine,
		authToken: strings.TrimSpace(authToken),
		metrics:   observability.Metrics(),
		logger:    logger,
	}
}

// Handler returns the HTTP handler serving the RPC endpoint and the
// Prometheus metrics endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
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

type handlerFunc func(w http.ResponseWriter, r *http.Request, req *RPCRequest)

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, nil, codeInvalidRequest, "invalid_request", "POST required")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "parse_error", err.Error())
		return
	}
	if len(body) > maxRequestBytes {
		writeError(w, http.StatusRequestEntityTooLarge, nil, codeInvalidRequest, "invalid_request", "request too large")
		return
	}
	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "parse_error", err.Error())
		return
	}
	handler, mutating := s.route(req.Method)
	if handler == nil {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method_not_found", req.Method)
		return
	}
	start := time.Now()
	if mutating {
		if authErr := s.requireAuth(r); authErr != nil {
			s.metrics.ObserveError(req.Method, strconv.Itoa(codeUnauthorized))
			writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, "unauthorized", authErr.Error())
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	handler(rec, r, &req)
	outcome := "ok"
	if rec.status >= http.StatusBadRequest {
		outcome = "error"
	}
	s.metrics.ObserveRequest(req.Method, outcome, start)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) route(method string) (handlerFunc, bool) {
	switch method {
	case "rental_register":
		return s.handleRegister, true
	case "rental_addNFTToLend":
		return s.handleAddNFTToLend, true
	case "rental_stopLend":
		return s.handleStopLend, true
	case "rental_rentNft":
		return s.handleRentNft, true
	case "rental_returnNFT":
		return s.handleReturnNFT, true
	case "rental_claimCollateral":
		return s.handleClaimCollateral, true
	case "rental_addToWishlist":
		return s.handleAddToWishlist, true
	case "rental_mint":
		return s.handleMint, true
	case "rental_getAvailableNfts":
		return s.handleGetAvailableNfts, false
	case "rental_getNftProps":
		return s.handleGetNftProps, false
	case "rental_getListedNft":
		return s.handleGetListedNft, false
	case "rental_getLendedNft":
		return s.handleGetLendedNft, false
	case "rental_getRentedNft":
		return s.handleGetRentedNft, false
	case "rental_getUserCounts":
		return s.handleGetUserCounts, false
	case "rental_getUserAddressList":
		return s.handleGetUserAddressList, false
	case "rental_getBalance":
		return s.handleGetBalance, false
	case "rental_escrowBalance":
		return s.handleEscrowBalance, false
	default:
		return nil, false
	}
}

func (s *Server) requireAuth(r *http.Request) error {
	if s.authToken == "" {
		return nil
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return fmt.Errorf("missing bearer token")
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return fmt.Errorf("invalid bearer token")
	}
	return nil
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(&RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result})
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(&RPCResponse{
		JSONRPC: jsonRPCVersion,
		ID:      id,
		Error:   &RPCError{Code: code, Message: message, Data: data},
	})
}

// writeEngineError maps engine errors onto JSON-RPC error codes.
func (s *Server) writeEngineError(w http.ResponseWriter, req *RPCRequest, err error) {
	status := http.StatusBadRequest
	code := codeServerError
	message := "server_error"
	switch {
	case errors.Is(err, rental.ErrUnauthorized),
		errors.Is(err, rental.ErrNonOwner),
		errors.Is(err, rental.ErrNotMatchingBorrower):
		status, code, message = http.StatusForbidden, codeForbidden, "forbidden"
	case errors.Is(err, rental.ErrNotRegistered),
		errors.Is(err, rental.ErrNotListed),
		errors.Is(err, rental.ErrNotAvailable),
		errors.Is(err, rental.ErrNotRented),
		errors.Is(err, rental.ErrNoSuchAsset),
		errors.Is(err, rental.ErrNotFound):
		status, code, message = http.StatusNotFound, codeNotFound, "not_found"
	case errors.Is(err, rental.ErrAlreadyListed),
		errors.Is(err, rental.ErrAlreadyRented),
		errors.Is(err, rental.ErrSelfRental),
		errors.Is(err, rental.ErrBeforeDueTime),
		errors.Is(err, rental.ErrWishlisted):
		status, code, message = http.StatusConflict, codeConflict, "conflict"
	case errors.Is(err, rental.ErrInsufficientPayment), errors.Is(err, rental.ErrInsufficientFunds):
		status, code, message = http.StatusPaymentRequired, codePaymentShort, "insufficient_payment"
	case errors.Is(err, rental.ErrBadTimeBounds),
		errors.Is(err, rental.ErrExceedsWindow),
		errors.Is(err, rental.ErrIndexOutOfRange):
		status, code, message = http.StatusBadRequest, codeInvalidParams, "invalid_params"
	default:
		status = http.StatusInternalServerError
	}
	s.metrics.ObserveError(req.Method, strconv.Itoa(code))
	writeError(w, status, req.ID, code, message, err.Error())
}
