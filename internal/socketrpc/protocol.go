package socketrpc

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/tinytelemetry/adpulse/internal/model"
)

// JSON-RPC 2.0 Method Reference
//
// The socket RPC server exposes the sync agent and its history over a Unix
// domain socket, one JSON object per line.
//
//   Method      Params                           Result
//   ─────────   ──────────────────────────────   ─────────────────────
//   Dashboard   (none)                           model.Dashboard
//   Sources     (none)                           []model.SourceStatus
//   History     {source: string, limit: int}     HistoryResult
//   Refresh     {source: string, wait: bool}     []model.SourceStatus
//   Pause       {source: string}                 []model.SourceStatus
//   Resume      {source: string}                 []model.SourceStatus
//
// An empty source addresses every source. Control methods answer with the
// statuses after the command was queued (or settled, for Refresh with wait).
//
// Error codes follow JSON-RPC 2.0:
//   -32700  Parse error (malformed JSON)
//   -32601  Method not found
//   -32602  Invalid params (including unknown source)
//   -32603  Internal error (marshal failure)
//   -32000  Application error

const (
	CodeParseError     = -32700
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternal       = -32603
	CodeApplication    = -32000
)

// Method names.
const (
	MethodDashboard = "Dashboard"
	MethodSources   = "Sources"
	MethodHistory   = "History"
	MethodRefresh   = "Refresh"
	MethodPause     = "Pause"
	MethodResume    = "Resume"
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string { return e.Message }

// SourceParams addresses one source, or all when Source is empty.
type SourceParams struct {
	Source string `json:"source,omitempty"`
	Wait   bool   `json:"wait,omitempty"`
}

// HistoryParams selects recorded attempts.
type HistoryParams struct {
	Source string `json:"source,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// HistoryResult carries the newest attempts and per-source aggregates.
type HistoryResult struct {
	Records []model.SyncRecord `json:"records"`
	Stats   []model.SyncStats  `json:"stats"`
}

// DefaultSocketPath returns the default Unix socket path.
// It prefers $XDG_RUNTIME_DIR/adpulse/adpulse.sock, falling back to
// ~/.local/state/adpulse/adpulse.sock.
func DefaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "adpulse", "adpulse.sock")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "adpulse.sock")
	}
	return filepath.Join(home, ".local", "state", "adpulse", "adpulse.sock")
}
