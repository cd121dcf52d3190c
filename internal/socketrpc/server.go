package socketrpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tinytelemetry/adpulse/internal/model"
)

const (
	// scannerInitBufSize is the initial buffer size for the per-connection scanner (64 KB).
	scannerInitBufSize = 64 * 1024
	// scannerMaxTokenSize is the maximum request line the scanner accepts (1 MB).
	scannerMaxTokenSize = 1024 * 1024

	staleDialTimeout = 500 * time.Millisecond
	defaultCallLimit = 30 * time.Second
)

// ErrNoHistory is returned by History when the server has no history reader.
var ErrNoHistory = errors.New("sync history is not enabled")

// Waiter is implemented by agents that can block until a refresh settles.
type Waiter interface {
	RefreshAndWait(ctx context.Context, source string) error
}

// Server exposes the sync agent over a Unix domain socket using JSON-RPC 2.0.
type Server struct {
	socketPath string
	agent      model.AgentAPI
	history    model.HistoryReader
	historyMax int
	unknown    error
	log        *zap.Logger

	listener net.Listener
	wg       sync.WaitGroup
	quit     chan struct{}
	stopOnce sync.Once
}

// Options configures optional server dependencies.
type Options struct {
	// History serves the History method; nil makes it an application error.
	History model.HistoryReader
	// HistoryLimit caps the rows a single History call returns; zero means no cap.
	HistoryLimit int
	// UnknownSource is the agent's sentinel for bad source names; matching
	// errors are reported as invalid params.
	UnknownSource error
	Logger        *zap.Logger
}

// NewServer creates a new socket RPC server.
func NewServer(socketPath string, agent model.AgentAPI, opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		socketPath: socketPath,
		agent:      agent,
		history:    opts.History,
		historyMax: opts.HistoryLimit,
		unknown:    opts.UnknownSource,
		log:        log.Named("socketrpc"),
		quit:       make(chan struct{}),
	}
}

// Path returns the socket path.
func (s *Server) Path() string { return s.socketPath }

// Start begins listening on the Unix socket and accepting connections.
func (s *Server) Start() error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0o755); err != nil {
		return fmt.Errorf("socketrpc: mkdir: %w", err)
	}

	if _, err := os.Stat(s.socketPath); err == nil {
		conn, dialErr := net.DialTimeout("unix", s.socketPath, staleDialTimeout)
		if dialErr == nil {
			conn.Close()
			return fmt.Errorf("socketrpc: another server is already listening on %s", s.socketPath)
		}
		// Nobody answered: the file is left over from a crashed process.
		if err := os.Remove(s.socketPath); err != nil {
			return fmt.Errorf("socketrpc: remove stale socket: %w", err)
		}
	}

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("socketrpc: listen: %w", err)
	}
	s.listener = ln

	s.wg.Add(1)
	go s.acceptLoop()

	s.log.Info("listening", zap.String("path", s.socketPath))
	return nil
}

// Stop closes the listener, waits for connections to drain, and removes the
// socket file. Safe to call more than once.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.quit)
		if s.listener != nil {
			s.listener.Close()
		}
		s.wg.Wait()
		os.Remove(s.socketPath)
	})
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
				s.log.Warn("accept error", zap.Error(err))
				continue
			}
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-s.quit:
			// Unblock the scanner.
			conn.SetReadDeadline(time.Now())
		case <-done:
		}
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, scannerInitBufSize), scannerMaxTokenSize)
	encoder := json.NewEncoder(conn)

	for scanner.Scan() {
		var req Request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			resp := Response{JSONRPC: "2.0", Error: &RPCError{Code: CodeParseError, Message: "parse error"}}
			if err := encoder.Encode(resp); err != nil {
				return
			}
			continue
		}

		start := time.Now()
		resp := s.dispatch(req)
		s.log.Debug("rpc",
			zap.String("method", req.Method),
			zap.Int("id", req.ID),
			zap.Bool("error", resp.Error != nil),
			zap.Duration("elapsed", time.Since(start)))
		if err := encoder.Encode(resp); err != nil {
			return
		}
	}
}

func (s *Server) dispatch(req Request) Response {
	resp := Response{JSONRPC: "2.0", ID: req.ID}

	result := func(v any, err error) Response {
		if err != nil {
			code := CodeApplication
			if s.unknown != nil && errors.Is(err, s.unknown) {
				code = CodeInvalidParams
			}
			resp.Error = &RPCError{Code: code, Message: err.Error()}
			return resp
		}
		data, merr := json.Marshal(v)
		if merr != nil {
			resp.Error = &RPCError{Code: CodeInternal, Message: merr.Error()}
			return resp
		}
		resp.Result = data
		return resp
	}
	invalidParams := func(err error) Response {
		resp.Error = &RPCError{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid params: %v", err)}
		return resp
	}
	// Params are optional everywhere; only malformed JSON is rejected.
	decode := func(dst any) error {
		if len(req.Params) == 0 || string(req.Params) == "null" {
			return nil
		}
		return json.Unmarshal(req.Params, dst)
	}

	switch req.Method {
	case MethodDashboard:
		return result(s.agent.Dashboard(), nil)

	case MethodSources:
		return result(s.agent.Sources(), nil)

	case MethodHistory:
		var p HistoryParams
		if err := decode(&p); err != nil {
			return invalidParams(err)
		}
		if p.Source != "" && !slices.Contains(model.Sources, p.Source) {
			resp.Error = &RPCError{Code: CodeInvalidParams, Message: fmt.Sprintf("unknown source %q", p.Source)}
			return resp
		}
		return result(s.historyResult(p))

	case MethodRefresh:
		var p SourceParams
		if err := decode(&p); err != nil {
			return invalidParams(err)
		}
		if p.Wait {
			if w, ok := s.agent.(Waiter); ok {
				ctx, cancel := context.WithTimeout(context.Background(), defaultCallLimit)
				defer cancel()
				return s.control(func(src string) error { return w.RefreshAndWait(ctx, src) }, p.Source, result)
			}
		}
		return s.control(s.agent.Refresh, p.Source, result)

	case MethodPause:
		var p SourceParams
		if err := decode(&p); err != nil {
			return invalidParams(err)
		}
		return s.control(s.agent.Pause, p.Source, result)

	case MethodResume:
		var p SourceParams
		if err := decode(&p); err != nil {
			return invalidParams(err)
		}
		return s.control(s.agent.Resume, p.Source, result)

	default:
		resp.Error = &RPCError{Code: CodeMethodNotFound, Message: fmt.Sprintf("method not found: %s", req.Method)}
		return resp
	}
}

func (s *Server) control(op func(string) error, source string, result func(any, error) Response) Response {
	if err := op(source); err != nil {
		return result(nil, err)
	}
	return result(s.agent.Sources(), nil)
}

func (s *Server) historyResult(p HistoryParams) (HistoryResult, error) {
	if s.history == nil {
		return HistoryResult{}, ErrNoHistory
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultCallLimit)
	defer cancel()

	if s.historyMax > 0 && (p.Limit <= 0 || p.Limit > s.historyMax) {
		p.Limit = s.historyMax
	}
	recs, err := s.history.RecentSyncs(ctx, p.Source, p.Limit)
	if err != nil {
		return HistoryResult{}, err
	}
	sources := model.Sources
	if p.Source != "" {
		sources = []string{p.Source}
	}
	out := HistoryResult{Records: recs, Stats: make([]model.SyncStats, 0, len(sources))}
	for _, src := range sources {
		st, err := s.history.SyncStats(ctx, src)
		if err != nil {
			return HistoryResult{}, err
		}
		out.Stats = append(out.Stats, st)
	}
	return out, nil
}
