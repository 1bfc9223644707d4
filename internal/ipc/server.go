package ipc

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"sync"

	"github.com/doismell-labs/musicd/internal/config"
	"github.com/doismell-labs/musicd/internal/diag"
	"github.com/doismell-labs/musicd/internal/snapshot"
	"github.com/doismell-labs/musicd/internal/types"
)

// Server answers read-only queries about the audio engine's latest
// published state over a Unix domain socket. It never touches engine
// internals directly — every field below is a snapshot cell or
// publisher the audio/grid goroutines already expose, so the server
// goroutine only ever calls Load(), never anything that could block
// on or mutate the producer side.
type Server struct {
	socketPath string

	controlBus *snapshot.Cell[types.ControlBusFrame]
	grid       *snapshot.Cell[types.MusicalGridSnapshot]
	style      *snapshot.Cell[types.StyleClassification]
	diagnostics *diag.Publisher
	cfg        *config.EngineConfig

	listener net.Listener
	mu       sync.Mutex
	clients  map[net.Conn]struct{}
}

// NewServer builds a server that answers queries from the given
// snapshot cells, diagnostics publisher, and configuration.
func NewServer(
	socketPath string,
	controlBus *snapshot.Cell[types.ControlBusFrame],
	grid *snapshot.Cell[types.MusicalGridSnapshot],
	style *snapshot.Cell[types.StyleClassification],
	diagnostics *diag.Publisher,
	cfg *config.EngineConfig,
) *Server {
	return &Server{
		socketPath:  socketPath,
		controlBus:  controlBus,
		grid:        grid,
		style:       style,
		diagnostics: diagnostics,
		cfg:         cfg,
		clients:     make(map[net.Conn]struct{}),
	}
}

// Start listens on the configured socket path and serves connections
// until ctx is cancelled, then closes every open connection and
// removes the socket file.
func (s *Server) Start(ctx context.Context) error {
	if err := os.RemoveAll(s.socketPath); err != nil {
		return fmt.Errorf("failed to remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on socket: %w", err)
	}
	s.listener = listener

	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	log.Printf("[IPC] listening on %s", s.socketPath)

	go s.acceptLoop(ctx)

	<-ctx.Done()

	s.mu.Lock()
	for conn := range s.clients {
		conn.Close()
	}
	s.mu.Unlock()

	listener.Close()
	os.RemoveAll(s.socketPath)

	log.Printf("[IPC] server stopped")
	return nil
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				log.Printf("[IPC] accept error: %v", err)
				continue
			}
		}

		s.mu.Lock()
		s.clients[conn] = struct{}{}
		s.mu.Unlock()

		go s.handleConnection(ctx, conn)
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
	}()

	reader := bufio.NewReader(conn)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err != io.EOF {
				log.Printf("[IPC] read error: %v", err)
			}
			return
		}

		req, err := DecodeRequest(line)
		if err != nil {
			s.sendResponse(conn, NewErrorResponse("invalid request format"))
			continue
		}

		resp := s.handleRequest(req)
		if err := s.sendResponse(conn, resp); err != nil {
			return
		}
	}
}

func (s *Server) sendResponse(conn net.Conn, resp *Response) error {
	data, err := EncodeResponse(resp)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = conn.Write(data)
	return err
}

func (s *Server) handleRequest(req *Request) *Response {
	switch req.Cmd {
	case CmdGetControlBus:
		frame, _ := s.controlBus.Load()
		return s.okOrError(frame)
	case CmdGetGrid:
		snap, _ := s.grid.Load()
		return s.okOrError(snap)
	case CmdGetStyle:
		style, _ := s.style.Load()
		return s.okOrError(style)
	case CmdGetDiagnostics:
		snap, _ := s.diagnostics.Load()
		return s.okOrError(snap)
	case CmdGetConfig:
		return s.okOrError(s.cfg)
	default:
		return NewErrorResponse(fmt.Sprintf("unknown command: %s", req.Cmd))
	}
}

func (s *Server) okOrError(data interface{}) *Response {
	resp, err := NewSuccessResponse(data)
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	return resp
}
