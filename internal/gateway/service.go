// Package gateway runs the TCP listener the POS terminals dial: one
// goroutine per connection, content-based message recovery from the byte
// stream, and framed responses written back on the same socket.
package gateway

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rtnapps/loyalty-gateway/internal/export"
	"github.com/rtnapps/loyalty-gateway/internal/observability"
	"github.com/rtnapps/loyalty-gateway/internal/protocol/extract"
	"github.com/rtnapps/loyalty-gateway/internal/protocol/frame"
	"github.com/rtnapps/loyalty-gateway/internal/protocol/posxml"
)

const (
	readChunkSize = 4096
	writeTimeout  = 10 * time.Second

	// duplicateGap mimics the small spacing between duplicate frames seen in
	// vendor captures.
	duplicateGap = 10 * time.Millisecond
)

// ServiceConfig holds the listener and per-connection stream settings.
type ServiceConfig struct {
	ListenAddr  string
	IdleTimeout time.Duration
	KeepAlive   time.Duration

	MaxBufferBytes int
	TrimToBytes    int

	// DuplicateResponses sends every frame DuplicateCount times; some
	// terminal firmware drops the first frame after an idle period.
	DuplicateResponses bool
	DuplicateCount     int

	// ReplyToControlOnly acknowledges keep-alive chunks that carry no
	// recoverable message with an empty framed payload.
	ReplyToControlOnly bool
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		ListenAddr:     ":9000",
		IdleTimeout:    60 * time.Second,
		KeepAlive:      30 * time.Second,
		MaxBufferBytes: 20000,
		TrimToBytes:    10000,
		DuplicateCount: 2,
	}
}

// Service owns the accept loop and tracked connections.
type Service struct {
	cfg        ServiceConfig
	dispatcher *Dispatcher
	recorder   *export.Recorder
	log        zerolog.Logger

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}

	clientCount atomic.Int64
}

func NewService(cfg ServiceConfig, d *Dispatcher, rec *export.Recorder, logger zerolog.Logger) *Service {
	def := DefaultServiceConfig()
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = def.ListenAddr
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = def.IdleTimeout
	}
	if cfg.MaxBufferBytes <= 0 {
		cfg.MaxBufferBytes = def.MaxBufferBytes
	}
	if cfg.TrimToBytes <= 0 || cfg.TrimToBytes > cfg.MaxBufferBytes {
		cfg.TrimToBytes = def.TrimToBytes
	}
	if cfg.DuplicateCount <= 1 {
		cfg.DuplicateCount = def.DuplicateCount
	}
	return &Service{
		cfg:        cfg,
		dispatcher: d,
		recorder:   rec,
		log:        logger,
		conns:      make(map[net.Conn]struct{}),
	}
}

// Run listens and serves until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	lc := net.ListenConfig{KeepAlive: s.cfg.KeepAlive}
	ln, err := lc.Listen(ctx, "tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	s.log.Info().Str("addr", ln.Addr().String()).Msg("gateway listening")
	return s.Serve(ctx, ln)
}

// Serve accepts POS connections on an existing listener.
func (s *Service) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	go func() {
		<-ctx.Done()
		s.closeAllConns()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		s.trackConn(conn)
		go s.handleConn(conn)
	}
}

// handleConn reads chunks until the idle deadline passes or the peer hangs
// up. Each chunk is appended to a per-connection buffer, messages are
// recovered by content, dispatched in order, and the buffer is cleared once
// a batch has been processed.
func (s *Service) handleConn(conn net.Conn) {
	connID := uuid.NewString()
	remote := conn.RemoteAddr().String()
	logger := s.log.With().Str("conn_id", connID).Str("remote", remote).Logger()

	observability.RecordConnectionOpened()
	active := s.clientCount.Add(1)
	logger.Info().Int64("active_clients", active).Msg("pos connected")

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("connection handler panicked")
		}
		conn.Close()
		s.untrackConn(conn)
		observability.RecordConnectionClosed()
		remaining := s.clientCount.Add(-1)
		logger.Info().Int64("active_clients", remaining).Msg("pos disconnected")
	}()

	var buffer []byte
	chunk := make([]byte, readChunkSize)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
		n, err := conn.Read(chunk)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				logger.Debug().Msg("idle timeout, closing connection")
			}
			return
		}
		buffer = append(buffer, chunk[:n]...)
		if len(buffer) > s.cfg.MaxBufferBytes {
			logger.Warn().Int("size", len(buffer)).Int("trim_to", s.cfg.TrimToBytes).Msg("buffer over limit, trimming")
			buffer = buffer[len(buffer)-s.cfg.TrimToBytes:]
		}

		messages := extract.Messages(buffer)
		if len(messages) == 0 {
			if s.cfg.ReplyToControlOnly {
				s.writeFrames(conn, logger, "")
			}
			continue
		}

		for _, raw := range messages {
			req := posxml.Classify(raw)
			tag := req.RootTag
			if tag == "" {
				tag = "unparseable"
			}
			observability.RecordMessage(tag)
			s.recordRow(remote, req)

			payload, respond := s.dispatcher.Dispatch(req)
			if !respond {
				continue
			}
			s.writeFrames(conn, logger, payload)
		}

		// Recovered messages are treated as complete; anything left over is
		// stream noise, not a partial request.
		buffer = buffer[:0]
	}
}

func (s *Service) recordRow(remote string, req posxml.Request) {
	if s.recorder == nil {
		return
	}
	row := export.Row{Remote: remote, MsgType: req.RootTag}
	if req.Kind != posxml.KindUnparseable {
		row.StoreLocationID = req.StoreLocationID
		row.POSTransactionID = req.POSTransactionID()
		row.TenderAmount = req.TenderAmount()
		row.UPC = req.FirstUPC()
		row.Description = req.FirstDescription()
	}
	s.recorder.Append(row)
}

func (s *Service) writeFrames(conn net.Conn, logger zerolog.Logger, payload string) {
	framed := frame.Encode([]byte(payload))
	count := 1
	if s.cfg.DuplicateResponses {
		count = s.cfg.DuplicateCount
	}
	for i := 0; i < count; i++ {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if _, err := conn.Write(framed); err != nil {
			logger.Warn().Err(err).Msg("response write failed")
			return
		}
		if i < count-1 {
			time.Sleep(duplicateGap)
		}
	}
	logger.Debug().Int("bytes", len(framed)).Int("copies", count).Msg("response sent")
}

func (s *Service) trackConn(conn net.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	s.conns[conn] = struct{}{}
}

func (s *Service) untrackConn(conn net.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	delete(s.conns, conn)
}

func (s *Service) closeAllConns() {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
		delete(s.conns, conn)
	}
}
