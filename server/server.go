// Package server implements the TCP front end of the gateway (spec.md
// §4.9 TcpServer): the accept loop, the bounded worker pool, and the
// per-connection read-frame/dispatch/write-frame loop.
package server

import (
	"context"
	"errors"
	"io"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nxgw/atmgateway/iso8583"
	"github.com/nxgw/atmgateway/metrics"
	"github.com/nxgw/atmgateway/processor"
)

// Config holds TcpServer parameters (spec.md §6 server.* keys).
type Config struct {
	Port            int
	Threads         int
	SocketTimeoutMs int
}

// Server accepts ISO-8583 connections and dispatches each to the
// bounded worker pool. The pool itself is the only mutable shared
// structure; it is safe for concurrent use (spec.md §5).
type Server struct {
	cfg       Config
	codec     *iso8583.WireCodec
	dict      *iso8583.Dictionary
	processor *processor.Processor
	metrics   *metrics.Metrics

	listener net.Listener
	tokens   chan struct{}
	wg       sync.WaitGroup
	closed   atomic.Bool
}

// New builds a Server bound to its collaborators.
func New(cfg Config, codec *iso8583.WireCodec, dict *iso8583.Dictionary, proc *processor.Processor, m *metrics.Metrics) *Server {
	threads := cfg.Threads
	if threads <= 0 {
		threads = 20
	}
	return &Server{
		cfg:       cfg,
		codec:     codec,
		dict:      dict,
		processor: proc,
		metrics:   m,
		tokens:    make(chan struct{}, threads),
	}
}

// Start runs the accept loop. It blocks until the listener is closed
// by Shutdown, at which point it returns nil.
func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = lis

	log.Printf("server: listening on %s", addr)

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.closed.Load() {
				return nil
			}
			log.Printf("server: accept error: %v", err)
			continue
		}

		s.wg.Add(1)
		go s.serve(conn)
	}
}

// Shutdown closes the listener, interrupting the accept loop, then
// waits for every in-flight worker to drain (spec.md §4.9).
func (s *Server) Shutdown(ctx context.Context) error {
	s.closed.Store(true)
	if s.listener != nil {
		_ = s.listener.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// serve runs one connection's acquire-token/loop/release-token
// lifecycle, bounding total concurrency to cfg.Threads.
func (s *Server) serve(conn net.Conn) {
	defer s.wg.Done()

	s.tokens <- struct{}{}
	defer func() { <-s.tokens }()

	if s.metrics != nil {
		s.metrics.ActiveConnections.Inc()
		defer s.metrics.ActiveConnections.Dec()
	}

	remote := conn.RemoteAddr().String()
	log.Printf("server: connection opened from %s", remote)
	defer func() {
		conn.Close()
		log.Printf("server: connection closed from %s", remote)
	}()

	timeout := time.Duration(s.cfg.SocketTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 300 * time.Second
	}

	for {
		if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			log.Printf("server: %s: failed to set read deadline: %v", remote, err)
			return
		}

		payload, err := s.codec.ReadFrame(conn)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			var protoErr *iso8583.ProtocolError
			if errors.As(err, &protoErr) && protoErr.Kind == iso8583.KindFrameIncomplete {
				return
			}
			log.Printf("server: %s: frame read error: %v", remote, err)
			return
		}

		s.handleFrame(conn, remote, payload)
	}
}

// handleFrame decodes one frame, dispatches it to the processor, and
// writes the encoded response. A decode failure yields the minimal
// parse-error response (spec.md §4.9): MTI 0x210, field 39="30".
func (s *Server) handleFrame(conn net.Conn, remote string, payload []byte) {
	request, err := s.codec.Decode(payload)
	if err != nil {
		log.Printf("server: %s: decode error: %v", remote, err)
		s.writeParseErrorResponse(conn, remote)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	response := s.processor.Process(ctx, request)

	encoded, err := s.codec.Encode(response)
	if err != nil {
		log.Printf("server: %s: encode error: %v", remote, err)
		return
	}

	if _, err := conn.Write(encoded); err != nil {
		log.Printf("server: %s: write error, dropping connection: %v", remote, err)
		conn.Close()
	}
}

func (s *Server) writeParseErrorResponse(conn net.Conn, remote string) {
	table, ok := s.dict.Table("0210")
	if !ok {
		table = iso8583.FieldTable{}
	}
	resp := iso8583.NewMessage("0210", table)
	resp.SetString(39, "30")

	encoded, err := s.codec.Encode(resp)
	if err != nil {
		log.Printf("server: %s: failed to encode parse-error response: %v", remote, err)
		return
	}
	if _, err := conn.Write(encoded); err != nil {
		log.Printf("server: %s: write error on parse-error response, dropping connection: %v", remote, err)
		conn.Close()
	}
}
