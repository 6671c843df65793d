// Package server implements the SDK network server: multi-homed
// listeners, the controller registry, per-controller workers, and the
// observability hooks clients of this package use to watch connection
// and listening-state changes.
package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/ninevoltz/rgbsdk/internal/dal"
	"github.com/ninevoltz/rgbsdk/internal/dal/registry"
	"github.com/ninevoltz/rgbsdk/internal/sdk/bridge"
	"github.com/ninevoltz/rgbsdk/internal/sdk/proto"
	"github.com/ninevoltz/rgbsdk/internal/sdk/session"
	"github.com/ninevoltz/rgbsdk/internal/sdk/worker"
	"github.com/ninevoltz/rgbsdk/pkg/log"
)

// DefaultPort is the SDK's conventional listen port.
const DefaultPort = 6742

// Config configures a Server before Start.
type Config struct {
	// ListenAddrs is one "host:port" per socket to bind; one accept
	// goroutine is spawned per entry, supporting dual-stack or
	// multi-homed binds.
	ListenAddrs []string
	RecvTimeout time.Duration
	QueueDepth  int
	// LegacyProtocol0 serves protocol version 0 to sessions that never
	// send REQUEST_PROTOCOL_VERSION; a session that does negotiate uses
	// the negotiated version.
	LegacyProtocol0 bool
	Profiles        bridge.ProfileManager
	Plugins         bridge.PluginRegistry
	Logger          log.Logger
}

// ClientInfo mirrors session.Info for the CLIENT_INFO_CHANGED hook.
type ClientInfo = session.Info

// ListeningEvent is delivered to SERVER_LISTENING_CHANGED observers.
type ListeningEvent struct {
	Addr      string
	Listening bool
	Err       error
}

// liveSession is the minimum a connected client needs to be handed an
// unsolicited broadcast frame: a writer and the send mutex its owning
// session also holds replies with, so a broadcast never interleaves
// with a reply on the same socket.
type liveSession struct {
	writer *proto.Writer
	mu     *sync.Mutex
}

// Server owns the controller registry, one worker per registered
// controller, and the set of accept loops serving client sessions.
type Server struct {
	cfg      Config
	log      log.Logger
	Registry *registry.Registry

	workersMu sync.Mutex
	workers   map[int]*worker.Worker

	sessionsMu sync.Mutex
	sessions   map[net.Conn]*liveSession

	listeners []net.Listener
	wg        sync.WaitGroup
	cancel    context.CancelFunc

	infoMu        sync.Mutex
	infoNextToken int
	infoObservers map[int]func(ClientInfo)

	listenMu        sync.Mutex
	listenNextToken int
	listenObservers map[int]func(ListeningEvent)
}

// New constructs a Server. Controllers must be registered with
// RegisterController before or after Start.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNullLogger()
	}
	return &Server{
		cfg:             cfg,
		log:             logger,
		Registry:        registry.New(),
		workers:         make(map[int]*worker.Worker),
		sessions:        make(map[net.Conn]*liveSession),
		infoObservers:   make(map[int]func(ClientInfo)),
		listenObservers: make(map[int]func(ListeningEvent)),
	}
}

// RegisterController adds c to the registry and starts its worker,
// returning the index clients will address it by.
func (s *Server) RegisterController(c *dal.Controller) int {
	idx := s.Registry.Add(c)
	s.workersMu.Lock()
	s.workers[idx] = worker.New(c, s.cfg.QueueDepth, s.log)
	s.workersMu.Unlock()
	return idx
}

// DeregisterController stops idx's worker (draining whatever is already
// queued back-pressure semantics) and removes it from the
// registry. Per scenario 6, a queued entry either fully applies
// before this returns or was never accepted; there is no partial
// application.
func (s *Server) DeregisterController(idx int) {
	s.workersMu.Lock()
	w, ok := s.workers[idx]
	delete(s.workers, idx)
	s.workersMu.Unlock()
	if ok {
		w.Stop()
	}
	s.Registry.Remove(idx)
}

func (s *Server) workerFor(idx int) *worker.Worker {
	s.workersMu.Lock()
	defer s.workersMu.Unlock()
	return s.workers[idx]
}

// OnClientInfoChanged registers fn to be called on every connect,
// disconnect, or client-name change, returning a token for
// RemoveClientInfoListener.
func (s *Server) OnClientInfoChanged(fn func(ClientInfo)) int {
	s.infoMu.Lock()
	defer s.infoMu.Unlock()
	s.infoNextToken++
	token := s.infoNextToken
	s.infoObservers[token] = fn
	return token
}

// RemoveClientInfoListener unregisters a listener added with
// OnClientInfoChanged.
func (s *Server) RemoveClientInfoListener(token int) {
	s.infoMu.Lock()
	defer s.infoMu.Unlock()
	delete(s.infoObservers, token)
}

func (s *Server) emitClientInfo(info ClientInfo) {
	s.infoMu.Lock()
	observers := make([]func(ClientInfo), 0, len(s.infoObservers))
	for _, fn := range s.infoObservers {
		observers = append(observers, fn)
	}
	s.infoMu.Unlock()
	for _, fn := range observers {
		fn(info)
	}
}

// OnServerListeningChanged registers fn to be called whenever a listen
// socket starts, stops, or fails to bind.
func (s *Server) OnServerListeningChanged(fn func(ListeningEvent)) int {
	s.listenMu.Lock()
	defer s.listenMu.Unlock()
	s.listenNextToken++
	token := s.listenNextToken
	s.listenObservers[token] = fn
	return token
}

// RemoveServerListeningListener unregisters a listener added with
// OnServerListeningChanged.
func (s *Server) RemoveServerListeningListener(token int) {
	s.listenMu.Lock()
	defer s.listenMu.Unlock()
	delete(s.listenObservers, token)
}

func (s *Server) emitListening(ev ListeningEvent) {
	s.listenMu.Lock()
	observers := make([]func(ListeningEvent), 0, len(s.listenObservers))
	for _, fn := range s.listenObservers {
		observers = append(observers, fn)
	}
	s.listenMu.Unlock()
	for _, fn := range observers {
		fn(ev)
	}
}

// Start binds every configured listen address and begins accepting
// connections. Per "Bind failure transitions the server to
// 'offline' and fires SERVER_LISTENING_CHANGED with the failure
// reason", a failure on one address does not prevent the others from
// serving: every bind is attempted, and the failures (if any) are
// joined into one error via go-multierror once all attempts complete.
func (s *Server) Start(ctx context.Context) error {
	addrs := s.cfg.ListenAddrs
	if len(addrs) == 0 {
		addrs = []string{fmt.Sprintf(":%d", DefaultPort)}
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	var result *multierror.Error
	for _, addr := range addrs {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("listen %s: %w", addr, err))
			s.emitListening(ListeningEvent{Addr: addr, Listening: false, Err: err})
			continue
		}
		s.listeners = append(s.listeners, ln)
		s.emitListening(ListeningEvent{Addr: addr, Listening: true})

		s.wg.Add(1)
		go s.acceptLoop(runCtx, ln, addr)
	}

	go func() {
		<-runCtx.Done()
		for _, ln := range s.listeners {
			ln.Close()
		}
	}()

	watch := s.Registry.Watch()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.Registry.Unwatch(watch)
		for {
			select {
			case <-runCtx.Done():
				return
			case _, ok := <-watch:
				if !ok {
					return
				}
				s.broadcastDeviceListUpdated()
			}
		}
	}()

	return result.ErrorOrNil()
}

// broadcastDeviceListUpdated fans a DEVICE_LIST_CHANGED notification out
// to every connected session, so a client can re-enumerate controllers
// without polling. The broadcast device_idx means it isn't addressed to
// any one controller.
func (s *Server) broadcastDeviceListUpdated() {
	s.sessionsMu.Lock()
	live := make([]*liveSession, 0, len(s.sessions))
	for _, l := range s.sessions {
		live = append(live, l)
	}
	s.sessionsMu.Unlock()

	for _, l := range live {
		l.mu.Lock()
		err := l.writer.WriteFrame(proto.BroadcastDeviceIdx, proto.DeviceListUpdated, nil)
		l.mu.Unlock()
		if err != nil {
			s.log.Debugf("broadcast device_list_updated: %v", err)
		}
	}
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener, addr string) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.emitListening(ListeningEvent{Addr: addr, Listening: false})
				return
			default:
				s.log.Warnf("accept on %s: %v", addr, err)
				return
			}
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serve(ctx, conn)
		}()
	}
}

func (s *Server) serve(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	sendMu := &sync.Mutex{}
	s.sessionsMu.Lock()
	s.sessions[conn] = &liveSession{writer: proto.NewWriter(conn), mu: sendMu}
	s.sessionsMu.Unlock()
	defer func() {
		s.sessionsMu.Lock()
		delete(s.sessions, conn)
		s.sessionsMu.Unlock()
	}()

	sess := session.New(session.Config{
		Conn:            conn,
		RemoteAddr:      conn.RemoteAddr().String(),
		RecvTimeout:     s.cfg.RecvTimeout,
		SendMu:          sendMu,
		Registry:        s.Registry,
		Workers:         s.workerFor,
		Profiles:        s.cfg.Profiles,
		Plugins:         s.cfg.Plugins,
		LegacyProtocol0: s.cfg.LegacyProtocol0,
		OnInfoChanged:   s.emitClientInfo,
		Logger:          s.log,
	})

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		conn.Close()
		close(done)
	}()

	if err := sess.Run(ctx); err != nil {
		s.log.Debugf("session %s terminated: %v", conn.RemoteAddr(), err)
	}
}

// Stop signals every accept loop, session, and worker to wind down and
// waits for all of them to join.
func (s *Server) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	s.workersMu.Lock()
	workers := make([]*worker.Worker, 0, len(s.workers))
	for _, w := range s.workers {
		workers = append(workers, w)
	}
	s.workersMu.Unlock()
	for _, w := range workers {
		w.Stop()
	}
}
