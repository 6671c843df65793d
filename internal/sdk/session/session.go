// Package session implements one client session's lifecycle: idle,
// optional version exchange, dispatch, and termination.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/ninevoltz/rgbsdk/internal/dal/codec"
	"github.com/ninevoltz/rgbsdk/internal/dal/registry"
	"github.com/ninevoltz/rgbsdk/internal/sdk/bridge"
	"github.com/ninevoltz/rgbsdk/internal/sdk/proto"
	"github.com/ninevoltz/rgbsdk/internal/sdk/worker"
	"github.com/ninevoltz/rgbsdk/pkg/log"
)

// WorkerLookup resolves a registry index to its worker, or nil if the
// controller has been deregistered.
type WorkerLookup func(idx int) *worker.Worker

// InfoListener is notified whenever a session's client-visible
// identity changes: connect, disconnect, or a SET_CLIENT_NAME.
type InfoListener func(info Info)

// Info is a session's externally visible metadata at the moment of a
// CLIENT_INFO_CHANGED notification.
type Info struct {
	RemoteAddr string
	ClientName string
	Connected  bool
	RTT        time.Duration
}

// Config wires a Session to its collaborators.
type Config struct {
	Conn            proto.Conn
	RemoteAddr      string
	RecvTimeout     time.Duration
	SendMu          *sync.Mutex
	Registry        *registry.Registry
	Workers         WorkerLookup
	Profiles        bridge.ProfileManager
	Plugins         bridge.PluginRegistry
	LegacyProtocol0 bool
	OnInfoChanged   InfoListener
	Logger          log.Logger
}

// Session serves one accepted connection until it errors out or ctx is
// canceled.
type Session struct {
	reader     *proto.Reader
	writer     *proto.Writer
	sendMu     *sync.Mutex
	registry   *registry.Registry
	workers    WorkerLookup
	profiles   bridge.ProfileManager
	plugins    bridge.PluginRegistry
	onInfo     InfoListener
	log        log.Logger
	remoteAddr string
	conn       net.Conn

	legacyProtocol0    bool
	protocolNegotiated bool
	protocolVersion    codec.Version
	clientName         string

	rttMu   sync.Mutex
	lastRTT time.Duration
}

// New constructs a Session from cfg. It does not start serving; call
// Run.
func New(cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNullLogger()
	}
	version := codec.Version(0)
	if cfg.LegacyProtocol0 {
		version = 0
	}
	conn, _ := cfg.Conn.(net.Conn)
	return &Session{
		reader:          proto.NewReader(cfg.Conn, cfg.RecvTimeout),
		writer:          proto.NewWriter(cfg.Conn),
		sendMu:          cfg.SendMu,
		registry:        cfg.Registry,
		workers:         cfg.Workers,
		profiles:        cfg.Profiles,
		plugins:         cfg.Plugins,
		legacyProtocol0: cfg.LegacyProtocol0,
		onInfo:          cfg.OnInfoChanged,
		log:             logger,
		remoteAddr:      cfg.RemoteAddr,
		conn:            conn,
		protocolVersion: version,
	}
}

// Run reads and dispatches frames until the connection errors, ctx is
// canceled, or a bad-magic frame is received. It never returns a non-nil
// error for an orderly peer-initiated close.
func (s *Session) Run(ctx context.Context) error {
	s.notifyInfo(true)
	defer s.notifyInfo(false)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		h, data, err := s.reader.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := s.dispatch(ctx, h, data); err != nil {
			s.log.Warnf("session %s: %v", s.remoteAddr, err)
		}
	}
}

func (s *Session) notifyInfo(connected bool) {
	if s.onInfo == nil {
		return
	}
	s.rttMu.Lock()
	rtt := s.lastRTT
	s.rttMu.Unlock()
	s.onInfo(Info{RemoteAddr: s.remoteAddr, ClientName: s.clientName, Connected: connected, RTT: rtt})
}

// reply writes one frame and, on linux, opportunistically samples the
// socket's TCP_INFO RTT, feeding CLIENT_INFO_CHANGED metadata instead
// of a frame-pacing decision.
func (s *Session) reply(deviceIdx uint32, packetType proto.PacketType, data []byte) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	err := s.writer.WriteFrame(deviceIdx, packetType, data)
	if err == nil && s.conn != nil {
		if rtt := sampleRTT(s.conn); rtt > 0 {
			s.rttMu.Lock()
			s.lastRTT = rtt
			s.rttMu.Unlock()
		}
	}
	return err
}

// dispatch routes one frame: broadcast device_idx or session-handled
// types are served here; metadata queries reply directly; mutations
// are decoded only far enough to find their target controller and
// handed to that controller's worker.
func (s *Session) dispatch(ctx context.Context, h proto.Header, data []byte) error {
	switch h.PacketType {
	case proto.RequestProtocolVersion:
		return s.handleProtocolVersion(h, data)
	case proto.SetClientName:
		return s.handleSetClientName(data)
	case proto.RequestControllerCount:
		return s.reply(h.DeviceIdx, proto.ReplyControllerCount, codec.EncodeU32(uint32(s.registry.Count())))
	case proto.RequestControllerData:
		return s.handleControllerData(h)
	case proto.RequestProfileList:
		return s.handleProfileList(ctx, h)
	case proto.RequestLoadProfile, proto.RequestSaveProfile, proto.RequestDeleteProfile:
		return s.handleProfileMutation(ctx, h, data)
	case proto.RequestPluginList:
		return s.handlePluginList(ctx, h)
	case proto.RequestPluginSpecific:
		return s.handlePluginSpecific(ctx, h, data)
	case proto.RGBControllerResizeZone,
		proto.RGBControllerUpdateLEDs,
		proto.RGBControllerUpdateZoneLEDs,
		proto.RGBControllerUpdateSingleLED,
		proto.RGBControllerSetCustomMode,
		proto.RGBControllerUpdateMode,
		proto.RGBControllerSaveMode:
		return s.handleMutation(h, data)
	default:
		return fmt.Errorf("unknown packet type %d", h.PacketType)
	}
}

// handleProtocolVersion replies with min(client-requested, server max)
// and, absent an explicit request, defaults to 0.
func (s *Session) handleProtocolVersion(h proto.Header, data []byte) error {
	requested, err := codec.DecodeU32(data)
	if err != nil {
		return err
	}
	negotiated := codec.Version(requested)
	if negotiated > codec.MaxVersion {
		negotiated = codec.MaxVersion
	}
	s.protocolVersion = negotiated
	s.protocolNegotiated = true
	return s.reply(h.DeviceIdx, proto.ReplyProtocolVersion, codec.EncodeU32(uint32(negotiated)))
}

func (s *Session) handleSetClientName(data []byte) error {
	name, err := codec.DecodeClientName(data)
	if err != nil {
		return err
	}
	s.clientName = name
	s.notifyInfo(true)
	return nil
}

func (s *Session) version() codec.Version {
	if s.protocolNegotiated || !s.legacyProtocol0 {
		return s.protocolVersion
	}
	return 0
}

func (s *Session) handleControllerData(h proto.Header) error {
	c := s.registry.At(int(h.DeviceIdx))
	if c == nil {
		return fmt.Errorf("controller_data: no controller at index %d", h.DeviceIdx)
	}
	snap := codec.ProjectToVersion(codec.SnapshotOf(c), s.version())
	encoded := codec.EncodeController(snap, s.version())
	return s.reply(h.DeviceIdx, proto.ReplyControllerData, encoded)
}

func (s *Session) handleProfileList(ctx context.Context, h proto.Header) error {
	if s.profiles == nil {
		return s.reply(h.DeviceIdx, proto.ReplyProfileList, codec.EncodeU16(0))
	}
	names, err := s.profiles.ListProfiles(ctx)
	if err != nil {
		return err
	}
	buf := make([]byte, 0, 64)
	buf = append(buf, codec.EncodeU16(uint16(len(names)))...)
	for _, n := range names {
		buf = append(buf, codec.EncodeClientName(n)...)
	}
	return s.reply(h.DeviceIdx, proto.ReplyProfileList, buf)
}

func (s *Session) handleProfileMutation(ctx context.Context, h proto.Header, data []byte) error {
	if s.profiles == nil {
		return nil
	}
	name, err := codec.DecodeClientName(data)
	if err != nil {
		return err
	}
	switch h.PacketType {
	case proto.RequestLoadProfile:
		return s.profiles.LoadProfile(ctx, name)
	case proto.RequestSaveProfile:
		return s.profiles.SaveProfile(ctx, name)
	case proto.RequestDeleteProfile:
		return s.profiles.DeleteProfile(ctx, name)
	}
	return nil
}

func (s *Session) handlePluginList(ctx context.Context, h proto.Header) error {
	if s.plugins == nil {
		return s.reply(h.DeviceIdx, proto.ReplyPluginList, codec.EncodeU16(0))
	}
	plugins, err := s.plugins.List(ctx)
	if err != nil {
		return err
	}
	buf := make([]byte, 0, 64)
	buf = append(buf, codec.EncodeU16(uint16(len(plugins)))...)
	for _, p := range plugins {
		buf = append(buf, codec.EncodeU32(p.ProtocolVersion)...)
		buf = append(buf, codec.EncodeClientName(p.Name)...)
		buf = append(buf, codec.EncodeClientName(p.Description)...)
		buf = append(buf, codec.EncodeClientName(p.Version)...)
	}
	return s.reply(h.DeviceIdx, proto.ReplyPluginList, buf)
}

// handlePluginSpecific splits the plugin name off the front of the
// payload at its first NUL; the remaining bytes are the plugin's own
// free-form wire format and are handed through unparsed, so they must
// not be required to end in a NUL the way DecodeClientName expects.
func (s *Session) handlePluginSpecific(ctx context.Context, h proto.Header, data []byte) error {
	if s.plugins == nil {
		return fmt.Errorf("plugin_specific: no plugin registry configured")
	}
	name, payload, err := codec.SplitNULTerminated(data)
	if err != nil {
		return err
	}
	out, err := s.plugins.Dispatch(ctx, name, payload)
	if err != nil {
		return err
	}
	return s.reply(h.DeviceIdx, proto.ReplyPluginSpecific, out)
}

// handleMutation copies the payload and hands it to the target controller's worker. A
// controller that no longer exists silently drops the packet — this is
// the "deregistered while queued" edge case resolved by never routing
// to a worker that was never found in the first place.
func (s *Session) handleMutation(h proto.Header, data []byte) error {
	w := s.workers(int(h.DeviceIdx))
	if w == nil {
		return nil
	}
	payload := make([]byte, len(data))
	copy(payload, data)

	c := s.registry.At(int(h.DeviceIdx))
	if c != nil && isUpdatePacket(h.PacketType) {
		c.MarkPending()
	}

	w.Enqueue(worker.Entry{
		Payload:       payload,
		PacketType:    h.PacketType,
		ClientVersion: s.version(),
	})
	return nil
}

func isUpdatePacket(t proto.PacketType) bool {
	switch t {
	case proto.RGBControllerUpdateLEDs, proto.RGBControllerUpdateZoneLEDs, proto.RGBControllerUpdateSingleLED:
		return true
	}
	return false
}
