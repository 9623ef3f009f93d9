// Package session orchestrates one streaming connection: it owns the
// negotiated channel, the bounded frame queues on both sides of the wire,
// the outbound and inbound pump goroutines, and peer liveness. Frames enter
// from the encoder collaborator through SubmitFrame and leave toward the
// decoder collaborator through Frames. A session is single-use: once
// closed it cannot be restarted, reconnection constructs a new session.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/zero2005x/RokidStream-sub001/internal/metrics"
	"github.com/zero2005x/RokidStream-sub001/internal/nalu"
	"github.com/zero2005x/RokidStream-sub001/internal/queue"
	"github.com/zero2005x/RokidStream-sub001/internal/wire"
	"github.com/zero2005x/RokidStream-sub001/media"
	"github.com/zero2005x/RokidStream-sub001/transport"
)

// ErrNotRestartable is returned by Start on a session that has already run.
var ErrNotRestartable = errors.New("session: closed sessions cannot be restarted")

// eventBuffer is the capacity of the owner-facing event channel.
const eventBuffer = 16

// Session is one streaming connection to a single peer. Multiple sessions
// may coexist; a session holds no process-wide state.
type Session struct {
	id         string
	log        *slog.Logger
	opts       options
	metrics    *metrics.Metrics
	negotiator transport.Negotiator

	// mu guards state, the codec-config caches, and the fields written
	// during Start/Stop. The queues synchronize themselves.
	mu            sync.Mutex
	state         State
	sendConfig    media.CodecConfig
	recvConfig    media.CodecConfig
	endpoint      *transport.Endpoint
	cancel        context.CancelFunc
	pumpsLaunched bool

	sendQ    *queue.Queue
	recvQ    *queue.Queue
	controls chan *wire.Frame
	events   chan Event
	frames   chan media.Frame

	stopped     atomic.Bool
	stopOnce    sync.Once
	downOnce    sync.Once
	framesOnce  sync.Once
	pumpsExited chan struct{}

	lastSent atomic.Int64 // unix nanos of the last wire write
	lastRecv atomic.Int64 // unix nanos of the last frame of any type received

	reportedSendDrops atomic.Int64
	reportedRecvDrops atomic.Int64
}

// New creates a session that will reach its peer through the given
// negotiator. The session starts in StateIdle; nothing happens until Start.
func New(negotiator transport.Negotiator, opts ...Option) *Session {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	log := o.logger
	if log == nil {
		log = slog.Default()
	}
	id := gonanoid.Must(10)

	return &Session{
		id:          id,
		log:         log.With("component", "session", "session_id", id),
		opts:        o,
		metrics:     o.metrics,
		negotiator:  negotiator,
		state:       StateIdle,
		sendQ:       queue.New(o.sendQueueSize),
		recvQ:       queue.New(o.recvQueueSize),
		controls:    make(chan *wire.Frame, 8),
		events:      make(chan Event, eventBuffer),
		frames:      make(chan media.Frame),
		pumpsExited: make(chan struct{}),
	}
}

// ID returns the session's identifier, used in logs.
func (s *Session) ID() string { return s.id }

// Frames returns the decoder-facing stream. Payloads already include any
// prepended codec configuration, in arrival order. The channel closes when
// the session is closed.
func (s *Session) Frames() <-chan media.Frame {
	return s.frames
}

// Start negotiates the channel and brings the pumps up. It blocks through
// discovery and handshake; cancel ctx to abort discovery. On negotiation
// failure the session returns to StateIdle so the owner can retry with a
// fresh Start.
func (s *Session) Start(ctx context.Context) error {
	if !s.compareAndSetState(StateIdle, StateDiscovering) {
		return ErrNotRestartable
	}

	negCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	mirrorDone := make(chan struct{})
	go s.mirrorNegotiatorState(mirrorDone)

	ep, err := s.negotiator.Negotiate(negCtx)
	close(mirrorDone)
	if err != nil {
		if s.stopped.Load() {
			return err
		}
		serr := errorFromFault(err)
		s.emit(Event{Kind: EventError, Err: serr})
		// Back to idle: the attempt failed, the session did not.
		s.mu.Lock()
		s.state = StateIdle
		s.mu.Unlock()
		s.emit(Event{Kind: EventStateChanged, State: StateIdle})
		return err
	}

	s.mu.Lock()
	if s.stopped.Load() {
		s.mu.Unlock()
		ep.Close()
		return fmt.Errorf("session %s: stopped during negotiation", s.id)
	}
	s.endpoint = ep
	s.mu.Unlock()

	s.log.Info("channel open", "remote", ep.Remote, "detail", ep.Detail,
		"format", s.opts.format)
	s.setState(StateConnected)
	s.emit(Event{Kind: EventConnected})

	now := time.Now().UnixNano()
	s.lastSent.Store(now)
	s.lastRecv.Store(now)

	writer := wire.NewWriter(ep.SendChannel(), s.opts.format)
	reader := wire.NewReader(ep.ReceiveChannel(), s.opts.format)

	g, pumpCtx := errgroup.WithContext(negCtx)
	g.Go(func() error { return s.outboundPump(pumpCtx, writer) })
	g.Go(func() error { return s.inboundPump(pumpCtx, reader) })
	g.Go(func() error { return s.deliverPump(pumpCtx) })

	s.mu.Lock()
	s.pumpsLaunched = true
	s.mu.Unlock()

	go func() {
		if werr := g.Wait(); werr != nil {
			s.log.Debug("pumps exited", "error", werr)
		}
		close(s.pumpsExited)
	}()

	s.setState(StateStreaming)
	return nil
}

// mirrorNegotiatorState reflects the negotiator's handshake progress into
// the session state so owners observe Discovering then Negotiating.
func (s *Session) mirrorNegotiatorState(done <-chan struct{}) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if s.negotiator.State() == transport.StateHandshaking {
				s.compareAndSetState(StateDiscovering, StateNegotiating)
				return
			}
		}
	}
}

// SubmitFrame accepts one encoder output buffer. Configuration units are
// cached (and split off a keyframe-prefixed buffer) before the frame is
// queued; a full queue sheds its oldest frame. Frames submitted outside
// StateStreaming are dropped.
func (s *Session) SubmitFrame(payload []byte, isKeyframe bool) {
	if s.State() != StateStreaming {
		s.log.Debug("frame dropped, not streaming", "bytes", len(payload))
		return
	}

	buf := make([]byte, len(payload))
	copy(buf, payload)
	family := s.opts.family
	ts := uint64(time.Now().UnixMicro())

	if nalu.IsConfigOnly(buf, family) {
		s.mu.Lock()
		s.sendConfig.Set(buf)
		s.mu.Unlock()
		s.sendQ.Push(media.Frame{Payload: buf, IsConfig: true, TimestampMicros: ts})
		return
	}

	if config, rest := nalu.SplitConfigAndKeyframe(buf, family); len(config) > 0 && len(rest) > 0 {
		s.mu.Lock()
		s.sendConfig.Set(config)
		s.mu.Unlock()
		buf = rest
		isKeyframe = true
	}

	s.sendQ.Push(media.Frame{
		Payload:         buf,
		IsKeyframe:      isKeyframe || nalu.ContainsKeyframe(buf, family),
		TimestampMicros: ts,
	})
}

// RequestKeyFrame asks the peer to force its next encode to a keyframe.
// The request is best-effort; the session does not wait for compliance.
func (s *Session) RequestKeyFrame() {
	s.SendControl(wire.CmdRequestKeyframe)
}

// SendControl queues a control command for transmission.
func (s *Session) SendControl(command string, args ...string) {
	cf := &wire.Frame{Type: wire.TypeControl, Payload: wire.EncodeControl(command, args...)}
	select {
	case s.controls <- cf:
	default:
		s.log.Warn("control buffer full, dropping", "command", command)
	}
}

// Stop shuts the session down. It is idempotent, safe from any state
// including concurrently with an in-flight negotiation, and does not block
// indefinitely: pending channel I/O is unblocked by closing the channel.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.stopped.Store(true)
		s.setState(StateClosing)

		s.mu.Lock()
		cancel := s.cancel
		ep := s.endpoint
		launched := s.pumpsLaunched
		s.mu.Unlock()

		if launched {
			// Best-effort disconnect notice before the channel goes away.
			select {
			case s.controls <- &wire.Frame{Type: wire.TypeDisconnect, Payload: []byte{0}}:
				s.awaitControlDrain(250 * time.Millisecond)
			default:
			}
		}

		if cancel != nil {
			cancel()
		}
		if ep != nil {
			ep.Close()
		}
		if launched {
			<-s.pumpsExited
		}

		dropped := s.sendQ.Drain() + s.recvQ.Drain()
		if dropped > 0 {
			s.log.Debug("queues drained", "frames", dropped)
		}
		s.mu.Lock()
		s.sendConfig.Reset()
		s.recvConfig.Reset()
		s.mu.Unlock()

		s.setState(StateClosed)
		s.framesOnce.Do(func() { close(s.frames) })
		s.log.Info("session closed")
	})
}

// awaitControlDrain gives the outbound pump a bounded window to flush
// queued control frames (the disconnect notice) before teardown.
func (s *Session) awaitControlDrain(limit time.Duration) {
	deadline := time.Now().Add(limit)
	for len(s.controls) > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
}

// down records an involuntary disconnect exactly once and tears the
// session down without blocking the calling pump.
func (s *Session) down(serr *Error) {
	s.downOnce.Do(func() {
		if serr != nil {
			s.emit(Event{Kind: EventError, Err: serr})
		}
		s.emit(Event{Kind: EventDisconnected})
		go s.Stop()
	})
}

func errorFromFault(err error) *Error {
	f := transport.FaultOf(err, transport.FaultDiscovery)
	kind := ErrDiscoveryFailed
	switch f.Kind {
	case transport.FaultHandshakeTimeout:
		kind = ErrHandshakeTimeout
	case transport.FaultChannelOpen:
		kind = ErrChannelOpenFailed
	}
	return &Error{Kind: kind, Detail: f.Error()}
}
