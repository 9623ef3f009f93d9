package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zero2005x/RokidStream-sub001/internal/nalu"
	"github.com/zero2005x/RokidStream-sub001/internal/wire"
	"github.com/zero2005x/RokidStream-sub001/media"
)

// outboundPump pops frames from the encoder-side queue and serializes them
// onto the send channel. Between frames it emits heartbeats during send
// silence and watches peer liveness; the bounded pop timeout keeps both
// clocks and stop requests observed promptly.
func (s *Session) outboundPump(ctx context.Context, w wire.Writer) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		if !s.flushControls(w) {
			return nil
		}

		if s.livenessExpired() {
			s.log.Warn("peer silent past liveness threshold",
				"threshold", s.opts.livenessTimeout)
			s.down(&Error{Kind: ErrLivenessTimeout,
				Detail: fmt.Sprintf("no frames received for %s", s.opts.livenessTimeout)})
			return nil
		}

		f, ok := s.sendQ.Pop(s.opts.popTimeout)
		if !ok {
			if time.Since(time.Unix(0, s.lastSent.Load())) >= s.opts.heartbeatInterval {
				if !s.writeFrame(w, &wire.Frame{Type: wire.TypeHeartbeat, Payload: wire.HeartbeatPayload}) {
					return nil
				}
				if s.metrics != nil {
					s.metrics.Heartbeats.Inc()
				}
			}
			continue
		}

		wf := &wire.Frame{
			Type:            wire.TypeVideo,
			Payload:         f.Payload,
			TimestampMicros: f.TimestampMicros,
			Keyframe:        f.IsKeyframe,
		}
		switch {
		case f.IsConfig:
			wf.Type = wire.TypeConfig
		case f.IsKeyframe:
			// Reattach the cached configuration to every keyframe so the
			// peer's decoder can recover even when a CONFIG frame was
			// dropped in between.
			s.mu.Lock()
			cfg := s.sendConfig
			s.mu.Unlock()
			if !cfg.Empty() {
				wf.Payload = cfg.Prepend(f.Payload)
				wf.ConfigPrepended = true
			}
			if s.metrics != nil {
				s.metrics.Keyframes.Inc()
			}
		}

		if !s.writeFrame(w, wf) {
			return nil
		}
	}
}

// flushControls writes any queued control frames ahead of video traffic.
// Returns false when the channel failed and the pump must exit.
func (s *Session) flushControls(w wire.Writer) bool {
	for {
		select {
		case cf := <-s.controls:
			if !s.writeFrame(w, cf) {
				return false
			}
		default:
			return true
		}
	}
}

// writeFrame serializes one frame, treating failure after a stop request
// as normal termination. Returns false when the pump must exit.
func (s *Session) writeFrame(w wire.Writer, wf *wire.Frame) bool {
	if err := w.WriteFrame(wf); err != nil {
		if s.stopped.Load() {
			return false
		}
		s.log.Warn("send channel failed", "error", err)
		s.down(&Error{Kind: ErrChannelClosedByPeer, Detail: err.Error()})
		return false
	}
	s.lastSent.Store(time.Now().UnixNano())
	if s.metrics != nil {
		s.metrics.FramesSent.WithLabelValues(wf.Type.String()).Inc()
		s.metrics.BytesSent.Add(float64(len(wf.Payload)))
	}
	return true
}

func (s *Session) livenessExpired() bool {
	return time.Since(time.Unix(0, s.lastRecv.Load())) > s.opts.livenessTimeout
}

// inboundPump deserializes frames from the receive channel and routes them:
// configuration is cached and forwarded, video is pushed to the decoder
// queue with configuration prepended to uncovered keyframes, control
// commands are surfaced as events. Skippable protocol violations are
// logged and the stream continues at the next frame boundary.
func (s *Session) inboundPump(ctx context.Context, r wire.Reader) error {
	family := s.opts.family
	for {
		if ctx.Err() != nil {
			return nil
		}

		wf, err := r.ReadFrame()
		if err != nil {
			var pe *wire.ProtocolError
			if errors.As(err, &pe) && !pe.Fatal {
				s.log.Warn("skipping malformed frame", "error", pe)
				if s.metrics != nil {
					s.metrics.ProtocolErrors.Inc()
				}
				s.emit(Event{Kind: EventError, Err: &Error{Kind: ErrProtocolViolation, Detail: pe.Reason}})
				continue
			}
			if s.stopped.Load() || ctx.Err() != nil {
				return nil
			}
			kind := ErrChannelClosedByPeer
			detail := err.Error()
			if errors.As(err, &pe) {
				// The frame boundary cannot be trusted; the channel is
				// unusable even though the peer may still be there.
				kind = ErrProtocolViolation
				detail = pe.Reason
			}
			s.log.Warn("receive channel failed", "error", err)
			s.down(&Error{Kind: kind, Detail: detail})
			return nil
		}

		s.lastRecv.Store(time.Now().UnixNano())
		if s.metrics != nil {
			s.metrics.FramesReceived.WithLabelValues(wf.Type.String()).Inc()
			s.metrics.BytesReceived.Add(float64(len(wf.Payload)))
		}

		switch wf.Type {
		case wire.TypeHeartbeat:
			// Liveness already refreshed; nothing to deliver.

		case wire.TypeDisconnect:
			s.log.Info("peer disconnected")
			s.down(nil)
			return nil

		case wire.TypeControl:
			ctrl, cerr := wire.ParseControl(wf.Payload)
			if cerr != nil {
				s.log.Warn("bad control payload", "error", cerr)
				continue
			}
			s.emit(Event{Kind: EventControl, Control: ctrl})
			if s.opts.handleControl && ctrl.Command == wire.CmdDisconnect {
				s.down(nil)
				return nil
			}

		case wire.TypeConfig:
			s.mu.Lock()
			s.recvConfig.Set(wf.Payload)
			s.mu.Unlock()
			s.recvQ.Push(media.Frame{Payload: wf.Payload, IsConfig: true, TimestampMicros: wf.TimestampMicros})

		case wire.TypeVideo:
			s.recvQ.Push(s.inboundVideo(wf, family))
		}
	}
}

// inboundVideo prepares a received video frame for the decoder queue,
// prepending the cached configuration to any keyframe that does not
// already lead with parameter sets (the radio header carries no flags, so
// classification falls back to the payload).
func (s *Session) inboundVideo(wf *wire.Frame, family nalu.Family) media.Frame {
	payload := wf.Payload
	key := wf.Keyframe || nalu.ContainsKeyframe(payload, family)
	if key && !nalu.IsParameterSet(nalu.FirstUnitType(payload, family), family) {
		s.mu.Lock()
		cfg := s.recvConfig
		s.mu.Unlock()
		payload = cfg.Prepend(payload)
	}
	return media.Frame{
		Payload:         payload,
		IsKeyframe:      key,
		TimestampMicros: wf.TimestampMicros,
	}
}

// deliverPump moves frames from the decoder-side queue to the owner-facing
// channel. A slow decoder backs the queue up, which sheds the oldest
// frames; the pump itself never drops.
func (s *Session) deliverPump(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		f, ok := s.recvQ.Pop(s.opts.popTimeout)
		if !ok {
			s.reportQueueDrops()
			continue
		}
		select {
		case s.frames <- f:
		case <-ctx.Done():
			return nil
		}
	}
}

// reportQueueDrops forwards the queues' eviction counters to the metrics
// sink. Called from the delivery pump's idle path.
func (s *Session) reportQueueDrops() {
	if s.metrics == nil {
		return
	}
	// Counters are monotonically increasing; export deltas.
	sendDrops := s.sendQ.Dropped()
	recvDrops := s.recvQ.Dropped()
	if d := sendDrops - s.reportedSendDrops.Swap(sendDrops); d > 0 {
		s.metrics.FramesDropped.WithLabelValues("encoder").Add(float64(d))
	}
	if d := recvDrops - s.reportedRecvDrops.Swap(recvDrops); d > 0 {
		s.metrics.FramesDropped.WithLabelValues("decoder").Add(float64(d))
	}
}
