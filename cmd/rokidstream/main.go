package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/zero2005x/RokidStream-sub001/config"
	"github.com/zero2005x/RokidStream-sub001/internal/metrics"
	"github.com/zero2005x/RokidStream-sub001/internal/nalu"
	"github.com/zero2005x/RokidStream-sub001/internal/wire"
	"github.com/zero2005x/RokidStream-sub001/session"
	"github.com/zero2005x/RokidStream-sub001/transport"
	"github.com/zero2005x/RokidStream-sub001/transport/l2cap"
	"github.com/zero2005x/RokidStream-sub001/transport/lan"
)

var version = "dev"

func main() {
	cfg := config.Load()

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("rokidstream starting",
		"version", version,
		"role", cfg.Role,
		"transport", cfg.Transport,
		"codec", cfg.Codec,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	g, ctx := errgroup.WithContext(ctx)

	var m *metrics.Metrics
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		m = metrics.New(reg)
		metricsSrv := &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		}
		g.Go(func() error {
			slog.Info("metrics server listening", "addr", cfg.MetricsAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			return metricsSrv.Shutdown(shutdownCtx)
		})
	}

	neg, format, cleanup, err := buildNegotiator(cfg)
	if err != nil {
		slog.Error("failed to set up transport", "error", err)
		os.Exit(1)
	}
	if cleanup != nil {
		defer cleanup()
	}

	family := nalu.FamilyH264
	if cfg.Codec == "h265" {
		family = nalu.FamilyHEVC
	}

	opts := []session.Option{
		session.WithWireFormat(format),
		session.WithCodecFamily(family),
		session.WithHeartbeatInterval(cfg.HeartbeatInterval),
		session.WithLivenessTimeout(cfg.LivenessTimeout),
	}
	if m != nil {
		opts = append(opts, session.WithMetrics(m))
	}
	sess := session.New(neg, opts...)

	slog.Info("session created", "session_id", sess.ID())

	if err := sess.Start(ctx); err != nil {
		slog.Error("negotiation failed", "error", err)
		os.Exit(1)
	}

	g.Go(func() error {
		logEvents(ctx, sess)
		return nil
	})
	g.Go(func() error {
		drainFrames(ctx, sess)
		return nil
	})
	if cfg.Role == "connect" {
		// No encoder is attached in the standalone binary; feed a
		// synthetic pattern so the peer sees real traffic.
		g.Go(func() error {
			runSyntheticSource(ctx, sess)
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		sess.Stop()
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("runtime error", "error", err)
		os.Exit(1)
	}
}

// buildNegotiator wires the configured transport. The cleanup func (may be
// nil) releases listeners held outside the session's lifecycle.
func buildNegotiator(cfg *config.Config) (transport.Negotiator, wire.Format, func(), error) {
	switch cfg.Transport {
	case "lan":
		if cfg.Role == "advertise" {
			adv, err := lan.NewAdvertiser(lan.AdvertiserConfig{
				PrimaryPort:   cfg.PrimaryPort,
				SecondaryPort: cfg.SecondaryPort,
			})
			if err != nil {
				return nil, 0, nil, err
			}
			return lan.NewAcceptNegotiator(adv), wire.FormatLAN, func() { adv.Close() }, nil
		}
		return lan.NewNegotiator(lan.Config{WantReverse: cfg.WantReverse}), wire.FormatLAN, nil, nil
	case "l2cap":
		if cfg.Role == "advertise" {
			return nil, 0, nil, fmt.Errorf("l2cap advertise role requires the glasses-side firmware")
		}
		neg := l2cap.NewNegotiator(l2cap.Config{
			Link:        l2cap.NewBLELink(nil),
			Dialer:      l2cap.NewSocketDialer(),
			WantReverse: cfg.WantReverse,
		})
		return neg, wire.FormatRadio, nil, nil
	default:
		return nil, 0, nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

func logEvents(ctx context.Context, sess *session.Session) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-sess.Events():
			switch ev.Kind {
			case session.EventStateChanged:
				slog.Info("session state", "state", ev.State)
			case session.EventConnected:
				slog.Info("peer connected")
			case session.EventDisconnected:
				slog.Info("peer disconnected")
			case session.EventControl:
				slog.Info("control received", "command", ev.Control.Command, "args", ev.Control.Args)
			case session.EventError:
				slog.Warn("session error", "kind", ev.Err.Kind, "detail", ev.Err.Detail)
			}
		}
	}
}

func drainFrames(ctx context.Context, sess *session.Session) {
	frames, bytes := 0, 0
	tick := time.NewTicker(5 * time.Second)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-sess.Frames():
			if !ok {
				return
			}
			frames++
			bytes += len(f.Payload)
		case <-tick.C:
			if frames > 0 {
				slog.Info("received", "frames", frames, "bytes", bytes)
				frames, bytes = 0, 0
			}
		}
	}
}

// runSyntheticSource emits a 30fps pattern of stub access units: parameter
// sets once up front, a keyframe every 30 frames, deltas in between.
func runSyntheticSource(ctx context.Context, sess *session.Session) {
	sps := []byte{0x00, 0x00, 0x00, 0x01, 0x67, 0x42, 0x00, 0x1f}
	pps := []byte{0x00, 0x00, 0x00, 0x01, 0x68, 0xce, 0x38, 0x80}
	idr := append([]byte{0x00, 0x00, 0x00, 0x01, 0x65}, make([]byte, 512)...)
	delta := append([]byte{0x00, 0x00, 0x00, 0x01, 0x41}, make([]byte, 128)...)

	config := append(append([]byte{}, sps...), pps...)
	sess.SubmitFrame(config, false)

	tick := time.NewTicker(33 * time.Millisecond)
	defer tick.Stop()
	n := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			if n%30 == 0 {
				sess.SubmitFrame(idr, true)
			} else {
				sess.SubmitFrame(delta, false)
			}
			n++
		}
	}
}
