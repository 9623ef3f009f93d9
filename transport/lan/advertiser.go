package lan

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/hashicorp/mdns"

	"github.com/zero2005x/RokidStream-sub001/transport"
)

// Advertiser is the passive side of the LAN transport: it publishes the
// mDNS service and accepts the primary (and optionally secondary) TCP
// connections from a discovering peer.
type Advertiser struct {
	log       *slog.Logger
	instance  string
	primary   net.Listener
	secondary net.Listener // nil when no reverse channel is offered
	server    *mdns.Server
}

// AdvertiserConfig parameterizes an Advertiser.
type AdvertiserConfig struct {
	Instance      string // instance name; defaults to the hostname
	PrimaryPort   int    // 0: DefaultPrimaryPort
	SecondaryPort int    // 0: DefaultSecondaryPort; negative: no reverse channel
	Logger        *slog.Logger
}

// NewAdvertiser binds the TCP listeners and publishes the mDNS service.
func NewAdvertiser(cfg AdvertiserConfig) (*Advertiser, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "lan-advertiser")

	if cfg.PrimaryPort == 0 {
		cfg.PrimaryPort = DefaultPrimaryPort
	}
	if cfg.SecondaryPort == 0 {
		cfg.SecondaryPort = DefaultSecondaryPort
	}
	if cfg.Instance == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "rokidstream"
		}
		cfg.Instance = host
	}

	primary, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.PrimaryPort))
	if err != nil {
		return nil, fmt.Errorf("listen primary: %w", err)
	}

	var secondary net.Listener
	secondaryPort := 0
	if cfg.SecondaryPort > 0 {
		secondary, err = net.Listen("tcp", fmt.Sprintf(":%d", cfg.SecondaryPort))
		if err != nil {
			primary.Close()
			return nil, fmt.Errorf("listen secondary: %w", err)
		}
		secondaryPort = secondary.Addr().(*net.TCPAddr).Port
	}

	svc, err := mdns.NewMDNSService(
		cfg.Instance, ServiceName, "", "",
		primary.Addr().(*net.TCPAddr).Port, nil,
		AdvertiseTXT(secondaryPort),
	)
	if err != nil {
		primary.Close()
		if secondary != nil {
			secondary.Close()
		}
		return nil, fmt.Errorf("mdns service: %w", err)
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: svc})
	if err != nil {
		primary.Close()
		if secondary != nil {
			secondary.Close()
		}
		return nil, fmt.Errorf("mdns server: %w", err)
	}

	log.Info("advertising", "service", ServiceName, "instance", cfg.Instance,
		"primary_port", primary.Addr().(*net.TCPAddr).Port, "secondary_port", secondaryPort)

	return &Advertiser{
		log:       log,
		instance:  cfg.Instance,
		primary:   primary,
		secondary: secondary,
		server:    server,
	}, nil
}

// Accept waits for a discovering peer to connect. The peer dials the
// primary port first; the secondary connection is given a bounded window
// and the link degrades to duplex-on-primary when it does not arrive.
// Note the channel roles invert on this side: the advertiser receives on
// the connection the peer sends on.
func (a *Advertiser) Accept() (*transport.Endpoint, error) {
	inbound, err := a.primary.Accept()
	if err != nil {
		return nil, fmt.Errorf("accept primary: %w", err)
	}
	a.log.Info("peer connected", "remote", inbound.RemoteAddr())

	if a.secondary == nil {
		return &transport.Endpoint{
			Primary: inbound,
			Remote:  inbound.RemoteAddr().String(),
			Detail:  "tcp duplex",
		}, nil
	}

	type acceptResult struct {
		conn net.Conn
		err  error
	}
	resCh := make(chan acceptResult, 1)
	go func() {
		c, aerr := a.secondary.Accept()
		resCh <- acceptResult{conn: c, err: aerr}
	}()

	select {
	case res := <-resCh:
		if res.err != nil {
			a.log.Warn("secondary accept failed, duplex on primary", "error", res.err)
			return &transport.Endpoint{
				Primary: inbound,
				Remote:  inbound.RemoteAddr().String(),
				Detail:  "tcp duplex",
			}, nil
		}
		// Outbound frames go on the connection the peer dialed to our
		// secondary port; inbound frames arrive on the primary one.
		return &transport.Endpoint{
			Primary: res.conn,
			Reverse: inbound,
			Remote:  inbound.RemoteAddr().String(),
			Detail:  "tcp primary+reverse",
		}, nil
	case <-time.After(transport.ConnectTimeout):
		a.log.Warn("no secondary connection within timeout, duplex on primary")
		return &transport.Endpoint{
			Primary: inbound,
			Remote:  inbound.RemoteAddr().String(),
			Detail:  "tcp duplex",
		}, nil
	}
}

// Close stops advertising and closes the listeners. Connections already
// handed out by Accept are unaffected.
func (a *Advertiser) Close() error {
	err := a.server.Shutdown()
	if cerr := a.primary.Close(); err == nil {
		err = cerr
	}
	if a.secondary != nil {
		if cerr := a.secondary.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
