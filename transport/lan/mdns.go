package lan

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
)

// reverseTXTKey is the TXT record key announcing the secondary port.
const reverseTXTKey = "reverse="

// queryRound bounds one mdns.Query call so cancellation is observed
// promptly between rounds.
const queryRound = 2 * time.Second

// MDNSResolver resolves the streaming service by repeated mDNS queries
// until a peer answers or the context is cancelled.
type MDNSResolver struct {
	service string
	log     *slog.Logger
}

// NewMDNSResolver creates a resolver for the given service name.
func NewMDNSResolver(service string, log *slog.Logger) *MDNSResolver {
	if log == nil {
		log = slog.Default()
	}
	return &MDNSResolver{service: service, log: log.With("component", "mdns-resolver")}
}

// Lookup queries for the service until a peer is found or ctx is done.
func (r *MDNSResolver) Lookup(ctx context.Context) (Peer, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Peer{}, err
		}

		entries := make(chan *mdns.ServiceEntry, 8)
		done := make(chan Peer, 1)
		go func() {
			for e := range entries {
				if p, ok := entryToPeer(e); ok {
					select {
					case done <- p:
					default:
					}
				}
			}
		}()

		params := mdns.DefaultParams(r.service)
		params.Entries = entries
		params.Timeout = queryRound
		params.DisableIPv6 = true
		err := mdns.Query(params)
		close(entries)
		if err != nil {
			r.log.Warn("mdns query failed", "error", err)
		}

		select {
		case p := <-done:
			return p, nil
		default:
		}
	}
}

func entryToPeer(e *mdns.ServiceEntry) (Peer, bool) {
	if e.AddrV4 == nil || e.Port == 0 {
		return Peer{}, false
	}
	p := Peer{Host: e.AddrV4.String(), PrimaryPort: e.Port}
	for _, f := range e.InfoFields {
		if strings.HasPrefix(f, reverseTXTKey) {
			if port, err := strconv.Atoi(strings.TrimPrefix(f, reverseTXTKey)); err == nil {
				p.SecondaryPort = port
			}
		}
	}
	return p, true
}

// AdvertiseTXT builds the TXT record fields for a service advertising the
// given secondary port. A zero port advertises no reverse channel.
func AdvertiseTXT(secondaryPort int) []string {
	if secondaryPort <= 0 {
		return nil
	}
	return []string{fmt.Sprintf("%s%d", reverseTXTKey, secondaryPort)}
}
