package l2cap

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"

	"tinygo.org/x/bluetooth"
)

// BLELink is the production ControlLink, backed by the platform BLE
// adapter. It scans for the RokidStream service advertisement and exposes
// the matched device's GATT characteristics.
type BLELink struct {
	adapter *bluetooth.Adapter
	log     *slog.Logger

	enableOnce sync.Once
	enableErr  error
}

// NewBLELink creates a control link on the default BLE adapter. If log is
// nil, slog.Default() is used.
func NewBLELink(log *slog.Logger) *BLELink {
	if log == nil {
		log = slog.Default()
	}
	return &BLELink{
		adapter: bluetooth.DefaultAdapter,
		log:     log.With("component", "ble-link"),
	}
}

// Scan blocks until a device advertising the streaming service is found or
// ctx is cancelled.
func (l *BLELink) Scan(ctx context.Context) (PeerDevice, error) {
	l.enableOnce.Do(func() { l.enableErr = l.adapter.Enable() })
	if l.enableErr != nil {
		return nil, fmt.Errorf("enable adapter: %w", l.enableErr)
	}

	serviceUUID, err := bluetooth.ParseUUID(ServiceUUID)
	if err != nil {
		return nil, fmt.Errorf("parse service uuid: %w", err)
	}

	found := make(chan bluetooth.ScanResult, 1)
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		l.adapter.StopScan()
	}()

	l.log.Info("scanning", "service", ServiceUUID)
	err = l.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
		if !result.AdvertisementPayload.HasServiceUUID(serviceUUID) {
			return
		}
		select {
		case found <- result:
		default:
		}
		adapter.StopScan()
	})
	close(stop)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	select {
	case result := <-found:
		l.log.Info("advertisement matched",
			"addr", result.Address.String(), "name", result.LocalName())
		return &bleDevice{adapter: l.adapter, result: result, log: l.log}, nil
	default:
		// Scan ended without a match: the context was cancelled.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("scan stopped without a match")
	}
}

type bleDevice struct {
	adapter *bluetooth.Adapter
	result  bluetooth.ScanResult
	log     *slog.Logger
	device  bluetooth.Device
	service bluetooth.DeviceService
	haveSvc bool
}

func (d *bleDevice) Address() string { return d.result.Address.String() }

func (d *bleDevice) Connect(ctx context.Context) error {
	dev, err := d.adapter.Connect(d.result.Address, bluetooth.ConnectionParams{})
	if err != nil {
		return fmt.Errorf("connect %s: %w", d.Address(), err)
	}
	d.device = dev
	return ctx.Err()
}

func (d *bleDevice) ReadPSM(ctx context.Context, characteristic string) (uint16, error) {
	if !d.haveSvc {
		serviceUUID, err := bluetooth.ParseUUID(ServiceUUID)
		if err != nil {
			return 0, err
		}
		svcs, err := d.device.DiscoverServices([]bluetooth.UUID{serviceUUID})
		if err != nil {
			return 0, fmt.Errorf("discover services: %w", err)
		}
		if len(svcs) == 0 {
			return 0, fmt.Errorf("service %s not exposed", ServiceUUID)
		}
		d.service = svcs[0]
		d.haveSvc = true
	}

	charUUID, err := bluetooth.ParseUUID(characteristic)
	if err != nil {
		return 0, err
	}
	chars, err := d.service.DiscoverCharacteristics([]bluetooth.UUID{charUUID})
	if err != nil {
		return 0, fmt.Errorf("discover characteristic %s: %w", characteristic, err)
	}
	if len(chars) == 0 {
		return 0, fmt.Errorf("characteristic %s not exposed", characteristic)
	}

	buf := make([]byte, 2)
	n, err := chars[0].Read(buf)
	if err != nil {
		return 0, fmt.Errorf("read characteristic %s: %w", characteristic, err)
	}
	if n < 2 {
		return 0, fmt.Errorf("characteristic %s: short read (%d bytes)", characteristic, n)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(buf), nil
}

func (d *bleDevice) Disconnect() error {
	return d.device.Disconnect()
}
