package sim

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/hkdf"

	"github.com/mash-protocol/lorawan-node/pkg/radio"
)

// Network errors.
var (
	ErrUnknownDevice    = errors.New("unknown device")
	ErrDeviceRegistered = errors.New("device already registered")
	ErrJoinLost         = errors.New("join request lost")
	ErrDevNonceReplay   = errors.New("DevNonce not greater than last accepted")
	ErrChannelBusy      = errors.New("channel busy")
)

// DefaultNetID is the NetID used by NewNetwork.
const DefaultNetID = 0x000013

// Downlink is an application downlink queued for a device.
type Downlink struct {
	Port    uint8
	Payload []byte
}

// DeviceStats are the network's counters for one device.
type DeviceStats struct {
	Joins          int
	LostJoins      int
	ReplayedJoins  int
	Uplinks        int
	DroppedUplinks int
	DevAddr        uint32
	LastDevNonce   uint16
	LastFCnt       uint32
}

// Network is a simulated LoRaWAN network server. It is safe for concurrent
// use by the radios of a fleet.
type Network struct {
	mu          sync.Mutex
	netID       uint32
	joinNonce   uint32
	nextDevAddr uint32
	devices     map[radio.EUI]*device
	byAddr      map[uint32]*device
}

type device struct {
	creds radio.Credentials

	nonceSeen    bool
	lastDevNonce uint16

	session *serverSession

	lostJoins   int
	busyUplinks int
	downlinks   []Downlink
	stats       DeviceStats
}

type serverSession struct {
	devAddr  uint32
	nwkSKey  radio.Key
	appSKey  radio.Key
	nextFCnt uint32
	anyFCnt  bool
}

// joinRequest is what a radio transmits to join.
type joinRequest struct {
	JoinEUI  radio.EUI
	DevEUI   radio.EUI
	DevNonce uint16
}

// joinAccept is the network's answer to a join request.
type joinAccept struct {
	JoinNonce uint32
	NetID     uint32
	DevAddr   uint32
}

// dataFrame is an unconfirmed data uplink.
type dataFrame struct {
	DevAddr uint32
	FCnt    uint32
	Payload []byte
	MIC     []byte
}

// NewNetwork creates an empty network.
func NewNetwork() *Network {
	return &Network{
		netID:       DefaultNetID,
		nextDevAddr: DefaultNetID<<25 | 1,
		devices:     make(map[radio.EUI]*device),
		byAddr:      make(map[uint32]*device),
	}
}

// Register provisions a device with its root keys.
func (n *Network) Register(creds radio.Credentials) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.devices[creds.DevEUI]; ok {
		return fmt.Errorf("%w: %s", ErrDeviceRegistered, creds.DevEUI)
	}
	n.devices[creds.DevEUI] = &device{creds: creds}
	return nil
}

// LoseJoins drops the next count join requests of a device before the
// network hears them.
func (n *Network) LoseJoins(dev radio.EUI, count int) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	d, ok := n.devices[dev]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, dev)
	}
	d.lostJoins = count
	return nil
}

// BusyUplinks makes the next count uplinks of a device fail listen-before-talk.
func (n *Network) BusyUplinks(dev radio.EUI, count int) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	d, ok := n.devices[dev]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, dev)
	}
	d.busyUplinks = count
	return nil
}

// QueueDownlink queues an application downlink, delivered after the next
// accepted uplink.
func (n *Network) QueueDownlink(dev radio.EUI, port uint8, payload []byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	d, ok := n.devices[dev]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, dev)
	}
	d.downlinks = append(d.downlinks, Downlink{Port: port, Payload: append([]byte(nil), payload...)})
	return nil
}

// Stats returns the counters of a device.
func (n *Network) Stats(dev radio.EUI) (DeviceStats, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	d, ok := n.devices[dev]
	if !ok {
		return DeviceStats{}, fmt.Errorf("%w: %s", ErrUnknownDevice, dev)
	}
	st := d.stats
	if d.session != nil {
		st.DevAddr = d.session.devAddr
	}
	return st, nil
}

// ForgetSession drops the network side of a device's session, as after a
// re-provisioning.
func (n *Network) ForgetSession(dev radio.EUI) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if d, ok := n.devices[dev]; ok && d.session != nil {
		delete(n.byAddr, d.session.devAddr)
		d.session = nil
	}
}

func (n *Network) join(req joinRequest) (joinAccept, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	d, ok := n.devices[req.DevEUI]
	if !ok || d.creds.JoinEUI != req.JoinEUI {
		return joinAccept{}, fmt.Errorf("%w: %s", ErrUnknownDevice, req.DevEUI)
	}
	if d.lostJoins > 0 {
		d.lostJoins--
		d.stats.LostJoins++
		return joinAccept{}, ErrJoinLost
	}
	if d.nonceSeen && req.DevNonce <= d.lastDevNonce {
		d.stats.ReplayedJoins++
		return joinAccept{}, fmt.Errorf("%w: got %d, last %d", ErrDevNonceReplay, req.DevNonce, d.lastDevNonce)
	}
	d.nonceSeen = true
	d.lastDevNonce = req.DevNonce
	d.stats.LastDevNonce = req.DevNonce

	n.joinNonce++
	accept := joinAccept{
		JoinNonce: n.joinNonce,
		NetID:     n.netID,
		DevAddr:   n.nextDevAddr,
	}
	n.nextDevAddr++

	nwk, app, err := deriveSessionKeys(d.creds.AppKey, accept, req.DevNonce)
	if err != nil {
		return joinAccept{}, err
	}
	if d.session != nil {
		delete(n.byAddr, d.session.devAddr)
	}
	d.session = &serverSession{
		devAddr: accept.DevAddr,
		nwkSKey: nwk,
		appSKey: app,
		anyFCnt: true,
	}
	n.byAddr[accept.DevAddr] = d
	d.stats.Joins++
	d.stats.LastFCnt = 0
	return accept, nil
}

// uplink handles a data frame. Frames the network cannot authenticate, or
// that replay a frame counter, are dropped silently: the node learns nothing.
func (n *Network) uplink(dev radio.EUI, frame dataFrame) (*Downlink, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if d, ok := n.devices[dev]; ok && d.busyUplinks > 0 {
		d.busyUplinks--
		return nil, ErrChannelBusy
	}

	d, ok := n.byAddr[frame.DevAddr]
	if !ok {
		return nil, nil
	}
	s := d.session
	if !hmac.Equal(frame.MIC, computeMIC(s.nwkSKey, frame)) {
		d.stats.DroppedUplinks++
		return nil, nil
	}
	if !s.anyFCnt && frame.FCnt < s.nextFCnt {
		d.stats.DroppedUplinks++
		return nil, nil
	}
	s.anyFCnt = false
	s.nextFCnt = frame.FCnt + 1
	d.stats.Uplinks++
	d.stats.LastFCnt = frame.FCnt

	if len(d.downlinks) == 0 {
		return nil, nil
	}
	dl := d.downlinks[0]
	d.downlinks = d.downlinks[1:]
	return &dl, nil
}

// deriveSessionKeys derives the network and application session keys from
// the root key and the join exchange.
func deriveSessionKeys(appKey radio.Key, accept joinAccept, devNonce uint16) (nwk, app radio.Key, err error) {
	salt := make([]byte, 10)
	binary.BigEndian.PutUint32(salt[0:4], accept.JoinNonce)
	binary.BigEndian.PutUint32(salt[4:8], accept.NetID)
	binary.BigEndian.PutUint16(salt[8:10], devNonce)

	kdf := hkdf.New(sha256.New, appKey[:], salt, []byte("lorawan-node session keys"))
	if _, err := io.ReadFull(kdf, nwk[:]); err != nil {
		return nwk, app, fmt.Errorf("derive network session key: %w", err)
	}
	if _, err := io.ReadFull(kdf, app[:]); err != nil {
		return nwk, app, fmt.Errorf("derive application session key: %w", err)
	}
	return nwk, app, nil
}

// computeMIC returns the 4-byte message integrity code of a data frame.
func computeMIC(nwkSKey radio.Key, frame dataFrame) []byte {
	mac := hmac.New(sha256.New, nwkSKey[:])
	var hdr [8]byte
	binary.BigEndian.PutUint32(hdr[0:4], frame.DevAddr)
	binary.BigEndian.PutUint32(hdr[4:8], frame.FCnt)
	mac.Write(hdr[:])
	mac.Write(frame.Payload)
	return mac.Sum(nil)[:4]
}
