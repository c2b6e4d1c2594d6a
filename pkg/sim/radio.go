package sim

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"time"

	"github.com/mash-protocol/lorawan-node/pkg/radio"
)

// Buffer layout markers.
const (
	nonceMagic   = 0x4e43
	sessionMagic = 0x53455331
)

// Radio defaults.
const (
	// DefaultBitrate approximates SF7/125 kHz.
	DefaultBitrate = 5470

	// frameOverhead is the MAC header, FHDR, FPort and MIC length in bytes.
	frameOverhead = 13
)

// ErrTransceiver is returned by Init when the radio is configured to fail.
var ErrTransceiver = errors.New("transceiver not responding")

// RadioConfig configures a simulated radio.
type RadioConfig struct {
	// DutyCycle is the allowed fraction of airtime, 0 disables accounting.
	DutyCycle float64

	// Bitrate in bits per second used to compute airtime (default DefaultBitrate).
	Bitrate int

	// FailInit makes Init fail.
	FailInit bool

	// Now returns the current time (default time.Now).
	Now func() time.Time
}

// Radio is a simulated LoRaWAN radio attached to a Network. Its state is
// volatile: a new Radio is created on every boot.
type Radio struct {
	net *Network
	cfg RadioConfig

	initialized bool

	devNonce  uint16
	joinNonce uint32

	session clientSession

	lastTx  time.Time
	airtime time.Duration
}

type clientSession struct {
	valid    bool
	devEUI   radio.EUI
	devAddr  uint32
	nwkSKey  radio.Key
	appSKey  radio.Key
	fcntUp   uint32
	fcntDown uint32
}

var (
	_ radio.Link       = (*Radio)(nil)
	_ radio.DutyCycler = (*Radio)(nil)
)

// NewRadio creates a radio attached to net.
func NewRadio(net *Network, cfg RadioConfig) *Radio {
	if cfg.Bitrate <= 0 {
		cfg.Bitrate = DefaultBitrate
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Radio{net: net, cfg: cfg}
}

// Init brings up the transceiver.
func (r *Radio) Init() error {
	if r.cfg.FailInit || r.net == nil {
		return ErrTransceiver
	}
	r.initialized = true
	return nil
}

// Activate resumes the restored session or joins. Resuming is local and
// sends nothing.
func (r *Radio) Activate(ctx context.Context, creds radio.Credentials, forceJoin bool) (radio.Activation, error) {
	if !r.initialized {
		return radio.ActivationRestored, radio.ErrNotInitialized
	}

	if !forceJoin {
		if !r.session.valid {
			return radio.ActivationRestored, radio.ErrNoSession
		}
		if r.session.devEUI != creds.DevEUI {
			return radio.ActivationRestored, fmt.Errorf("%w: session belongs to %s", radio.ErrInvalidBuffer, r.session.devEUI)
		}
		return radio.ActivationRestored, nil
	}

	if err := ctx.Err(); err != nil {
		return radio.ActivationNewSession, err
	}

	r.devNonce++
	r.transmit(frameOverhead + 5)
	accept, err := r.net.join(joinRequest{
		JoinEUI:  creds.JoinEUI,
		DevEUI:   creds.DevEUI,
		DevNonce: r.devNonce,
	})
	if err != nil {
		return radio.ActivationNewSession, fmt.Errorf("%w: %v", radio.ErrJoinFailed, err)
	}

	nwk, app, err := deriveSessionKeys(creds.AppKey, accept, r.devNonce)
	if err != nil {
		return radio.ActivationNewSession, fmt.Errorf("%w: %v", radio.ErrJoinFailed, err)
	}
	r.joinNonce = accept.JoinNonce
	r.session = clientSession{
		valid:   true,
		devEUI:  creds.DevEUI,
		devAddr: accept.DevAddr,
		nwkSKey: nwk,
		appSKey: app,
	}
	return radio.ActivationNewSession, nil
}

// Exchange sends an unconfirmed uplink and returns any downlink received in
// the receive windows.
func (r *Radio) Exchange(ctx context.Context, payload []byte) (radio.Uplink, error) {
	if !r.initialized {
		return radio.Uplink{}, radio.ErrNotInitialized
	}
	if !r.session.valid {
		return radio.Uplink{}, radio.ErrNotJoined
	}
	if err := ctx.Err(); err != nil {
		return radio.Uplink{}, err
	}

	frame := dataFrame{
		DevAddr: r.session.devAddr,
		FCnt:    r.session.fcntUp,
		Payload: append([]byte(nil), payload...),
	}
	frame.MIC = computeMIC(r.session.nwkSKey, frame)

	dl, err := r.net.uplink(r.session.devEUI, frame)
	if err != nil {
		return radio.Uplink{}, fmt.Errorf("uplink %d: %w", frame.FCnt, err)
	}
	r.transmit(frameOverhead + len(payload))
	r.session.fcntUp++

	up := radio.Uplink{Outcome: radio.OutcomeNoDownlink, FCnt: frame.FCnt}
	if dl != nil {
		r.session.fcntDown++
		up.Outcome = radio.OutcomeDownlink
		up.Port = dl.Port
		up.Payload = dl.Payload
	}
	return up, nil
}

// TimeUntilUplink returns the remaining duty-cycle off time.
func (r *Radio) TimeUntilUplink() time.Duration {
	if r.cfg.DutyCycle <= 0 || r.lastTx.IsZero() {
		return 0
	}
	off := time.Duration(float64(r.airtime) / r.cfg.DutyCycle)
	wait := r.lastTx.Add(off).Sub(r.cfg.Now())
	if wait < 0 {
		return 0
	}
	return wait
}

func (r *Radio) transmit(size int) {
	r.lastTx = r.cfg.Now()
	r.airtime = time.Duration(size*8) * time.Second / time.Duration(r.cfg.Bitrate)
}

// Nonces encodes the nonce buffer:
//
//	magic (2) | DevNonce (2) | JoinNonce (4) | reserved (4) | CRC-32 (4)
func (r *Radio) Nonces() []byte {
	buf := make([]byte, radio.NonceSize)
	binary.BigEndian.PutUint16(buf[0:2], nonceMagic)
	binary.BigEndian.PutUint16(buf[2:4], r.devNonce)
	binary.BigEndian.PutUint32(buf[4:8], r.joinNonce)
	binary.BigEndian.PutUint32(buf[12:16], crc32.ChecksumIEEE(buf[:12]))
	return buf
}

// SetNonces restores a buffer returned by Nonces.
func (r *Radio) SetNonces(buf []byte) error {
	if len(buf) != radio.NonceSize {
		return fmt.Errorf("%w: nonces %d bytes", radio.ErrBufferSize, len(buf))
	}
	if binary.BigEndian.Uint16(buf[0:2]) != nonceMagic ||
		binary.BigEndian.Uint32(buf[12:16]) != crc32.ChecksumIEEE(buf[:12]) {
		return fmt.Errorf("%w: nonces", radio.ErrInvalidBuffer)
	}
	r.devNonce = binary.BigEndian.Uint16(buf[2:4])
	r.joinNonce = binary.BigEndian.Uint32(buf[4:8])
	return nil
}

// Session encodes the session buffer:
//
//	magic (4) | DevEUI (8) | DevAddr (4) | NwkSKey (16) | AppSKey (16) |
//	FCntUp (4) | FCntDown (4) | zero padding | CRC-32 (4)
//
// Without a session it returns an all-zero buffer.
func (r *Radio) Session() []byte {
	buf := make([]byte, radio.SessionSize)
	if !r.session.valid {
		return buf
	}
	s := r.session
	binary.BigEndian.PutUint32(buf[0:4], sessionMagic)
	binary.BigEndian.PutUint64(buf[4:12], uint64(s.devEUI))
	binary.BigEndian.PutUint32(buf[12:16], s.devAddr)
	copy(buf[16:32], s.nwkSKey[:])
	copy(buf[32:48], s.appSKey[:])
	binary.BigEndian.PutUint32(buf[48:52], s.fcntUp)
	binary.BigEndian.PutUint32(buf[52:56], s.fcntDown)
	binary.BigEndian.PutUint32(buf[radio.SessionSize-4:], crc32.ChecksumIEEE(buf[:radio.SessionSize-4]))
	return buf
}

// SetSession restores a buffer returned by Session.
func (r *Radio) SetSession(buf []byte) error {
	if len(buf) != radio.SessionSize {
		return fmt.Errorf("%w: session %d bytes", radio.ErrBufferSize, len(buf))
	}
	end := radio.SessionSize - 4
	if binary.BigEndian.Uint32(buf[0:4]) != sessionMagic ||
		binary.BigEndian.Uint32(buf[end:]) != crc32.ChecksumIEEE(buf[:end]) {
		return fmt.Errorf("%w: session", radio.ErrInvalidBuffer)
	}

	s := clientSession{
		valid:    true,
		devEUI:   radio.EUI(binary.BigEndian.Uint64(buf[4:12])),
		devAddr:  binary.BigEndian.Uint32(buf[12:16]),
		fcntUp:   binary.BigEndian.Uint32(buf[48:52]),
		fcntDown: binary.BigEndian.Uint32(buf[52:56]),
	}
	copy(s.nwkSKey[:], buf[16:32])
	copy(s.appSKey[:], buf[32:48])
	r.session = s
	return nil
}

// FCntUp returns the frame counter of the next uplink.
func (r *Radio) FCntUp() uint32 {
	return r.session.fcntUp
}
