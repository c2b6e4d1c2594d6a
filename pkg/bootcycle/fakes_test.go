package bootcycle

import (
	"context"
	"encoding/binary"
	"errors"
	"runtime"
	"time"

	"github.com/mash-protocol/lorawan-node/pkg/log"
	"github.com/mash-protocol/lorawan-node/pkg/radio"
)

// fakePlatform ends the calling goroutine on DeepSleep and Restart, like a
// reset would.
type fakePlatform struct {
	cause        ResetCause
	sleeps       []time.Duration
	delays       []time.Duration
	restarts     int
	sleepFails   bool
	restartFails bool
}

func (p *fakePlatform) ResetCause() ResetCause { return p.cause }

func (p *fakePlatform) DeepSleep(d time.Duration) error {
	p.sleeps = append(p.sleeps, d)
	if p.sleepFails {
		return errors.New("wake timer not armed")
	}
	p.cause = ResetDeepSleep
	runtime.Goexit()
	return nil
}

func (p *fakePlatform) Restart() error {
	p.restarts++
	if p.restartFails {
		return errors.New("reset vector unavailable")
	}
	p.cause = ResetSoftware
	runtime.Goexit()
	return nil
}

func (p *fakePlatform) Delay(_ context.Context, d time.Duration) error {
	p.delays = append(p.delays, d)
	return nil
}

// network is the part of the fake radio world that outlives a boot.
type network struct {
	joinResults []error // consumed by forced joins; exhausted means success
	joins       int
	resumes     int
	exchanges   int
	resumeErr   error
	exchangeErr error
	outcome     radio.Outcome
	downlink    []byte
	initErr     error
	waitUplink  time.Duration
	lastNonces  []byte
}

// fakeLink is volatile radio state, recreated on every boot.
type fakeLink struct {
	net     *network
	nonces  []byte
	session []byte
}

func newFakeLink(net *network) *fakeLink {
	return &fakeLink{net: net, nonces: make([]byte, radio.NonceSize)}
}

func (l *fakeLink) Init() error { return l.net.initErr }

func (l *fakeLink) Activate(_ context.Context, _ radio.Credentials, forceJoin bool) (radio.Activation, error) {
	if !forceJoin {
		l.net.resumes++
		if l.net.resumeErr != nil {
			return radio.ActivationRestored, l.net.resumeErr
		}
		if len(l.session) == 0 {
			return radio.ActivationRestored, radio.ErrNoSession
		}
		return radio.ActivationRestored, nil
	}

	l.net.joins++
	l.net.lastNonces = append([]byte(nil), l.nonces...)
	devNonce := binary.LittleEndian.Uint16(l.nonces) + 1
	binary.LittleEndian.PutUint16(l.nonces, devNonce)

	if len(l.net.joinResults) > 0 {
		err := l.net.joinResults[0]
		l.net.joinResults = l.net.joinResults[1:]
		if err != nil {
			return radio.ActivationNewSession, err
		}
	}
	l.session = make([]byte, radio.SessionSize)
	l.session[0] = 0xa5
	return radio.ActivationNewSession, nil
}

func (l *fakeLink) Exchange(_ context.Context, payload []byte) (radio.Uplink, error) {
	l.net.exchanges++
	fcnt := l.FCntUp()
	binary.LittleEndian.PutUint32(l.session[4:], fcnt+1)
	if l.net.exchangeErr != nil {
		return radio.Uplink{}, l.net.exchangeErr
	}
	up := radio.Uplink{Outcome: l.net.outcome, FCnt: fcnt}
	if l.net.outcome == radio.OutcomeDownlink {
		up.Port = 10
		up.Payload = l.net.downlink
	}
	return up, nil
}

func (l *fakeLink) Nonces() []byte { return append([]byte(nil), l.nonces...) }

func (l *fakeLink) SetNonces(buf []byte) error {
	if len(buf) != radio.NonceSize {
		return radio.ErrBufferSize
	}
	l.nonces = append([]byte(nil), buf...)
	return nil
}

func (l *fakeLink) Session() []byte { return append([]byte(nil), l.session...) }

func (l *fakeLink) SetSession(buf []byte) error {
	if len(buf) != radio.SessionSize {
		return radio.ErrBufferSize
	}
	l.session = append([]byte(nil), buf...)
	return nil
}

func (l *fakeLink) FCntUp() uint32 {
	if len(l.session) < 8 {
		return 0
	}
	return binary.LittleEndian.Uint32(l.session[4:])
}

// dutyCycledLink adds airtime accounting to fakeLink.
type dutyCycledLink struct {
	*fakeLink
}

func (l dutyCycledLink) TimeUntilUplink() time.Duration { return l.net.waitUplink }

// recordingJournal keeps every event.
type recordingJournal struct {
	events []log.Event
}

func (j *recordingJournal) Log(ev log.Event) {
	j.events = append(j.events, ev)
}

func (j *recordingJournal) errors(stage log.Stage) []log.Event {
	var out []log.Event
	for _, ev := range j.events {
		if ev.Category == log.CategoryError && ev.Stage == stage {
			out = append(out, ev)
		}
	}
	return out
}

func (j *recordingJournal) allErrors() []log.Event {
	var out []log.Event
	for _, ev := range j.events {
		if ev.Category == log.CategoryError {
			out = append(out, ev)
		}
	}
	return out
}
