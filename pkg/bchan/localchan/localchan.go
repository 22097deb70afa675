// Package localchan is the in-process reference implementation of
// bchan.Channel: two Channels sharing a net.Pipe, with a length-prefixed
// little-endian frame on the wire and a background read loop dispatching
// to the installed Receiver. It exists so the rest of this module, and its
// end-to-end tests, have a real bchan.Channel to run against without an
// actual Binder driver.
package localchan

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/relaymesh/bindrpc/pkg/bchan"
)

const headerLen = 8 // 4-byte length prefix + 4-byte transaction code

// NewPair returns two Channels connected by an in-process net.Pipe, ready
// for SetReceiver to be called on each before any traffic is sent. Each
// side reports the other's uid as its own CallingUID and its own uid as
// LocalUID — there is no real process boundary here, so the uids are just
// whatever the caller wants the two ends to present to each other's
// SecurityPolicy.
func NewPair(uidA, uidB int32) (a, b *Channel) {
	ca, cb := net.Pipe()
	// a's peer is whoever presents uidB, and vice versa.
	a = wrap(ca, uidA, uidB)
	b = wrap(cb, uidB, uidA)
	return a, b
}

// Channel is the localchan implementation of bchan.Channel.
type Channel struct {
	conn    net.Conn
	reader  *bufio.Reader
	handle  []byte
	selfUID int32
	peerUID int32

	writeMu sync.Mutex

	recvMu   sync.RWMutex
	receiver bchan.Receiver

	deathMu  sync.Mutex
	dead     bool
	deathCbs []func()

	closeOnce sync.Once
	readDone  chan struct{}
}

func wrap(conn net.Conn, selfUID, peerUID int32) *Channel {
	c := &Channel{
		conn:     conn,
		reader:   bufio.NewReader(conn),
		handle:   uuid.New().NodeID(),
		selfUID:  selfUID,
		peerUID:  peerUID,
		readDone: make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// CallingUID implements bchan.UIDSource.
func (c *Channel) CallingUID() int32 { return c.peerUID }

// LocalUID implements bchan.LocalUIDSource.
func (c *Channel) LocalUID() int32 { return c.selfUID }

// SetReceiver installs r as the dispatch target for inbound frames.
func (c *Channel) SetReceiver(r bchan.Receiver) {
	c.recvMu.Lock()
	c.receiver = r
	c.recvMu.Unlock()
}

// LocalHandle returns a stable opaque identifier for this channel's
// receiver-object. Its only requirement is that it round-trips through the
// SETUP_TRANSPORT payload; localchan never actually uses the bytes to
// rediscover the peer, since the pipe itself is already the live link.
func (c *Channel) LocalHandle() []byte {
	out := make([]byte, len(c.handle))
	copy(out, c.handle)
	return out
}

// Transact frames (code, data) and writes it to the pipe under a write
// mutex, preserving send order against concurrent callers.
func (c *Channel) Transact(code int32, data []byte) error {
	frame := make([]byte, headerLen+len(data))
	binary.LittleEndian.PutUint32(frame[0:4], uint32(4+len(data)))
	binary.LittleEndian.PutUint32(frame[4:8], uint32(code))
	copy(frame[headerLen:], data)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.conn.Write(frame); err != nil {
		return fmt.Errorf("localchan: transact: %w", err)
	}
	return nil
}

// WatchPeerDeath registers cb to run once the pipe's read loop observes
// EOF or an error from the peer side.
func (c *Channel) WatchPeerDeath(cb func()) (cancel func(), err error) {
	c.deathMu.Lock()
	if c.dead {
		c.deathMu.Unlock()
		go cb()
		return func() {}, nil
	}
	idx := len(c.deathCbs)
	c.deathCbs = append(c.deathCbs, cb)
	c.deathMu.Unlock()

	cancelFn := func() {
		c.deathMu.Lock()
		defer c.deathMu.Unlock()
		if idx < len(c.deathCbs) {
			c.deathCbs[idx] = nil
		}
	}
	return cancelFn, nil
}

// Close closes the underlying pipe and waits for the read loop to drain.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.conn.Close()
	})
	<-c.readDone
	return nil
}

func (c *Channel) readLoop() {
	defer close(c.readDone)
	defer c.notifyDeath()

	header := make([]byte, headerLen)
	for {
		if _, err := io.ReadFull(c.reader, header); err != nil {
			return
		}
		bodyLen := binary.LittleEndian.Uint32(header[0:4])
		code := int32(binary.LittleEndian.Uint32(header[4:8]))
		payload := make([]byte, int(bodyLen)-4)
		if len(payload) > 0 {
			if _, err := io.ReadFull(c.reader, payload); err != nil {
				return
			}
		}

		c.recvMu.RLock()
		r := c.receiver
		c.recvMu.RUnlock()
		if r != nil {
			_ = r.OnTransaction(code, payload)
		}
	}
}

func (c *Channel) notifyDeath() {
	c.deathMu.Lock()
	cbs := c.deathCbs
	c.deathCbs = nil
	c.dead = true
	c.deathMu.Unlock()
	for _, cb := range cbs {
		if cb != nil {
			cb()
		}
	}
}
