package bridge

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/cync-lan-core/internal/cyncerrors"
	"github.com/nerrad567/cync-lan-core/internal/infrastructure/config"
)

// Callback is a pending outbound command awaiting ACK (§3).
type Callback struct {
	MsgID    uint32
	TargetID uint16
	OnAck    func()
	OnTimeout func(err error)

	timer    *time.Timer
	resolved bool
}

// Bridge is a live connection to a Wi-Fi bridge device.
type Bridge struct {
	Conn     net.Conn
	Endpoint [4]byte
	QueueID  [5]byte
	DeviceID uint8
	PeerAddr string

	// Relay marks a connection running in MITM relay mode (§4.6); such a
	// bridge is never selected by the command pipeline.
	Relay bool

	readyToControl atomic.Bool
	counter        uint32 // next msg_id, wraps at 2^24

	writeMu sync.Mutex // serializes socket writes; msg_id is assigned under this lock

	mu      sync.Mutex // protects pending
	pending map[uint32]*Callback

	teardownOnce sync.Once
	OfflineCount int
}

// New creates a Bridge wrapping an already-accepted connection.
func New(conn net.Conn, endpoint [4]byte, queueID [5]byte, deviceID uint8) *Bridge {
	return &Bridge{
		Conn:     conn,
		Endpoint: endpoint,
		QueueID:  queueID,
		DeviceID: deviceID,
		PeerAddr: conn.RemoteAddr().String(),
		pending:  make(map[uint32]*Callback),
	}
}

// SetReadyToControl stores the bridge's handshake-complete flag. The server
// sets it true once, after the handshake ack; Teardown clears it. The
// setter itself stores whatever it is given, including true after Teardown.
func (b *Bridge) SetReadyToControl(v bool) {
	b.readyToControl.Store(v)
}

// ReadyToControl reports whether the handshake has completed and the
// bridge has not been torn down.
func (b *Bridge) ReadyToControl() bool {
	return b.readyToControl.Load()
}

// nextMsgID assigns the next monotonic msg_id under writeMu, so
// assignment order matches write order on this bridge (§5's ordering
// guarantee).
func (b *Bridge) nextMsgID() uint32 {
	id := b.counter & 0xFFFFFF
	b.counter = (b.counter + 1) & 0xFFFFFF
	return id
}

// Send writes packetBuilder's output under the write lock, assigning a
// fresh msg_id and registering a callback for it. packetBuilder receives
// the assigned msg_id (as a 3-byte big-endian array) so it can embed it
// in the frame it returns.
//
// Send blocks for at most config.WriteDrainTimeout; a breach closes the
// connection, which in turn triggers Teardown via the handler's read
// loop observing the resulting error.
func (b *Bridge) Send(targetID uint16, packetBuilder func(msgID [3]byte) ([]byte, error), onAck func(), onTimeout func(error)) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	msgID := b.nextMsgID()
	var msgIDBytes [3]byte
	msgIDBytes[0] = byte(msgID >> 16)
	msgIDBytes[1] = byte(msgID >> 8)
	msgIDBytes[2] = byte(msgID)

	packet, err := packetBuilder(msgIDBytes)
	if err != nil {
		return err
	}

	cb := &Callback{MsgID: msgID, TargetID: targetID, OnAck: onAck, OnTimeout: onTimeout}
	b.mu.Lock()
	b.pending[msgID] = cb
	b.mu.Unlock()

	cb.timer = time.AfterFunc(config.AckTimeout, func() {
		b.resolveTimeout(msgID, cyncerrors.ErrAckTimeout)
	})

	if err := b.Conn.SetWriteDeadline(time.Now().Add(config.WriteDrainTimeout)); err != nil {
		return err
	}
	if _, err := b.Conn.Write(packet); err != nil {
		b.mu.Lock()
		delete(b.pending, msgID)
		b.mu.Unlock()
		cb.timer.Stop()
		_ = b.Conn.Close()
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// WriteRaw writes a pre-built frame (an ack or keepalive reply) under the
// same write lock Send uses, so replies from the read loop never interleave
// mid-frame with an outbound command.
func (b *Bridge) WriteRaw(frame []byte) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	if err := b.Conn.SetWriteDeadline(time.Now().Add(config.WriteDrainTimeout)); err != nil {
		return err
	}
	if _, err := b.Conn.Write(frame); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// ResolveAck looks up the callback for msgID and invokes OnAck exactly
// once. It returns false if no such callback is pending (already
// resolved, or the ack was for a different bridge).
func (b *Bridge) ResolveAck(msgID uint32) bool {
	b.mu.Lock()
	cb, ok := b.pending[msgID]
	if ok {
		delete(b.pending, msgID)
	}
	b.mu.Unlock()
	if !ok {
		return false
	}
	cb.timer.Stop()
	if cb.OnAck != nil {
		cb.OnAck()
	}
	return true
}

// ResolveFallbackFIFO resolves the oldest unresolved callback on this
// bridge, used when a 0x7B's msg_id could not be parsed (the ack-matching
// open question's fallback path). The caller is responsible for
// incrementing a fallback-ack-match counter.
func (b *Bridge) ResolveFallbackFIFO() bool {
	b.mu.Lock()
	var oldest uint32
	found := false
	for id := range b.pending {
		if !found || id < oldest {
			oldest = id
			found = true
		}
	}
	var cb *Callback
	if found {
		cb = b.pending[oldest]
		delete(b.pending, oldest)
	}
	b.mu.Unlock()
	if !found {
		return false
	}
	cb.timer.Stop()
	if cb.OnAck != nil {
		cb.OnAck()
	}
	return true
}

func (b *Bridge) resolveTimeout(msgID uint32, err error) {
	b.mu.Lock()
	cb, ok := b.pending[msgID]
	if ok {
		delete(b.pending, msgID)
	}
	b.mu.Unlock()
	if !ok {
		return
	}
	if cb.OnTimeout != nil {
		cb.OnTimeout(err)
	}
}

// CancelPending cancels a single pending callback (used for the
// coalesce-by-cancel concurrency policy, §4.3 step 3) with outcome err.
func (b *Bridge) CancelPending(msgID uint32, err error) bool {
	b.mu.Lock()
	cb, ok := b.pending[msgID]
	if ok {
		delete(b.pending, msgID)
	}
	b.mu.Unlock()
	if !ok {
		return false
	}
	cb.timer.Stop()
	if cb.OnTimeout != nil {
		cb.OnTimeout(err)
	}
	return true
}

// PendingMsgIDForTarget returns the msg_id of the most recent pending
// callback addressing targetID, if any. Used to implement the
// coalesce-by-cancel policy without exposing the pending map itself.
func (b *Bridge) PendingMsgIDForTarget(targetID uint16) (uint32, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var best uint32
	found := false
	for id, cb := range b.pending {
		if cb.TargetID != targetID {
			continue
		}
		if !found || id > best {
			best = id
			found = true
		}
	}
	return best, found
}

// Teardown cancels every pending callback on this bridge with err exactly
// once (§4.2's "teardown must run exactly once" and testable property 8),
// then closes the connection.
func (b *Bridge) Teardown(err error) {
	b.teardownOnce.Do(func() {
		b.readyToControl.Store(false)

		b.mu.Lock()
		pending := b.pending
		b.pending = make(map[uint32]*Callback)
		b.mu.Unlock()

		for _, cb := range pending {
			cb.timer.Stop()
			if cb.OnTimeout != nil {
				cb.OnTimeout(err)
			}
		}
		_ = b.Conn.Close()
	})
}

// PendingCount reports the number of unresolved callbacks, for the pool
// logger.
func (b *Bridge) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
