// Package ident produces the opaque client identity attached to a dump at
// creation. Raw network addresses never reach storage: they are hashed with
// a keyed BLAKE2b whose key rotates on an epoch schedule.
package ident

import (
	"encoding/binary"
	"encoding/hex"
	"linkdump/svc/util"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
)

var (
	ErrHasherStopped   = errors.New("identity hasher stopped")
	ErrInvalidInterval = errors.New("rotation interval must be >= 15 minutes")
)

type Hasher struct {
	rotationInterval time.Duration
	pepper           []byte
	mu               sync.RWMutex
	currentKey       []byte
	currentEpoch     int64
	stopChan         chan struct{}
	stopOnce         sync.Once
	stopped          bool
}

func NewHasher(pepper []byte, rotationInterval time.Duration) (*Hasher, error) {
	if rotationInterval < 15*time.Minute {
		return nil, ErrInvalidInterval
	}
	if len(pepper) < 32 {
		return nil, errors.New("pepper must be at least 32 bytes")
	}
	h := &Hasher{
		rotationInterval: rotationInterval,
		pepper:           append([]byte(nil), pepper...),
		stopChan:         make(chan struct{}),
	}
	h.currentEpoch = h.epoch(time.Now())
	h.currentKey = h.deriveKey(h.currentEpoch)
	go h.rotationLoop()
	return h, nil
}

func (h *Hasher) epoch(t time.Time) int64 {
	return t.UnixNano() / int64(h.rotationInterval)
}

func (h *Hasher) deriveKey(epoch int64) []byte {
	material := make([]byte, len(h.pepper)+8)
	copy(material, h.pepper)
	binary.BigEndian.PutUint64(material[len(h.pepper):], uint64(epoch))
	sum := blake2b.Sum256(material)
	return sum[:]
}

func (h *Hasher) rotationLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			epoch := h.epoch(time.Now())
			h.mu.Lock()
			if epoch != h.currentEpoch {
				h.currentEpoch = epoch
				h.currentKey = h.deriveKey(epoch)
			}
			h.mu.Unlock()
		case <-h.stopChan:
			return
		}
	}
}

// HashID returns the hex keyed hash of the given identity under the current
// epoch key.
func (h *Hasher) HashID(id string) (string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.stopped {
		return "", ErrHasherStopped
	}
	mac, err := blake2b.New256(h.currentKey)
	if err != nil {
		return "", errors.Wrap(err, "init keyed hash")
	}
	mac.Write([]byte(id))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

func (h *Hasher) Stop() {
	h.stopOnce.Do(func() {
		h.mu.Lock()
		h.stopped = true
		util.Wipe(h.pepper)
		util.Wipe(h.currentKey)
		h.mu.Unlock()
		close(h.stopChan)
	})
}
