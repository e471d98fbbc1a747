// Package refresh provides a caller-owned counter that tells read-side
// resources to refetch after a write.
package refresh

import "sync"

// Key is a monotonically increasing counter. The zero value is ready to use.
type Key struct {
	mu     sync.Mutex
	value  uint64
	subs   map[int]chan uint64
	nextID int
}

// Bump increments the key and notifies subscribers. It returns the new value.
func (k *Key) Bump() uint64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.value++
	for _, ch := range k.subs {
		publish(ch, k.value)
	}
	return k.value
}

func (k *Key) Value() uint64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.value
}

// Subscribe returns a channel receiving the key after each bump. Slow
// receivers only see the latest value. cancel closes the channel.
func (k *Key) Subscribe() (<-chan uint64, func()) {
	ch := make(chan uint64, 1)
	k.mu.Lock()
	if k.subs == nil {
		k.subs = make(map[int]chan uint64)
	}
	id := k.nextID
	k.nextID++
	k.subs[id] = ch
	k.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			k.mu.Lock()
			delete(k.subs, id)
			k.mu.Unlock()
			close(ch)
		})
	}
}

// publish replaces any pending value in ch with v. Callers hold k.mu.
func publish(ch chan uint64, v uint64) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
