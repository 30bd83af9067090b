package srtp

// defaultReplayWindow is the replay window size in packets.
const defaultReplayWindow = 128

// replayWindow is a sliding bitmask over packet indices. Check rejects
// indices behind the window or already marked seen; Update is called only
// after the packet authenticates, so forged indices can never advance the
// window.
type replayWindow struct {
	size   uint64
	latest uint64
	seen   bool
	bits   []uint64
}

func newReplayWindow(size int) *replayWindow {
	if size <= 0 {
		size = defaultReplayWindow
	}
	words := (size + 63) / 64
	return &replayWindow{
		size: uint64(words * 64),
		bits: make([]uint64, words),
	}
}

// check classifies an index before any cryptographic work.
func (w *replayWindow) check(index uint64) error {
	if !w.seen || index > w.latest {
		return nil
	}
	offset := w.latest - index
	if offset >= w.size {
		return ErrReplayAttack
	}
	if w.bits[offset/64]&(1<<(offset%64)) != 0 {
		return ErrReplayAttack
	}
	return nil
}

// update marks an authenticated index as seen, sliding the window
// forward when the index advances it.
func (w *replayWindow) update(index uint64) {
	if !w.seen {
		w.seen = true
		w.latest = index
		w.bits[0] = 1
		return
	}

	if index > w.latest {
		w.shift(index - w.latest)
		w.latest = index
		w.bits[0] |= 1
		return
	}

	offset := w.latest - index
	if offset < w.size {
		w.bits[offset/64] |= 1 << (offset % 64)
	}
}

// shift slides the bitmask toward older indices by n positions.
func (w *replayWindow) shift(n uint64) {
	if n >= w.size {
		for i := range w.bits {
			w.bits[i] = 0
		}
		return
	}

	words := n / 64
	bitsN := n % 64
	for i := len(w.bits) - 1; i >= 0; i-- {
		var v uint64
		src := i - int(words)
		if src >= 0 {
			v = w.bits[src] << bitsN
			if bitsN > 0 && src > 0 {
				v |= w.bits[src-1] >> (64 - bitsN)
			}
		}
		w.bits[i] = v
	}
}

func (w *replayWindow) reset() {
	w.seen = false
	w.latest = 0
	for i := range w.bits {
		w.bits[i] = 0
	}
}
