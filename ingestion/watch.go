package ingestion

// Subscribe returns a channel that receives the runner status whenever a
// sweep starts or finishes, beginning with the current status. A slow reader
// only ever sees the latest status. cancel must be called to release the
// subscription; it closes the channel.
func (r *Runner) Subscribe() (updates <-chan StatusSnapshot, cancel func()) {
	ch := make(chan StatusSnapshot, 1)

	r.mu.Lock()
	if r.subs == nil {
		r.subs = make(map[chan StatusSnapshot]struct{})
	}
	r.subs[ch] = struct{}{}
	ch <- r.statusLocked()
	r.mu.Unlock()

	return ch, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if _, ok := r.subs[ch]; ok {
			delete(r.subs, ch)
			close(ch)
		}
	}
}

// publishLocked delivers the current status to every subscriber without
// blocking, replacing a status the subscriber has not read yet.
func (r *Runner) publishLocked() {
	status := r.statusLocked()
	for ch := range r.subs {
		select {
		case <-ch:
		default:
		}
		ch <- status
	}
}
