package audio

// SampleFIFO joins fixed-size device buffers into chunks of any size.
// Samples beyond a Take stay queued for the next one, so no audio is lost
// when the chunk size is not a multiple of the device buffer. It is not safe
// for concurrent use.
type SampleFIFO struct {
	buf []int16
}

// Len returns the number of queued samples.
func (f *SampleFIFO) Len() int { return len(f.buf) }

// Push appends a copy of samples.
func (f *SampleFIFO) Push(samples []int16) {
	f.buf = append(f.buf, samples...)
}

// Take removes and returns up to n samples from the front of the queue.
func (f *SampleFIFO) Take(n int) []int16 {
	n = max(0, min(n, len(f.buf)))
	out := make([]int16, n)
	copy(out, f.buf)
	f.buf = append(f.buf[:0], f.buf[n:]...)
	return out
}

// Reset drops all queued samples.
func (f *SampleFIFO) Reset() { f.buf = f.buf[:0] }
