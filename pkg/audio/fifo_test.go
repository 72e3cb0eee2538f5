package audio_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/brainball/pkg/audio"
)

func TestSampleFIFO_KeepsSurplusForNextTake(t *testing.T) {
	const bufSize, chunk = 256, 4000
	var (
		f    audio.SampleFIFO
		next int16
		got  []int16
	)
	device := make([]int16, bufSize)
	for range 3 {
		for f.Len() < chunk {
			for i := range device {
				device[i] = next
				next++
			}
			f.Push(device)
		}
		c := f.Take(chunk)
		if len(c) != chunk {
			t.Fatalf("Take returned %d samples, want %d", len(c), chunk)
		}
		got = append(got, c...)
	}

	for i, s := range got {
		if s != int16(i) {
			t.Fatalf("sample %d = %d: audio was dropped or reordered", i, s)
		}
	}
	if want := int(next) - 3*chunk; f.Len() != want {
		t.Errorf("queued = %d, want %d", f.Len(), want)
	}
}

func TestSampleFIFO_TakeMoreThanQueued(t *testing.T) {
	var f audio.SampleFIFO
	f.Push([]int16{1, 2, 3})
	if got := f.Take(10); !slices.Equal(got, []int16{1, 2, 3}) {
		t.Errorf("Take(10) = %v", got)
	}
	if f.Len() != 0 {
		t.Errorf("Len = %d after draining", f.Len())
	}
	f.Push([]int16{4})
	f.Reset()
	if f.Len() != 0 {
		t.Errorf("Len = %d after Reset", f.Len())
	}
}
