package notify

import (
	"math"
	"time"

	"kitt/internal/audio"
	"kitt/internal/playback"
)

// Chime renders the short two-note tone played before KITT starts
// recording.
func Chime(sampleRate int) (playback.Clip, error) {
	var pcm []float32
	pcm = append(pcm, tone(sampleRate, 880, 90*time.Millisecond, 0.35)...)
	pcm = append(pcm, tone(sampleRate, 1320, 120*time.Millisecond, 0.35)...)

	data, err := audio.EncodeWAV(pcm, sampleRate)
	if err != nil {
		return playback.Clip{}, err
	}
	return playback.Clip{Text: "chime", Data: data, MIME: "audio/wav"}, nil
}

// tone is a sine with a linear fade in and out to avoid clicks.
func tone(sampleRate int, freq float64, d time.Duration, gain float64) []float32 {
	n := int(d.Seconds() * float64(sampleRate))
	fade := n / 10
	out := make([]float32, n)
	for i := range out {
		env := 1.0
		switch {
		case i < fade:
			env = float64(i) / float64(fade)
		case i >= n-fade:
			env = float64(n-i) / float64(fade)
		}
		out[i] = float32(gain * env * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return out
}
