package audioconv

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	popus "github.com/pekim/opus"
)

const targetRate = 16000

var ErrTooShort = errors.New("clip too short to identify")

type Options struct {
	MaxSamples int
}

type format int

const (
	formatUnknown format = iota
	formatWAV
	formatMP3
	formatOgg
)

// pcm is interleaved float32 audio as a decoder produced it.
type pcm struct {
	samples  []float32
	channels int
	rate     int
}

// mono16k downmixes, resamples to 16 kHz and truncates.
func (p pcm) mono16k(opt Options) []float32 {
	x := downmixInterleaved(p.samples, p.channels)
	x = resampleLinear(x, p.rate, targetRate)
	if opt.MaxSamples > 0 && len(x) > opt.MaxSamples {
		x = x[:opt.MaxSamples]
	}
	return x
}

// DecodeToPCM16k decodes an encoded clip to mono 16 kHz float32 PCM.
// The MIME type picks the decoder; unknown types are sniffed.
func DecodeToPCM16k(_ context.Context, data []byte, mime string, opt Options) ([]float32, error) {
	f := byMIME(mime)
	if f == formatUnknown {
		if len(data) < 4 {
			return nil, fmt.Errorf("unsupported format %q: %w", mime, ErrTooShort)
		}
		f = sniff(data)
	}

	r := bytes.NewReader(data)
	var (
		p   pcm
		err error
	)
	switch f {
	case formatWAV:
		p, err = decodeWAV(r)
	case formatMP3:
		p, err = decodeMP3(r)
	case formatOgg:
		p, err = decodeOgg(r)
	default:
		return nil, fmt.Errorf("unsupported format %q (supported: wav/mp3/ogg-vorbis/ogg-opus)", mime)
	}
	if err != nil {
		return nil, err
	}
	if len(p.samples) == 0 {
		return nil, nil
	}
	return p.mono16k(opt), nil
}

func byMIME(mime string) format {
	switch {
	case strings.Contains(mime, "wav"):
		return formatWAV
	case strings.Contains(mime, "mpeg"), strings.Contains(mime, "mp3"):
		return formatMP3
	case strings.Contains(mime, "ogg"), strings.Contains(mime, "opus"):
		return formatOgg
	}
	return formatUnknown
}

func sniff(data []byte) format {
	switch {
	case bytes.HasPrefix(data, []byte("RIFF")):
		return formatWAV
	case bytes.HasPrefix(data, []byte("OggS")):
		return formatOgg
	case bytes.HasPrefix(data, []byte("ID3")), data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return formatMP3
	}
	return formatUnknown
}

func decodeWAV(r io.ReadSeeker) (pcm, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return pcm{}, errors.New("invalid wav")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return pcm{}, fmt.Errorf("wav: %w", err)
	}
	if buf == nil {
		return pcm{}, nil
	}

	p := pcm{channels: int(dec.NumChans), rate: int(dec.SampleRate)}
	if f := buf.Format; f != nil {
		if f.NumChannels > 0 {
			p.channels = f.NumChannels
		}
		if f.SampleRate > 0 {
			p.rate = f.SampleRate
		}
	}
	if p.channels <= 0 {
		p.channels = 1
	}
	if p.rate <= 0 {
		p.rate = 44100
	}

	depth := int(dec.BitDepth)
	if depth == 0 {
		depth = 16
	}
	scale := 1 / float64(int64(1)<<(depth-1))
	p.samples = make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		p.samples[i] = float32(math.Max(-1, math.Min(float64(v)*scale, 1)))
	}
	return p, nil
}

// decodeMP3 relies on go-mp3 always producing 16-bit little-endian stereo.
func decodeMP3(r io.Reader) (pcm, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return pcm{}, fmt.Errorf("mp3: %w", err)
	}
	raw, err := io.ReadAll(dec)
	if err != nil {
		return pcm{}, fmt.Errorf("mp3: %w", err)
	}

	p := pcm{channels: 2, rate: dec.SampleRate(), samples: make([]float32, len(raw)/2)}
	if p.rate <= 0 {
		p.rate = 44100
	}
	for i := range p.samples {
		p.samples[i] = s16(int16(binary.LittleEndian.Uint16(raw[2*i:])))
	}
	return p, nil
}

// decodeOgg tries Vorbis first and falls back to Opus.
func decodeOgg(r io.ReadSeeker) (pcm, error) {
	samples, f, err := oggvorbis.ReadAll(r)
	if err == nil && f != nil && f.Channels > 0 && f.SampleRate > 0 {
		return pcm{samples: samples, channels: f.Channels, rate: f.SampleRate}, nil
	}

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return pcm{}, err
	}
	p, err := decodeOpus(r)
	if err != nil {
		return pcm{}, fmt.Errorf("ogg is neither vorbis nor opus: %w", err)
	}
	return p, nil
}

// decodeOpus reads Ogg Opus, which always decodes at 48 kHz.
func decodeOpus(r io.ReadSeeker) (pcm, error) {
	dec, err := popus.NewDecoder(r)
	if err != nil {
		return pcm{}, err
	}
	defer dec.Destroy()

	p := pcm{channels: max(dec.ChannelCount(), 1), rate: 48000}
	buf := make([]int16, 24000*p.channels)
	for {
		n, err := dec.Read(buf) // per channel
		for _, v := range buf[:n*p.channels] {
			p.samples = append(p.samples, s16(v))
		}
		if errors.Is(err, io.EOF) {
			return p, nil
		}
		if err != nil {
			return pcm{}, fmt.Errorf("opus: %w", err)
		}
	}
}

func s16(v int16) float32 { return float32(v) / 32768 }

func downmixInterleaved(in []float32, channels int) []float32 {
	if channels <= 1 {
		return in
	}
	out := make([]float32, len(in)/channels)
	for i := range out {
		var sum float32
		for _, v := range in[i*channels : (i+1)*channels] {
			sum += v
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// resampleLinear interpolates between neighbouring samples; good enough
// for speech going into whisper.
func resampleLinear(in []float32, from, to int) []float32 {
	if from == to || len(in) == 0 {
		return in
	}
	step := float64(from) / float64(to)
	out := make([]float32, int(math.Ceil(float64(len(in))/step)))
	last := len(in) - 1
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= last {
			out[i] = in[last]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = in[j] + (in[j+1]-in[j])*frac
	}
	return out
}
