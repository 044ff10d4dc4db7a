package audio

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// EncodeWAV encodes mono float32 PCM as 16-bit PCM WAV. An empty input
// still yields a valid header-only file.
func EncodeWAV(pcm []float32, sampleRate int) ([]byte, error) {
	ints := make([]int, len(pcm))
	for i, x := range pcm {
		if x > 1 {
			x = 1
		} else if x < -1 {
			x = -1
		}
		ints[i] = int(x * 32767)
	}

	var f memFile
	enc := wav.NewEncoder(&f, sampleRate, 16, 1, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           ints,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("close wav: %w", err)
	}

	return f.buf, nil
}

// UtteranceFromFile loads a pre-recorded clip to stand in for the microphone.
func UtteranceFromFile(path string) (Utterance, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Utterance{}, err
	}

	ext := strings.ToLower(filepath.Ext(path))
	typ := mime.TypeByExtension(ext)
	switch ext {
	case ".wav":
		typ = "audio/wav"
	case ".mp3":
		typ = "audio/mpeg"
	case ".ogg", ".oga", ".opus":
		typ = "audio/ogg"
	case ".webm":
		typ = "audio/webm"
	}
	if typ == "" {
		typ = "application/octet-stream"
	}

	return Utterance{
		Data:   data,
		MIME:   typ,
		Name:   filepath.Base(path),
		Reason: StopEnded,
	}, nil
}

// memFile is an in-memory io.WriteSeeker; the wav encoder seeks back to
// patch chunk sizes.
type memFile struct {
	buf []byte
	pos int
}

func (m *memFile) Write(p []byte) (int, error) {
	end := m.pos + len(p)
	if end > len(m.buf) {
		m.buf = append(m.buf, make([]byte, end-len(m.buf))...)
	}
	copy(m.buf[m.pos:], p)
	m.pos = end
	return len(p), nil
}

func (m *memFile) Seek(offset int64, whence int) (int64, error) {
	var base int
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = m.pos
	case io.SeekEnd:
		base = len(m.buf)
	default:
		return 0, errors.New("invalid whence")
	}
	next := base + int(offset)
	if next < 0 {
		return 0, errors.New("negative position")
	}
	m.pos = next
	return int64(next), nil
}
