package audio

import (
	"errors"
	"fmt"

	"github.com/gordonklaus/portaudio"
)

var ErrNoDevice = errors.New("no capture device")

// Stream delivers mono float32 frames in [-1, 1]. Read blocks until the
// frame is full; io.EOF means the source is exhausted.
type Stream interface {
	Read(frame []float32) error
	Close() error
}

type Capture interface {
	Open(sampleRate, frameSize int) (Stream, error)
}

// PortAudio opens the default input device.
type PortAudio struct{}

func NewPortAudio() *PortAudio { return &PortAudio{} }

func (p *PortAudio) Init() error {
	return portaudio.Initialize()
}

func (p *PortAudio) Close() {
	portaudio.Terminate()
}

func (p *PortAudio) Open(sampleRate, frameSize int) (Stream, error) {
	buf := make([]float32, frameSize)

	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), len(buf), buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoDevice, err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("start stream: %w", err)
	}

	return &portAudioStream{stream: stream, buf: buf}, nil
}

type portAudioStream struct {
	stream *portaudio.Stream
	buf    []float32
}

func (s *portAudioStream) Read(frame []float32) error {
	// An overflow still fills the buffer; the frame is usable.
	if err := s.stream.Read(); err != nil && err != portaudio.InputOverflowed {
		return err
	}
	copy(frame, s.buf)
	return nil
}

func (s *portAudioStream) Close() error {
	stopErr := s.stream.Stop()
	closeErr := s.stream.Close()
	return errors.Join(stopErr, closeErr)
}
