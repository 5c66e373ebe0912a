package audio

import (
	"encoding/binary"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"
)

const streamChunk = 4096

// resampleQuality is the beep interpolation window; 4 is beep's usual
// choice for speech.
const resampleQuality = 4

// ReadWAV decodes a PCM WAV file into memory.
func ReadWAV(path string) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open wav: %w", err)
	}

	streamer, format, err := wav.Decode(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("decode wav %s: %w", filepath.Base(path), err)
	}
	defer streamer.Close()

	frames, err := drain(streamer, streamer.Len())
	if err != nil {
		return nil, fmt.Errorf("read wav %s: %w", filepath.Base(path), err)
	}

	return &Clip{
		Frames: frames,
		Format: Format{SampleRate: int(format.SampleRate), Channels: format.NumChannels},
		Path:   path,
	}, nil
}

// WriteWAV encodes frames as 16-bit PCM. Samples beyond [-1, 1] are
// hard-clipped by the encoder; nothing is rescaled.
func WriteWAV(path string, frames Frames, format Format) error {
	if format.SampleRate <= 0 {
		return fmt.Errorf("write wav: invalid sample rate %d", format.SampleRate)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create wav dir: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create wav: %w", err)
	}
	if err := wav.Encode(f, &frameStreamer{frames: frames}, format.beep()); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("encode wav: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close wav: %w", err)
	}
	return os.Rename(tmp, path)
}

// Save writes the clip to path and remembers the location.
func (c *Clip) Save(path string) error {
	if err := WriteWAV(path, c.Frames, c.Format); err != nil {
		return err
	}
	c.Path = path
	return nil
}

func (t *Track) Save(path string) error {
	return WriteWAV(path, t.Frames, t.Format)
}

// Resample converts frames between sample rates.
func Resample(frames Frames, from, to int) (Frames, error) {
	if from == to || len(frames) == 0 {
		return frames, nil
	}
	if from <= 0 || to <= 0 {
		return nil, fmt.Errorf("resample: invalid rates %d -> %d", from, to)
	}
	r := beep.Resample(resampleQuality, beep.SampleRate(from), beep.SampleRate(to), &frameStreamer{frames: frames})
	expected := int(int64(len(frames)) * int64(to) / int64(from))
	return drain(r, expected)
}

// ResampleTo returns the clip at the target rate. The receiver is not
// modified.
func (c *Clip) ResampleTo(rate int) (*Clip, error) {
	if c.Format.SampleRate == rate {
		return c, nil
	}
	frames, err := Resample(c.Frames, c.Format.SampleRate, rate)
	if err != nil {
		return nil, err
	}
	return &Clip{Frames: frames, Format: Format{SampleRate: rate, Channels: c.Format.Channels}, Path: c.Path}, nil
}

// DecodePCM16 decodes raw little-endian signed 16-bit mono PCM, the
// payload type returned by the speech API.
func DecodePCM16(data []byte, rate int) (*Clip, error) {
	if rate <= 0 {
		return nil, fmt.Errorf("decode pcm: invalid sample rate %d", rate)
	}
	if len(data)%2 != 0 {
		data = data[:len(data)-1]
	}
	frames := make(Frames, len(data)/2)
	for i := range frames {
		v := float64(int16(binary.LittleEndian.Uint16(data[2*i:]))) / 32768
		frames[i] = [2]float64{v, v}
	}
	return &Clip{Frames: frames, Format: Format{SampleRate: rate, Channels: 1}}, nil
}

// RateFromMIME extracts the rate parameter of "audio/L16;codec=pcm;rate=24000".
func RateFromMIME(mimeType string, fallback int) int {
	_, params, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return fallback
	}
	rate, err := strconv.Atoi(strings.TrimSpace(params["rate"]))
	if err != nil || rate <= 0 {
		return fallback
	}
	return rate
}

func drain(s beep.Streamer, sizeHint int) (Frames, error) {
	frames := make(Frames, 0, max(sizeHint, 0))
	buf := make(Frames, streamChunk)
	for {
		n, ok := s.Stream(buf)
		frames = append(frames, buf[:n]...)
		if !ok {
			break
		}
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return frames, nil
}

type frameStreamer struct {
	frames Frames
	pos    int
}

func (s *frameStreamer) Stream(samples [][2]float64) (int, bool) {
	if s.pos >= len(s.frames) {
		return 0, false
	}
	n := copy(samples, s.frames[s.pos:])
	s.pos += n
	return n, true
}

func (s *frameStreamer) Err() error { return nil }
