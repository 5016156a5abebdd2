package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
)

// Waveform is a decoded mono PCM16 recording.
type Waveform struct {
	Samples    []int16
	SampleRate int
}

// Duration returns the recording length in seconds.
func (w *Waveform) Duration() float64 {
	if w == nil || w.SampleRate <= 0 {
		return 0
	}
	return float64(len(w.Samples)) / float64(w.SampleRate)
}

// Slice returns the samples in [start,end) seconds, clamped to the recording.
// The clip shares backing storage with the waveform.
func (w *Waveform) Slice(start, end float64) Clip {
	if w == nil {
		return Clip{Start: start, End: end}
	}
	clip := Clip{SampleRate: w.SampleRate, Start: start, End: end}
	if w.SampleRate <= 0 || end <= start {
		return clip
	}
	lo := int(math.Floor(start * float64(w.SampleRate)))
	hi := int(math.Floor(end * float64(w.SampleRate)))
	if lo < 0 {
		lo = 0
	}
	if hi > len(w.Samples) {
		hi = len(w.Samples)
	}
	if lo >= hi {
		return clip
	}
	clip.Samples = w.Samples[lo:hi]
	return clip
}

// Clip is a time-bounded view of a waveform.
type Clip struct {
	Samples    []int16
	SampleRate int
	Start      float64
	End        float64
}

// Duration is the length of the samples actually present, in seconds.
func (c Clip) Duration() float64 {
	if c.SampleRate <= 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// PCM16LE serializes the clip samples as little-endian 16-bit PCM.
func (c Clip) PCM16LE() []byte {
	out := make([]byte, 2*len(c.Samples))
	for i, s := range c.Samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}

// WAV wraps the clip in a mono WAV container.
func (c Clip) WAV() ([]byte, error) {
	return EncodeWAVPCM16LE(c.PCM16LE(), c.SampleRate)
}

// WAV wraps the whole waveform in a mono WAV container.
func (w *Waveform) WAV() ([]byte, error) {
	return Clip{Samples: w.Samples, SampleRate: w.SampleRate, End: w.Duration()}.WAV()
}

var ErrInvalidAudioID = errors.New("invalid audio id")

// Library resolves audio ids to WAV files under a single directory.
type Library struct {
	Dir string
}

func NewLibrary(dir string) Library {
	return Library{Dir: strings.TrimSpace(dir)}
}

// Key normalizes an audio id to the base file name used for caching.
func (l Library) Key(audioID string) (string, error) {
	id := strings.TrimSpace(audioID)
	if id == "" {
		return "", ErrInvalidAudioID
	}
	key := filepath.Base(filepath.Clean("/" + id))
	if key == "/" || key == "." || key == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidAudioID, audioID)
	}
	return key, nil
}

// Path returns the on-disk location of audioID.
func (l Library) Path(audioID string) (string, error) {
	key, err := l.Key(audioID)
	if err != nil {
		return "", err
	}
	return filepath.Join(l.Dir, key), nil
}

// Exists reports whether audioID resolves to a readable file.
func (l Library) Exists(audioID string) bool {
	p, err := l.Path(audioID)
	if err != nil {
		return false
	}
	st, err := os.Stat(p)
	return err == nil && !st.IsDir()
}

// Load decodes the WAV file for audioID.
func (l Library) Load(audioID string) (*Waveform, error) {
	p, err := l.Path(audioID)
	if err != nil {
		return nil, err
	}
	return LoadWAVFile(p)
}
