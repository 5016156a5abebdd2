package audio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// DefaultSampleRate is the rate assumed when a waveform carries none.
const DefaultSampleRate = 16000

var ErrUnsupportedFormat = errors.New("unsupported wav format")

// EncodeWAVPCM16LE wraps raw PCM16LE mono audio bytes in a WAV container.
func EncodeWAVPCM16LE(pcm []byte, sampleRate int) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteWAVPCM16LETo(&buf, pcm, sampleRate); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteWAVPCM16LETo writes raw PCM16LE mono audio bytes to out as a WAV stream.
func WriteWAVPCM16LETo(out io.Writer, pcm []byte, sampleRate int) error {
	const (
		numChannels   = 1
		bitsPerSample = 16
		audioFormat   = 1 // PCM
	)
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}

	dataSize := uint32(len(pcm))
	byteRate := uint32(sampleRate * numChannels * bitsPerSample / 8)
	blockAlign := uint16(numChannels * bitsPerSample / 8)

	w := bufio.NewWriter(out)

	// RIFF header.
	if _, err := w.WriteString("RIFF"); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(36)+dataSize); err != nil {
		return err
	}
	if _, err := w.WriteString("WAVE"); err != nil {
		return err
	}

	// fmt chunk.
	if _, err := w.WriteString("fmt "); err != nil {
		return err
	}
	fmtFields := []any{
		uint32(16),
		uint16(audioFormat),
		uint16(numChannels),
		uint32(sampleRate),
		byteRate,
		blockAlign,
		uint16(bitsPerSample),
	}
	for _, v := range fmtFields {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}

	// data chunk.
	if _, err := w.WriteString("data"); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, dataSize); err != nil {
		return err
	}
	if _, err := w.Write(pcm); err != nil {
		return err
	}
	return w.Flush()
}

type wavFormat struct {
	audioFormat   uint16
	channels      uint16
	sampleRate    uint32
	bitsPerSample uint16
}

// DecodeWAV reads a PCM16 WAV stream. Multi-channel audio is averaged down to mono.
func DecodeWAV(r io.Reader) (*Waveform, error) {
	br := bufio.NewReader(r)

	var riff [12]byte
	if _, err := io.ReadFull(br, riff[:]); err != nil {
		return nil, fmt.Errorf("read riff header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, fmt.Errorf("%w: missing RIFF/WAVE header", ErrUnsupportedFormat)
	}

	var (
		format    *wavFormat
		chunkHead [8]byte
	)
	for {
		if _, err := io.ReadFull(br, chunkHead[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, fmt.Errorf("%w: no data chunk", ErrUnsupportedFormat)
			}
			return nil, fmt.Errorf("read chunk header: %w", err)
		}
		id := string(chunkHead[0:4])
		size := binary.LittleEndian.Uint32(chunkHead[4:8])

		switch id {
		case "fmt ":
			body := make([]byte, size)
			if _, err := io.ReadFull(br, body); err != nil {
				return nil, fmt.Errorf("read fmt chunk: %w", err)
			}
			if size < 16 {
				return nil, fmt.Errorf("%w: short fmt chunk", ErrUnsupportedFormat)
			}
			format = &wavFormat{
				audioFormat:   binary.LittleEndian.Uint16(body[0:2]),
				channels:      binary.LittleEndian.Uint16(body[2:4]),
				sampleRate:    binary.LittleEndian.Uint32(body[4:8]),
				bitsPerSample: binary.LittleEndian.Uint16(body[14:16]),
			}
		case "data":
			if format == nil {
				return nil, fmt.Errorf("%w: data chunk before fmt chunk", ErrUnsupportedFormat)
			}
			// Streamed writers may leave the size at its maximum; keep what arrived.
			body, err := io.ReadAll(io.LimitReader(br, int64(size)))
			if err != nil {
				return nil, fmt.Errorf("read data chunk: %w", err)
			}
			return decodePCM16(*format, body)
		default:
			if _, err := br.Discard(int(size)); err != nil {
				return nil, fmt.Errorf("skip %q chunk: %w", id, err)
			}
		}
		if size%2 == 1 {
			if _, err := br.Discard(1); err != nil && !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("skip chunk padding: %w", err)
			}
		}
	}
}

func decodePCM16(f wavFormat, data []byte) (*Waveform, error) {
	if f.audioFormat != 1 && f.audioFormat != 0xFFFE {
		return nil, fmt.Errorf("%w: audio format %d", ErrUnsupportedFormat, f.audioFormat)
	}
	if f.bitsPerSample != 16 {
		return nil, fmt.Errorf("%w: %d bits per sample", ErrUnsupportedFormat, f.bitsPerSample)
	}
	if f.channels == 0 {
		return nil, fmt.Errorf("%w: zero channels", ErrUnsupportedFormat)
	}

	channels := int(f.channels)
	frameBytes := 2 * channels
	frames := len(data) / frameBytes
	samples := make([]int16, frames)
	for i := 0; i < frames; i++ {
		sum := 0
		for c := 0; c < channels; c++ {
			off := i*frameBytes + c*2
			sum += int(int16(binary.LittleEndian.Uint16(data[off : off+2])))
		}
		samples[i] = int16(sum / channels)
	}

	rate := int(f.sampleRate)
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	return &Waveform{Samples: samples, SampleRate: rate}, nil
}

// LoadWAVFile decodes the WAV file at path.
func LoadWAVFile(path string) (*Waveform, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	w, err := DecodeWAV(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return w, nil
}
