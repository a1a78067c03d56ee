// Package audio inspects WAV files without shelling out: header info for
// cheap format checks and loudness metrics for the silence gate.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

var (
	ErrInvalidWAV     = errors.New("invalid wav file")
	ErrUnsupportedWAV = errors.New("unsupported wav format")
)

// Info is the decoded fmt chunk of a WAV file.
type Info struct {
	Format        uint16
	Channels      int
	SampleRate    int
	BitsPerSample int
}

// Metrics summarises the loudness of a WAV file's sample data.
type Metrics struct {
	RMSdBFS  float64
	PeakdBFS float64
	Samples  int64
}

// IsSilent reports whether the audio is quiet enough to skip inference. The
// peak gate sits 6 dB above the RMS threshold so a lone click does not count
// as speech.
func (m Metrics) IsSilent(thresholdDBFS float64) bool {
	if m.Samples == 0 {
		return true
	}
	if math.IsInf(m.RMSdBFS, -1) && math.IsInf(m.PeakdBFS, -1) {
		return true
	}
	return m.RMSdBFS <= thresholdDBFS && m.PeakdBFS <= thresholdDBFS+6
}

// ReadInfo parses only the WAV header.
func ReadInfo(path string) (Info, error) {
	info, _, _, err := scanChunks(path, false)
	return info, err
}

// Measure decodes the sample data and computes loudness metrics.
func Measure(path string) (Metrics, error) {
	info, data, ok, err := scanChunks(path, true)
	if err != nil {
		return Metrics{}, err
	}
	if !ok {
		return Metrics{}, ErrInvalidWAV
	}

	if err := checkSampleFormat(info); err != nil {
		return Metrics{}, err
	}

	peak, sumSquares, samples, err := measureSamples(data, info)
	if err != nil {
		return Metrics{}, err
	}

	if samples == 0 {
		return Metrics{RMSdBFS: math.Inf(-1), PeakdBFS: math.Inf(-1)}, nil
	}

	rms := math.Sqrt(sumSquares / float64(samples))
	return Metrics{
		RMSdBFS:  toDBFS(rms),
		PeakdBFS: toDBFS(peak),
		Samples:  samples,
	}, nil
}

func scanChunks(path string, wantData bool) (Info, []byte, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, nil, false, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	header := make([]byte, 12)
	if _, err := io.ReadFull(f, header); err != nil {
		return Info{}, nil, false, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
	}
	if string(header[:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return Info{}, nil, false, ErrInvalidWAV
	}

	var (
		info    Info
		hasFmt  bool
		data    []byte
		hasData bool
	)

	chunkHeader := make([]byte, 8)
	for {
		if _, err := io.ReadFull(f, chunkHeader); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return Info{}, nil, false, fmt.Errorf("read wav chunk: %w", err)
		}

		chunkID := string(chunkHeader[:4])
		chunkSize := int64(binary.LittleEndian.Uint32(chunkHeader[4:8]))
		padded := chunkSize
		if chunkSize%2 != 0 {
			padded++
		}

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return Info{}, nil, false, ErrInvalidWAV
			}
			buf := make([]byte, padded)
			if _, err := io.ReadFull(f, buf); err != nil {
				return Info{}, nil, false, fmt.Errorf("read wav fmt chunk: %w", err)
			}
			info = Info{
				Format:        binary.LittleEndian.Uint16(buf[0:2]),
				Channels:      int(binary.LittleEndian.Uint16(buf[2:4])),
				SampleRate:    int(binary.LittleEndian.Uint32(buf[4:8])),
				BitsPerSample: int(binary.LittleEndian.Uint16(buf[14:16])),
			}
			hasFmt = true
		case "data":
			if wantData {
				buf := make([]byte, chunkSize)
				if _, err := io.ReadFull(f, buf); err != nil {
					return Info{}, nil, false, fmt.Errorf("read wav data: %w", err)
				}
				data = buf
				if chunkSize%2 != 0 {
					if _, err := f.Seek(1, io.SeekCurrent); err != nil {
						return Info{}, nil, false, fmt.Errorf("seek wav padding: %w", err)
					}
				}
			} else if _, err := f.Seek(padded, io.SeekCurrent); err != nil {
				return Info{}, nil, false, fmt.Errorf("seek wav data: %w", err)
			}
			hasData = true
		default:
			if _, err := f.Seek(padded, io.SeekCurrent); err != nil {
				return Info{}, nil, false, fmt.Errorf("seek wav chunk %s: %w", chunkID, err)
			}
		}

		if hasFmt && hasData && (!wantData || data != nil) {
			break
		}
	}

	if !hasFmt {
		return Info{}, nil, false, ErrInvalidWAV
	}

	return info, data, hasData, nil
}

func checkSampleFormat(info Info) error {
	switch info.Format {
	case 1: // integer PCM
		switch info.BitsPerSample {
		case 8, 16, 24, 32:
			return nil
		}
	case 3: // IEEE float
		switch info.BitsPerSample {
		case 32, 64:
			return nil
		}
	}
	return ErrUnsupportedWAV
}

func measureSamples(data []byte, info Info) (peak, sumSquares float64, samples int64, err error) {
	bytesPerSample := info.BitsPerSample / 8
	if bytesPerSample <= 0 {
		return 0, 0, 0, ErrUnsupportedWAV
	}

	for i := 0; i+bytesPerSample <= len(data); i += bytesPerSample {
		value, decodeErr := decodeSample(data[i:i+bytesPerSample], info)
		if decodeErr != nil {
			return 0, 0, 0, decodeErr
		}

		abs := math.Abs(value)
		if abs > peak {
			peak = abs
		}
		sumSquares += value * value
		samples++
	}

	return peak, sumSquares, samples, nil
}

func decodeSample(sample []byte, info Info) (float64, error) {
	if info.Format == 3 {
		switch info.BitsPerSample {
		case 32:
			return float64(math.Float32frombits(binary.LittleEndian.Uint32(sample))), nil
		case 64:
			return math.Float64frombits(binary.LittleEndian.Uint64(sample)), nil
		}
		return 0, ErrUnsupportedWAV
	}

	switch info.BitsPerSample {
	case 8:
		return (float64(sample[0]) - 128.0) / 128.0, nil
	case 16:
		return float64(int16(binary.LittleEndian.Uint16(sample))) / 32768.0, nil
	case 24:
		v := int32(sample[0]) | int32(sample[1])<<8 | int32(sample[2])<<16
		if v&0x800000 != 0 {
			v |= ^0xFFFFFF
		}
		return float64(v) / 8388608.0, nil
	case 32:
		return float64(int32(binary.LittleEndian.Uint32(sample))) / 2147483648.0, nil
	}
	return 0, ErrUnsupportedWAV
}

func toDBFS(amplitude float64) float64 {
	if amplitude <= 0 {
		return math.Inf(-1)
	}
	return 20.0 * math.Log10(amplitude)
}
