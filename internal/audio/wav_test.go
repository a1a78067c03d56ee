package audio

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadInfo(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "clip.wav")
	require.NoError(t, os.WriteFile(path, MakePCM16WAV(make([]int16, 800), 8000, 1), 0o644))

	info, err := ReadInfo(path)
	require.NoError(t, err)
	require.Equal(t, 8000, info.SampleRate)
	require.Equal(t, 1, info.Channels)
	require.Equal(t, 16, info.BitsPerSample)
	require.EqualValues(t, 1, info.Format)
}

func TestMeasureSilence(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "silent.wav")
	require.NoError(t, os.WriteFile(path, MakePCM16WAV(make([]int16, 16000), 16000, 1), 0o644))

	metrics, err := Measure(path)
	require.NoError(t, err)
	require.True(t, math.IsInf(metrics.RMSdBFS, -1))
	require.True(t, math.IsInf(metrics.PeakdBFS, -1))
	require.EqualValues(t, 16000, metrics.Samples)
	require.True(t, metrics.IsSilent(-65))
}

func TestMeasureTone(t *testing.T) {
	t.Parallel()

	samples := make([]int16, 16000)
	for i := range samples {
		samples[i] = int16(0.25 * 32767 * math.Sin(2*math.Pi*440*float64(i)/16000.0))
	}

	path := filepath.Join(t.TempDir(), "tone.wav")
	require.NoError(t, os.WriteFile(path, MakePCM16WAV(samples, 16000, 1), 0o644))

	metrics, err := Measure(path)
	require.NoError(t, err)
	require.Greater(t, metrics.PeakdBFS, -20.0)
	require.Greater(t, metrics.RMSdBFS, -20.0)
	require.False(t, metrics.IsSilent(-65))
}

func TestInvalidWAV(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "not-wav.wav")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	_, err := ReadInfo(path)
	require.ErrorIs(t, err, ErrInvalidWAV)
	_, err = Measure(path)
	require.ErrorIs(t, err, ErrInvalidWAV)
}

func TestMeasureUnsupportedFormat(t *testing.T) {
	t.Parallel()

	data := MakePCM16WAV(make([]int16, 8), 8000, 1)
	// Rewrite the fmt chunk to claim an unsupported codec.
	binary.LittleEndian.PutUint16(data[20:], 0x55)

	path := filepath.Join(t.TempDir(), "alaw.wav")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err := Measure(path)
	require.ErrorIs(t, err, ErrUnsupportedWAV)
}
