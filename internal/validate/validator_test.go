package validate

import (
	"bytes"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scribeaudio/scribed/internal/source"
)

func testPolicy() Policy {
	return Policy{
		MaxFileSizeMB:     1,
		AllowedExtensions: []string{".wav", ".mp3"},
		AllowedMIMETypes:  []string{"audio/wav", "audio/x-wav", "audio/mpeg"},
	}
}

// wavHeader yields the first bytes of a minimal PCM WAV file so the sniffer
// recognises the content.
func wavHeader(payload int) []byte {
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	buf.Write([]byte{36, 0, 0, 0})
	buf.WriteString("WAVEfmt ")
	buf.Write([]byte{16, 0, 0, 0, 1, 0, 1, 0, 0x80, 0x3e, 0, 0, 0, 0x7d, 0, 0, 2, 0, 16, 0})
	buf.WriteString("data")
	buf.Write([]byte{0, 0, 0, 0})
	buf.Write(make([]byte, payload))
	return buf.Bytes()
}

func TestValidateAcceptsWAV(t *testing.T) {
	t.Parallel()

	v := New(testPolicy(), nil)
	f := source.NewFile(bytes.NewReader(wavHeader(256)), "clip.wav")
	require.NoError(t, v.Validate(f))

	// The sniff must not consume the stream.
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	require.Equal(t, wavHeader(256), data)
}

func TestValidateRejectsExtension(t *testing.T) {
	t.Parallel()

	v := New(testPolicy(), nil)
	f := source.NewFile(bytes.NewReader(wavHeader(16)), "clip.webm")
	require.ErrorIs(t, v.Validate(f), ErrExtension)
}

func TestValidateExtensionCaseInsensitive(t *testing.T) {
	t.Parallel()

	v := New(testPolicy(), nil)
	f := source.NewFile(bytes.NewReader(wavHeader(16)), "CLIP.WAV")
	require.NoError(t, v.Validate(f))
}

func TestValidateRejectsContentType(t *testing.T) {
	t.Parallel()

	v := New(testPolicy(), nil)
	// An ELF header with a .wav name must be rejected by the sniff.
	elf := append([]byte{0x7f, 'E', 'L', 'F'}, make([]byte, 64)...)
	f := source.NewFile(bytes.NewReader(elf), "clip.wav")
	require.ErrorIs(t, v.Validate(f), ErrContentType)
}

func TestValidateRejectsOversize(t *testing.T) {
	t.Parallel()

	v := New(testPolicy(), nil)
	f := source.NewFile(bytes.NewReader(make([]byte, 2*1024*1024)), "clip.wav")
	require.ErrorIs(t, v.Validate(f), source.ErrTooLarge)
}

func TestValidateShortFileSniffs(t *testing.T) {
	t.Parallel()

	// Shorter than the 1 KiB sniff window; must not error out on EOF.
	v := New(testPolicy(), nil)
	f := source.NewFile(bytes.NewReader(wavHeader(0)), "clip.wav")
	require.NoError(t, v.Validate(f))
}

func TestLocalPathResolvesInsideRoot(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	resolved, err := LocalPath("clip.wav", []string{root})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "clip.wav"), resolved)
}

func TestLocalPathRejectsTraversal(t *testing.T) {
	t.Parallel()

	_, err := LocalPath("../../etc/passwd", []string{t.TempDir()})
	require.ErrorIs(t, err, ErrPathTraversal)
}

func TestLocalPathRejectsAbsoluteOutsideRoots(t *testing.T) {
	t.Parallel()

	_, err := LocalPath("/etc/passwd", []string{t.TempDir()})
	require.ErrorIs(t, err, ErrPathTraversal)
}

func TestLocalPathFailsClosedWithoutRoots(t *testing.T) {
	t.Parallel()

	_, err := LocalPath("clip.wav", nil)
	require.ErrorIs(t, err, ErrPathTraversal)
}

func TestLocalPathAbsoluteInsideRoot(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	target := filepath.Join(root, "nested", "clip.wav")
	resolved, err := LocalPath(target, []string{root})
	require.NoError(t, err)
	require.Equal(t, target, resolved)
}

func TestLocalPathSneakyRelative(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	_, err := LocalPath("nested/../../outside.wav", []string{root})
	require.ErrorIs(t, err, ErrPathTraversal)
}
