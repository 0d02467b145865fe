package audio

import (
	"fmt"
	"os"
)

// writeScratch stores one chunk as a WAV file and returns its path. The caller removes it.
func writeScratch(dir, callID string, seq int, f Format, pcm []byte) (string, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("audio: scratch dir: %w", err)
	}
	file, err := os.CreateTemp(dir, fmt.Sprintf("%s-%04d-*.wav", sanitize(callID), seq))
	if err != nil {
		return "", fmt.Errorf("audio: scratch file: %w", err)
	}
	if err := WriteWAV(file, f, pcm); err != nil {
		_ = file.Close()
		_ = os.Remove(file.Name())
		return "", fmt.Errorf("audio: write scratch: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(file.Name())
		return "", fmt.Errorf("audio: close scratch: %w", err)
	}
	return file.Name(), nil
}

// sanitize keeps call ids safe for file names.
func sanitize(s string) string {
	out := []byte(s)
	for i, c := range out {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			out[i] = '_'
		}
	}
	if len(out) == 0 {
		return "stream"
	}
	return string(out)
}

func removeScratch(path string) {
	_ = os.Remove(path)
}
