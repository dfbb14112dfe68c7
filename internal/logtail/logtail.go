package logtail

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// blockSize is how much of the file is read per step when walking backwards.
const blockSize = 16 * 1024

// Read returns at most maxLines from the end of the file at path, oldest
// first. A missing file yields no lines and no error.
func Read(path string, maxLines int) ([]string, error) {
	if maxLines <= 0 {
		return nil, nil
	}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat log: %w", err)
	}

	// Walk backwards until the buffer holds more than maxLines newlines or
	// the start of the file was reached.
	var tail []byte
	offset := info.Size()
	for offset > 0 && bytes.Count(tail, []byte{'\n'}) <= maxLines {
		step := min(int64(blockSize), offset)
		offset -= step
		chunk := make([]byte, step)
		if _, err := file.ReadAt(chunk, offset); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read log: %w", err)
		}
		tail = append(chunk, tail...)
	}

	text := strings.TrimRight(string(tail), "\n")
	if text == "" {
		return nil, nil
	}
	lines := strings.Split(text, "\n")
	if offset > 0 {
		// The first line is probably cut in half.
		lines = lines[1:]
	}
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines, nil
}

// Level is the severity the log view assigns to a line.
type Level int

const (
	LevelInfo Level = iota
	LevelWarn
	LevelError
)

// Classify guesses the severity of one of buddy's log lines.
func Classify(line string) Level {
	lower := strings.ToLower(line)
	switch {
	case strings.Contains(lower, "desync"), strings.Contains(lower, "panic"):
		return LevelError
	case strings.Contains(lower, "failed"), strings.Contains(lower, "discarded"):
		return LevelWarn
	default:
		return LevelInfo
	}
}
