// Package submission reads student work from disk.
package submission

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/c360studio/semgrade/assess"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

var (
	// ErrUnsupported is returned for file types the loader cannot read.
	ErrUnsupported = errors.New("unsupported submission format")
	// ErrEmpty is returned when a file holds no readable text.
	ErrEmpty = errors.New("submission is empty")
	// ErrTooLarge is returned for files over MaxSize.
	ErrTooLarge = errors.New("submission too large")
)

// MaxSize bounds a single submission file.
const MaxSize = 5 * 1024 * 1024

// Extensions lists the file types Load accepts.
var Extensions = []string{".txt", ".md", ".markdown", ".html", ".htm"}

// Supported reports whether path has an extension Load accepts.
func Supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Load reads a submission file. The submission name is the file's base name
// and the ID is left empty for the assessor to fill.
func Load(path string) (assess.Submission, error) {
	if !Supported(path) {
		return assess.Submission{}, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(path))
	}

	info, err := os.Stat(path)
	if err != nil {
		return assess.Submission{}, fmt.Errorf("stat submission: %w", err)
	}
	if info.Size() > MaxSize {
		return assess.Submission{}, fmt.Errorf("%w: %s is %d bytes", ErrTooLarge, filepath.Base(path), info.Size())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return assess.Submission{}, fmt.Errorf("read submission: %w", err)
	}

	text, err := Decode(path, data)
	if err != nil {
		return assess.Submission{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return assess.Submission{Name: filepath.Base(path), Text: text}, nil
}

// Decode turns file content into submission text, choosing the reader by
// the extension of name.
func Decode(name string, data []byte) (string, error) {
	raw, err := toUTF8(data)
	if err != nil {
		return "", err
	}

	var text string
	switch strings.ToLower(filepath.Ext(name)) {
	case ".html", ".htm":
		text, err = fromHTML(raw)
		if err != nil {
			return "", err
		}
	case ".txt", ".md", ".markdown", "":
		text = cleanText(raw)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(name))
	}

	if strings.TrimSpace(text) == "" {
		return "", ErrEmpty
	}
	return text, nil
}

// toUTF8 strips a byte order mark and decodes non UTF-8 input as
// Windows-1252, which covers Latin-1 exports from older word processors.
func toUTF8(data []byte) (string, error) {
	data = trimBOM(data)
	if utf8.Valid(data) {
		return string(data), nil
	}
	out, _, err := transform.Bytes(charmap.Windows1252.NewDecoder(), data)
	if err != nil {
		return "", fmt.Errorf("decode text: %w", err)
	}
	return string(out), nil
}

func trimBOM(data []byte) []byte {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		return data[3:]
	}
	return data
}

// cleanText normalizes line endings and trims trailing space on each line.
func cleanText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
