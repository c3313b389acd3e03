package plaintext

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"unicode/utf8"
)

// ErrNotText marks content that cannot be decoded as UTF-8 text.
var ErrNotText = errors.New("not a text file")

// Decode returns raw as text, or ErrNotText for invalid UTF-8 or embedded NUL bytes.
func Decode(raw []byte) (string, error) {
	if !utf8.Valid(raw) || bytes.IndexByte(raw, 0) >= 0 {
		return "", ErrNotText
	}
	return string(raw), nil
}

// ReadFile reads and decodes the file at path. Content is returned verbatim.
func ReadFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open source file: %w", err)
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		return "", fmt.Errorf("read source file: %w", err)
	}
	return Decode(raw)
}
