package perf

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrInvalidSample is returned for a record without a name or with a
// negative duration.
var ErrInvalidSample = errors.New("invalid sample")

// maxLine bounds one JSON-lines record.
const maxLine = 1 << 20

// LoadFile reads samples from a JSON-lines or JSON-array file.
func LoadFile(path string) ([]Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

// Load reads samples from r. Input starting with '[' is a JSON array,
// anything else one JSON object per line. Blank lines are skipped.
func Load(r io.Reader) ([]Sample, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}

	if first == '[' {
		var samples []Sample
		if err := json.NewDecoder(br).Decode(&samples); err != nil {
			return nil, fmt.Errorf("decoding sample array: %w", err)
		}
		for i, s := range samples {
			if err := validate(s); err != nil {
				return nil, fmt.Errorf("sample %d: %w", i, err)
			}
		}
		return samples, nil
	}

	var samples []Sample
	sc := bufio.NewScanner(br)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	line := 0
	for sc.Scan() {
		line++
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 {
			continue
		}
		var s Sample
		if err := json.Unmarshal(text, &s); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if err := validate(s); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		samples = append(samples, s)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return samples, nil
}

func validate(s Sample) error {
	if s.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidSample)
	}
	if s.Duration < 0 {
		return fmt.Errorf("%w: negative duration", ErrInvalidSample)
	}
	return nil
}

// peekNonSpace discards leading whitespace and returns the next byte
// without consuming it.
func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}
