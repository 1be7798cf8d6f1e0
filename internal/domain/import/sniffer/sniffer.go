// Package sniffer inspects delimited text files: it normalizes their encoding,
// detects the field delimiter and reads the header row. Format handlers use
// it for their bounded detection probes and for full parses.
package sniffer

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/FACorreiaa/smart-finance-importer/internal/domain/import/normalizer"
)

// ProbeLimit is the number of bytes read by detection probes.
const ProbeLimit = 64 * 1024

var (
	ErrEmptyFile      = errors.New("file is empty")
	ErrNoHeadersFound = errors.New("could not find data headers")
)

var utf8BOM = []byte("\uFEFF")

// Options controls where the header row is and how it is split.
type Options struct {
	// SkipLines is the number of metadata lines before the header row.
	SkipLines int
	// Delimiter overrides detection when non-zero.
	Delimiter rune
}

// FileConfig holds the detected layout of a delimited file.
type FileConfig struct {
	Delimiter   rune
	SkipLines   int
	Headers     []string // as written in the file, trimmed
	Folded      []string // lowercased, accent-free headers
	Fingerprint string   // SHA256 of the normalized headers
}

// Index returns the position of the first folded header equal to one of
// names, or -1.
func (c *FileConfig) Index(names ...string) int {
	for _, name := range names {
		want := normalizer.Fold(name)
		for i, h := range c.Folded {
			if h == want {
				return i
			}
		}
	}
	return -1
}

// Has reports whether every name is present among the folded headers.
func (c *FileConfig) Has(names ...string) bool {
	for _, name := range names {
		if c.Index(name) < 0 {
			return false
		}
	}
	return true
}

// Decode strips a UTF-8 byte order mark and converts ISO-8859-1 input to
// UTF-8. Input that is already valid UTF-8 is returned unchanged.
func Decode(data []byte) []byte {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return data
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return data
	}
	return decoded
}

// ReadHead reads at most limit bytes from the start of path and decodes them.
// A probe may end in the middle of a line; callers only look at the first few.
func ReadHead(path string, limit int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, limit))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return Decode(data), nil
}

// ReadFile reads and decodes the whole file.
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(data), nil
}

// SkipLines drops the first n lines of data.
func SkipLines(data []byte, n int) []byte {
	for i := 0; i < n; i++ {
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			return nil
		}
		data = data[idx+1:]
	}
	return data
}

// NewReader returns a lenient csv.Reader over data.
func NewReader(data []byte, delimiter rune) *csv.Reader {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = delimiter
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	return reader
}

// Probe locates the header row according to opts and returns the layout.
func Probe(data []byte, opts Options) (*FileConfig, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyFile
	}

	lines := strings.Split(string(data), "\n")
	if opts.SkipLines >= len(lines) {
		return nil, ErrNoHeadersFound
	}

	headerLine := cleanLine(lines[opts.SkipLines], opts.SkipLines == 0)
	if headerLine == "" {
		return nil, ErrNoHeadersFound
	}

	delimiter := opts.Delimiter
	if delimiter == 0 {
		var count int
		delimiter, count = detectDelimiter(headerLine)
		if count == 0 {
			// single column file
			delimiter = ','
		}
	}

	reader := csv.NewReader(strings.NewReader(headerLine))
	reader.Comma = delimiter
	reader.LazyQuotes = true

	headers, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoHeadersFound, err)
	}

	folded := make([]string, len(headers))
	for i, h := range headers {
		headers[i] = strings.TrimSpace(h)
		folded[i] = normalizer.Fold(h)
	}

	return &FileConfig{
		Delimiter:   delimiter,
		SkipLines:   opts.SkipLines,
		Headers:     headers,
		Folded:      folded,
		Fingerprint: generateFingerprint(headers),
	}, nil
}

func cleanLine(line string, firstLine bool) string {
	line = strings.TrimRight(line, "\r")
	if firstLine {
		line = strings.TrimPrefix(line, "\uFEFF")
	}
	return strings.TrimSpace(line)
}

func detectDelimiter(line string) (rune, int) {
	delimiters := []rune{';', '\t', ',', '|'}
	bestDelimiter := rune(0)
	bestCount := 0
	for _, d := range delimiters {
		count := strings.Count(line, string(d))
		if count > bestCount {
			bestCount = count
			bestDelimiter = d
		}
	}
	return bestDelimiter, bestCount
}

// generateFingerprint hashes header names so unknown layouts can be grouped
// in logs.
func generateFingerprint(headers []string) string {
	var normalized []string
	for _, h := range headers {
		clean := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return unicode.ToLower(r)
			}
			return -1
		}, normalizer.Fold(h))
		if clean != "" {
			normalized = append(normalized, clean)
		}
	}

	joined := strings.Join(normalized, "|")
	hash := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(hash[:])
}
