// Package textenc selects and applies character decodings for source
// extracts. Sources arrive in UTF-8 or one of the legacy single-byte
// Cyrillic codepages; the codec may be named explicitly or sniffed from a
// leading sample of the stream. Decoding is incremental: the stream is
// never buffered whole.
package textenc

import (
	"bytes"
	"fmt"
	"io"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	xunicode "golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Encoding names a supported source encoding.
type Encoding string

const (
	// Auto sniffs the encoding from a leading sample.
	Auto Encoding = "auto"
	// UTF8 is passed through undecoded (after BOM stripping).
	UTF8 Encoding = "utf8"
	// Windows1251 is the CP1251 Cyrillic codepage.
	Windows1251 Encoding = "windows1251"
	// KOI8R is the KOI8-R Cyrillic codepage.
	KOI8R Encoding = "koi8r"
	// ISO88595 is the ISO 8859-5 Cyrillic codepage.
	ISO88595 Encoding = "iso88595"

	// Internal sniff results for BOM-marked UTF-16.
	utf16le Encoding = "utf16le"
	utf16be Encoding = "utf16be"
)

// SampleSize is the number of leading bytes inspected when sniffing.
const SampleSize = 8192

// Parse maps a user-supplied encoding name to an Encoding.
func Parse(name string) (Encoding, error) {
	switch Encoding(name) {
	case "", Auto:
		return Auto, nil
	case UTF8, Windows1251, KOI8R, ISO88595:
		return Encoding(name), nil
	default:
		return "", fmt.Errorf("unknown encoding %q (want auto|utf8|windows1251|koi8r|iso88595)", name)
	}
}

// NewReader wraps r so that reads yield UTF-8 text. When enc is Auto the
// encoding is sniffed from the first SampleSize bytes; the sampled bytes
// are replayed, so the caller sees the stream from its start (minus any
// byte-order mark). The resolved encoding is returned alongside.
func NewReader(r io.Reader, enc Encoding) (io.Reader, Encoding, error) {
	if enc == Auto {
		sample := make([]byte, SampleSize)
		n, err := io.ReadFull(r, sample)
		if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
			return nil, "", fmt.Errorf("read encoding sample: %w", err)
		}
		sample = sample[:n]
		enc = Sniff(sample)
		r = io.MultiReader(bytes.NewReader(sample), r)
	}

	dec, err := decoder(enc)
	if err != nil {
		return nil, "", err
	}
	if dec == nil {
		// UTF-8: pass through, dropping a leading BOM if present.
		return transform.NewReader(r, xunicode.BOMOverride(transform.Nop)), enc, nil
	}
	return transform.NewReader(r, dec), enc, nil
}

func decoder(enc Encoding) (transform.Transformer, error) {
	switch enc {
	case UTF8:
		return nil, nil
	case Windows1251:
		return charmap.Windows1251.NewDecoder(), nil
	case KOI8R:
		return charmap.KOI8R.NewDecoder(), nil
	case ISO88595:
		return charmap.ISO8859_5.NewDecoder(), nil
	case utf16le:
		return xunicode.UTF16(xunicode.LittleEndian, xunicode.UseBOM).NewDecoder(), nil
	case utf16be:
		return xunicode.UTF16(xunicode.BigEndian, xunicode.UseBOM).NewDecoder(), nil
	default:
		return nil, fmt.Errorf("unknown encoding %q", enc)
	}
}

// Sniff guesses the encoding of a leading sample. Byte-order marks win
// outright; otherwise valid UTF-8 is taken at face value, and the
// remaining single-byte Cyrillic codepages are ranked by decoding the
// sample with each and scoring the share of Cyrillic letters produced.
func Sniff(sample []byte) Encoding {
	switch {
	case bytes.HasPrefix(sample, []byte{0xEF, 0xBB, 0xBF}):
		return UTF8
	case bytes.HasPrefix(sample, []byte{0xFF, 0xFE}):
		return utf16le
	case bytes.HasPrefix(sample, []byte{0xFE, 0xFF}):
		return utf16be
	}

	if utf8.Valid(trimPartialRune(sample)) {
		return UTF8
	}

	candidates := []Encoding{Windows1251, KOI8R, ISO88595}
	best := Windows1251
	bestScore := -1
	for _, enc := range candidates {
		dec, _ := decoder(enc)
		decoded, _, err := transform.Bytes(dec, sample)
		if err != nil {
			continue
		}
		score := cyrillicScore(decoded)
		if score > bestScore {
			best = enc
			bestScore = score
		}
	}
	return best
}

// trimPartialRune drops up to 3 trailing bytes so a sample cut mid-rune
// does not fail UTF-8 validation.
func trimPartialRune(b []byte) []byte {
	for i := 0; i < 3 && len(b) > 0; i++ {
		if r, _ := utf8.DecodeLastRune(b); r != utf8.RuneError {
			break
		}
		b = b[:len(b)-1]
	}
	return b
}

// cyrillicScore ranks a decoded sample. All three codepages map high
// bytes to Cyrillic letters, but the wrong codec flips the case of
// typical (mostly lowercase) text, so lowercase letters weigh more.
func cyrillicScore(decoded []byte) int {
	score := 0
	for _, r := range string(decoded) {
		switch {
		case unicode.Is(unicode.Cyrillic, r) && unicode.IsLower(r):
			score += 3
		case unicode.Is(unicode.Cyrillic, r):
			score++
		case r < 128:
			score++
		case r == utf8.RuneError:
			score -= 2
		}
	}
	return score
}
