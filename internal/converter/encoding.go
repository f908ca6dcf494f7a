package converter

import (
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

var errInvalidText = eris.New("converter: attribute text is not valid UTF-8")

// textCodec turns raw attribute-table bytes into UTF-8 strings.
type textCodec interface {
	Name() string
	// Field decodes a column name.
	Field(raw string) (string, error)
	// Value decodes one text attribute value.
	Value(raw string) (string, error)
}

// utf8Codec accepts only valid UTF-8.
type utf8Codec struct{}

func (utf8Codec) Name() string { return "utf-8" }

func (utf8Codec) Field(raw string) (string, error) {
	return utf8Codec{}.Value(raw)
}

func (utf8Codec) Value(raw string) (string, error) {
	if !utf8.ValidString(raw) {
		return "", eris.Wrapf(errInvalidText, "%q", raw)
	}
	return raw, nil
}

// cp1250Codec reads Windows-1250 text and repairs each value by encoding it
// back to Windows-1250 and decoding the bytes as UTF-8, turning every byte
// that does not form UTF-8 into U+FFFD. It is not safe for concurrent use.
type cp1250Codec struct {
	dec *encoding.Decoder
	enc *encoding.Encoder
}

func newCP1250Codec() *cp1250Codec {
	return &cp1250Codec{
		dec: charmap.Windows1250.NewDecoder(),
		enc: encoding.ReplaceUnsupported(charmap.Windows1250.NewEncoder()),
	}
}

func (c *cp1250Codec) Name() string { return "windows-1250" }

func (c *cp1250Codec) Field(raw string) (string, error) {
	if err := checkWindows1250(raw); err != nil {
		return "", err
	}
	s, err := c.dec.String(raw)
	if err != nil {
		return "", eris.Wrap(err, "converter: decode windows-1250 field name")
	}
	return s, nil
}

func (c *cp1250Codec) Value(raw string) (string, error) {
	if err := checkWindows1250(raw); err != nil {
		return "", err
	}
	s, err := c.dec.String(raw)
	if err != nil {
		return "", eris.Wrap(err, "converter: decode windows-1250 value")
	}
	b, err := c.enc.String(s)
	if err != nil {
		return "", eris.Wrap(err, "converter: re-encode windows-1250 value")
	}
	return toValidUTF8(b), nil
}

// checkWindows1250 rejects bytes that have no Windows-1250 mapping.
func checkWindows1250(raw string) error {
	for i := 0; i < len(raw); i++ {
		switch raw[i] {
		case 0x81, 0x83, 0x88, 0x90, 0x98:
			return eris.Errorf("converter: byte %#x at %d is undefined in windows-1250", raw[i], i)
		}
	}
	return nil
}

// toValidUTF8 replaces invalid UTF-8 with U+FFFD, one replacement per
// maximal ill-formed subpart: a truncated multi-byte sequence becomes a
// single U+FFFD and any other stray byte becomes one each.
func toValidUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 8)
	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		if r == utf8.RuneError && size <= 1 {
			b.WriteRune(utf8.RuneError)
			s = s[invalidPrefix(s):]
			continue
		}
		b.WriteString(s[:size])
		s = s[size:]
	}
	return b.String()
}

// invalidPrefix returns the length of the ill-formed sequence at the start
// of s: the lead byte plus the continuation bytes that could still have
// completed it.
func invalidPrefix(s string) int {
	need := 0
	lo, hi := byte(0x80), byte(0xBF)
	switch lead := s[0]; {
	case lead >= 0xC2 && lead <= 0xDF:
		need = 1
	case lead == 0xE0:
		need, lo = 2, 0xA0
	case lead == 0xED:
		need, hi = 2, 0x9F
	case lead >= 0xE1 && lead <= 0xEF:
		need = 2
	case lead == 0xF0:
		need, lo = 3, 0x90
	case lead == 0xF4:
		need, hi = 3, 0x8F
	case lead >= 0xF1 && lead <= 0xF3:
		need = 3
	default:
		return 1
	}

	n := 1
	for n <= need && n < len(s) {
		c := s[n]
		if c < lo || c > hi {
			break
		}
		lo, hi = 0x80, 0xBF
		n++
	}
	return n
}
