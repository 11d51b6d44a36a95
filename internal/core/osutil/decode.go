package osutil

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"
)

// Decoded is the outcome of SmartDecode.
type Decoded struct {
	Text     string
	Encoding string
	Lossy    bool
}

// SmartDecode turns transcript bytes of unknown encoding into text.
//
// Order: byte order mark, strict UTF-8, salvaged UTF-8 (at most 2%
// replacement characters and at least 60% ASCII), UTF-16 when NUL bytes are
// frequent, GB18030, and finally Latin-1 which never fails.
func SmartDecode(raw []byte) Decoded {
	if len(raw) == 0 {
		return Decoded{Encoding: "utf-8"}
	}

	switch {
	case bytes.HasPrefix(raw, []byte{0xEF, 0xBB, 0xBF}):
		if utf8.Valid(raw[3:]) {
			return Decoded{Text: string(raw[3:]), Encoding: "utf-8-sig"}
		}
	case bytes.HasPrefix(raw, []byte{0xFF, 0xFE}):
		if s, ok := decodeStrict(unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM), raw); ok {
			return Decoded{Text: s, Encoding: "utf-16-le"}
		}
	case bytes.HasPrefix(raw, []byte{0xFE, 0xFF}):
		if s, ok := decodeStrict(unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM), raw); ok {
			return Decoded{Text: s, Encoding: "utf-16-be"}
		}
	}

	if utf8.Valid(raw) {
		return Decoded{Text: string(raw), Encoding: "utf-8"}
	}

	salvaged := strings.ToValidUTF8(string(raw), "�")
	runes := []rune(salvaged)
	total := len(runes)
	if total == 0 {
		total = 1
	}
	var replaced, ascii int
	for _, r := range runes {
		if r == utf8.RuneError {
			replaced++
		}
		if r < 128 {
			ascii++
		}
	}
	if float64(replaced)/float64(total) <= 0.02 && float64(ascii)/float64(total) >= 0.6 {
		return Decoded{Text: salvaged, Encoding: "utf-8(replace)", Lossy: true}
	}

	nul := bytes.Count(raw, []byte{0})
	if nul > max(4, len(raw)/8) {
		if s, ok := decodeStrict(unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM), raw); ok {
			return Decoded{Text: s, Encoding: "utf-16-le"}
		}
		if s, ok := decodeStrict(unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM), raw); ok {
			return Decoded{Text: s, Encoding: "utf-16-be"}
		}
		if s, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder().Bytes(raw); err == nil {
			return Decoded{Text: string(s), Encoding: "utf-16-le(ignore)", Lossy: true}
		}
	}

	if s, ok := decodeStrict(simplifiedchinese.GB18030, raw); ok {
		return Decoded{Text: s, Encoding: "gb18030"}
	}

	s, _ := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	return Decoded{Text: string(s), Encoding: "latin1(ignore)", Lossy: true}
}

// decodeStrict decodes raw and rejects results containing replacement characters.
func decodeStrict(enc encoding.Encoding, raw []byte) (string, bool) {
	out, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", false
	}
	s := string(out)
	if strings.ContainsRune(s, utf8.RuneError) {
		return "", false
	}
	return s, true
}
