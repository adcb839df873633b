// Package encoding converts text chunks into bytes using named text encodings.
package encoding

import (
	"encoding/base64"
	"encoding/hex"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	sferrors "github.com/vnykmshr/sinkflow/pkg/common/errors"
)

// Encoding is a canonical text encoding name.
type Encoding string

const (
	UTF8      Encoding = "utf8"
	ASCII     Encoding = "ascii"
	Latin1    Encoding = "latin1"
	Hex       Encoding = "hex"
	Base64    Encoding = "base64"
	Base64URL Encoding = "base64url"
	UTF16LE   Encoding = "utf16le"
)

// Default is the encoding used when none is configured.
const Default = UTF8

var aliases = map[string]Encoding{
	"utf8":      UTF8,
	"utf-8":     UTF8,
	"ascii":     ASCII,
	"latin1":    Latin1,
	"binary":    Latin1,
	"hex":       Hex,
	"base64":    Base64,
	"base64url": Base64URL,
	"utf16le":   UTF16LE,
	"utf-16le":  UTF16LE,
	"ucs2":      UTF16LE,
	"ucs-2":     UTF16LE,
}

// Normalize resolves a case-insensitive encoding name or alias to its
// canonical form. It fails with an unknown-encoding error.
func Normalize(name string) (Encoding, error) {
	if enc, ok := aliases[strings.ToLower(name)]; ok {
		return enc, nil
	}
	return "", sferrors.UnknownEncoding(name)
}

// IsValid reports whether name is a recognized encoding.
func IsValid(name string) bool {
	_, err := Normalize(name)
	return err == nil
}

// Encode converts s to bytes using the named encoding.
func Encode(s string, name string) ([]byte, error) {
	enc, err := Normalize(name)
	if err != nil {
		return nil, err
	}
	return enc.Encode(s)
}

// Encode converts s to bytes.
//
// latin1 and ascii keep the low byte of every code point, hex and base64
// decode leniently by stopping at the first invalid input.
func (e Encoding) Encode(s string) ([]byte, error) {
	switch e {
	case UTF8:
		return []byte(s), nil
	case Latin1, ASCII:
		return lowBytes(s), nil
	case Hex:
		return decodeHex(s), nil
	case Base64:
		return decodeBase64(s, base64.StdEncoding), nil
	case Base64URL:
		return decodeBase64(s, base64.URLEncoding), nil
	case UTF16LE:
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder().Bytes([]byte(s))
	}
	return nil, sferrors.UnknownEncoding(string(e))
}

func lowBytes(s string) []byte {
	out, err := charmap.ISO8859_1.NewEncoder().Bytes([]byte(s))
	if err == nil {
		return out
	}
	// Code points above U+00FF are truncated to their low byte.
	out = make([]byte, 0, len(s))
	for _, r := range s {
		out = append(out, byte(r))
	}
	return out
}

func decodeHex(s string) []byte {
	n := len(s) / 2
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		if _, err := hex.Decode(out[i:i+1], []byte(s[2*i:2*i+2])); err != nil {
			return out[:i]
		}
	}
	return out
}

func decodeBase64(s string, enc *base64.Encoding) []byte {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case '-':
			return '+'
		case '_':
			return '/'
		case '=', ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, s)
	raw := enc.WithPadding(base64.NoPadding)
	buf := make([]byte, raw.DecodedLen(len(clean)))
	// Decode reports the bytes written before the first invalid character.
	n, _ := raw.Decode(buf, []byte(translateAlphabet(clean, enc)))
	return buf[:n]
}

func translateAlphabet(s string, enc *base64.Encoding) string {
	if enc != base64.URLEncoding {
		return s
	}
	return strings.NewReplacer("+", "-", "/", "_").Replace(s)
}
