package pdfocr

import (
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
)

// unescapePDFString resolves the backslash escapes of a PDF literal string.
func unescapePDFString(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case 'b':
			b.WriteByte('\b')
		case 'f':
			b.WriteByte('\f')
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// decodePDFText decodes a PDF text string: UTF-16BE when it starts with a
// byte order mark, otherwise the bytes as they are.
func decodePDFText(s string) string {
	if len(s) >= 2 && s[0] == '\xfe' && s[1] == '\xff' {
		decoded, err := decodeUTF16BE([]byte(s))
		if err == nil {
			return decoded
		}
	}
	return s
}

func decodeUTF16BE(b []byte) (string, error) {
	decoder := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder()
	out, err := decoder.Bytes(b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// textLength counts the characters of s after trimming surrounding space.
func textLength(s string) int {
	return utf8.RuneCountInString(strings.TrimSpace(s))
}

// copyFile copies src to dst, creating or truncating dst.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
