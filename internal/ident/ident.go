// Package ident implements reactor names: dot-delimited paths of ASCII
// tokens, each carrying a 128-bit content hash used for fast equality and
// ordering alongside its literal text for display.
package ident

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// domainToken separates token hashes from any other SHA-256 use.
// Format: SHA256(domain + 0x00 + token), truncated to 128 bits.
const domainToken = "cascade/token/v1"

// Separator joins tokens in a name.
const Separator = "."

// ErrInvalidName is returned for names or tokens that do not parse.
var ErrInvalidName = errors.New("ident: invalid name")

// Token is one path element.
type Token struct {
	hi, lo uint64
	text   string
}

// NewToken validates s as a token. Compatibility forms such as fullwidth
// letters are folded to ASCII with NFKC first; anything still outside
// [A-Za-z0-9_$-] is rejected.
func NewToken(s string) (Token, error) {
	s = norm.NFKC.String(s)
	if s == "" {
		return Token{}, fmt.Errorf("%w: empty token", ErrInvalidName)
	}
	for i := 0; i < len(s); i++ {
		if !tokenByte(s[i]) {
			return Token{}, fmt.Errorf("%w: %q has invalid character %q at %d", ErrInvalidName, s, rune(s[i]), i)
		}
	}
	h := sha256.New()
	h.Write([]byte(domainToken))
	h.Write([]byte{0x00})
	h.Write([]byte(s))
	sum := h.Sum(nil)
	return Token{
		hi:   binary.BigEndian.Uint64(sum[:8]),
		lo:   binary.BigEndian.Uint64(sum[8:16]),
		text: s,
	}, nil
}

func tokenByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '_' || c == '-' || c == '$':
		return true
	default:
		return false
	}
}

// String returns the token's literal text.
func (t Token) String() string {
	return t.text
}

// Hash returns the 128-bit content hash.
func (t Token) Hash() [16]byte {
	var out [16]byte
	binary.BigEndian.PutUint64(out[:8], t.hi)
	binary.BigEndian.PutUint64(out[8:], t.lo)
	return out
}

// HashHex returns Hash as lowercase hex.
func (t Token) HashHex() string {
	h := t.Hash()
	return hex.EncodeToString(h[:])
}

// Equal compares hashes first and falls back to text only on a hash match.
func (t Token) Equal(o Token) bool {
	return t.hi == o.hi && t.lo == o.lo && t.text == o.text
}

// Compare orders tokens by hash, then by literal text. The order is stable
// but not alphabetical.
func (t Token) Compare(o Token) int {
	switch {
	case t.hi != o.hi:
		return cmpUint(t.hi, o.hi)
	case t.lo != o.lo:
		return cmpUint(t.lo, o.lo)
	default:
		return strings.Compare(t.text, o.text)
	}
}

func cmpUint(a, b uint64) int {
	if a < b {
		return -1
	}
	return 1
}

// Name is an immutable dot-delimited token path. The zero Name is empty.
type Name struct {
	tokens []Token
}

// Parse splits s on Separator and validates every token.
func Parse(s string) (Name, error) {
	if s == "" {
		return Name{}, fmt.Errorf("%w: empty name", ErrInvalidName)
	}
	parts := strings.Split(s, Separator)
	tokens := make([]Token, len(parts))
	for i, p := range parts {
		t, err := NewToken(p)
		if err != nil {
			return Name{}, fmt.Errorf("parse %q: %w", s, err)
		}
		tokens[i] = t
	}
	return Name{tokens: tokens}, nil
}

// MustParse is Parse for names known valid at compile time.
func MustParse(s string) Name {
	n, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return n
}

// IsZero reports whether n has no tokens.
func (n Name) IsZero() bool {
	return len(n.tokens) == 0
}

// Len returns the number of tokens.
func (n Name) Len() int {
	return len(n.tokens)
}

// Tokens returns a copy of n's tokens.
func (n Name) Tokens() []Token {
	return append([]Token(nil), n.tokens...)
}

// Last returns the final token, or the zero Token for an empty name.
func (n Name) Last() Token {
	if len(n.tokens) == 0 {
		return Token{}
	}
	return n.tokens[len(n.tokens)-1]
}

// Parent drops the last token.
func (n Name) Parent() Name {
	if len(n.tokens) <= 1 {
		return Name{}
	}
	last := len(n.tokens) - 1
	return Name{tokens: n.tokens[:last:last]}
}

// Child appends one token.
func (n Name) Child(token string) (Name, error) {
	t, err := NewToken(token)
	if err != nil {
		return Name{}, err
	}
	tokens := make([]Token, len(n.tokens), len(n.tokens)+1)
	copy(tokens, n.tokens)
	return Name{tokens: append(tokens, t)}, nil
}

// HasPrefix reports whether p's tokens lead n's.
func (n Name) HasPrefix(p Name) bool {
	if len(p.tokens) > len(n.tokens) {
		return false
	}
	for i, t := range p.tokens {
		if !t.Equal(n.tokens[i]) {
			return false
		}
	}
	return true
}

func (n Name) String() string {
	var b strings.Builder
	for i, t := range n.tokens {
		if i > 0 {
			b.WriteString(Separator)
		}
		b.WriteString(t.text)
	}
	return b.String()
}

// Equal reports whether n and o have equal tokens in order.
func (n Name) Equal(o Name) bool {
	return len(n.tokens) == len(o.tokens) && n.HasPrefix(o)
}

// Compare orders names token by token; a proper prefix sorts first.
func (n Name) Compare(o Name) int {
	for i := 0; i < len(n.tokens) && i < len(o.tokens); i++ {
		if c := n.tokens[i].Compare(o.tokens[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(n.tokens) < len(o.tokens):
		return -1
	case len(n.tokens) > len(o.tokens):
		return 1
	default:
		return 0
	}
}

// Hash folds every token hash into one 128-bit value for the whole path.
func (n Name) Hash() [16]byte {
	h := sha256.New()
	h.Write([]byte(domainToken))
	h.Write([]byte{0x00})
	for _, t := range n.tokens {
		th := t.Hash()
		h.Write(th[:])
	}
	var out [16]byte
	copy(out[:], h.Sum(nil))
	return out
}

// SameHash reports whether two names hash equal, without comparing text.
func SameHash(a, b Name) bool {
	ha, hb := a.Hash(), b.Hash()
	return bytes.Equal(ha[:], hb[:])
}
