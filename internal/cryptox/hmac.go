package cryptox

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/paygate/internal/common"
)

const DefaultAlgorithm = "sha256"

// Signer computes hex HMACs over "{timestamp}.{body}".
//
// The HMAC key is the merchant secret exactly as issued (its hex text), not
// the bytes it decodes to.
type Signer struct {
	algo string
	h    func() hash.Hash
}

func NewSigner(algo string) (*Signer, error) {
	algo = strings.ToLower(strings.TrimSpace(algo))
	if algo == "" {
		algo = DefaultAlgorithm
	}
	var h func() hash.Hash
	switch algo {
	case "sha256":
		h = sha256.New
	case "sha384":
		h = sha512.New384
	case "sha512":
		h = sha512.New
	default:
		return nil, fmt.Errorf("%w: %q", common.ErrUnsupportedAlgorithm, algo)
	}
	return &Signer{algo: algo, h: h}, nil
}

func (s *Signer) Algorithm() string { return s.algo }

func SigningString(timestamp string, body []byte) []byte {
	out := make([]byte, 0, len(timestamp)+1+len(body))
	out = append(out, timestamp...)
	out = append(out, '.')
	return append(out, body...)
}

// Sign returns hex(HMAC(secret, "{timestamp}.{body}")).
func (s *Signer) Sign(timestamp string, body []byte, secret string) string {
	return s.SignPayload(SigningString(timestamp, body), secret)
}

// SignMillis is Sign with an epoch-millisecond timestamp.
func (s *Signer) SignMillis(ms int64, body []byte, secret string) string {
	return s.Sign(strconv.FormatInt(ms, 10), body, secret)
}

func (s *Signer) SignPayload(payload []byte, secret string) string {
	m := hmac.New(s.h, []byte(secret))
	m.Write(payload)
	return hex.EncodeToString(m.Sum(nil))
}

// Equal compares two hex digests in constant time over their decoded bytes.
// Undecodable input or a length mismatch is simply unequal.
func Equal(expectedHex, suppliedHex string) bool {
	expected, err := hex.DecodeString(expectedHex)
	if err != nil {
		return false
	}
	supplied, err := hex.DecodeString(suppliedHex)
	if err != nil {
		return false
	}
	if len(expected) != len(supplied) {
		return false
	}
	return hmac.Equal(expected, supplied)
}
