package auth

import (
	"encoding/base64"
	"errors"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrMalformedToken is returned by Peek for anything that is not a
// three-segment token with JSON header and payload.
var ErrMalformedToken = errors.New("malformed token")

// PeekedToken is a token's header and payload decoded without any
// signature check. It is only fit for lookups and housekeeping.
type PeekedToken struct {
	Algorithm string
	Username  string
	// Expires is the exp claim in epoch seconds, 0 if absent.
	Expires int64
	Payload []byte
}

// Peek decodes the header and payload of token. It performs no
// verification.
func Peek(token string) (*PeekedToken, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, ErrMalformedToken
	}

	header, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil || !gjson.ValidBytes(header) {
		return nil, ErrMalformedToken
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil || !gjson.ValidBytes(payload) {
		return nil, ErrMalformedToken
	}

	claims := gjson.GetManyBytes(payload, "username", "exp")

	return &PeekedToken{
		Algorithm: gjson.GetBytes(header, "alg").String(),
		Username:  claims[0].String(),
		Expires:   claims[1].Int(),
		Payload:   payload,
	}, nil
}
