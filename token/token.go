// Package token signs the ids embedded in classification links so a link sent to one staffer can't be
// replayed against another email.
package token

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/go-alone"
	"github.com/pkg/errors"
)

// ErrTokenExpired is returned when the given token's expiry is in the past
var ErrTokenExpired = errors.New("token: token has expired")

// ErrInvalidToken is returned when the token has an invalid signature or is otherwise malformed
var ErrInvalidToken = errors.New("token: invalid token")

// Generator signs and verifies ids with a shared key
type Generator struct {
	s      *goalone.Sword
	maxAge time.Duration
	now    func() time.Time
}

// NewGenerator takes a key and a max age for the token then returns a new token generator
func NewGenerator(k string, m time.Duration) *Generator {
	return &Generator{s: goalone.New([]byte(k)), maxAge: m, now: time.Now}
}

// NewToken returns id signed together with its expiry
func (tg *Generator) NewToken(id string) string {
	exp := tg.now().Add(tg.maxAge).UTC().Unix()
	tk := fmt.Sprintf("%v.%v", id, exp)

	return string(tg.s.Sign([]byte(tk)))
}

// VerifyToken returns the id from the given token or an error
func (tg *Generator) VerifyToken(t string) (string, error) {
	b, err := tg.s.Unsign([]byte(t))
	if err != nil {
		return "", ErrInvalidToken
	}

	payload := string(b)
	i := strings.LastIndex(payload, ".")
	if i < 0 {
		return "", ErrInvalidToken
	}

	exp, err := strconv.ParseInt(payload[i+1:], 10, 64)
	if err != nil {
		return "", ErrInvalidToken
	}

	if time.Unix(exp, 0).Before(tg.now()) {
		return "", ErrTokenExpired
	}

	return payload[:i], nil
}

// Verify reports whether t is a valid, unexpired token for id
func (tg *Generator) Verify(t, id string) error {
	got, err := tg.VerifyToken(t)
	if err != nil {
		return err
	}

	if got != id {
		return errors.Wrapf(ErrInvalidToken, "token issued for %v", got)
	}

	return nil
}
