package pincode

import (
	"crypto/rand"
	"io"
	"math/big"
	"strings"

	"github.com/pkg/errors"
)

/*
 *  Keypad code generation.  Nuki keypad codes are six digits drawn from 1-9
 *  and the keypad refuses codes starting with "12".
 */

const (
	Length         = 6
	reservedPrefix = "12"
)

type Generator struct {
	rnd io.Reader
}

// NewGenerator returns a generator reading randomness from r, usually
// crypto/rand.Reader
func NewGenerator(r io.Reader) *Generator {
	return &Generator{rnd: r}
}

var defaultGenerator = NewGenerator(rand.Reader)

// Generate returns a new random keypad code using crypto/rand
func Generate() (string, error) {
	return defaultGenerator.Generate()
}

func (g *Generator) Generate() (string, error) {
	code, err := g.digits(Length)
	if err != nil {
		return "", err
	}

	return g.avoidReservedPrefix(code)
}

// replace the reserved prefix with a different random pair of digits
func (g *Generator) avoidReservedPrefix(code string) (string, error) {
	for strings.HasPrefix(code, reservedPrefix) {
		prefix, err := g.digits(len(reservedPrefix))
		if err != nil {
			return "", err
		}

		if prefix == reservedPrefix {
			continue
		}

		code = strings.Replace(code, reservedPrefix, prefix, 1)
	}

	return code, nil
}

func (g *Generator) digits(n int) (string, error) {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		d, err := rand.Int(g.rnd, big.NewInt(9))
		if err != nil {
			return "", errors.Wrap(err, "reading random digits")
		}
		sb.WriteByte(byte('1' + d.Int64()))
	}

	return sb.String(), nil
}

// Valid reports whether code is acceptable to the keypad
func Valid(code string) bool {
	if len(code) != Length || strings.HasPrefix(code, reservedPrefix) {
		return false
	}

	for _, c := range code {
		if c < '1' || c > '9' {
			return false
		}
	}

	return true
}
