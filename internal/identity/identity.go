// Package identity generates the client-side identifiers attached to a job.
package identity

import (
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const suffixAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Generator produces job tokens and customer references. The zero value is
// not usable; call NewGenerator.
type Generator struct {
	suffix func(n int) string
}

func NewGenerator() *Generator {
	return &Generator{suffix: randomSuffix}
}

// NewToken returns a random (version 4) UUID. It is the canonical
// cross-surface identifier of a job.
func (g *Generator) NewToken() string {
	return uuid.NewString()
}

// CustomerRef builds PLATE_<unix millis>_<6 base36 chars>. It is informational
// and must never be used as a lookup key.
func (g *Generator) CustomerRef(plate string, at time.Time) string {
	normalized := strings.ToUpper(strings.Join(strings.Fields(plate), ""))
	return normalized + "_" + strconv.FormatInt(at.UnixMilli(), 10) + "_" + g.suffix(6)
}

func randomSuffix(n int) string {
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		b.WriteByte(suffixAlphabet[rand.IntN(len(suffixAlphabet))])
	}
	return b.String()
}
