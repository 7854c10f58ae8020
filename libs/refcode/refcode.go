package refcode

import "crypto/rand"

// Alphabet deliberately drops 0/O/1/I so staff can read codes back to
// patients over the phone without ambiguity.
const alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	prefix = "DN-"
	length = 8
)

// MaxAttempts bounds regeneration after a uniqueness collision. Collisions
// are astronomically unlikely with 32^8 codes; exhausting the budget is a
// server error, not expected behavior.
const MaxAttempts = 5

// New returns a fresh reference code of the form DN-XXXXXXXX.
func New() string {
	var b [length]byte
	_, _ = rand.Read(b[:])
	out := make([]byte, 0, len(prefix)+length)
	out = append(out, prefix...)
	for _, v := range b {
		out = append(out, alphabet[int(v)%len(alphabet)])
	}
	return string(out)
}
