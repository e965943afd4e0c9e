package archiver

import (
	"crypto/rand"
	"fmt"
)

// newUUIDv4 returns a random RFC 4122 version-4 UUID string. No corpus
// dependency provides a UUID type, and the algorithm is a dozen lines of
// bit-twiddling over crypto/rand — not worth a third-party dependency for.
func newUUIDv4() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand.Read only fails if the OS entropy source is broken;
		// there is nothing sensible to do but panic, same as the stdlib's
		// own crypto/rand callers expect of their OS-level randomness.
		panic(fmt.Sprintf("archiver: reading random bytes for uuid: %v", err))
	}
	b[6] = (b[6] & 0x0f) | 0x40 // version 4
	b[8] = (b[8] & 0x3f) | 0x80 // variant 10

	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
}
