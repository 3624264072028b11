package course

import (
	"encoding/hex"
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint hashes the positional shape of the tree (node ids in order).
// Two trees with the same fingerprint map section addresses to the same sections.
func Fingerprint(t *Tree) string {
	var b strings.Builder
	for ci, ch := range t.Chapters {
		b.WriteString("c" + strconv.Itoa(ci) + ":" + ch.ID + ";")
		for si, sub := range ch.Subchapters {
			b.WriteString("s" + strconv.Itoa(si) + ":" + sub.ID + ";")
			for ki, sec := range sub.Sections {
				b.WriteString("k" + strconv.Itoa(ki) + ":" + sec.ID + ";")
			}
		}
	}
	sum := blake2b.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:16])
}
