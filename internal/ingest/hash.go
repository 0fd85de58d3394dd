package ingest

import (
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strings"
)

// HashFields computes a content hash over a raw field map. Keys are sorted
// so the hash is stable regardless of extraction order. The same function
// serves index-row hashes and detail hashes; they differ only in which
// fields go in.
func HashFields(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(fields[k])
		b.WriteByte('\n')
	}

	sum := md5.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
