package docstore

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// nextRevision derives the revision that follows prev for the given body.
// Format: "<generation>-<md5(prev + body)>".
func nextRevision(prev string, body []byte) string {
	h := md5.New()
	h.Write([]byte(prev))
	h.Write(body)
	return fmt.Sprintf("%d-%s", Generation(prev)+1, hex.EncodeToString(h.Sum(nil)))
}

// Generation returns the numeric prefix of rev, or 0 for an empty or
// malformed revision.
func Generation(rev string) int {
	prefix, _, ok := strings.Cut(rev, "-")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(prefix)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// Wins reports whether revision a beats revision b under the deterministic
// winner rule every replica applies: higher generation first, then the
// lexically greater hash.
func Wins(a, b string) bool {
	ga, gb := Generation(a), Generation(b)
	if ga != gb {
		return ga > gb
	}
	_, ha, _ := strings.Cut(a, "-")
	_, hb, _ := strings.Cut(b, "-")
	return ha > hb
}
