package projection

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/louisbranch/residency/internal/services/timeline/domain/conflict"
	"github.com/louisbranch/residency/internal/services/timeline/domain/event"
	"github.com/louisbranch/residency/internal/services/timeline/domain/interval"
	"github.com/louisbranch/residency/internal/services/timeline/domain/timeline"
)

// Fingerprint is a content hash identifying one projection input.
type Fingerprint string

// Short returns an abbreviated form for logs and error messages.
func (f Fingerprint) Short() string {
	if len(f) > 12 {
		return string(f[:12])
	}
	return string(f)
}

const fingerprintVersion = "v1"

// NewFingerprint hashes the event set together with the view parameters.
// Events are canonically encoded and sorted first, so any permutation of the
// same events yields the same fingerprint.
func NewFingerprint(subject timeline.Subject, rng interval.Span, policy conflict.Policy, events []event.Event) Fingerprint {
	encoded := make([]string, len(events))
	for i, evt := range events {
		encoded[i] = canonicalEvent(evt)
	}
	slices.Sort(encoded)

	h := sha256.New()
	writeField(h, fingerprintVersion)
	writeField(h, subject.String())
	writeField(h, strconv.FormatInt(unixNano(rng.Start), 10))
	writeField(h, strconv.FormatInt(unixNano(rng.End), 10))
	writeField(h, policy.String())
	for _, e := range encoded {
		writeField(h, e)
	}
	return Fingerprint(hex.EncodeToString(h.Sum(nil)))
}

func canonicalEvent(evt event.Event) string {
	return strings.Join([]string{
		evt.ID,
		evt.ResidentID,
		evt.ResourceID,
		evt.Kind.String(),
		strconv.FormatInt(unixNano(evt.Timestamp), 10),
		strconv.Itoa(evt.SourcePriority),
		strconv.FormatInt(evt.Sequence, 10),
	}, "\x1f")
}

type byteWriter interface{ Write([]byte) (int, error) }

// writeField length-prefixes each field so adjacent fields cannot alias.
func writeField(w byteWriter, s string) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(s)))
	_, _ = w.Write(n[:])
	_, _ = w.Write([]byte(s))
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}
