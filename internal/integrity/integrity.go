// Package integrity provides tamper-evident hashing and Merkle tree
// construction for the audit index. All functions are pure and deterministic.
package integrity

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"github.com/CIRWEL/unitares-sub004/internal/model"
)

// hashV2Prefix tags the current length-prefixed encoding so future format
// changes can version alongside older stored hashes.
const hashV2Prefix = "v2:"

// ComputeAuditHash produces a versioned SHA-256 hex digest from the canonical
// audit event fields. Used both as the dedup key (raw_hash) and as a leaf
// input to BuildMerkleRoot for periodic integrity proofs.
//
// timestamp is truncated to microsecond precision because Postgres stores
// timestamptz at microsecond resolution — without truncation, a hash computed
// from Go's nanosecond-precision time.Now() would never match a hash
// recomputed from the DB-roundtripped timestamp.
func ComputeAuditHash(agentID, eventType string, timestamp time.Time, details string) string {
	return hashV2Prefix + computeV2Hash(agentID, eventType, timestamp.Truncate(time.Microsecond), details)
}

// VerifyAuditHash reports whether a stored hash matches the recomputed hash.
func VerifyAuditHash(stored, agentID, eventType string, timestamp time.Time, details string) bool {
	return stored == hashV2Prefix+computeV2Hash(agentID, eventType, timestamp.Truncate(time.Microsecond), details)
}

// computeV2Hash encodes each field as a 4-byte big-endian length prefix
// followed by the field bytes, avoiding delimiter collisions when freeform
// text fields contain arbitrary separator characters.
func computeV2Hash(agentID, eventType string, timestamp time.Time, details string) string {
	h := sha256.New()
	writeField := func(s string) {
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(s))) //nolint:gosec // field lengths are bounded by tool argument limits
		h.Write(lenBuf[:])
		h.Write([]byte(s))
	}
	writeField(agentID)
	writeField(eventType)
	writeField(timestamp.UTC().Format(time.RFC3339Nano))
	writeField(details)
	return hex.EncodeToString(h.Sum(nil))
}

// hashPair produces SHA-256(0x01 || len(a) || a || b) as a hex string. The
// 0x01 prefix is a domain separator for internal Merkle tree nodes (per
// RFC 6962), so internal node hashes can never collide with leaf hashes.
func hashPair(a, b string) string {
	h := sha256.New()
	h.Write([]byte{0x01})
	aBytes := []byte(a)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(aBytes))) //nolint:gosec // hash inputs are bounded-length hex strings
	h.Write(lenBuf[:])
	h.Write(aBytes)
	h.Write([]byte(b))
	return hex.EncodeToString(h.Sum(nil))
}

// BuildMerkleRoot constructs a Merkle tree from leaf hashes and returns the
// root. Leaves are sorted lexicographically before hashing for determinism.
// Odd-length levels hash the last node with itself for structural binding.
func BuildMerkleRoot(leaves []string) string {
	if len(leaves) == 0 {
		return ""
	}
	sorted := make([]string, len(leaves))
	copy(sorted, leaves)
	sort.Strings(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}

	level := sorted
	for len(level) > 1 {
		var next []string
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, hashPair(level[i], level[i+1]))
			} else {
				next = append(next, hashPair(level[i], level[i]))
			}
		}
		level = next
	}
	return level[0]
}

// VerifyEvents recomputes each event's content hash and folds the stored
// raw_hash values into a Merkle root, giving Store.Health a single tamper
// check: ok is false the moment any stored hash no longer matches its
// recomputed value, and root is the proof a caller can compare across two
// health probes to confirm nothing in the window changed in between.
func VerifyEvents(events []model.AuditEvent) (ok bool, root string) {
	if len(events) == 0 {
		return true, ""
	}
	leaves := make([]string, 0, len(events))
	ok = true
	for _, e := range events {
		detailsJSON, err := json.Marshal(e.Details)
		if err != nil {
			ok = false
			continue
		}
		if e.RawHash == "" || !VerifyAuditHash(e.RawHash, e.AgentID, e.EventType, e.Timestamp, string(detailsJSON)) {
			ok = false
		}
		leaves = append(leaves, e.RawHash)
	}
	return ok, BuildMerkleRoot(leaves)
}
