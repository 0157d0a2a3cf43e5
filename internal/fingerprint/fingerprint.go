// Package fingerprint derives content-addressed identities for recorded
// executions. A fingerprint is a pure function of the analysis function's
// identity token, its canonicalized arguments, and the (name, version) pairs
// of any asset arguments - never of asset contents, so fingerprinting stays
// O(1) in dataset size.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"

	"github.com/fengqlin/GrandR/internal/canon"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainRun   = "grandr/run/v1"
	DomainAsset = "grandr/asset/v1"
)

// Fingerprint is a fixed-length hex-encoded SHA-256 digest identifying a
// unique (function, inputs) pair.
type Fingerprint string

// hexPattern matches a well-formed fingerprint.
var hexPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// Valid reports whether the fingerprint is a well-formed digest.
func (f Fingerprint) Valid() bool {
	return hexPattern.MatchString(string(f))
}

// Short returns a truncated form for logging and display.
func (f Fingerprint) Short() string {
	if len(f) < 12 {
		return string(f)
	}
	return string(f[:12])
}

// AssetRef is the fingerprint-side representation of an asset argument:
// name and version only, never materialized contents.
type AssetRef struct {
	Name    string
	Version int64
}

// AssetKey marks a canonical object as an asset reference. The key is
// reserved: callers must reject it in plain argument objects, or a map
// shaped like a reference would fingerprint identically to one.
const AssetKey = "$asset"

// Value encodes the reference as a canonical object.
func (r AssetRef) Value() canon.Object {
	return canon.Object{
		AssetKey:  canon.String(r.Name),
		"version": canon.Int(r.Version),
	}
}

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data). The null byte prevents domain/data
// boundary ambiguity.
func hashWithDomain(domain string, data []byte) Fingerprint {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return Fingerprint(hex.EncodeToString(h.Sum(nil)))
}

// Compute derives the fingerprint for one invocation.
//
// funcToken is the stable identity of the analysis function (registered name
// plus declared revision), NOT a transient pointer. args must already contain
// AssetRef.Value() objects in place of asset arguments.
//
// Returns canon.NonDeterministicError (wrapped) if any argument cannot be
// canonically serialized; nothing is hashed in that case.
func Compute(funcToken string, args canon.Object) (Fingerprint, error) {
	if funcToken == "" {
		return "", fmt.Errorf("compute fingerprint: empty function token")
	}

	obj := canon.Object{
		"func": canon.String(funcToken),
		"args": args,
	}

	canonical, err := canon.MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("compute fingerprint: %w", err)
	}

	return hashWithDomain(DomainRun, canonical), nil
}

// AssetDigest hashes a serialized asset container for integrity checking.
// Distinct domain from run fingerprints so the two id spaces never overlap.
func AssetDigest(container []byte) Fingerprint {
	return hashWithDomain(DomainAsset, container)
}

// MustCompute is like Compute but panics on error.
// Use only in tests or when inputs are known to be canonicalizable.
func MustCompute(funcToken string, args canon.Object) Fingerprint {
	fp, err := Compute(funcToken, args)
	if err != nil {
		panic(err)
	}
	return fp
}
