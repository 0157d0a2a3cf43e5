package recorder

import (
	"context"
	"fmt"

	"github.com/fengqlin/GrandR/internal/canon"
	"github.com/fengqlin/GrandR/internal/fingerprint"
	"github.com/fengqlin/GrandR/internal/record"
	"github.com/fengqlin/GrandR/internal/vault"
)

// AnalysisFunc is user analysis code. It receives an explicit vault handle
// rather than ambient I/O, so asset access during execution stays scoped and
// mockable.
type AnalysisFunc func(ctx context.Context, v *vault.Vault, args Args) (*record.Payload, error)

// Func pairs analysis code with its stable identity. Identity is the
// registered name plus a declared revision, never a function pointer: bump
// Revision when the code's behavior changes and cached results from the old
// revision stop matching.
type Func struct {
	Name     string
	Revision int
	Run      AnalysisFunc
}

// Token returns the identity string that participates in fingerprinting.
func (f Func) Token() string {
	return fmt.Sprintf("%s@%d", f.Name, f.Revision)
}

func (f Func) validate() error {
	if f.Name == "" {
		return fmt.Errorf("analysis func has no name")
	}
	if f.Revision < 1 {
		return fmt.Errorf("analysis func %q: revision must be >= 1", f.Name)
	}
	if f.Run == nil {
		return fmt.Errorf("analysis func %q: nil body", f.Name)
	}
	return nil
}

// Args are the keyword arguments of one invocation. Asset arguments are
// passed as fingerprint.AssetRef values and fingerprint by (name, version),
// never by content; everything else must survive canonical serialization.
type Args map[string]any

// canonicalize converts args into a canonical object for fingerprinting.
// AssetRef values are substituted by their (name, version) object form. To
// keep the encoding injective, a plain map argument carrying the reserved
// "$asset" key is rejected: accepting it would fingerprint identically to a
// real asset reference while the function receives a plain map.
func (a Args) canonicalize() (canon.Object, error) {
	obj := make(canon.Object, len(a))
	for key, raw := range a {
		if key == "" {
			return nil, &canon.NonDeterministicError{Path: "$", Reason: "empty argument name"}
		}
		switch v := raw.(type) {
		case fingerprint.AssetRef:
			obj[key] = v.Value()
		case vault.Asset:
			obj[key] = v.Ref().Value()
		default:
			cv, err := canon.FromGo(raw)
			if err != nil {
				return nil, fmt.Errorf("argument %q: %w", key, err)
			}
			if nested, ok := cv.(canon.Object); ok {
				if _, clash := nested[fingerprint.AssetKey]; clash {
					return nil, fmt.Errorf("argument %q: %w", key, &canon.NonDeterministicError{
						Path:   key,
						Reason: fmt.Sprintf("reserved key %q in plain argument object", fingerprint.AssetKey),
					})
				}
			}
			obj[key] = cv
		}
	}
	return obj, nil
}
