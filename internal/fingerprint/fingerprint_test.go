package fingerprint

import (
	"math"
	"testing"

	"github.com/fengqlin/GrandR/internal/canon"
)

func TestCompute_Deterministic(t *testing.T) {
	args := canon.Object{
		"group_by": canon.String("treatment"),
		"alpha":    canon.Float(0.05),
		"cohort":   AssetRef{Name: "Cohort", Version: 1}.Value(),
	}

	first, err := Compute("grouped_mean@1", args)
	if err != nil {
		t.Fatalf("Compute() failed: %v", err)
	}

	for i := 0; i < 50; i++ {
		again, err := Compute("grouped_mean@1", args)
		if err != nil {
			t.Fatalf("iteration %d: %v", i, err)
		}
		if again != first {
			t.Fatalf("iteration %d: fingerprint diverged: %s vs %s", i, again, first)
		}
	}
}

func TestCompute_Valid(t *testing.T) {
	fp := MustCompute("f@1", canon.Object{})
	if !fp.Valid() {
		t.Errorf("fingerprint %q is not well-formed", fp)
	}
}

func TestCompute_DistinctFunctions(t *testing.T) {
	args := canon.Object{"x": canon.Int(1)}

	a := MustCompute("mean@1", args)
	b := MustCompute("median@1", args)
	if a == b {
		t.Error("distinct functions produced the same fingerprint")
	}
}

func TestCompute_DistinctArgs(t *testing.T) {
	a := MustCompute("f@1", canon.Object{"x": canon.Int(1)})
	b := MustCompute("f@1", canon.Object{"x": canon.Int(2)})
	if a == b {
		t.Error("distinct args produced the same fingerprint")
	}
}

func TestCompute_AssetVersionChangesFingerprint(t *testing.T) {
	a := MustCompute("f@1", canon.Object{"d": AssetRef{Name: "X", Version: 1}.Value()})
	b := MustCompute("f@1", canon.Object{"d": AssetRef{Name: "X", Version: 2}.Value()})
	if a == b {
		t.Error("asset version bump did not change the fingerprint")
	}
}

func TestCompute_KeyOrderIrrelevant(t *testing.T) {
	// Maps iterate in random order; canonicalization must erase that.
	a := MustCompute("f@1", canon.Object{"a": canon.Int(1), "b": canon.Int(2), "c": canon.Int(3)})
	b := MustCompute("f@1", canon.Object{"c": canon.Int(3), "a": canon.Int(1), "b": canon.Int(2)})
	if a != b {
		t.Errorf("key order leaked into fingerprint: %s vs %s", a, b)
	}
}

func TestCompute_RejectsNonDeterministicInput(t *testing.T) {
	_, err := Compute("f@1", canon.Object{"bad": canon.Float(math.NaN())})
	if err == nil {
		t.Fatal("expected error for NaN argument, got nil")
	}
	if !canon.IsNonDeterministic(err) {
		t.Errorf("expected NonDeterministicError, got %v", err)
	}
}

func TestCompute_EmptyFuncToken(t *testing.T) {
	_, err := Compute("", canon.Object{})
	if err == nil {
		t.Error("expected error for empty function token")
	}
}

func TestAssetDigest_DomainSeparated(t *testing.T) {
	data := []byte("payload")
	run := hashWithDomain(DomainRun, data)
	asset := AssetDigest(data)
	if run == asset {
		t.Error("run and asset domains produced identical digests")
	}
}

func TestShort(t *testing.T) {
	fp := MustCompute("f@1", canon.Object{})
	if len(fp.Short()) != 12 {
		t.Errorf("Short() = %q, want 12 chars", fp.Short())
	}
}
