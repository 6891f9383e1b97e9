package storage

import "testing"

func TestSealed(t *testing.T) {
	t.Parallel()
	inner := NewMemory()
	s, err := NewSealed(inner, "pass")
	if err != nil {
		t.Fatalf("NewSealed: %v", err)
	}
	testBackend(t, s)
}

func TestSealedValuesAreOpaqueAtRest(t *testing.T) {
	t.Parallel()
	inner := NewMemory()
	s, err := NewSealed(inner, "pass")
	if err != nil {
		t.Fatalf("NewSealed: %v", err)
	}
	if err := s.SetItem("access_token", "secret"); err != nil {
		t.Fatalf("SetItem: %v", err)
	}

	raw, ok := inner.GetItem("access_token")
	if !ok {
		t.Fatalf("wrapped store missing the entry")
	}
	if raw == "secret" {
		t.Fatalf("value stored in the clear")
	}
}

func TestSealedSaltPersistsAcrossInstances(t *testing.T) {
	t.Parallel()
	inner := NewMemory()
	first, err := NewSealed(inner, "pass")
	if err != nil {
		t.Fatalf("NewSealed: %v", err)
	}
	if err := first.SetItem("k", "v"); err != nil {
		t.Fatalf("SetItem: %v", err)
	}

	second, err := NewSealed(inner, "pass")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if v, ok := second.GetItem("k"); !ok || v != "v" {
		t.Fatalf("same passphrase must read back the value: (%q, %v)", v, ok)
	}

	wrong, err := NewSealed(inner, "other")
	if err != nil {
		t.Fatalf("reopen with wrong passphrase: %v", err)
	}
	if _, ok := wrong.GetItem("k"); ok {
		t.Fatalf("wrong passphrase must read as absence")
	}
}

func TestSealedTreatsForeignValuesAsAbsent(t *testing.T) {
	t.Parallel()
	inner := NewMemory()
	if err := inner.SetItem("k", "written unsealed"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	s, err := NewSealed(inner, "pass")
	if err != nil {
		t.Fatalf("NewSealed: %v", err)
	}
	if _, ok := s.GetItem("k"); ok {
		t.Fatalf("unsealed value must read as absence")
	}
}
