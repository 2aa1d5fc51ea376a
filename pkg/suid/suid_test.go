package suid

import "testing"

func TestNewIsValid(t *testing.T) {
	id := New()
	if !IsValid(id) {
		t.Fatalf("generated suid %q did not validate", id)
	}
}

func TestNewIsUnique(t *testing.T) {
	if New() == New() {
		t.Fatal("two calls to New produced the same id")
	}
}

func TestIsValid(t *testing.T) {
	cases := map[string]bool{
		"":                                     false,
		"not-a-uuid":                           false,
		"123e4567-e89b-12d3-a456-426614174000": true,
		"123E4567-E89B-12D3-A456-426614174000": true,
		"123e4567e89b12d3a456426614174000":     true, // uuid.Parse accepts unhyphenated too
		"123e4567-e89b-12d3-a456":              false,
	}
	for in, want := range cases {
		if got := IsValid(in); got != want {
			t.Errorf("IsValid(%q) = %v, want %v", in, got, want)
		}
	}
}
