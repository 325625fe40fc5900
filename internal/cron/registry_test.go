package cron

import (
	"context"
	"testing"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryStoresEntries(t *testing.T) {
	registry := NewRegistry()
	jobA := &stubJob{name: "a"}
	jobB := &stubJob{name: "b"}
	if err := registry.Register(jobA, "0 */5 * * * *"); err != nil {
		t.Fatalf("register a: %v", err)
	}
	if err := registry.Register(jobB, "@hourly"); err != nil {
		t.Fatalf("register b: %v", err)
	}
	entries := registry.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Job != jobA || entries[1].Job != jobB {
		t.Fatalf("entries returned out of order")
	}
	// ensure caller cannot mutate internal slice
	entries[0].Job = nil
	if registry.Entries()[0].Job == nil {
		t.Fatalf("internal slice leaked")
	}
}

func TestRegistryRejectsInvalidSchedule(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(&stubJob{name: "a"}, "*/5 * * * *"); err == nil {
		t.Fatal("expected five-field schedule to be rejected")
	}
	if err := registry.Register(nil, "@hourly"); err == nil {
		t.Fatal("expected nil job to be rejected")
	}
	if len(registry.Entries()) != 0 {
		t.Fatal("rejected jobs must not be registered")
	}
}
