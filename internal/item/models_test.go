package item_test

import (
	"testing"

	"storyreel/internal/item"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to item.Status
		allowed  bool
	}{
		{item.StatusNew, item.StatusRewriting, true},
		{item.StatusRewriting, item.StatusRewritten, true},
		{item.StatusRewritten, item.StatusCompleted, true},
		{item.StatusNew, item.StatusFailed, true},
		{item.StatusFailed, item.StatusNew, true},
		{item.StatusCompleted, item.StatusNew, false},
		{item.StatusNew, item.StatusRewritten, false},
		{item.StatusRewritten, item.StatusRewriting, false},
	}
	for _, tc := range cases {
		if got := item.CanTransition(tc.from, tc.to); got != tc.allowed {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.allowed)
		}
	}
}

func TestPartNeverRegressesFromCompleted(t *testing.T) {
	for _, to := range []item.PartStatus{item.PartStatusPending, item.PartStatusMediaGenerated, item.PartStatusFailed} {
		if item.CanTransitionPart(item.PartStatusCompleted, to) {
			t.Errorf("completed part must not transition to %s", to)
		}
	}
	if !item.CanTransitionPart(item.PartStatusPending, item.PartStatusMediaGenerated) {
		t.Error("pending part must be able to reach media_generated")
	}
	if !item.CanTransitionPart(item.PartStatusMediaGenerated, item.PartStatusCompleted) {
		t.Error("media_generated part must be able to reach completed")
	}
}

func TestIsTransient(t *testing.T) {
	if !item.IsTransient(item.StatusRewriting) {
		t.Error("rewriting must be resumable")
	}
	if item.IsTransient(item.StatusFailed) {
		t.Error("failed is terminal, not transient")
	}
}

func TestParseStatus(t *testing.T) {
	if status, ok := item.ParseStatus("  Rewritten "); !ok || status != item.StatusRewritten {
		t.Fatalf("ParseStatus failed: %s %v", status, ok)
	}
	if _, ok := item.ParseStatus("bogus"); ok {
		t.Fatal("expected bogus status to be rejected")
	}
}

func TestTerminal(t *testing.T) {
	parts := []*item.Part{
		{Status: item.PartStatusCompleted},
		{Status: item.PartStatusFailed},
	}
	if !item.Terminal(parts) {
		t.Fatal("mixed completed/failed parts are terminal")
	}
	parts = append(parts, &item.Part{Status: item.PartStatusPending})
	if item.Terminal(parts) {
		t.Fatal("pending part must keep the item non-terminal")
	}
}

func TestArtifactReachable(t *testing.T) {
	if (item.Artifact{}).Reachable() {
		t.Fatal("artifact with no copies must not be reachable")
	}
	if !(item.Artifact{LocalPath: "/tmp/a.mp4"}).Reachable() {
		t.Fatal("local path makes artifact reachable")
	}
	if !(item.Artifact{RemoteID: "remote-1"}).Reachable() {
		t.Fatal("remote id makes artifact reachable")
	}
}
