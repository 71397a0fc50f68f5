package orchestrator

import (
	"testing"
	"time"
)

func TestFreshness_SameDay(t *testing.T) {
	now := time.Date(2024, 3, 10, 0, 30, 0, 0, time.UTC)
	f := Freshness{SameDay: true}

	if !f.Fresh(now.Add(-29*time.Minute), now) {
		t.Error("update earlier today should be fresh")
	}
	if f.Fresh(now.Add(-31*time.Minute), now) {
		t.Error("update before midnight UTC should be stale")
	}
}

func TestFreshness_Window(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	f := Freshness{Window: time.Hour}

	if !f.Fresh(now.Add(-time.Hour), now) {
		t.Error("age equal to window should be fresh")
	}
	if f.Fresh(now.Add(-time.Hour-time.Second), now) {
		t.Error("age beyond window should be stale")
	}
	if !f.Fresh(now.Add(time.Minute), now) {
		t.Error("future timestamps should be treated as fresh")
	}
}
