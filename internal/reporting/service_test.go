package reporting

import (
	"context"
	"errors"
	"testing"
	"time"

	"call-signaling/internal/callhistory"
	"call-signaling/internal/calls"
)

func seed(t *testing.T, repo *callhistory.MemoryRepo, c calls.Call) {
	t.Helper()
	if err := repo.Create(context.Background(), c); err != nil {
		t.Fatalf("create: %v", err)
	}
}

func TestCallsSummary_CountsOutcomesAndTalkTime(t *testing.T) {
	repo := callhistory.NewMemoryRepo()
	now := time.Unix(1700000000, 0).UTC()
	start := now.Add(-10 * time.Minute)
	end := start.Add(90 * time.Second)

	seed(t, repo, calls.Call{ID: "c1", CallerID: "u", CalleeID: "v", Participants: []string{"u", "v"}, Status: calls.CallStatusFinished, StartedAt: &start, EndedAt: &end, CreatedAt: now})
	seed(t, repo, calls.Call{ID: "c2", CallerID: "v", CalleeID: "u", Participants: []string{"v", "u"}, Status: calls.CallStatusTimeout, WithVideo: true, CreatedAt: now})
	seed(t, repo, calls.Call{ID: "c3", CallerID: "u", CalleeID: "v", Participants: []string{"u", "v"}, Status: calls.CallStatusTimeout, CreatedAt: now})
	seed(t, repo, calls.Call{ID: "c4", CallerID: "w", RoomType: calls.RoomTypeGroup, Participants: []string{"w", "u"}, Status: calls.CallStatusCanceled, CreatedAt: now})
	seed(t, repo, calls.Call{ID: "c5", CallerID: "x", CalleeID: "y", Participants: []string{"x", "y"}, Status: calls.CallStatusFinished, CreatedAt: now})

	svc := NewService(repo)
	out, err := svc.CallsSummary(context.Background(), CallsSummaryRequest{UserID: "u", Range: TimeRange{From: now.Add(-time.Hour), To: now.Add(time.Hour)}})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalCalls != 4 || out.OutgoingCalls != 2 || out.IncomingCalls != 2 {
		t.Fatalf("unexpected totals %+v", out)
	}
	if out.MissedCalls != 1 || out.CanceledCalls != 1 || out.FinishedCalls != 1 || out.GroupCalls != 1 || out.VideoCalls != 1 {
		t.Fatalf("unexpected outcome counts %+v", out)
	}
	if out.TotalDurationSeconds != 90 || out.AverageDurationSeconds != 90 {
		t.Fatalf("expected 90s of talk time, got %+v", out)
	}
}

func TestCallsSummary_RejectsBadRange(t *testing.T) {
	svc := NewService(callhistory.NewMemoryRepo())
	now := time.Now()
	cases := []CallsSummaryRequest{
		{Range: TimeRange{From: now.Add(-time.Hour), To: now}},
		{UserID: "u", Range: TimeRange{From: now, To: now.Add(-time.Hour)}},
		{UserID: "u", Range: TimeRange{From: now.Add(-2 * maxRange), To: now}},
	}
	for _, req := range cases {
		if _, err := svc.CallsSummary(context.Background(), req); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("expected ErrInvalidRequest for %+v, got %v", req, err)
		}
	}
}
