package reporting

import (
	"context"
	"errors"
	"time"

	"call-signaling/internal/calls"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// maxRange caps a summary window so a single request cannot scan a user's whole history.
const maxRange = 366 * 24 * time.Hour

// Repository is the read side reporting needs; callhistory repositories satisfy it.
type Repository interface {
	ListCalls(ctx context.Context, userID string, from, to time.Time) ([]calls.Call, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	if req.UserID == "" {
		return CallsSummary{}, ErrInvalidRequest
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return CallsSummary{}, ErrInvalidRequest
	}
	if req.Range.To.Sub(req.Range.From) > maxRange {
		return CallsSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return CallsSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListCalls(ctx, req.UserID, req.Range.From, req.Range.To)
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{UserID: req.UserID, Range: req.Range}
	answered := 0
	for _, c := range rows {
		out.TotalCalls++
		if c.CallerID == req.UserID {
			out.OutgoingCalls++
		} else {
			out.IncomingCalls++
		}
		if c.IsGroup() {
			out.GroupCalls++
		}
		if c.WithVideo {
			out.VideoCalls++
		}

		switch c.Status {
		case calls.CallStatusFinished:
			out.FinishedCalls++
			answered++
			out.TotalDurationSeconds += int(c.Duration().Seconds())
		case calls.CallStatusCanceled:
			out.CanceledCalls++
		case calls.CallStatusRejected:
			out.RejectedCalls++
		case calls.CallStatusTimeout:
			if c.CallerID != req.UserID {
				out.MissedCalls++
			}
		case calls.CallStatusOffline:
			out.OfflineCalls++
		case calls.CallStatusRing, calls.CallStatusInCall:
			out.InProgressCalls++
		}
	}
	if answered > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / answered
	}
	return out, nil
}
