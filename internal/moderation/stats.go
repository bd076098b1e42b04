package moderation

import (
	"context"
	"fmt"

	"github.com/sujalbistaa/stickyboard/internal/models"
)

type StatusCounts struct {
	Pending  int64 `json:"pending"`
	Approved int64 `json:"approved"`
	Rejected int64 `json:"rejected"`
	Total    int64 `json:"total"`
}

type ReportCounts struct {
	Pending   int64 `json:"pending"`
	Reviewed  int64 `json:"reviewed"`
	Dismissed int64 `json:"dismissed"`
	Total     int64 `json:"total"`
}

type Stats struct {
	Messages         StatusCounts `json:"messages"`
	Comments         StatusCounts `json:"comments"`
	ViolationReports ReportCounts `json:"violationReports"`
}

// Aggregator is a read-only projection over the collections. Soft-deleted
// entities are not counted.
type Aggregator struct {
	Messages MessageStore
	Comments CommentStore
	Reports  ReportStore
}

func (a Aggregator) Stats(ctx context.Context) (Stats, error) {
	var out Stats
	var err error
	if out.Messages, err = statusCounts(ctx, a.Messages); err != nil {
		return Stats{}, fmt.Errorf("message stats: %w", err)
	}
	if out.Comments, err = statusCounts(ctx, a.Comments); err != nil {
		return Stats{}, fmt.Errorf("comment stats: %w", err)
	}
	if a.Reports != nil {
		if out.ViolationReports, err = reportCounts(ctx, a.Reports); err != nil {
			return Stats{}, fmt.Errorf("violation report stats: %w", err)
		}
	}
	return out, nil
}

func statusCounts[T any](ctx context.Context, store Collection[T]) (StatusCounts, error) {
	var out StatusCounts
	for _, target := range []struct {
		status models.Status
		dst    *int64
	}{
		{models.StatusPending, &out.Pending},
		{models.StatusApproved, &out.Approved},
		{models.StatusRejected, &out.Rejected},
	} {
		n, err := store.Count(ctx, Filter{Status: string(target.status)})
		if err != nil {
			return StatusCounts{}, err
		}
		*target.dst = n
	}
	out.Total = out.Pending + out.Approved + out.Rejected
	return out, nil
}

func reportCounts(ctx context.Context, store ReportStore) (ReportCounts, error) {
	var out ReportCounts
	for _, target := range []struct {
		status models.ReportStatus
		dst    *int64
	}{
		{models.ReportPending, &out.Pending},
		{models.ReportReviewed, &out.Reviewed},
		{models.ReportDismissed, &out.Dismissed},
	} {
		n, err := store.Count(ctx, Filter{Status: string(target.status), Deleted: IncludeDeleted})
		if err != nil {
			return ReportCounts{}, err
		}
		*target.dst = n
	}
	out.Total = out.Pending + out.Reviewed + out.Dismissed
	return out, nil
}
