package reportshttp

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/saheli-shg/saheli/internal/reports"
)

// Concurrent requests for the same period share one report build.
var buildGroup singleflight.Group

func buildShared(ctx context.Context, periodID uuid.UUID, build func(context.Context) (reports.ContributionReport, error)) (reports.ContributionReport, bool, error) {
	ch := buildGroup.DoChan(periodID.String(), func() (interface{}, error) {
		return build(ctx)
	})
	select {
	case <-ctx.Done():
		return reports.ContributionReport{}, false, ctx.Err()
	case res := <-ch:
		rep, _ := res.Val.(reports.ContributionReport)
		return rep, res.Shared, res.Err
	}
}
