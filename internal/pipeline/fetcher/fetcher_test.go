package fetcher

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"dealership_portal/internal/pipeline/domain"
	"dealership_portal/internal/pipeline/pipelinetest"
	"dealership_portal/internal/pipeline/store"
	"dealership_portal/platform/logger"
)

func newFetcher(crm *pipelinetest.CRM) (*Fetcher, *store.Store) {
	st := store.New()
	return New(crm, st, logger.Discard(), Options{}), st
}

func stagesOf(t *testing.T, crm *pipelinetest.CRM) []domain.Stage {
	t.Helper()
	stages, err := crm.ListStages(context.Background())
	if err != nil {
		t.Fatalf("list stages: %v", err)
	}
	return stages
}

func TestFetchInitialPopulatesEveryStage(t *testing.T) {
	crm := pipelinetest.New("new", "contacted", "won")
	crm.Seed("new", "n", 3)
	crm.Seed("contacted", "c", 1)
	f, st := newFetcher(crm)

	res, applied, err := f.FetchInitial(context.Background(), domain.FilterContext{}, stagesOf(t, crm))
	if err != nil || !applied {
		t.Fatalf("expected applied fetch, got applied=%v err=%v", applied, err)
	}
	if len(res.Errors) != 0 {
		t.Fatalf("expected no stage errors, got %v", res.Errors)
	}

	snap := st.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("expected 3 buckets, got %d", len(snap))
	}
	if len(snap[0].Leads) != 3 || len(snap[1].Leads) != 1 || len(snap[2].Leads) != 0 {
		t.Fatalf("unexpected bucket sizes: %d %d %d", len(snap[0].Leads), len(snap[1].Leads), len(snap[2].Leads))
	}
	for _, q := range crm.Lists() {
		if q.Page != 1 || q.PageSize != DefaultPageSize {
			t.Fatalf("expected page 1 of size %d, got %+v", DefaultPageSize, q)
		}
	}
}

func TestStaleGenerationIsDiscarded(t *testing.T) {
	crm := pipelinetest.New("new")
	crm.Seed("new", "n", 2)
	f, st := newFetcher(crm)
	stages := stagesOf(t, crm)
	ctx := context.Background()

	first := f.Begin(ctx, domain.FilterContext{Search: "old"}, stages)
	second := f.Begin(ctx, domain.FilterContext{}, stages)
	if second.Generation != first.Generation+1 {
		t.Fatalf("expected generation to advance, got %d then %d", first.Generation, second.Generation)
	}

	secondRes := f.Run(second)
	firstRes := f.Run(first)

	if applied, err := f.Commit(secondRes); err != nil || !applied {
		t.Fatalf("expected latest generation to apply, got applied=%v err=%v", applied, err)
	}
	if applied, _ := f.Commit(firstRes); applied {
		t.Fatalf("expected stale generation to be discarded")
	}

	b, _ := st.Bucket("new")
	if len(b.Leads) != 2 {
		t.Fatalf("expected latest result kept (2 leads), got %d", len(b.Leads))
	}
}

func TestInFlightUntilLatestGenerationCommits(t *testing.T) {
	crm := pipelinetest.New("new")
	crm.Seed("new", "n", 1)
	f, _ := newFetcher(crm)
	stages := stagesOf(t, crm)
	ctx := context.Background()

	if f.InFlight() {
		t.Fatalf("expected nothing in flight before the first fetch")
	}
	first := f.Begin(ctx, domain.FilterContext{}, stages)
	second := f.Begin(ctx, domain.FilterContext{}, stages)
	if !f.InFlight() {
		t.Fatalf("expected a fetch in flight after Begin")
	}

	if applied, _ := f.Commit(f.Run(first)); applied || !f.InFlight() {
		t.Fatalf("expected the discarded generation to leave a fetch in flight")
	}
	if applied, err := f.Commit(f.Run(second)); err != nil || !applied {
		t.Fatalf("commit: applied=%v err=%v", applied, err)
	}
	if f.InFlight() {
		t.Fatalf("expected nothing in flight after the latest commit")
	}
}

func TestStageFailureDoesNotAbortSiblings(t *testing.T) {
	crm := pipelinetest.New("new", "contacted")
	crm.Seed("new", "n", 2)
	crm.Seed("contacted", "c", 2)
	crm.FailStage("contacted", errors.New("boom"))
	f, st := newFetcher(crm)

	res, applied, err := f.FetchInitial(context.Background(), domain.FilterContext{}, stagesOf(t, crm))
	if err != nil || !applied {
		t.Fatalf("expected applied fetch, got applied=%v err=%v", applied, err)
	}
	if len(res.Errors) != 1 || res.Errors[0].StageID != "contacted" {
		t.Fatalf("expected one error for contacted, got %v", res.Errors)
	}

	newBucket, _ := st.Bucket("new")
	if len(newBucket.Leads) != 2 {
		t.Fatalf("expected sibling stage populated, got %d leads", len(newBucket.Leads))
	}
	failed, ok := st.Bucket("contacted")
	if !ok {
		t.Fatalf("expected failed stage to keep an empty bucket")
	}
	if len(failed.Leads) != 0 || failed.Pagination.HasMore {
		t.Fatalf("expected empty bucket without more pages, got %+v", failed)
	}
}

func TestLoadMoreAppendsNextPage(t *testing.T) {
	crm := pipelinetest.New("new")
	crm.Seed("new", "n", 45)
	f, st := newFetcher(crm)
	ctx := context.Background()

	if _, _, err := f.FetchInitial(ctx, domain.FilterContext{}, stagesOf(t, crm)); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	b, _ := st.Bucket("new")
	if len(b.Leads) != 20 || !b.Pagination.HasMore || b.Pagination.Total != 45 {
		t.Fatalf("unexpected first page: %d leads, %+v", len(b.Leads), b.Pagination)
	}

	if applied, err := f.LoadMore(ctx, "new"); err != nil || !applied {
		t.Fatalf("expected load more, got applied=%v err=%v", applied, err)
	}
	b, _ = st.Bucket("new")
	if len(b.Leads) != 40 || b.Pagination.Page != 2 || !b.Pagination.HasMore {
		t.Fatalf("expected 40 leads on page 2 with more, got %d %+v", len(b.Leads), b.Pagination)
	}
	if b.Leads[20].ID != "n-21" {
		t.Fatalf("expected page 2 to start at n-21, got %s", b.Leads[20].ID)
	}

	lists := crm.Lists()
	last := lists[len(lists)-1]
	if last.Page != 2 || last.StageID != "new" {
		t.Fatalf("expected page 2 request for new, got %+v", last)
	}

	if _, err := f.LoadMore(ctx, "new"); err != nil {
		t.Fatalf("load more: %v", err)
	}
	b, _ = st.Bucket("new")
	if len(b.Leads) != 45 || b.Pagination.HasMore {
		t.Fatalf("expected all 45 leads and no more, got %d %+v", len(b.Leads), b.Pagination)
	}
}

func TestLoadMoreWithoutMorePagesMakesNoCall(t *testing.T) {
	crm := pipelinetest.New("new")
	crm.Seed("new", "n", 5)
	f, _ := newFetcher(crm)
	ctx := context.Background()

	if _, _, err := f.FetchInitial(ctx, domain.FilterContext{}, stagesOf(t, crm)); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	before := len(crm.Lists())
	if applied, err := f.LoadMore(ctx, "new"); applied || err != nil {
		t.Fatalf("expected no-op, got applied=%v err=%v", applied, err)
	}
	if len(crm.Lists()) != before {
		t.Fatalf("expected no network call, got %d new calls", len(crm.Lists())-before)
	}
}

func TestLoadMoreIsSerialized(t *testing.T) {
	crm := pipelinetest.New("new", "contacted")
	crm.Seed("new", "n", 30)
	crm.Seed("contacted", "c", 30)
	f, _ := newFetcher(crm)

	if _, _, err := f.FetchInitial(context.Background(), domain.FilterContext{}, stagesOf(t, crm)); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	req, ok := f.BeginLoadMore("new")
	if !ok {
		t.Fatalf("expected first load more to start")
	}
	if _, ok := f.BeginLoadMore("contacted"); ok {
		t.Fatalf("expected second load more to be refused while one is in flight")
	}
	if !f.Loading() {
		t.Fatalf("expected loading flag set")
	}

	if _, err := f.CommitLoadMore(f.RunLoadMore(context.Background(), req)); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, ok := f.BeginLoadMore("contacted"); !ok {
		t.Fatalf("expected load more to be allowed after commit")
	}
}

func TestLoadMoreRefusedWhileRefetchPending(t *testing.T) {
	crm := pipelinetest.New("new")
	crm.Seed("new", "n", 30)
	f, _ := newFetcher(crm)
	ctx := context.Background()
	stages := stagesOf(t, crm)

	if _, _, err := f.FetchInitial(ctx, domain.FilterContext{}, stages); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	f.Begin(ctx, domain.FilterContext{Search: "lead"}, stages)
	if _, ok := f.BeginLoadMore("new"); ok {
		t.Fatalf("expected load more refused until the new generation lands")
	}
}

func TestLoadMoreFromOldGenerationIsDiscarded(t *testing.T) {
	crm := pipelinetest.New("new")
	crm.Seed("new", "n", 30)
	f, st := newFetcher(crm)
	ctx := context.Background()
	stages := stagesOf(t, crm)

	if _, _, err := f.FetchInitial(ctx, domain.FilterContext{}, stages); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	req, _ := f.BeginLoadMore("new")
	page := f.RunLoadMore(ctx, req)

	if _, _, err := f.FetchInitial(ctx, domain.FilterContext{}, stages); err != nil {
		t.Fatalf("refetch: %v", err)
	}
	if applied, err := f.CommitLoadMore(page); applied || err != nil {
		t.Fatalf("expected stale page discarded, got applied=%v err=%v", applied, err)
	}
	b, _ := st.Bucket("new")
	if len(b.Leads) != 20 {
		t.Fatalf("expected 20 leads, got %d", len(b.Leads))
	}
	if f.Loading() {
		t.Fatalf("expected loading flag cleared")
	}
}

func TestLoadMoreFailureKeepsCursor(t *testing.T) {
	crm := pipelinetest.New("new")
	crm.Seed("new", "n", 30)
	f, st := newFetcher(crm)
	ctx := context.Background()

	if _, _, err := f.FetchInitial(ctx, domain.FilterContext{}, stagesOf(t, crm)); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	crm.FailStage("new", errors.New("timeout"))

	_, err := f.LoadMore(ctx, "new")
	var stageErr StageError
	if !errors.As(err, &stageErr) || stageErr.StageID != "new" {
		t.Fatalf("expected StageError for new, got %v", err)
	}
	b, _ := st.Bucket("new")
	if b.Pagination.Page != 1 || !b.Pagination.HasMore {
		t.Fatalf("expected cursor unchanged, got %+v", b.Pagination)
	}

	crm.FailStage("new", nil)
	if applied, err := f.LoadMore(ctx, "new"); err != nil || !applied {
		t.Fatalf("expected retry to succeed, got applied=%v err=%v", applied, err)
	}
}

func TestBeginCancelsPreviousGeneration(t *testing.T) {
	crm := pipelinetest.New("new")
	var cancelled atomic.Bool
	started := make(chan struct{})
	crm.OnList(func(ctx context.Context, q domain.ListLeadsQuery) error {
		if q.Search != "slow" {
			return nil
		}
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
		return ctx.Err()
	})
	f, _ := newFetcher(crm)
	ctx := context.Background()
	stages := stagesOf(t, crm)

	slow := f.Begin(ctx, domain.FilterContext{Search: "slow"}, stages)
	done := make(chan Result)
	go func() { done <- f.Run(slow) }()
	<-started

	f.Begin(ctx, domain.FilterContext{}, stages)
	res := <-done
	if !cancelled.Load() {
		t.Fatalf("expected slow request cancelled")
	}
	if applied, _ := f.Commit(res); applied {
		t.Fatalf("expected cancelled generation discarded")
	}
}

func TestListLayoutFetchesSingleBucket(t *testing.T) {
	crm := pipelinetest.New("new", "contacted")
	crm.Seed("new", "n", 2)
	crm.Seed("contacted", "c", 2)
	f, st := newFetcher(crm)

	if _, _, err := f.FetchInitial(context.Background(), domain.FilterContext{Layout: domain.LayoutList}, stagesOf(t, crm)); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	snap := st.Snapshot()
	if len(snap) != 1 || snap[0].StageID != domain.ListBucketID {
		t.Fatalf("expected single list bucket, got %+v", snap)
	}
	if len(snap[0].Leads) != 4 {
		t.Fatalf("expected 4 leads, got %d", len(snap[0].Leads))
	}
	if crm.ListsFor("") != 1 {
		t.Fatalf("expected one unscoped request, got %d", crm.ListsFor(""))
	}
}
