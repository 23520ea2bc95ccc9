// Package fetcher runs the per-stage paged queries that populate a bucket
// store. Every full fetch carries a generation number; results from an older
// generation than the latest one started are discarded on commit.
package fetcher

import (
	"context"
	"fmt"
	"sync"

	"dealership_portal/internal/pipeline/domain"
	"dealership_portal/internal/pipeline/ports"
	"dealership_portal/internal/pipeline/store"
	"dealership_portal/platform/logger"

	"golang.org/x/sync/errgroup"
)

// Options tunes a Fetcher.
type Options struct {
	PageSize    int
	Concurrency int
}

// StageError is a non-fatal failure scoped to one stage.
type StageError struct {
	StageID string
	Err     error
}

func (e StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.StageID, e.Err)
}

func (e StageError) Unwrap() error { return e.Err }

// Batch is a full fetch that has been started but not committed.
type Batch struct {
	Generation uint64
	Filter     domain.FilterContext
	BucketIDs  []string

	base domain.ListLeadsQuery
	ctx  context.Context
}

// Result is the outcome of running a Batch.
type Result struct {
	Generation uint64
	Buckets    []domain.Bucket
	Errors     []StageError

	base domain.ListLeadsQuery
}

// PageRequest is a started load-more.
type PageRequest struct {
	Generation uint64
	StageID    string
	Query      domain.ListLeadsQuery
}

// PageResult is the outcome of a PageRequest.
type PageResult struct {
	Request PageRequest
	Page    domain.LeadPage
	Err     error
}

// Fetcher populates a store from the lead-listing endpoint.
type Fetcher struct {
	lister ports.LeadLister
	store  *store.Store
	log    *logger.Logger
	opts   Options

	mu         sync.Mutex
	generation uint64
	committed  uint64
	cancel     context.CancelFunc
	base       domain.ListLeadsQuery
	loading    bool
}

// New creates a Fetcher writing into st.
func New(lister ports.LeadLister, st *store.Store, log *logger.Logger, opts Options) *Fetcher {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	return &Fetcher{lister: lister, store: st, log: log, opts: opts}
}

// Generation returns the latest generation started.
func (f *Fetcher) Generation() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.generation
}

// InFlight reports whether a full fetch has been started and not committed.
func (f *Fetcher) InFlight() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.generation > f.committed
}

// Loading reports whether a load-more is in flight.
func (f *Fetcher) Loading() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loading
}

// Begin starts a new generation for filter over the given stages and cancels
// the requests of the previous one. In list layout the stages are ignored and
// a single flat bucket is fetched.
func (f *Fetcher) Begin(ctx context.Context, filter domain.FilterContext, stages []domain.Stage) Batch {
	filter = filter.Normalize()

	ids := make([]string, 0, len(stages))
	if filter.Layout == domain.LayoutList {
		ids = append(ids, domain.ListBucketID)
	} else {
		for _, s := range stages {
			ids = append(ids, s.ID)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)

	f.mu.Lock()
	if f.cancel != nil {
		f.cancel()
	}
	f.generation++
	f.cancel = cancel
	gen := f.generation
	f.mu.Unlock()

	return Batch{
		Generation: gen,
		Filter:     filter,
		BucketIDs:  ids,
		base:       baseQuery(filter, f.opts.PageSize),
		ctx:        runCtx,
	}
}

// Run issues one page-1 query per bucket concurrently. A failing stage does
// not abort its siblings: it gets an empty bucket with has_more=false and a
// StageError.
func (f *Fetcher) Run(b Batch) Result {
	ctx := b.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	buckets := make([]domain.Bucket, len(b.BucketIDs))
	var (
		errMu sync.Mutex
		errs  []StageError
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.opts.Concurrency)
	for i, id := range b.BucketIDs {
		g.Go(func() error {
			page, err := f.lister.ListLeads(gctx, forBucket(b.base, id, 1))
			if err != nil {
				if ctx.Err() == nil {
					f.log.StageFetchFailed(id, b.Generation, err)
				}
				buckets[i] = domain.EmptyBucket(id)
				errMu.Lock()
				errs = append(errs, StageError{StageID: id, Err: err})
				errMu.Unlock()
				return nil
			}
			buckets[i] = domain.Bucket{StageID: id, Leads: page.Items, Pagination: page.Pagination()}
			return nil
		})
	}
	_ = g.Wait()

	return Result{Generation: b.Generation, Buckets: buckets, Errors: errs, base: b.base}
}

// Commit replaces the store contents with r unless a newer generation has
// been started since r's batch began.
func (f *Fetcher) Commit(r Result) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.Generation != f.generation {
		f.log.FetchDiscarded("initial", r.Generation, f.generation)
		return false, nil
	}

	dropped, err := f.store.ReplaceAll(r.Buckets)
	if err != nil {
		return false, err
	}
	if dropped > 0 {
		f.log.Warn("duplicate leads dropped from fetch", "generation", r.Generation, "dropped", dropped)
	}
	f.committed = r.Generation
	f.base = r.base
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
	return true, nil
}

// FetchInitial runs a whole generation synchronously.
func (f *Fetcher) FetchInitial(ctx context.Context, filter domain.FilterContext, stages []domain.Stage) (Result, bool, error) {
	res := f.Run(f.Begin(ctx, filter, stages))
	applied, err := f.Commit(res)
	return res, applied, err
}

// BeginLoadMore starts loading the next page of a stage. It returns false,
// without any network call, when another load-more is in flight, when a
// newer full fetch has not landed yet, or when the stage has no more pages.
func (f *Fetcher) BeginLoadMore(stageID string) (PageRequest, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.loading || f.committed == 0 || f.committed != f.generation {
		return PageRequest{}, false
	}
	b, ok := f.store.Bucket(stageID)
	if !ok || !b.Pagination.HasMore {
		return PageRequest{}, false
	}

	f.loading = true
	return PageRequest{
		Generation: f.generation,
		StageID:    stageID,
		Query:      forBucket(f.base, stageID, b.Pagination.Page+1),
	}, true
}

// RunLoadMore issues the page request.
func (f *Fetcher) RunLoadMore(ctx context.Context, req PageRequest) PageResult {
	page, err := f.lister.ListLeads(ctx, req.Query)
	return PageResult{Request: req, Page: page, Err: err}
}

// CommitLoadMore appends a loaded page. Failures leave the cursor where it
// was so the same page can be retried.
func (f *Fetcher) CommitLoadMore(res PageResult) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loading = false

	if res.Err != nil {
		f.log.LoadMoreFailed(res.Request.StageID, res.Request.Query.Page, res.Err)
		return false, StageError{StageID: res.Request.StageID, Err: res.Err}
	}
	if res.Request.Generation != f.generation {
		f.log.FetchDiscarded("load_more", res.Request.Generation, f.generation)
		return false, nil
	}

	p := res.Page.Pagination()
	p.Page = res.Request.Query.Page
	return f.store.AppendPage(res.Request.StageID, res.Page.Items, p)
}

// LoadMore runs a whole load-more synchronously.
func (f *Fetcher) LoadMore(ctx context.Context, stageID string) (bool, error) {
	req, ok := f.BeginLoadMore(stageID)
	if !ok {
		return false, nil
	}
	return f.CommitLoadMore(f.RunLoadMore(ctx, req))
}

// Stop cancels in-flight requests of the current generation.
func (f *Fetcher) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
}
