package fetcher

import "dealership_portal/internal/pipeline/domain"

// DefaultPageSize is the page size of every stage query.
const DefaultPageSize = 20

// baseQuery derives the parameters shared by every request of a batch. The
// view mode is resolved here, once, before any request is dispatched.
func baseQuery(filter domain.FilterContext, pageSize int) domain.ListLeadsQuery {
	q := domain.ListLeadsQuery{
		Page:       1,
		PageSize:   pageSize,
		Search:     filter.Search,
		Source:     filter.Source,
		AssignedTo: filter.AssignedTo,
	}

	switch filter.ViewMode {
	case domain.ViewMine:
		q.Pool = "mine"
	case domain.ViewUnassigned:
		q.Pool = "unassigned"
	case domain.ViewFresh:
		q.FreshOnly = true
	case domain.ViewConverted:
		inactive := false
		q.Stage = domain.StageConverted
		q.IsActive = &inactive
	}

	return q
}

// forBucket pins a base query to one bucket. The list bucket carries no
// stage id.
func forBucket(base domain.ListLeadsQuery, bucketID string, page int) domain.ListLeadsQuery {
	q := base
	if q.IsActive != nil {
		active := *q.IsActive
		q.IsActive = &active
	}
	q.Page = page
	if bucketID != domain.ListBucketID {
		q.StageID = bucketID
	} else {
		q.StageID = ""
	}
	return q
}
