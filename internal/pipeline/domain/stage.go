// Package domain holds the pipeline data model shared by the synchronization
// core: stages, leads, buckets, filters and stage-transition results.
package domain

// StageConverted is the machine key of the stage the converted view pins to.
const StageConverted = "converted"

// ListBucketID keys the single flat bucket used by the list layout.
const ListBucketID = "*"

// Stage is one pipeline column. Order is the position in the directory list.
type Stage struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Color       string `json:"color"`
}

// Label returns the display name, falling back to the machine key.
func (s Stage) Label() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return s.Name
}
