// Package observations retrieves nearby georeferenced sighting records
// from a crowd-science index, ranked by distance from the query point.
package observations

import (
	"context"
	"time"

	"github.com/sisigoks/plantverse-go/internal/location"
)

// Quality grades, ordered from least to most vetted.
const (
	GradeCasual   = "casual"
	GradeNeedsID  = "needs_id"
	GradeResearch = "research"
)

var gradeOrder = map[string]int{
	GradeCasual:   0,
	GradeNeedsID:  1,
	GradeResearch: 2,
}

// Record is one sighting. Distance is measured from the query coordinate.
type Record struct {
	ObservationID       string              `json:"observation_id"`
	Coordinate          location.Coordinate `json:"coordinate"`
	ObservedAt          time.Time           `json:"observed_at"`
	QualityGrade        string              `json:"quality_grade"`
	PhotoURL            string              `json:"photo_url,omitempty"`
	DistanceFromQueryKm float64             `json:"distance_from_query_km"`
}

// Locator finds sightings of a species near a coordinate. The returned
// slice is sorted ascending by distance, holds no duplicate observation
// IDs, and is empty (not nil error) when nothing was sighted in range.
// Implementations must be safe for concurrent use.
type Locator interface {
	Locate(ctx context.Context, origin location.Coordinate, speciesQuery string, radiusKm float64, maxResults int) ([]Record, error)
}

// FilterMinimumGrade returns the records at or above the given quality
// grade, preserving order. Casual records are returned by Locate and
// filtered here only when the caller asks; an unknown grade passes
// everything through.
func FilterMinimumGrade(records []Record, minGrade string) []Record {
	threshold, ok := gradeOrder[minGrade]
	if !ok || threshold == 0 {
		return records
	}
	filtered := make([]Record, 0, len(records))
	for _, r := range records {
		if gradeOrder[r.QualityGrade] >= threshold {
			filtered = append(filtered, r)
		}
	}
	return filtered
}
