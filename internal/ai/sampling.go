package ai

import (
	"sort"

	"github.com/workloadinsights/backend/internal/models"
)

// SampleOptions bound the activities handed to the model.
type SampleOptions struct {
	// PerStaff is how many recent activities each staff member is guaranteed.
	PerStaff int
	// Max caps the total.
	Max int
}

// StaffKey is the staff member an activity counts against: the primary
// assignee, then the first multi-assignee, then the reporter.
func StaffKey(a models.Activity) string {
	if a.AssignedToUserID != nil && *a.AssignedToUserID != "" {
		return *a.AssignedToUserID
	}
	if len(a.Assignments) > 0 {
		return a.Assignments[0].UserID
	}
	return a.UserID
}

// SelectForContext picks at most opts.Max activities, newest first.
// The first pass walks by recency and takes an activity while its staff key
// has fewer than PerStaff picks, so every staff member with k activities gets
// min(k, PerStaff) unless Max runs out first. The second pass fills the
// remaining slots by recency. The input slice is not modified.
func SelectForContext(activities []models.Activity, opts SampleOptions) []models.Activity {
	if opts.Max <= 0 || len(activities) == 0 {
		return []models.Activity{}
	}
	sorted := make([]models.Activity, len(activities))
	copy(sorted, activities)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Timestamp.Equal(sorted[j].Timestamp) {
			return sorted[i].Timestamp.After(sorted[j].Timestamp)
		}
		return sorted[i].ID < sorted[j].ID
	})

	picked := make([]bool, len(sorted))
	seen := make(map[string]struct{}, len(sorted))
	total := 0

	if opts.PerStaff > 0 {
		perStaff := make(map[string]int)
		for i, a := range sorted {
			if total >= opts.Max {
				break
			}
			if _, dup := seen[a.ID]; dup {
				continue
			}
			key := StaffKey(a)
			if perStaff[key] >= opts.PerStaff {
				continue
			}
			perStaff[key]++
			picked[i] = true
			seen[a.ID] = struct{}{}
			total++
		}
	}
	for i, a := range sorted {
		if total >= opts.Max {
			break
		}
		if picked[i] {
			continue
		}
		if _, dup := seen[a.ID]; dup {
			continue
		}
		picked[i] = true
		seen[a.ID] = struct{}{}
		total++
	}

	out := make([]models.Activity, 0, total)
	for i, a := range sorted {
		if picked[i] {
			out = append(out, a)
		}
	}
	return out
}
