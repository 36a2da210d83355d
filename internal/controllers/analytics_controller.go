package controllers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/workloadinsights/backend/internal/database"
	"github.com/workloadinsights/backend/internal/models"
)

const (
	defaultSummaryDays = 30
	maxSummaryDays     = 365
	staleOpenAge       = 7 * 24 * time.Hour
)

type AnalyticsController struct {
	DB     *gorm.DB
	Logger *zap.Logger
	Now    func() time.Time
}

type countRow struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

type categoryCount struct {
	CategoryID string `json:"category_id"`
	Name       string `json:"name"`
	Count      int64  `json:"count"`
}

type staffLoad struct {
	UserID   string `json:"user_id"`
	FullName string `json:"full_name"`
	Total    int64  `json:"total"`
	Open     int64  `json:"open"`
}

type dayCount struct {
	Day   string `json:"day"`
	Count int64  `json:"count"`
}

// Summary serves GET /api/analytics/summary?days=N. The independent
// aggregate queries run concurrently.
func (ac *AnalyticsController) Summary(c *gin.Context) {
	days := defaultSummaryDays
	if v := c.Query("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxSummaryDays {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be between 1 and 365"})
			return
		}
		days = n
	}
	now := time.Now().UTC()
	if ac.Now != nil {
		now = ac.Now().UTC()
	}
	from := now.AddDate(0, 0, -days)

	var (
		total        int64
		openOld      int64
		byStatus     []countRow
		byPriority   []countRow
		byCategory   []categoryCount
		perStaff     []staffLoad
		perDayCounts []dayCount
	)
	g, ctx := errgroup.WithContext(c.Request.Context())
	window := func() *gorm.DB {
		return ac.DB.WithContext(ctx).Model(&models.Activity{}).
			Where("activities.timestamp >= ? AND activities.timestamp <= ?", from, now)
	}

	run := func(op string, fn func() error) {
		g.Go(func() error { return database.WithRetry(ctx, "analytics."+op, ac.Logger, fn) })
	}

	run("total", func() error { return window().Count(&total).Error })
	run("open_old", func() error {
		return ac.DB.WithContext(ctx).Model(&models.Activity{}).
			Where("status <> ? AND timestamp < ?", models.StatusResolved, now.Add(-staleOpenAge)).
			Count(&openOld).Error
	})
	run("by_status", func() error {
		return window().Select("activities.status AS key, COUNT(*) AS count").
			Group("activities.status").Order("count DESC").Scan(&byStatus).Error
	})
	run("by_priority", func() error {
		return window().Select("activities.priority AS key, COUNT(*) AS count").
			Group("activities.priority").Order("count DESC").Scan(&byPriority).Error
	})
	run("by_category", func() error {
		return window().
			Select("categories.id AS category_id, categories.name AS name, COUNT(activities.id) AS count").
			Joins("JOIN categories ON categories.id = activities.category_id").
			Group("categories.id, categories.name").Order("count DESC").Scan(&byCategory).Error
	})
	run("per_staff", func() error {
		return window().
			Select("users.id AS user_id, users.full_name AS full_name, COUNT(activities.id) AS total, "+
				"SUM(CASE WHEN activities.status <> ? THEN 1 ELSE 0 END) AS open", models.StatusResolved).
			Joins("JOIN activity_assignments ON activity_assignments.activity_id = activities.id").
			Joins("JOIN users ON users.id = activity_assignments.user_id").
			Group("users.id, users.full_name").Order("total DESC").Scan(&perStaff).Error
	})
	run("per_day", func() error {
		return window().Select("DATE(activities.timestamp) AS day, COUNT(*) AS count").
			Group("DATE(activities.timestamp)").Scan(&perDayCounts).Error
	})
	if err := g.Wait(); err != nil {
		respondInternal(c, ac.Logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"from":               from,
		"to":                 now,
		"days":               days,
		"total":              total,
		"open_older_than_7d": openOld,
		"by_status":          fillKeys(byStatus, models.ActivityStatuses),
		"by_priority":        fillKeys(byPriority, models.ActivityPriorities),
		"by_category":        nonNilSlice(byCategory),
		"per_staff":          nonNilSlice(perStaff),
		"per_day":            fillDays(perDayCounts, from, now),
	})
}

// fillKeys returns a count for every known key, zero when absent.
func fillKeys(rows []countRow, keys []string) map[string]int64 {
	out := make(map[string]int64, len(keys))
	for _, k := range keys {
		out[k] = 0
	}
	for _, r := range rows {
		out[r.Key] = r.Count
	}
	return out
}

// fillDays returns one entry per calendar day from..to. Drivers disagree on
// how DATE() scans into a string, so only the date part is kept.
func fillDays(rows []dayCount, from, to time.Time) []dayCount {
	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		day := r.Day
		if len(day) > 10 {
			day = day[:10]
		}
		counts[day] += r.Count
	}
	var out []dayCount
	start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	for d := start; !d.After(to); d = d.AddDate(0, 0, 1) {
		key := d.Format("2006-01-02")
		out = append(out, dayCount{Day: key, Count: counts[key]})
	}
	return out
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
