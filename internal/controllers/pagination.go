package controllers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const defaultPageSize = 50

type listParams struct {
	All     bool
	Limit   int
	Page    int
	SortCol string
	SortDir string
	Q       string
}

// parseListParams reads limit, page, all, sort_by, sort_dir and q.
// sortable maps public sort keys to columns; unknown keys fall back to fallback.
func parseListParams(c *gin.Context, sortable map[string]string, fallback string) listParams {
	p := listParams{
		All:   strings.EqualFold(c.Query("all"), "true") || c.Query("all") == "1",
		Limit: defaultPageSize,
		Page:  1,
		Q:     strings.TrimSpace(c.Query("q")),
	}
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			p.Limit = n
		}
	}
	if v := c.Query("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			p.Page = n
		}
	}
	p.SortDir = strings.ToUpper(c.DefaultQuery("sort_dir", "DESC"))
	if p.SortDir != "ASC" && p.SortDir != "DESC" {
		p.SortDir = "DESC"
	}
	col, ok := sortable[strings.ToLower(c.DefaultQuery("sort_by", ""))]
	if !ok {
		col = fallback
	}
	p.SortCol = col
	return p
}

func (p listParams) order() string {
	return fmt.Sprintf("%s %s", p.SortCol, p.SortDir)
}

// apply adds ordering and, unless all=true, offset/limit.
func (p listParams) apply(q *gorm.DB) *gorm.DB {
	q = q.Order(p.order())
	if !p.All {
		q = q.Offset((p.Page - 1) * p.Limit).Limit(p.Limit)
	}
	return q
}

func (p listParams) meta(total int64) gin.H {
	meta := gin.H{"total": total, "all": p.All}
	if !p.All {
		meta["limit"] = p.Limit
		meta["page"] = p.Page
		meta["sort_by"] = p.SortCol
		meta["sort_dir"] = p.SortDir
	}
	if p.Q != "" {
		meta["q"] = p.Q
	}
	return meta
}

func likePattern(q string) string {
	return "%" + strings.ToLower(q) + "%"
}
