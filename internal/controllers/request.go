package controllers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// FlexibleString accepts JSON strings or numbers. Phone numbers arrive both ways.
type FlexibleString string

func (fs *FlexibleString) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		*fs = FlexibleString(strings.TrimSpace(s))
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(trimmed, &num); err == nil {
		*fs = FlexibleString(num.String())
		return nil
	}
	return fmt.Errorf("expected string or number, got %s", string(data))
}

func (fs FlexibleString) String() string { return string(fs) }

// normalizeIDs validates uuids, drops blanks and duplicates, and keeps order.
func normalizeIDs(ids []string) ([]string, error) {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, raw := range ids {
		s := strings.TrimSpace(raw)
		if s == "" {
			continue
		}
		parsed, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", s)
		}
		id := parsed.String()
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

func validUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// parseTimeParam accepts RFC3339 or YYYY-MM-DD. endOfDay moves a bare date to its last instant.
func parseTimeParam(v string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	d, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", v)
	}
	if endOfDay {
		d = d.Add(24*time.Hour - time.Nanosecond)
	}
	return d, nil
}

func derefString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
