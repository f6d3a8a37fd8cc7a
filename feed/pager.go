package feed

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

// ValidationError reports a malformed request parameter. It is raised before
// any storage call is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Page is one slice of a time-ordered feed.
type Page[T any] struct {
	Items []T
	// HasMore is true whenever the page is full. It can be a false positive
	// when the total is an exact multiple of the page size; the next page is
	// then empty.
	HasMore bool
	// NextCursor is the creation time of the last item, nil for an empty page.
	NextCursor *time.Time
}

// BuildPage orders items newest first, keeps at most pageSize of them and
// derives the cursor for the following page.
func BuildPage[T any](items []T, pageSize int, createdAt func(T) time.Time) Page[T] {
	if pageSize < 1 {
		pageSize = 1
	}
	out := make([]T, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		return createdAt(out[i]).After(createdAt(out[j]))
	})
	if len(out) > pageSize {
		out = out[:pageSize]
	}

	p := Page[T]{Items: out, HasMore: len(out) == pageSize}
	if len(out) > 0 {
		last := createdAt(out[len(out)-1])
		p.NextCursor = &last
	}
	return p
}

// ParseCursor accepts an RFC 3339 timestamp (any sub-second precision) or an
// integer number of Unix milliseconds. An empty string means "first page".
func ParseCursor(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		t = t.UTC()
		return &t, nil
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil && ms > 0 {
		t := time.UnixMilli(ms).UTC()
		return &t, nil
	}
	return nil, &ValidationError{Field: "cursor", Reason: "must be an RFC 3339 timestamp or Unix milliseconds"}
}

// FormatCursor renders a cursor the way ParseCursor reads it back.
func FormatCursor(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339Nano)
	return &s
}

// ClampLimit parses a requested page size and clamps it to [1, max]. An empty
// value selects def.
func ClampLimit(raw string, def, max int) (int, error) {
	if max < 1 {
		max = 1
	}
	n := def
	if raw = strings.TrimSpace(raw); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return 0, &ValidationError{Field: "limit", Reason: "must be an integer"}
		}
		n = v
	}
	if n < 1 {
		n = 1
	}
	if n > max {
		n = max
	}
	return n, nil
}

// IdentityClass separates anonymous responses from personalized ones so that
// isLiked/isSaved flags are never served to another viewer.
func IdentityClass(viewerID string) string {
	if viewerID == "" {
		return "anon"
	}
	return "viewer:" + viewerID
}

// CacheKey fingerprints a feed request. Filters are canonicalized (sorted,
// escaped) before hashing, so parameter order never produces distinct keys.
func CacheKey(resource string, filters url.Values, cursor *time.Time, limit int, viewerID string) string {
	v := url.Values{}
	for k, vals := range filters {
		for _, val := range vals {
			if val != "" {
				v.Add("f."+k, val)
			}
		}
	}
	if c := FormatCursor(cursor); c != nil {
		v.Set("cursor", *c)
	}
	v.Set("limit", strconv.Itoa(limit))
	v.Set("viewer", IdentityClass(viewerID))

	sum := blake2b.Sum256([]byte(v.Encode()))
	return resource + ":" + hex.EncodeToString(sum[:])
}
