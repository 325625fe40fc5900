// Package pagination implements keyset paging over (created_at, id).
// Cursors are opaque URL-safe tokens; callers never build them by hand.
package pagination

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultLimit = 25
	MaxLimit     = 100

	cursorVersion = 1
	cursorSize    = 1 + 8 + 16
)

var ErrInvalidCursor = errors.New("invalid cursor")

var cursorEncoding = base64.RawURLEncoding

// Params holds cursor pagination inputs from controllers or services.
type Params struct {
	Limit  int
	Cursor string
}

// Cursor is the position after which the next page starts.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// LimitWithBuffer asks for one extra row so BuildPage can tell whether a
// further page exists.
func LimitWithBuffer(limit int) int {
	return NormalizeLimit(limit) + 1
}

// EncodeCursor packs a version byte, the timestamp in unix nanoseconds and
// the raw id.
func EncodeCursor(cursor Cursor) string {
	buf := make([]byte, cursorSize)
	buf[0] = cursorVersion
	binary.BigEndian.PutUint64(buf[1:9], uint64(cursor.CreatedAt.UnixNano()))
	copy(buf[9:], cursor.ID[:])
	return cursorEncoding.EncodeToString(buf)
}

// ParseCursor returns nil for a blank value. Malformed input wraps
// ErrInvalidCursor.
func ParseCursor(value string) (*Cursor, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	raw, err := cursorEncoding.DecodeString(value)
	if err != nil {
		return nil, errors.Join(ErrInvalidCursor, err)
	}
	if len(raw) != cursorSize || raw[0] != cursorVersion {
		return nil, ErrInvalidCursor
	}
	id, err := uuid.FromBytes(raw[9:])
	if err != nil || id == uuid.Nil {
		return nil, ErrInvalidCursor
	}
	nanos := int64(binary.BigEndian.Uint64(raw[1:9]))
	return &Cursor{CreatedAt: time.Unix(0, nanos).UTC(), ID: id}, nil
}

// Page is a cursor-paginated result set.
type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// BuildPage trims rows fetched with LimitWithBuffer down to limit and derives
// the next cursor from the last returned row when more rows exist.
func BuildPage[T any](rows []T, limit int, cursorOf func(T) Cursor) Page[T] {
	limit = NormalizeLimit(limit)
	items := rows
	var next string
	if len(rows) > limit {
		items = rows[:limit]
		next = EncodeCursor(cursorOf(items[limit-1]))
	}
	if items == nil {
		items = []T{}
	}
	return Page[T]{Items: items, NextCursor: next}
}
