package domain

import (
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type AccessType string

const (
	AccessTypeOwner      AccessType = "owner"
	AccessTypeDepartment AccessType = "department"
	AccessTypeShared     AccessType = "shared"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// RecordSummary is one row of the visible set together with the access
// the caller holds on it.
type RecordSummary struct {
	EegRecord
	AccessType AccessType `json:"access_type"`
	Permission Permission `json:"permission"`
}

// RecordFilter narrows the visible set; it never widens it.
type RecordFilter struct {
	SearchTerm string
	Tags       []string
	Format     Format
	Limit      int
	Cursor     string
}

func (f RecordFilter) PageSize() int {
	switch {
	case f.Limit <= 0:
		return DefaultPageSize
	case f.Limit > MaxPageSize:
		return MaxPageSize
	default:
		return f.Limit
	}
}

type RecordPage struct {
	Items      []RecordSummary `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Cursor is the keyset position of the last row of a page in the
// (upload_date DESC, id ASC) order.
type Cursor struct {
	UploadDate time.Time
	ID         uuid.UUID
}

func (c Cursor) Encode() string {
	raw := strconv.FormatInt(c.UploadDate.UnixNano(), 10) + "|" + c.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func DecodeCursor(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, NewError(KindValidation, "malformed cursor")
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return nil, NewError(KindValidation, "malformed cursor")
	}
	nanos, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return nil, NewError(KindValidation, "malformed cursor")
	}
	id, err := uuid.Parse(parts[1])
	if err != nil {
		return nil, NewError(KindValidation, "malformed cursor")
	}
	return &Cursor{UploadDate: time.Unix(0, nanos).UTC(), ID: id}, nil
}

// Before reports whether a row at (uploadDate, id) sorts strictly after
// the cursor, i.e. belongs to a later page.
func (c *Cursor) Before(uploadDate time.Time, id uuid.UUID) bool {
	if c == nil {
		return true
	}
	if !uploadDate.Equal(c.UploadDate) {
		return uploadDate.Before(c.UploadDate)
	}
	return strings.Compare(id.String(), c.ID.String()) > 0
}

// VisibilityQuery is what a record store needs to compute the visible set
// for one caller.
type VisibilityQuery struct {
	Identity Identity
	Now      time.Time
	Filter   RecordFilter
	After    *Cursor
	Limit    int
}

// VisibleRow is a candidate row from the store with the caller's live
// grant permission, if any.
type VisibleRow struct {
	Record EegRecord
	Grant  *Permission
}

