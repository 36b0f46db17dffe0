package pagination

import (
	"encoding/base64"
	"encoding/json"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 250
)

type Pagination struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size,default=50" validate:"gte=1,lte=250"`
}

type Cursor struct {
	ID string `json:"id,omitempty"`
}

type PageInfo struct {
	NextPageToken string `json:"next_page_token,omitempty"`
	HasMore       bool   `json:"has_more"`
}

// NormalizePageSize clamps size into [1, MaxPageSize], defaulting zero.
func NormalizePageSize(size int32) int32 {
	switch {
	case size <= 0:
		return DefaultPageSize
	case size > MaxPageSize:
		return MaxPageSize
	default:
		return size
	}
}

func EncodeCursor(data Cursor) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}

func DecodeCursor(data string) (*Cursor, error) {
	b, err := base64.RawURLEncoding.DecodeString(data)
	if err != nil {
		return nil, err
	}

	var cursor Cursor
	if err := json.Unmarshal(b, &cursor); err != nil {
		return nil, err
	}

	return &cursor, nil
}

// BuildCursorPageInfo expects data fetched with limit+1 rows; the extra row
// only signals that another page exists.
func BuildCursorPageInfo[T any](data []*T, limit int32, extractCursor func(*T) string) *PageInfo {
	if len(data) == 0 {
		return &PageInfo{HasMore: false}
	}

	hasMore := false
	if len(data) > int(limit) {
		hasMore = true
		data = data[:limit]
	}

	pageInfo := &PageInfo{HasMore: hasMore}
	if hasMore {
		pageInfo.NextPageToken = extractCursor(data[len(data)-1])
	}

	return pageInfo
}
