package http

import (
	"math"
	"net/url"
	"strconv"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// page is the envelope for paginated admin listings.
type page[T any] struct {
	Data        []T  `json:"data"`
	Page        int  `json:"page"`
	Size        int  `json:"size"`
	TotalItems  int  `json:"total_items"`
	TotalPages  int  `json:"total_pages"`
	HasNext     bool `json:"has_next"`
	HasPrevious bool `json:"has_previous"`
}

// paginate slices items by the request's query. offset/limit takes
// precedence over page/size when either is present.
func paginate[T any](items []T, query url.Values) page[T] {
	totalItems := len(items)
	offset, limit := resolveSliceBounds(query)

	offset = min(offset, totalItems)
	end := min(offset+limit, totalItems)

	totalPages := int(math.Ceil(float64(totalItems) / float64(limit)))
	if totalPages == 0 {
		totalPages = 1
	}

	data := items[offset:end]
	if data == nil {
		data = []T{}
	}
	return page[T]{
		Data:        data,
		Page:        (offset / limit) + 1,
		Size:        limit,
		TotalItems:  totalItems,
		TotalPages:  totalPages,
		HasNext:     end < totalItems,
		HasPrevious: offset > 0,
	}
}

func resolveSliceBounds(query url.Values) (offset, limit int) {
	limit = defaultPageSize

	if query.Has("offset") || query.Has("limit") {
		if n, err := strconv.Atoi(query.Get("offset")); err == nil && n >= 0 {
			offset = n
		}
		if n, err := strconv.Atoi(query.Get("limit")); err == nil && n > 0 {
			limit = n
		}
	} else {
		page := 1
		if n, err := strconv.Atoi(query.Get("page")); err == nil && n >= 1 {
			page = n
		}
		if n, err := strconv.Atoi(query.Get("size")); err == nil && n > 0 {
			limit = n
		}
		limit = min(limit, maxPageSize)
		offset = (page - 1) * limit
	}

	return offset, min(limit, maxPageSize)
}
