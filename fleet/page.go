package fleet

// APIPage is the backend's collection envelope.
type APIPage[T any] struct {
	Items      []T `json:"items"`
	PageNumber int `json:"pageNumber"`
	PageSize   int `json:"pageSize"`
	TotalCount int `json:"totalCount"`
	TotalPages int `json:"totalPages"`
}

// Page is the collection shape the cache and views consume.
type Page[T any] struct {
	Data  []T `json:"data"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Size  int `json:"size"`
}

// Pagination requests a 1-based page. A zero value requests the backend default.
type Pagination struct {
	Page int
	Size int
}

func NormalizePage[T any](p APIPage[T], normalize func(T) T) Page[T] {
	data := make([]T, 0, len(p.Items))
	for _, item := range p.Items {
		if normalize != nil {
			item = normalize(item)
		}
		data = append(data, item)
	}
	return Page[T]{
		Data:  data,
		Total: p.TotalCount,
		Page:  p.PageNumber,
		Size:  p.PageSize,
	}
}
