package pagination

// Params carries limit/offset paging input parsed from the request.
type Params struct {
	Limit  int `form:"limit,default=25" validate:"gte=1,lte=250"`
	Offset int `form:"offset,default=0" validate:"gte=0"`
}

// Normalize clamps the params to sane bounds.
func (p Params) Normalize() Params {
	if p.Limit <= 0 {
		p.Limit = 25
	}
	if p.Limit > 250 {
		p.Limit = 250
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// Page is one page of results together with the total row count,
// computed by a count query running alongside the page query.
type Page[T any] struct {
	Items []*T  `json:"items"`
	Total int64 `json:"total"`
}
