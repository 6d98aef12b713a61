// Package pagination turns page/limit query parameters into SQL windows and
// response metadata.
package pagination

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
)

const DefaultPage = 1

// ErrInvalidParams is wrapped by every parse failure.
var ErrInvalidParams = errors.New("invalid pagination parameters")

type Options struct {
	DefaultLimit int
	MaxLimit     int
}

var DefaultOpts = Options{DefaultLimit: 10, MaxLimit: 100}

type Params struct {
	Page  int
	Limit int
}

// Parse reads page and limit from the query string. Missing values take the
// defaults, limits above MaxLimit are clamped, and anything that is not a
// positive integer is rejected.
func Parse(q url.Values, opt Options) (Params, error) {
	opt = opt.normalized()
	page, err := positiveInt(q.Get("page"), DefaultPage, "page")
	if err != nil {
		return Params{}, err
	}
	limit, err := positiveInt(q.Get("limit"), opt.DefaultLimit, "limit")
	if err != nil {
		return Params{}, err
	}
	return New(page, limit, opt)
}

// New validates explicit values the same way Parse does.
func New(page, limit int, opt Options) (Params, error) {
	opt = opt.normalized()
	if page < 1 {
		return Params{}, fmt.Errorf("%w: page must be >= 1", ErrInvalidParams)
	}
	if limit < 1 {
		return Params{}, fmt.Errorf("%w: limit must be >= 1", ErrInvalidParams)
	}
	if limit > opt.MaxLimit {
		limit = opt.MaxLimit
	}
	return Params{Page: page, Limit: limit}, nil
}

// MaxOffset bounds Offset. Pages past it are beyond the end of any table
// this serves, and the bound keeps (page-1)*limit and OFFSET+LIMIT from
// overflowing in Go or in the database.
const MaxOffset = math.MaxInt32

// Offset is (Page-1)*Limit, saturated at MaxOffset.
func (p Params) Offset() int {
	if p.Page <= 1 || p.Limit <= 0 {
		return 0
	}
	if p.Page-1 > MaxOffset/p.Limit {
		return MaxOffset
	}
	return (p.Page - 1) * p.Limit
}

type Meta struct {
	Total      int  `json:"total"`
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
	HasPrev    bool `json:"hasPrev"`
}

func BuildMeta(total int, p Params) Meta {
	totalPages := 0
	if total > 0 && p.Limit > 0 {
		totalPages = int(math.Ceil(float64(total) / float64(p.Limit)))
	}
	return Meta{
		Total:      total,
		Page:       p.Page,
		Limit:      p.Limit,
		TotalPages: totalPages,
		HasPrev:    p.Page > 1,
		HasNext:    totalPages > 0 && p.Page < totalPages,
	}
}

// Page is one window of rows together with the total they were cut from.
type Page[T any] struct {
	Items      []T  `json:"items"`
	Pagination Meta `json:"pagination"`
}

func NewPage[T any](items []T, total int, p Params) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{Items: items, Pagination: BuildMeta(total, p)}
}

func (o Options) normalized() Options {
	if o.DefaultLimit < 1 {
		o.DefaultLimit = DefaultOpts.DefaultLimit
	}
	if o.MaxLimit < 1 {
		o.MaxLimit = DefaultOpts.MaxLimit
	}
	if o.DefaultLimit > o.MaxLimit {
		o.DefaultLimit = o.MaxLimit
	}
	return o
}

func positiveInt(raw string, fallback int, name string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", ErrInvalidParams, name)
	}
	return n, nil
}
