package echoapi

import (
	"math"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/recordbook/core"
	"github.com/trezcool/recordbook/core/record"
)

var (
	pageParam    = "page"
	perPageParam = "per_page"
	idKey        = "id"
)

type Pagination struct {
	Paged   bool
	Page    int
	PerPage int
}

// Bind reads `page` and `per_page`; invalid values fall back to the first page and the default size.
func (p *Pagination) Bind(ctx echo.Context, defaultPerPage int) {
	p.PerPage = defaultPerPage
	val := ctx.QueryParam(pageParam)
	if val == "" {
		return
	}
	p.Paged = true
	if page, err := strconv.Atoi(val); err == nil && page >= 0 {
		p.Page = page
	}
	if perPage, err := strconv.Atoi(ctx.QueryParam(perPageParam)); err == nil && perPage > 0 {
		p.PerPage = perPage
	}
}

// recordBody is a flat JSON object: `id` plus field values.
type recordBody struct {
	ID     int64
	Fields record.Fields
}

func (b *recordBody) Bind(ctx echo.Context) error {
	data := make(map[string]interface{})
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding record body")
	}

	b.Fields = make(record.Fields, len(data))
	for key, val := range data {
		if key == idKey {
			id, err := parseID(val)
			if err != nil {
				return err
			}
			b.ID = id
			continue
		}
		s, err := fieldValue(val)
		if err != nil {
			return core.NewValidationError(nil, core.FieldError{Field: key, Error: err.Error()})
		}
		b.Fields[key] = s
	}
	return nil
}

func parseID(val interface{}) (int64, error) {
	switch v := val.(type) {
	case float64:
		// JSON numbers decode as float64: keep whole values that fit an int64
		if v != math.Trunc(v) || v < math.MinInt64 || v >= math.MaxInt64 {
			return 0, core.NewValidationError(nil, core.FieldError{Field: idKey, Error: "invalid id"})
		}
		return int64(v), nil
	case string:
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, core.NewValidationError(nil, core.FieldError{Field: idKey, Error: "invalid id"})
		}
		return id, nil
	case nil:
		return 0, nil
	default:
		return 0, core.NewValidationError(nil, core.FieldError{Field: idKey, Error: "invalid id"})
	}
}

func fieldValue(val interface{}) (string, error) {
	switch v := val.(type) {
	case string:
		return v, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(v), nil
	case nil:
		return "", nil
	default:
		return "", errors.New("value must be a string")
	}
}
