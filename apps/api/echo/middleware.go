package echoapi

import (
	"github.com/labstack/echo/v4"

	"github.com/trezcool/recordbook/services/metrics"
)

// metricsMiddleware counts requests by route once the response is written.
func metricsMiddleware(metrics *metricsvc.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if err := next(ctx); err != nil {
				ctx.Error(err)
			}
			route := ctx.Path()
			if route == "" {
				route = "unmatched"
			}
			metrics.ObserveRequest(ctx.Request().Method, route, ctx.Response().Status)
			return nil
		}
	}
}
