package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/recordbook/core"
	"github.com/trezcool/recordbook/core/record"
	"github.com/trezcool/recordbook/services/metrics"
)

type (
	recordApi struct {
		svc      *record.Service
		metrics  *metricsvc.Metrics
		pageSize int
	}

	snapshotResponse struct {
		Records []record.Record   `json:"records"`
		Editing *int64            `json:"editing"` // id under edit, null when idle
		Input   record.Fields     `json:"input"`
		Changed bool              `json:"changed"`
		Errors  map[string]string `json:"errors,omitempty"`
	}

	pageResponse struct {
		record.Page
		Editing *int64        `json:"editing"`
		Input   record.Fields `json:"input"`
	}

	endSessionRequest struct {
		Drop bool `json:"drop"`
	}
)

func registerRecordAPI(e *echo.Echo, session echo.MiddlewareFunc, svc *record.Service, metrics *metricsvc.Metrics, pageSize int) {
	api := recordApi{svc: svc, metrics: metrics, pageSize: pageSize}

	rg := e.Group("/records", session)
	rg.GET("", api.list)
	rg.GET("/schema", api.schema)
	rg.POST("", api.submit)
	rg.POST("/update", api.update)
	rg.POST("/delete", api.delete)
	rg.POST("/edit", api.beginEdit)
	rg.POST("/cancel", api.cancelEdit)
	rg.POST("/toggle-visible", api.toggleVisible)
	rg.POST("/toggle-completed", api.toggleCompleted)

	e.POST("/session/end", api.endSession, session)
}

func newSnapshotResponse(snap record.Snapshot, changed bool) snapshotResponse {
	resp := snapshotResponse{
		Records: snap.Records,
		Input:   snap.Input,
		Changed: changed,
	}
	if resp.Records == nil {
		resp.Records = []record.Record{}
	}
	if resp.Input == nil {
		resp.Input = record.Fields{}
	}
	if id, ok := record.EditingID(snap.Edit); ok {
		resp.Editing = &id
	}
	return resp
}

// respond renders the outcome of a mutation. No-ops are successes.
func (api *recordApi) respond(ctx echo.Context, op string, snap record.Snapshot, changed bool, err error) error {
	api.metrics.ObserveOperation(op, changed, err)
	if err != nil {
		return errors.Wrap(err, op)
	}
	return ctx.JSON(http.StatusOK, newSnapshotResponse(snap, changed))
}

// Handlers

func (api *recordApi) list(ctx echo.Context) error {
	snap, err := api.svc.List(ctx.Request().Context(), contextCollection(ctx))
	if err != nil {
		return errors.Wrap(err, "list")
	}

	var p Pagination
	p.Bind(ctx, api.pageSize)
	if !p.Paged {
		return ctx.JSON(http.StatusOK, newSnapshotResponse(snap, false))
	}

	full := newSnapshotResponse(snap, false)
	return ctx.JSON(http.StatusOK, pageResponse{
		Page:    snap.Page(p.Page, p.PerPage),
		Editing: full.Editing,
		Input:   full.Input,
	})
}

func (api *recordApi) schema(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, api.svc.Schema())
}

func (api *recordApi) submit(ctx echo.Context) error {
	var body recordBody
	if err := body.Bind(ctx); err != nil {
		return err
	}

	snap, changed, err := api.svc.Submit(ctx.Request().Context(), contextCollection(ctx), body.Fields)
	api.metrics.ObserveOperation("submit", changed, err)
	if err != nil {
		return errors.Wrap(err, "submit")
	}

	resp := newSnapshotResponse(snap, changed)
	if !changed {
		resp.Errors = checkErrors(api.svc.Check(body.Fields))
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *recordApi) update(ctx echo.Context) error {
	var body recordBody
	if err := body.Bind(ctx); err != nil {
		return err
	}

	snap, changed, err := api.svc.Update(ctx.Request().Context(), contextCollection(ctx), body.ID, body.Fields)
	api.metrics.ObserveOperation("update", changed, err)
	if err != nil {
		return errors.Wrap(err, "update")
	}

	resp := newSnapshotResponse(snap, changed)
	if _, found := snap.Get(body.ID); found && !changed {
		resp.Errors = checkErrors(api.svc.Check(body.Fields))
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *recordApi) delete(ctx echo.Context) error {
	var body recordBody
	if err := body.Bind(ctx); err != nil {
		return err
	}
	snap, changed, err := api.svc.Delete(ctx.Request().Context(), contextCollection(ctx), body.ID)
	return api.respond(ctx, "delete", snap, changed, err)
}

func (api *recordApi) beginEdit(ctx echo.Context) error {
	var body recordBody
	if err := body.Bind(ctx); err != nil {
		return err
	}
	snap, changed, err := api.svc.BeginEdit(ctx.Request().Context(), contextCollection(ctx), body.ID)
	return api.respond(ctx, "edit", snap, changed, err)
}

func (api *recordApi) cancelEdit(ctx echo.Context) error {
	snap, changed, err := api.svc.CancelEdit(ctx.Request().Context(), contextCollection(ctx))
	return api.respond(ctx, "cancel", snap, changed, err)
}

func (api *recordApi) toggleVisible(ctx echo.Context) error {
	var body recordBody
	if err := body.Bind(ctx); err != nil {
		return err
	}
	snap, changed, err := api.svc.ToggleVisible(ctx.Request().Context(), contextCollection(ctx), body.ID)
	return api.respond(ctx, "toggle_visible", snap, changed, err)
}

func (api *recordApi) toggleCompleted(ctx echo.Context) error {
	var body recordBody
	if err := body.Bind(ctx); err != nil {
		return err
	}
	snap, changed, err := api.svc.ToggleCompleted(ctx.Request().Context(), contextCollection(ctx), body.ID)
	return api.respond(ctx, "toggle_completed", snap, changed, err)
}

func (api *recordApi) endSession(ctx echo.Context) error {
	var req endSessionRequest
	if err := ctx.Bind(&req); err != nil {
		return errors.Wrap(err, "binding to endSessionRequest")
	}
	err := api.svc.EndSession(ctx.Request().Context(), contextCollection(ctx), req.Drop)
	api.metrics.ObserveOperation("end_session", err == nil, err)
	if err != nil {
		return errors.Wrap(err, "end session")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// checkErrors maps validation errors to field messages.
func checkErrors(err error) map[string]string {
	if err == nil {
		return nil
	}
	var vErr *core.ValidationError
	if !errors.As(err, &vErr) || len(vErr.Fields) == 0 {
		return map[string]string{"": err.Error()}
	}
	msgs := make(map[string]string, len(vErr.Fields))
	for _, fe := range vErr.Fields {
		msgs[fe.Field] = fe.Error
	}
	return msgs
}
