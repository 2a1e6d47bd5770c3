// Package httpapi maps JSON requests onto benchcore service operations.
package httpapi

import (
	"context"
	"net/http"
	"sort"
	"time"

	"benchcore/internal/compose"
	"benchcore/internal/core"
	"benchcore/internal/release"
	"benchcore/pkg/domain"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/shopspring/decimal"
)

// Handler exposes the service over HTTP.
type Handler struct {
	Service *core.Service
	// Metrics serves /metrics when set.
	Metrics http.Handler
	// Vars serves /debug/vars when set.
	Vars http.Handler
}

// NewHandler constructs a handler for svc.
func NewHandler(svc *core.Service, metrics http.Handler) *Handler {
	return &Handler{Service: svc, Metrics: metrics}
}

// Echo builds the router.
func (h *Handler) Echo() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if h.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(h.Metrics))
	}
	if h.Vars != nil {
		e.GET("/debug/vars", echo.WrapHandler(h.Vars))
	}

	api := e.Group("/api/v1", editCapability)

	api.GET("/consumables", h.listConsumables)
	api.POST("/consumables", h.createConsumable)
	api.GET("/consumables/:id", h.getConsumable)
	api.POST("/consumables/:id/approve", h.approveConsumable)
	api.POST("/consumables/:id/dispose", h.disposeConsumable)
	api.POST("/consumables/:id/consume", h.consumeStock)
	api.POST("/compositions", h.composeMedia)

	api.GET("/equipment", h.listEquipment)
	api.POST("/equipment", h.createEquipment)
	api.POST("/equipment/:id/status", h.setEquipmentStatus)
	api.POST("/equipment/:id/validations", h.completeValidation)

	api.POST("/donors", h.createDonor)
	api.POST("/cultures", h.createCulture)
	api.POST("/cultures/:id/status", h.setCultureStatus)
	api.POST("/storage-units", h.createStorageUnit)
	api.POST("/storage-units/:id/status", h.setStorageStatus)
	api.POST("/master-banks", h.createMasterBank)
	api.POST("/master-banks/:id/status", h.setMasterBankStatus)

	api.GET("/releases", h.listReleases)
	api.POST("/releases", h.createRelease)
	api.POST("/releases/:id/confirm", h.confirmRelease)
	api.POST("/releases/:id/cancel", h.cancelRelease)

	api.GET("/tasks", h.listTasks)
	api.POST("/tasks", h.createTask)
	api.POST("/tasks/:id/start", h.startTask)
	api.POST("/tasks/:id/complete", h.completeTask)
	api.POST("/tasks/:id/cancel", h.cancelTask)
	api.POST("/tasks/evaluate", h.evaluateTasks)
	api.POST("/tasks/sweep", h.sweep)
	return e
}

func (h *Handler) view(c echo.Context, fn func(core.TransactionView)) error {
	return h.Service.View(c.Request().Context(), func(v core.TransactionView) error {
		fn(v)
		return nil
	})
}

func (h *Handler) listConsumables(c echo.Context) error {
	var items []domain.ConsumableItem
	if err := h.view(c, func(v core.TransactionView) { items = v.ListConsumables() }); err != nil {
		return writeError(c, err)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
	return c.JSON(http.StatusOK, map[string]any{"consumables": items})
}

func (h *Handler) getConsumable(c echo.Context) error {
	id := c.Param("id")
	var (
		item      domain.ConsumableItem
		found     bool
		movements []domain.StockMovement
	)
	if err := h.view(c, func(v core.TransactionView) {
		item, found = v.FindConsumable(id)
		movements = v.ListStockMovements(id)
	}); err != nil {
		return writeError(c, err)
	}
	if !found {
		return writeError(c, domain.InvalidReferenceError{Entity: domain.EntityConsumable, ID: id})
	}
	return c.JSON(http.StatusOK, map[string]any{"consumable": item, "movements": movements})
}

func (h *Handler) createConsumable(c echo.Context) error {
	var item domain.ConsumableItem
	if err := c.Bind(&item); err != nil {
		return badRequest(c, "invalid consumable payload")
	}
	created, res, err := h.Service.CreateConsumable(c.Request().Context(), item)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]any{"consumable": created, "violations": res.Violations})
}

func (h *Handler) approveConsumable(c echo.Context) error {
	item, _, err := h.Service.ApproveConsumable(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"consumable": item})
}

func (h *Handler) disposeConsumable(c echo.Context) error {
	item, _, err := h.Service.DisposeConsumable(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"consumable": item})
}

type consumeRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference"`
}

func (h *Handler) consumeStock(c echo.Context) error {
	var req consumeRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid consumption payload")
	}
	outcome, _, err := h.Service.ConsumeStock(c.Request().Context(), c.Param("id"), req.Amount, req.Reference)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"consumable": outcome.Item,
		"applied":    outcome.Applied,
		"clamped":    outcome.Clamped(),
		"movement":   outcome.Movement,
	})
}

func (h *Handler) composeMedia(c echo.Context) error {
	var req compose.Request
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid composition payload")
	}
	result, _, err := h.Service.ComposeMedia(c.Request().Context(), req)
	if err != nil {
		return writeError(c, err)
	}
	sources := make([]domain.ConsumableItem, 0, len(result.Consumed))
	for _, consumed := range result.Consumed {
		sources = append(sources, consumed.Item)
	}
	return c.JSON(http.StatusCreated, map[string]any{"consumable": result.Item, "sources": sources})
}

func (h *Handler) listEquipment(c echo.Context) error {
	var equipment []domain.Equipment
	if err := h.view(c, func(v core.TransactionView) { equipment = v.ListEquipment() }); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"equipment": equipment})
}

func (h *Handler) createEquipment(c echo.Context) error {
	var eq domain.Equipment
	if err := c.Bind(&eq); err != nil {
		return badRequest(c, "invalid equipment payload")
	}
	created, _, err := h.Service.CreateEquipment(c.Request().Context(), eq)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]any{"equipment": created})
}

type statusRequest struct {
	Status string `json:"status"`
}

func bindStatus(c echo.Context) (string, bool) {
	var req statusRequest
	if err := c.Bind(&req); err != nil || req.Status == "" {
		return "", false
	}
	return req.Status, true
}

func (h *Handler) setEquipmentStatus(c echo.Context) error {
	status, ok := bindStatus(c)
	if !ok {
		return badRequest(c, "status is required")
	}
	eq, _, err := h.Service.SetEquipmentStatus(c.Request().Context(), c.Param("id"), domain.EquipmentStatus(status))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"equipment": eq})
}

type validationRequest struct {
	PerformedAt *time.Time `json:"performed_at"`
}

func (h *Handler) completeValidation(c echo.Context) error {
	var req validationRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid validation payload")
	}
	var performedAt time.Time
	if req.PerformedAt != nil {
		performedAt = *req.PerformedAt
	}
	completion, _, err := h.Service.CompleteValidationAt(c.Request().Context(), c.Param("id"), performedAt)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"equipment":    completion.Equipment,
		"reactivated":  completion.Reactivated,
		"closed_tasks": completion.ClosedTasks,
	})
}

func (h *Handler) createDonor(c echo.Context) error {
	var donor domain.Donor
	if err := c.Bind(&donor); err != nil {
		return badRequest(c, "invalid donor payload")
	}
	created, _, err := h.Service.CreateDonor(c.Request().Context(), donor)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]any{"donor": created})
}

func (h *Handler) createCulture(c echo.Context) error {
	var culture domain.Culture
	if err := c.Bind(&culture); err != nil {
		return badRequest(c, "invalid culture payload")
	}
	created, _, err := h.Service.CreateCulture(c.Request().Context(), culture)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]any{"culture": created})
}

func (h *Handler) setCultureStatus(c echo.Context) error {
	status, ok := bindStatus(c)
	if !ok {
		return badRequest(c, "status is required")
	}
	culture, _, err := h.Service.SetCultureStatus(c.Request().Context(), c.Param("id"), domain.CultureStatus(status))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"culture": culture})
}

func (h *Handler) createStorageUnit(c echo.Context) error {
	var unit domain.StorageUnit
	if err := c.Bind(&unit); err != nil {
		return badRequest(c, "invalid storage unit payload")
	}
	created, _, err := h.Service.CreateStorageUnit(c.Request().Context(), unit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]any{"storage_unit": created})
}

func (h *Handler) setStorageStatus(c echo.Context) error {
	status, ok := bindStatus(c)
	if !ok {
		return badRequest(c, "status is required")
	}
	unit, _, err := h.Service.SetStorageStatus(c.Request().Context(), c.Param("id"), domain.StorageStatus(status))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"storage_unit": unit})
}

func (h *Handler) createMasterBank(c echo.Context) error {
	var bank domain.MasterBank
	if err := c.Bind(&bank); err != nil {
		return badRequest(c, "invalid master bank payload")
	}
	created, _, err := h.Service.CreateMasterBank(c.Request().Context(), bank)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]any{"master_bank": created})
}

func (h *Handler) setMasterBankStatus(c echo.Context) error {
	status, ok := bindStatus(c)
	if !ok {
		return badRequest(c, "status is required")
	}
	bank, _, err := h.Service.SetMasterBankStatus(c.Request().Context(), c.Param("id"), domain.MasterBankStatus(status))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"master_bank": bank})
}

func (h *Handler) listReleases(c echo.Context) error {
	var releases []domain.Release
	if err := h.view(c, func(v core.TransactionView) { releases = v.ListReleases() }); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"releases": releases})
}

func (h *Handler) createRelease(c echo.Context) error {
	var req release.Request
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid release payload")
	}
	created, _, err := h.Service.CreateRelease(c.Request().Context(), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]any{"release": created})
}

func (h *Handler) confirmRelease(c echo.Context) error {
	outcome, _, err := h.Service.ConfirmRelease(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"release": outcome.Release, "source_transitioned": outcome.SourceTransitioned})
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) cancelRelease(c echo.Context) error {
	var req cancelRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid cancellation payload")
	}
	cancelled, _, err := h.Service.CancelRelease(c.Request().Context(), c.Param("id"), req.Reason)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"release": cancelled})
}

// listTasks filters by entity_id and, with open=true, by tasks that still hold
// their slot.
func (h *Handler) listTasks(c echo.Context) error {
	entityID := c.QueryParam("entity_id")
	openOnly := c.QueryParam("open") == "true"
	var all []domain.MaintenanceTask
	if err := h.view(c, func(v core.TransactionView) { all = v.ListTasks() }); err != nil {
		return writeError(c, err)
	}
	out := make([]domain.MaintenanceTask, 0, len(all))
	for _, task := range all {
		if entityID != "" && task.RelatedEntityID != entityID {
			continue
		}
		if openOnly && !task.Open() {
			continue
		}
		out = append(out, task)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	return c.JSON(http.StatusOK, map[string]any{"tasks": out})
}

func (h *Handler) createTask(c echo.Context) error {
	var task domain.MaintenanceTask
	if err := c.Bind(&task); err != nil {
		return badRequest(c, "invalid task payload")
	}
	created, _, err := h.Service.CreateTask(c.Request().Context(), task)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]any{"task": created})
}

type taskMove func(ctx context.Context, id string) (domain.MaintenanceTask, core.Result, error)

func (h *Handler) moveTask(c echo.Context, move taskMove) error {
	task, _, err := move(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"task": task})
}

func (h *Handler) startTask(c echo.Context) error { return h.moveTask(c, h.Service.StartTask) }

func (h *Handler) completeTask(c echo.Context) error { return h.moveTask(c, h.Service.CompleteTask) }

func (h *Handler) cancelTask(c echo.Context) error { return h.moveTask(c, h.Service.CancelTask) }

type evaluateRequest struct {
	Entity   domain.EntityType `json:"entity"`
	EntityID string            `json:"entity_id"`
}

func (h *Handler) evaluateTasks(c echo.Context) error {
	var req evaluateRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid evaluation payload")
	}
	created, _, err := h.Service.EvaluateTasks(c.Request().Context(), req.Entity, req.EntityID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"created": created})
}

func (h *Handler) sweep(c echo.Context) error {
	report, _, err := h.Service.Sweep(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"created": report.Created, "overdue": report.Overdue})
}
