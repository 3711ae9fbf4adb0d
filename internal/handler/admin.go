package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/acappella-workshop/internal/model"
	"github.com/iliyamo/acappella-workshop/internal/repository"
)

// AdminHandler serves the ADMIN-only overview, rosters and manual edits.
// Every state change writes an audit entry.
type AdminHandler struct {
	Registrations *repository.RegistrationRepo
	Students      *repository.StudentRepo
	Weeks         *repository.WeekRepo
	Audit         *repository.AuditRepo
	Logger        zerolog.Logger
}

func NewAdminHandler(r *repository.RegistrationRepo, s *repository.StudentRepo, w *repository.WeekRepo, a *repository.AuditRepo, logger zerolog.Logger) *AdminHandler {
	if r == nil || s == nil || w == nil || a == nil {
		panic("nil repository passed to NewAdminHandler")
	}
	return &AdminHandler{Registrations: r, Students: s, Weeks: w, Audit: a, Logger: logger.With().Str("service", "Admin").Logger()}
}

// WeekGroup is one week in the admin overview.
type WeekGroup struct {
	WeekID        string                     `json:"week_id"`
	Label         string                     `json:"label"`
	Location      string                     `json:"location"`
	Registrations []model.RegistrationDetail `json:"registrations"`
	Totals
}

// groupByWeek keeps the input order of weeks (ListAll sorts by start date)
// and totals each group and the whole list.
func groupByWeek(regs []model.RegistrationDetail) ([]WeekGroup, Totals) {
	groups := []WeekGroup{}
	index := map[string]int{}
	var all Totals
	for _, r := range regs {
		i, ok := index[r.WeekID]
		if !ok {
			i = len(groups)
			index[r.WeekID] = i
			groups = append(groups, WeekGroup{WeekID: r.WeekID, Label: r.WeekLabel, Location: r.Location})
		}
		groups[i].Registrations = append(groups[i].Registrations, r)
		groups[i].add(r.Registration)
		all.add(r.Registration)
	}
	return groups, all
}

// ListRegistrations handles GET /api/admin/registrations.
func (h *AdminHandler) ListRegistrations(c echo.Context) error {
	ctx, cancel := dbCtx(c)
	defer cancel()
	regs, err := h.Registrations.ListAll(ctx)
	if err != nil {
		return repoError(c, err, "list registrations failed")
	}
	weeks, t := groupByWeek(regs)
	return c.JSON(http.StatusOK, echo.Map{
		"weeks":            weeks,
		"total_paid_cents": t.PaidCents,
		"total_due_cents":  t.DueCents,
		"count":            t.Count,
	})
}

// Roster handles GET /api/admin/weeks/:id/roster.
func (h *AdminHandler) Roster(c echo.Context) error {
	ctx, cancel := dbCtx(c)
	defer cancel()
	w, err := h.Weeks.GetByID(ctx, c.Param("id"))
	if err != nil {
		return repoError(c, err, "load week failed")
	}
	regs, err := h.Registrations.Roster(ctx, w.ID)
	if err != nil {
		return repoError(c, err, "load roster failed")
	}
	return c.JSON(http.StatusOK, echo.Map{"week": w, "students": regs, "capacity": w.Capacity, "enrolled": len(regs)})
}

type adminCreateReq struct {
	StudentID       uint64 `json:"student_id"`
	WeekID          string `json:"week_id"`
	PaymentType     string `json:"payment_type"`
	AmountPaidCents int64  `json:"amount_paid_cents"`
	Note            string `json:"note"`
}

// CreateRegistration handles POST /api/admin/registrations, used for
// offline payments.  The balance and status follow from the amount paid.
func (h *AdminHandler) CreateRegistration(c echo.Context) error {
	actor, _ := currentUser(c)
	var req adminCreateReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.PaymentType == "" {
		req.PaymentType = model.PaymentTypeFull
	}
	if req.StudentID == 0 || strings.TrimSpace(req.WeekID) == "" || !model.ValidPaymentType(req.PaymentType) || req.AmountPaidCents < 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "student_id, week_id, payment_type and a non-negative amount are required"})
	}

	ctx, cancel := dbCtx(c)
	defer cancel()
	s, err := h.Students.GetByID(ctx, req.StudentID)
	if err != nil {
		return repoError(c, err, "load student failed")
	}
	w, err := h.Weeks.GetByID(ctx, strings.TrimSpace(req.WeekID))
	if err != nil {
		return repoError(c, err, "load week failed")
	}
	if n, err := h.Registrations.CountActiveForWeek(ctx, w.ID); err == nil && w.Capacity > 0 && n >= w.Capacity {
		return c.JSON(http.StatusConflict, echo.Map{"error": "week is full"})
	}

	reg := model.Registration{
		UserID:          s.UserID,
		StudentID:       s.ID,
		WeekID:          w.ID,
		PaymentType:     req.PaymentType,
		AmountPaidCents: req.AmountPaidCents,
	}
	applyBalance(&reg, w)
	if err := h.Registrations.Create(ctx, &reg); err != nil {
		return repoError(c, err, "create registration failed")
	}
	h.audit(c, actor, "registration.created", reg.ID, map[string]any{
		"student_id": s.ID, "week_id": w.ID, "amount_paid_cents": reg.AmountPaidCents, "note": req.Note,
	})
	return c.JSON(http.StatusCreated, reg)
}

// applyBalance derives balance and status from the amount paid.
func applyBalance(reg *model.Registration, w model.Week) {
	reg.BalanceDueCents = w.PriceCents - reg.AmountPaidCents
	if reg.BalanceDueCents < 0 {
		reg.BalanceDueCents = 0
	}
	switch {
	case reg.BalanceDueCents == 0:
		reg.Status = model.StatusPaid
	case reg.AmountPaidCents > 0:
		reg.Status = model.StatusDepositPaid
	default:
		reg.Status = model.StatusPending
	}
}

// UpdateStatus handles PUT /api/admin/registrations/:id/status.  Marking
// a registration paid settles its balance; cancel and refund only change
// the status so the money fields keep their history.
func (h *AdminHandler) UpdateStatus(c echo.Context) error {
	actor, _ := currentUser(c)
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid registration id"})
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&req); err != nil || !model.ValidStatus(req.Status) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown status"})
	}

	ctx, cancel := dbCtx(c)
	defer cancel()
	reg, err := h.Registrations.GetByID(ctx, id)
	if err != nil {
		return repoError(c, err, "load registration failed")
	}
	from := reg.Status
	reg.Status = req.Status
	if req.Status == model.StatusPaid && reg.BalanceDueCents > 0 {
		reg.AmountPaidCents += reg.BalanceDueCents
		reg.BalanceDueCents = 0
	}
	if err := h.Registrations.UpdatePayment(ctx, &reg); err != nil {
		return repoError(c, err, "update registration failed")
	}
	h.audit(c, actor, "registration.status", reg.ID, map[string]any{"from": from, "to": req.Status})
	return c.JSON(http.StatusOK, reg)
}

// AuditLog handles GET /api/admin/audit?limit=.
func (h *AdminHandler) AuditLog(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	ctx, cancel := dbCtx(c)
	defer cancel()
	list, err := h.Audit.ListRecent(ctx, limit)
	if err != nil {
		return repoError(c, err, "list audit failed")
	}
	return c.JSON(http.StatusOK, list)
}

// audit records an entry; failures are logged and never fail the request.
func (h *AdminHandler) audit(c echo.Context, actor uint64, action string, regID uint64, detail map[string]any) {
	b, _ := json.Marshal(detail)
	e := model.AuditLog{Action: action, Entity: "registration", EntityID: strconv.FormatUint(regID, 10), Detail: string(b)}
	if actor != 0 {
		e.ActorUserID = &actor
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	if err := h.Audit.Record(ctx, e); err != nil {
		h.Logger.Warn().Err(err).Str("action", action).Uint64("registration_id", regID).Msg("audit write failed")
	}
}
