package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/acappella-workshop/internal/model"
	"github.com/iliyamo/acappella-workshop/internal/repository"
)

// Profiles reads and renames accounts.
type Profiles interface {
	GetByID(ctx context.Context, id uint64) (model.User, error)
	UpdateName(ctx context.Context, id uint64, name string) error
}

// OwnedStudents is the owner-scoped student store.  Delete returns
// repository.ErrConflict for a student with registrations.
type OwnedStudents interface {
	ListByUser(ctx context.Context, userID uint64) ([]model.Student, error)
	GetForUser(ctx context.Context, id, userID uint64) (model.Student, error)
	Create(ctx context.Context, s *model.Student) error
	Update(ctx context.Context, s *model.Student, userID uint64) error
	Delete(ctx context.Context, id, userID uint64) error
}

// RegistrationHistory lists a parent's registrations.
type RegistrationHistory interface {
	ListByUser(ctx context.Context, userID uint64) ([]model.RegistrationDetail, error)
}

// PaymentHistory lists a parent's payments.
type PaymentHistory interface {
	ListByUser(ctx context.Context, userID uint64) ([]model.Payment, error)
}

// AccountHandler serves the signed-in parent's own data: profile,
// students, registrations and payments.  Every query is scoped to the
// caller's user id.
type AccountHandler struct {
	Users         Profiles
	Students      OwnedStudents
	Registrations RegistrationHistory
	Payments      PaymentHistory
	Validate      *validator.Validate
}

func NewAccountHandler(u Profiles, s OwnedStudents, r RegistrationHistory, p PaymentHistory, v *validator.Validate) *AccountHandler {
	if u == nil || s == nil || r == nil || p == nil {
		panic("nil repository passed to NewAccountHandler")
	}
	return &AccountHandler{Users: u, Students: s, Registrations: r, Payments: p, Validate: v}
}

type meResp struct {
	ID           uint64 `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	Role         string `json:"role"`
	HasPassword  bool   `json:"has_password"`
	GoogleLinked bool   `json:"google_linked"`
}

// Me handles GET /api/me.
func (h *AccountHandler) Me(c echo.Context) error {
	uid, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		return repoError(c, err, "load user failed")
	}
	return c.JSON(http.StatusOK, meResp{
		ID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role,
		HasPassword: u.HasPassword(), GoogleLinked: u.GoogleID != "",
	})
}

// UpdateMe handles PUT /api/me; only the display name is editable.
func (h *AccountHandler) UpdateMe(c echo.Context) error {
	uid, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	var req struct {
		Name string `json:"name" validate:"required,max=120"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := h.Validate.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name required"})
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	if err := h.Users.UpdateName(ctx, uid, req.Name); err != nil {
		return repoError(c, err, "update failed")
	}
	return h.Me(c)
}

type studentReq struct {
	FirstName string `json:"first_name" validate:"required,max=80"`
	LastName  string `json:"last_name" validate:"max=80"`
	Notes     string `json:"notes" validate:"max=2000"`
}

func (h *AccountHandler) bindStudent(c echo.Context) (studentReq, bool) {
	var req studentReq
	if err := c.Bind(&req); err != nil {
		return req, false
	}
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	return req, h.Validate.Struct(req) == nil
}

// ListStudents handles GET /api/students.
func (h *AccountHandler) ListStudents(c echo.Context) error {
	uid, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	list, err := h.Students.ListByUser(ctx, uid)
	if err != nil {
		return repoError(c, err, "list students failed")
	}
	return c.JSON(http.StatusOK, list)
}

// CreateStudent handles POST /api/students.
func (h *AccountHandler) CreateStudent(c echo.Context) error {
	uid, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	req, ok := h.bindStudent(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "first_name required"})
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	s := model.Student{UserID: uid, FirstName: req.FirstName, LastName: req.LastName, Notes: req.Notes}
	if err := h.Students.Create(ctx, &s); err != nil {
		return repoError(c, err, "create student failed")
	}
	return c.JSON(http.StatusCreated, s)
}

// UpdateStudent handles PUT /api/students/:id.
func (h *AccountHandler) UpdateStudent(c echo.Context) error {
	uid, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid student id"})
	}
	req, ok := h.bindStudent(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "first_name required"})
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	s := model.Student{ID: id, UserID: uid, FirstName: req.FirstName, LastName: req.LastName, Notes: req.Notes}
	if err := h.Students.Update(ctx, &s, uid); err != nil {
		return repoError(c, err, "update student failed")
	}
	updated, err := h.Students.GetForUser(ctx, id, uid)
	if err != nil {
		return repoError(c, err, "load student failed")
	}
	return c.JSON(http.StatusOK, updated)
}

// DeleteStudent handles DELETE /api/students/:id.  Students with any
// registration are kept (409).
func (h *AccountHandler) DeleteStudent(c echo.Context) error {
	uid, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid student id"})
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	if err := h.Students.Delete(ctx, id, uid); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "student has registrations"})
		}
		return repoError(c, err, "delete student failed")
	}
	return c.NoContent(http.StatusNoContent)
}

// Totals aggregates money over a list of registrations.  Cancelled and
// refunded registrations count toward neither figure.
type Totals struct {
	PaidCents int64 `json:"total_paid_cents"`
	DueCents  int64 `json:"total_due_cents"`
	Count     int   `json:"count"`
}

func (t *Totals) add(r model.Registration) {
	t.Count++
	if r.Status == model.StatusCancelled || r.Status == model.StatusRefunded {
		return
	}
	t.PaidCents += r.AmountPaidCents
	t.DueCents += r.BalanceDueCents
}

func summarize(regs []model.RegistrationDetail) Totals {
	var t Totals
	for _, r := range regs {
		t.add(r.Registration)
	}
	return t
}

// ListRegistrations handles GET /api/registrations.
func (h *AccountHandler) ListRegistrations(c echo.Context) error {
	uid, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	regs, err := h.Registrations.ListByUser(ctx, uid)
	if err != nil {
		return repoError(c, err, "list registrations failed")
	}
	t := summarize(regs)
	return c.JSON(http.StatusOK, echo.Map{
		"registrations":    regs,
		"total_paid_cents": t.PaidCents,
		"total_due_cents":  t.DueCents,
	})
}

// ListPayments handles GET /api/payments.
func (h *AccountHandler) ListPayments(c echo.Context) error {
	uid, ok := currentUser(c)
	if !ok {
		return unauthorized(c)
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	list, err := h.Payments.ListByUser(ctx, uid)
	if err != nil {
		return repoError(c, err, "list payments failed")
	}
	return c.JSON(http.StatusOK, list)
}
