package reconcile

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/acappella-workshop/internal/model"
	"github.com/iliyamo/acappella-workshop/internal/repository"
)

// MySQLLedger runs reconciliations in MySQL transactions using the
// repository Tx methods.
type MySQLLedger struct {
	db       *sql.DB
	users    *repository.UserRepo
	students *repository.StudentRepo
	weeks    *repository.WeekRepo
	regs     *repository.RegistrationRepo
	payments *repository.PaymentRepo
}

// NewMySQLLedger builds a ledger over db.
func NewMySQLLedger(db *sql.DB) *MySQLLedger {
	return &MySQLLedger{
		db:       db,
		users:    repository.NewUserRepo(db),
		students: repository.NewStudentRepo(db),
		weeks:    repository.NewWeekRepo(db),
		regs:     repository.NewRegistrationRepo(db),
		payments: repository.NewPaymentRepo(db),
	}
}

func (l *MySQLLedger) Begin(ctx context.Context) (Tx, error) {
	tx, err := l.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	return &mysqlTx{l: l, tx: tx}, nil
}

type mysqlTx struct {
	l  *MySQLLedger
	tx *sql.Tx
}

func (t *mysqlTx) PaymentExists(ctx context.Context, sessionID string) (bool, error) {
	return t.l.payments.ExistsForSessionTx(ctx, t.tx, sessionID)
}

func (t *mysqlTx) CreatePayment(ctx context.Context, p *model.Payment) error {
	err := t.l.payments.CreateTx(ctx, t.tx, p)
	if errors.Is(err, repository.ErrConflict) {
		return ErrDuplicate
	}
	return err
}

func (t *mysqlTx) UserByID(ctx context.Context, id uint64) (model.User, error) {
	return t.l.users.GetByIDTx(ctx, t.tx, id)
}

func (t *mysqlTx) UserByEmail(ctx context.Context, email string) (model.User, error) {
	return t.l.users.GetByEmailTx(ctx, t.tx, email)
}

func (t *mysqlTx) CreateUser(ctx context.Context, email, name string) (uint64, error) {
	return t.l.users.CreatePasswordlessTx(ctx, t.tx, email, name)
}

func (t *mysqlTx) FindStudent(ctx context.Context, userID uint64, first, last string) (model.Student, error) {
	return t.l.students.FindByNameTx(ctx, t.tx, userID, first, last)
}

func (t *mysqlTx) CreateStudent(ctx context.Context, s *model.Student) error {
	return t.l.students.CreateTx(ctx, t.tx, s)
}

func (t *mysqlTx) Week(ctx context.Context, id string) (model.Week, error) {
	return t.l.weeks.GetByIDTx(ctx, t.tx, id)
}

func (t *mysqlTx) CreateRegistration(ctx context.Context, r *model.Registration) error {
	return t.l.regs.CreateTx(ctx, t.tx, r)
}

func (t *mysqlTx) RegistrationForUpdate(ctx context.Context, id uint64) (model.Registration, error) {
	return t.l.regs.GetForUpdateTx(ctx, t.tx, id)
}

func (t *mysqlTx) UpdateRegistrationPayment(ctx context.Context, r *model.Registration) error {
	return t.l.regs.UpdatePaymentTx(ctx, t.tx, r)
}

func (t *mysqlTx) Commit() error   { return t.tx.Commit() }
func (t *mysqlTx) Rollback() error { return t.tx.Rollback() }
