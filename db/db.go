package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"procurement/internal/workflow"
)

// Storage: реализация workflow.Store поверх PostgreSQL.
type Storage struct {
	repo
	db *sqlx.DB
}

var _ workflow.Store = (*Storage)(nil)

func NewStorage(db *sqlx.DB) *Storage {
	return &Storage{repo: repo{q: db}, db: db}
}

// repo выполняет запросы либо напрямую через пул, либо внутри транзакции.
// В транзакции чтение агрегатов блокирует строки (FOR UPDATE).
type repo struct {
	q    sqlx.ExtContext
	inTx bool
}

func (r *repo) forUpdate() string {
	if r.inTx {
		return " FOR UPDATE"
	}
	return ""
}

func (r *repo) getContext(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.GetContext(ctx, r.q, dest, query, args...)
}

func (r *repo) selectContext(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.SelectContext(ctx, r.q, dest, query, args...)
}

func (r *repo) namedExec(ctx context.Context, query string, arg any) (sql.Result, error) {
	res, err := sqlx.NamedExecContext(ctx, r.q, query, arg)
	return res, mapErr(err)
}

// Tx выполняет fn в одной транзакции БД. Любая ошибка fn откатывает все изменения.
func (s *Storage) Tx(ctx context.Context, fn func(r workflow.Repository) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&repo{q: tx, inTx: true}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapErr(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// Ping проверяет соединение (используется /api/ping).
func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// mapErr приводит ошибки драйвера к классам ошибок workflow.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Name() {
		case "unique_violation":
			return fmt.Errorf("%w: %s", workflow.ErrConflict, pqErr.Constraint)
		case "foreign_key_violation":
			return fmt.Errorf("%w: %s", workflow.ErrValidation, pqErr.Constraint)
		}
	}
	return err
}

func notFound(err error, what string, id any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s %v", workflow.ErrNotFound, what, id)
	}
	return mapErr(err)
}

// mustAffect возвращает ErrNotFound, если UPDATE не затронул ни одной строки.
func mustAffect(res sql.Result, what string, id any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %v", workflow.ErrNotFound, what, id)
	}
	return nil
}

// insertID выполняет именованный INSERT ... RETURNING id.
func insertID(ctx context.Context, q sqlx.ExtContext, query string, arg any) (int64, error) {
	rows, err := sqlx.NamedQueryContext(ctx, q, query, arg)
	if err != nil {
		return 0, mapErr(err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return 0, mapErr(err)
		}
		return 0, sql.ErrNoRows
	}
	var id int64
	if err := rows.Scan(&id); err != nil {
		return 0, err
	}
	return id, rows.Err()
}

// where собирает условия и позиционные аргументы для динамических выборок.
type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, arg any) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, fmt.Sprintf(cond, len(w.args)))
}

func (w *where) arg(v any) string {
	w.args = append(w.args, v)
	return fmt.Sprintf("$%d", len(w.args))
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	out := " WHERE " + w.conds[0]
	for _, c := range w.conds[1:] {
		out += " AND " + c
	}
	return out
}

func (w *where) page(limit, offset int) string {
	return fmt.Sprintf(" LIMIT %s OFFSET %s", w.arg(limit), w.arg(offset))
}

func strs[T ~string](in []T) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = string(v)
	}
	return out
}
