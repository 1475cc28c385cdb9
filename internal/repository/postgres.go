// Package repository содержит реализацию хранилища записей в PostgreSQL.
package repository

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/hotel-billing/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const primaryKeyConstraint = "records_pkey"

var retryDelays = []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

// PostgresStore хранит записи всех таблиц в одной таблице records с полями в JSONB.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore создаёт хранилище и инициализирует схему БД через миграции.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresStore{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresStore) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresStore) withRetry(ctx context.Context, fn func() error) error {
	var err error

	for i := 0; i <= len(retryDelays); i++ {
		err = fn()
		if err == nil || !isRetryable(err) || i == len(retryDelays) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		timer := time.NewTimer(retryDelays[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

// isRetryable сообщает, стоит ли повторить запрос: конфликты сериализации, дедлоки и обрывы соединения.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}

	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// translateError переводит ошибки PostgreSQL в ошибки хранилища.
func translateError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		return fmt.Errorf("%w: %s", store.ErrDuplicate, pgErr.ConstraintName)
	case pgerrcode.CheckViolation, pgerrcode.NotNullViolation, pgerrcode.InvalidTextRepresentation,
		pgerrcode.InsufficientPrivilege:
		return &store.RejectedError{Message: pgErr.Message}
	}
	return err
}

func isPrimaryKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation && pgErr.ConstraintName == primaryKeyConstraint
}

// Close закрывает пул соединений с БД.
func (r *PostgresStore) Close() error {
	r.pool.Close()
	return nil
}

// Create сохраняет новую запись.
func (r *PostgresStore) Create(ctx context.Context, table string, fields map[string]any) (store.Record, error) {
	if fields == nil {
		fields = map[string]any{}
	}
	in, err := json.Marshal(fields)
	if err != nil {
		return store.Record{}, fmt.Errorf("encode fields: %w", err)
	}

	rec := store.Record{ID: uuid.NewString()}
	var raw []byte

	insert := func() error {
		return r.pool.QueryRow(ctx,
			`INSERT INTO records (table_name, id, fields) VALUES ($1, $2, $3) RETURNING fields, created_at, version`,
			table, rec.ID, in,
		).Scan(&raw, &rec.CreatedAt, &rec.Version)
	}
	reread := func() error {
		return r.pool.QueryRow(ctx,
			`SELECT fields, created_at, version FROM records WHERE table_name = $1 AND id = $2`,
			table, rec.ID,
		).Scan(&raw, &rec.CreatedAt, &rec.Version)
	}

	if err := r.retryInsert(ctx, insert, reread); err != nil {
		return store.Record{}, fmt.Errorf("insert record: %w", translateError(err))
	}

	if rec.Fields, err = decodeFields(raw); err != nil {
		return store.Record{}, err
	}
	return rec, nil
}

// retryInsert повторяет вставку при временных ошибках. Если повтор упёрся в первичный ключ,
// значит предыдущая попытка успела зафиксироваться, и запись перечитывается.
func (r *PostgresStore) retryInsert(ctx context.Context, insert, reread func() error) error {
	attempt := 0
	return r.withRetry(ctx, func() error {
		attempt++
		err := insert()
		if attempt > 1 && isPrimaryKeyViolation(err) {
			return reread()
		}
		return err
	})
}

// Get возвращает запись по идентификатору.
func (r *PostgresStore) Get(ctx context.Context, table, id string) (store.Record, error) {
	if _, err := uuid.Parse(id); err != nil {
		return store.Record{}, store.ErrNotFound
	}

	rec := store.Record{ID: id}
	var raw []byte

	err := r.withRetry(ctx, func() error {
		return r.pool.QueryRow(ctx,
			`SELECT fields, created_at, version FROM records WHERE table_name = $1 AND id = $2`,
			table, id,
		).Scan(&raw, &rec.CreatedAt, &rec.Version)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Record{}, store.ErrNotFound
		}
		return store.Record{}, fmt.Errorf("select record: %w", err)
	}

	if rec.Fields, err = decodeFields(raw); err != nil {
		return store.Record{}, err
	}
	return rec, nil
}

// Update дополняет поля записи. При ненулевой version запись обновляется, только если её версия совпадает.
func (r *PostgresStore) Update(ctx context.Context, table, id string, version int64, fields map[string]any) (store.Record, error) {
	if _, err := uuid.Parse(id); err != nil {
		return store.Record{}, store.ErrNotFound
	}

	in, err := json.Marshal(fields)
	if err != nil {
		return store.Record{}, fmt.Errorf("encode fields: %w", err)
	}

	rec := store.Record{ID: id}
	var raw []byte

	err = r.withRetry(ctx, func() error {
		return r.pool.QueryRow(ctx,
			`UPDATE records
			 SET fields = fields || $3::jsonb, version = version + 1, updated_at = now()
			 WHERE table_name = $1 AND id = $2 AND ($4::bigint = 0 OR version = $4::bigint)
			 RETURNING fields, created_at, version`,
			table, id, in, version,
		).Scan(&raw, &rec.CreatedAt, &rec.Version)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Record{}, r.missingOrStale(ctx, table, id, version)
		}
		return store.Record{}, fmt.Errorf("update record: %w", translateError(err))
	}

	if rec.Fields, err = decodeFields(raw); err != nil {
		return store.Record{}, err
	}
	return rec, nil
}

func (r *PostgresStore) missingOrStale(ctx context.Context, table, id string, version int64) error {
	var current int64
	err := r.pool.QueryRow(ctx,
		`SELECT version FROM records WHERE table_name = $1 AND id = $2`,
		table, id,
	).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrNotFound
		}
		return fmt.Errorf("select record version: %w", err)
	}
	return fmt.Errorf("%w: %s has version %d, expected %d", store.ErrVersionConflict, id, current, version)
}

// Query возвращает записи таблицы, удовлетворяющие запросу.
func (r *PostgresStore) Query(ctx context.Context, table string, q store.Query) ([]store.Record, error) {
	sql, args, err := buildQuery(table, q)
	if err != nil {
		return nil, err
	}

	var res []store.Record
	err = r.withRetry(ctx, func() error {
		res = nil

		rows, err := r.pool.Query(ctx, sql, args...)
		if err != nil {
			return fmt.Errorf("select records: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				rec store.Record
				raw []byte
			)
			if err := rows.Scan(&rec.ID, &raw, &rec.CreatedAt, &rec.Version); err != nil {
				return fmt.Errorf("scan record: %w", err)
			}
			if rec.Fields, err = decodeFields(raw); err != nil {
				return err
			}
			res = append(res, rec)
		}

		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows error: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

// Delete удаляет записи в одной транзакции. Если хотя бы одна запись не найдена, ничего не удаляется.
func (r *PostgresStore) Delete(ctx context.Context, table string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return fmt.Errorf("%w: %s", store.ErrNotFound, id)
		}
	}

	return r.withRetry(ctx, func() error {
		return r.deleteTx(ctx, table, ids)
	})
}

func (r *PostgresStore) deleteTx(ctx context.Context, table string, ids []string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	cmdTag, err := tx.Exec(ctx,
		`DELETE FROM records WHERE table_name = $1 AND id = ANY($2::uuid[])`,
		table, ids,
	)
	if err != nil {
		return fmt.Errorf("delete records: %w", translateError(err))
	}

	if cmdTag.RowsAffected() != int64(len(ids)) {
		return fmt.Errorf("%w: deleted %d of %d", store.ErrNotFound, cmdTag.RowsAffected(), len(ids))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

func decodeFields(raw []byte) (map[string]any, error) {
	fields := map[string]any{}
	if len(raw) == 0 {
		return fields, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	return fields, nil
}
