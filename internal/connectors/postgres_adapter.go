package connectors

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// identPattern restricts table and column names to plain SQL identifiers.
// Entity types arrive from the API and column names from the remote side, so
// neither may be spliced into a statement unchecked.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func checkIdent(kind, name string) error {
	if !identPattern.MatchString(name) {
		return fmt.Errorf("invalid %s %q", kind, name)
	}
	return nil
}

// PostgresAdapter treats a SQL database as a platform side. Each entity type
// maps to a table whose primary key column is "id".
type PostgresAdapter struct {
	name string
	db   *sql.DB
}

// NewPostgresAdapter opens a connection pool against the given DSN.
func NewPostgresAdapter(name, dsn string) (Adapter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return &PostgresAdapter{name: name, db: db}, nil
}

func (a *PostgresAdapter) Name() string {
	return a.name
}

func (a *PostgresAdapter) Fetch(ctx context.Context, entityType string, filter Filter, since *time.Time) ([]Entity, error) {
	if err := checkIdent("entity type", entityType); err != nil {
		return nil, err
	}

	var query strings.Builder
	var args []interface{}

	query.WriteString(fmt.Sprintf("SELECT * FROM %s", entityType))

	conditions := []string{}
	for field, value := range filter {
		if err := checkIdent("filter field", field); err != nil {
			return nil, err
		}
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf("%s = $%d", field, len(args)))
	}
	if since != nil {
		args = append(args, since.UTC())
		conditions = append(conditions, fmt.Sprintf("updated_at > $%d", len(args)))
	}
	if len(conditions) > 0 {
		query.WriteString(" WHERE ")
		query.WriteString(strings.Join(conditions, " AND "))
	}
	query.WriteString(" ORDER BY updated_at")

	rows, err := a.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, a.classify(fmt.Errorf("failed to fetch %s: %w", entityType, err))
	}
	defer rows.Close()

	return rowsToEntities(rows)
}

func (a *PostgresAdapter) Update(ctx context.Context, entityType string, entity Entity) (Entity, error) {
	if err := checkIdent("entity type", entityType); err != nil {
		return nil, err
	}

	id := entity.ID()
	if id == "" {
		return nil, fmt.Errorf("entity of type %s has no id", entityType)
	}

	columns := []string{}
	values := []interface{}{}
	placeholders := []string{}
	updateExprs := []string{}

	for column, value := range entity {
		if err := checkIdent("column", column); err != nil {
			return nil, err
		}
		columns = append(columns, column)
		values = append(values, value)
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(values)))
		if column != "id" {
			updateExprs = append(updateExprs, fmt.Sprintf("%s = $%d", column, len(values)))
		}
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (id) DO UPDATE SET %s",
		entityType,
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(updateExprs, ", "),
	)

	if _, err := a.db.ExecContext(ctx, query, values...); err != nil {
		return nil, a.classify(fmt.Errorf("failed to upsert %s %s: %w", entityType, id, err))
	}

	return entity, nil
}

// classify wraps connection-level failures as transient so the manager
// retries them; constraint and syntax errors stay permanent.
func (a *PostgresAdapter) classify(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, sql.ErrConnDone) {
		return Transient(err)
	}
	return err
}

func rowsToEntities(rows *sql.Rows) ([]Entity, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := []Entity{}

	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		row := Entity{}
		for i, col := range columns {
			val := values[i]
			if b, ok := val.([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = val
			}
		}

		result = append(result, row)
	}

	return result, rows.Err()
}
