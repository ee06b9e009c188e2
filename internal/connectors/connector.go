package connectors

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Entity is an opaque record from either platform. Every entity carries an
// "id" and optionally an "updated_at".
type Entity map[string]interface{}

// Filter is the opaque key/value bag forwarded to the platform when fetching.
type Filter map[string]interface{}

// ID returns the entity identifier as a string, tolerating numeric ids.
func (e Entity) ID() string {
	switch v := e["id"].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatInt(int64(v), 10)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// UpdatedAt parses the entity's updated_at field. The second return is false
// when the field is absent or unparseable.
func (e Entity) UpdatedAt() (time.Time, bool) {
	switch v := e["updated_at"].(type) {
	case time.Time:
		return v, true
	case string:
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t, true
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

// Adapter is one side of a synchronization pair. Fetch returns the entities
// of a type matching the filter, optionally restricted to those updated after
// since. Update writes an entity back and returns the stored version.
type Adapter interface {
	Name() string
	Fetch(ctx context.Context, entityType string, filter Filter, since *time.Time) ([]Entity, error)
	Update(ctx context.Context, entityType string, entity Entity) (Entity, error)
}

// TransientError marks an adapter failure worth retrying (network trouble,
// timeouts, 5xx-equivalent responses). Everything else is permanent and fails
// the entity immediately.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient adapter error: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
