// internal/recipient/directory.go
package recipient

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"school-notify/internal/common/errors"
	"school-notify/internal/models"

	"github.com/lib/pq"
)

// Directory is the read-only lookup surface into the user and enrollment
// record stores. The engine never writes through it.
type Directory interface {
	LookupUsersByRole(ctx context.Context, role string) ([]string, error)
	LookupUsersByClass(ctx context.Context, classID string, sections []string) ([]string, error)
	LookupUsersByAttribute(ctx context.Context, filter models.AttributeFilter, asOf time.Time) ([]string, error)
}

// ContactDirectory resolves addressing and channel preferences for dispatch.
type ContactDirectory interface {
	LookupContacts(ctx context.Context, userIDs []string) (map[string]models.Contact, error)
}

// PostgresDirectory implements both directory interfaces over the school
// administration schema.
type PostgresDirectory struct {
	db *sql.DB
}

func NewPostgresDirectory(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

func (d *PostgresDirectory) LookupUsersByRole(ctx context.Context, role string) ([]string, error) {
	const query = `SELECT id FROM users WHERE role = $1 AND active`

	rows, err := d.db.QueryContext(ctx, query, role)
	if err != nil {
		return nil, errors.NewDirectoryUnavailableError(err)
	}
	defer rows.Close()

	return scanIDs(rows)
}

func (d *PostgresDirectory) LookupUsersByClass(ctx context.Context, classID string, sections []string) ([]string, error) {
	var rows *sql.Rows
	var err error

	if len(sections) == 0 {
		const query = `SELECT DISTINCT user_id FROM enrollments WHERE class_id = $1`
		rows, err = d.db.QueryContext(ctx, query, classID)
	} else {
		const query = `SELECT DISTINCT user_id FROM enrollments WHERE class_id = $1 AND section = ANY($2)`
		rows, err = d.db.QueryContext(ctx, query, classID, pq.Array(sections))
	}
	if err != nil {
		return nil, errors.NewDirectoryUnavailableError(err)
	}
	defer rows.Close()

	return scanIDs(rows)
}

func (d *PostgresDirectory) LookupUsersByAttribute(ctx context.Context, filter models.AttributeFilter, asOf time.Time) ([]string, error) {
	var rows *sql.Rows
	var err error

	switch filter.Attribute {
	case "fee_status":
		// fee status is categorical, only equality makes sense
		if filter.Operator != "" && filter.Operator != "eq" {
			return nil, errors.NewRecipientSpecInvalidError(
				fmt.Sprintf("operator %s not valid for fee_status", filter.Operator))
		}
		const query = `SELECT DISTINCT parent_id FROM fee_records WHERE status = $1`
		rows, err = d.db.QueryContext(ctx, query, filter.Value)

	case "attendance_percent":
		op, opErr := comparisonOp(filter.Operator)
		if opErr != nil {
			return nil, opErr
		}
		query := fmt.Sprintf(`
			SELECT student_id FROM attendance_summary
			WHERE as_of <= $1
			GROUP BY student_id
			HAVING 100.0 * sum(present_days) / NULLIF(sum(total_days), 0) %s $2`, op)
		rows, err = d.db.QueryContext(ctx, query, asOf, filter.Value)

	default:
		return nil, errors.NewRecipientSpecInvalidError(
			fmt.Sprintf("unknown attribute filter: %s", filter.Attribute))
	}
	if err != nil {
		return nil, errors.NewDirectoryUnavailableError(err)
	}
	defer rows.Close()

	return scanIDs(rows)
}

func (d *PostgresDirectory) LookupContacts(ctx context.Context, userIDs []string) (map[string]models.Contact, error) {
	const query = `
		SELECT id, COALESCE(email, ''), COALESCE(phone, ''),
		       COALESCE(device_token, ''), COALESCE(platform, ''),
		       COALESCE(channel_preferences, '{}')
		FROM users WHERE id = ANY($1)`

	rows, err := d.db.QueryContext(ctx, query, pq.Array(userIDs))
	if err != nil {
		return nil, errors.NewDirectoryUnavailableError(err)
	}
	defer rows.Close()

	out := make(map[string]models.Contact, len(userIDs))
	for rows.Next() {
		var c models.Contact
		var prefs []string
		if err := rows.Scan(&c.UserID, &c.Email, &c.Phone, &c.DeviceToken, &c.Platform, pq.Array(&prefs)); err != nil {
			return nil, errors.NewDirectoryUnavailableError(err)
		}
		for _, p := range prefs {
			c.Preferences = append(c.Preferences, models.Channel(p))
		}
		out[c.UserID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDirectoryUnavailableError(err)
	}

	return out, nil
}

func comparisonOp(operator string) (string, error) {
	switch operator {
	case "lt":
		return "<", nil
	case "lte":
		return "<=", nil
	case "gt":
		return ">", nil
	case "gte":
		return ">=", nil
	case "eq", "":
		return "=", nil
	}
	return "", errors.NewRecipientSpecInvalidError(fmt.Sprintf("unknown operator: %s", operator))
}

func scanIDs(rows *sql.Rows) ([]string, error) {
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.NewDirectoryUnavailableError(err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDirectoryUnavailableError(err)
	}
	return ids, nil
}
