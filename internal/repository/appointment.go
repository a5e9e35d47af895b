package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lakestack/hometrace/internal/models"
)

var ErrAppointmentNotFound = errors.New("appointment not found")

type AppointmentRepository struct {
	db *pgxpool.Pool
}

func NewAppointmentRepository(db *pgxpool.Pool) *AppointmentRepository {
	return &AppointmentRepository{db: db}
}

const appointmentColumns = `
	a.id, a.property_id, a.agent_id, a.first_name, a.last_name, a.email, a.phone,
	a.agent_scheduled_at, a.status, a.message, a.created_at,
	p.id, p.street, p.suburb, p.state, p.postcode
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAppointment(row rowScanner) (*models.Appointment, error) {
	var (
		a                               models.Appointment
		propID                          *uuid.UUID
		street, suburb, state, postcode *string
	)
	err := row.Scan(
		&a.ID, &a.PropertyID, &a.AgentID, &a.FirstName, &a.LastName, &a.Email, &a.Phone,
		&a.AgentScheduledAt, &a.Status, &a.Message, &a.CreatedAt,
		&propID, &street, &suburb, &state, &postcode,
	)
	if err != nil {
		return nil, err
	}
	if propID != nil && street != nil {
		a.Property = &models.PropertySnapshot{
			ID: *propID,
			Address: models.Address{
				Street:   *street,
				Suburb:   deref(suburb),
				State:    deref(state),
				Postcode: deref(postcode),
			},
		}
	}
	return &a, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// buildWhere turns a filter into a WHERE clause and its parameters
func buildWhere(f models.AppointmentFilter) (string, []interface{}) {
	where := " WHERE 1=1"
	params := []interface{}{}
	paramCount := 0

	if f.AgentID != nil {
		paramCount++
		where += fmt.Sprintf(" AND a.agent_id = $%d", paramCount)
		params = append(params, *f.AgentID)
	}

	if f.PropertyID != nil {
		paramCount++
		where += fmt.Sprintf(" AND a.property_id = $%d", paramCount)
		params = append(params, *f.PropertyID)
	}

	if f.Status != "" && f.Status != "all" {
		paramCount++
		where += fmt.Sprintf(" AND a.status = $%d", paramCount)
		params = append(params, f.Status)
	}

	if search := strings.TrimSpace(f.Search); search != "" {
		paramCount++
		n := paramCount
		where += fmt.Sprintf(` AND (
			a.first_name ILIKE $%[1]d OR a.last_name ILIKE $%[1]d OR
			a.email ILIKE $%[1]d OR a.phone ILIKE $%[1]d OR
			p.street ILIKE $%[1]d OR p.suburb ILIKE $%[1]d OR
			p.state ILIKE $%[1]d OR p.postcode ILIKE $%[1]d OR
			p.description ILIKE $%[1]d)`, n)
		params = append(params, "%"+escapeLike(search)+"%")
	}

	// A range matches either any candidate date or the agent-scheduled time
	if f.StartDate != nil && f.EndDate != nil {
		where += fmt.Sprintf(` AND (
			EXISTS (SELECT 1 FROM appointment_preferred_dates d
			        WHERE d.appointment_id = a.id AND d.date BETWEEN $%d::date AND $%d::date)
			OR a.agent_scheduled_at BETWEEN $%d AND $%d)`,
			paramCount+1, paramCount+2, paramCount+3, paramCount+4)
		params = append(params, *f.StartDate, *f.EndDate, *f.StartDate, *f.EndDate)
		paramCount += 4
	}

	return where, params
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// List returns appointments matching the filter, newest first, together
// with the total match count. Limit 0 returns every match.
func (r *AppointmentRepository) List(ctx context.Context, f models.AppointmentFilter) ([]models.Appointment, int, error) {
	where, params := buildWhere(f)
	from := ` FROM appointments a LEFT JOIN properties p ON a.property_id = p.id`

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*)`+from+where, params...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count appointments: %w", err)
	}

	query := `SELECT` + appointmentColumns + from + where + ` ORDER BY a.created_at DESC`
	if f.Limit > 0 {
		page := f.Page
		if page < 1 {
			page = 1
		}
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.Limit, (page-1)*f.Limit)
	}

	rows, err := r.db.Query(ctx, query, params...)
	if err != nil {
		return nil, 0, fmt.Errorf("query appointments: %w", err)
	}
	defer rows.Close()

	appointments := []models.Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan appointment: %w", err)
		}
		appointments = append(appointments, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	if err := r.attachPreferredDates(ctx, r.db, appointments); err != nil {
		return nil, 0, err
	}
	return appointments, total, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *AppointmentRepository) attachPreferredDates(ctx context.Context, q querier, appointments []models.Appointment) error {
	if len(appointments) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(appointments))
	index := make(map[uuid.UUID]int, len(appointments))
	for i, a := range appointments {
		ids[i] = a.ID
		index[a.ID] = i
		appointments[i].PreferredDates = []models.PreferredDate{}
	}

	rows, err := q.Query(ctx, `
		SELECT appointment_id, to_char(date, 'YYYY-MM-DD'), time
		FROM appointment_preferred_dates
		WHERE appointment_id = ANY($1)
		ORDER BY appointment_id, position
	`, ids)
	if err != nil {
		return fmt.Errorf("query preferred dates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		var pd models.PreferredDate
		if err := rows.Scan(&id, &pd.Date, &pd.Time); err != nil {
			return fmt.Errorf("scan preferred date: %w", err)
		}
		i := index[id]
		appointments[i].PreferredDates = append(appointments[i].PreferredDates, pd)
	}
	return rows.Err()
}

// GetByID retrieves a single appointment with its property snapshot
func (r *AppointmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Appointment, error) {
	row := r.db.QueryRow(ctx, `SELECT`+appointmentColumns+`
		FROM appointments a LEFT JOIN properties p ON a.property_id = p.id
		WHERE a.id = $1`, id)
	a, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	list := []models.Appointment{*a}
	if err := r.attachPreferredDates(ctx, r.db, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

// Create inserts a new appointment and its preferred dates
func (r *AppointmentRepository) Create(ctx context.Context, a *models.Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = models.StatusPending
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO appointments (id, property_id, agent_id, first_name, last_name, email, phone,
		                          agent_scheduled_at, status, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		RETURNING created_at
	`, a.ID, a.PropertyID, a.AgentID, a.FirstName, a.LastName, a.Email, a.Phone,
		a.AgentScheduledAt, a.Status, a.Message).Scan(&a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}

	if err := replacePreferredDates(ctx, tx, a.ID, a.PreferredDates); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func replacePreferredDates(ctx context.Context, tx pgx.Tx, id uuid.UUID, dates []models.PreferredDate) error {
	if _, err := tx.Exec(ctx, `DELETE FROM appointment_preferred_dates WHERE appointment_id = $1`, id); err != nil {
		return fmt.Errorf("clear preferred dates: %w", err)
	}
	for i, pd := range dates {
		day, err := time.Parse(models.DateLayout, pd.Date)
		if err != nil {
			return fmt.Errorf("preferred date %d: %w", i+1, err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO appointment_preferred_dates (appointment_id, position, date, time)
			VALUES ($1, $2, $3, $4)
		`, id, i, day, pd.Time)
		if err != nil {
			return fmt.Errorf("insert preferred date %d: %w", i+1, err)
		}
	}
	return nil
}

// Update loads the appointment under a row lock, lets mutate change it and
// writes every mutable column back. Returns the appointment as it was before
// the change and as it is after.
func (r *AppointmentRepository) Update(ctx context.Context, id uuid.UUID, mutate func(*models.Appointment) error) (before, after *models.Appointment, err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT`+appointmentColumns+`
		FROM appointments a LEFT JOIN properties p ON a.property_id = p.id
		WHERE a.id = $1
		FOR UPDATE OF a`, id)
	current, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrAppointmentNotFound
		}
		return nil, nil, err
	}
	list := []models.Appointment{*current}
	if err := r.attachPreferredDates(ctx, tx, list); err != nil {
		return nil, nil, err
	}

	snapshot := list[0]
	snapshot.PreferredDates = append([]models.PreferredDate(nil), list[0].PreferredDates...)
	updated := list[0]
	if err := mutate(&updated); err != nil {
		return nil, nil, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE appointments
		SET status = $1,
			message = $2,
			agent_scheduled_at = $3
		WHERE id = $4
	`, updated.Status, updated.Message, updated.AgentScheduledAt, id)
	if err != nil {
		return nil, nil, fmt.Errorf("update appointment: %w", err)
	}

	if err := replacePreferredDates(ctx, tx, id, updated.PreferredDates); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit: %w", err)
	}
	return &snapshot, &updated, nil
}

// Delete removes an appointment
func (r *AppointmentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

// Counts returns the total and pending appointment counts, limited to one
// agent when agentID is set
func (r *AppointmentRepository) Counts(ctx context.Context, agentID *uuid.UUID) (total, pending int, err error) {
	err = r.db.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE status = $2)
		FROM appointments
		WHERE $1::uuid IS NULL OR agent_id = $1
	`, agentID, models.StatusPending).Scan(&total, &pending)
	return total, pending, err
}

// ListMissingPreferredDates returns ids of appointments that have no
// candidate dates, a state left behind by older data
func (r *AppointmentRepository) ListMissingPreferredDates(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `
		SELECT a.id FROM appointments a
		WHERE NOT EXISTS (SELECT 1 FROM appointment_preferred_dates d WHERE d.appointment_id = a.id)
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetPreferredDates replaces the candidate dates without touching other fields
func (r *AppointmentRepository) SetPreferredDates(ctx context.Context, id uuid.UUID, dates []models.PreferredDate) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := replacePreferredDates(ctx, tx, id, dates); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
