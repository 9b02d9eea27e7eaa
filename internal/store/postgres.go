package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"fieldserve/internal/model"
)

// Postgres is the durable calendar store, selected by DATABASE_URL.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// MigrateDir applies *.sql files in lexical order. Dev helper; production
// migrations run out of band.
func (p *Postgres) MigrateDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	names := []string{}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, n := range names {
		b, err := os.ReadFile(filepath.Join(dir, n))
		if err != nil {
			return err
		}
		if _, err := p.db.Exec(string(b)); err != nil {
			return fmt.Errorf("migration %s: %w", n, err)
		}
	}
	return nil
}

func (p *Postgres) GetBusinessHours(ctx context.Context, businessID, date string) (*model.BusinessHours, error) {
	wd, err := weekdayOf(date)
	if err != nil {
		return nil, err
	}
	var h model.BusinessHours
	var open, close sql.NullString
	err = p.db.QueryRowContext(ctx,
		`SELECT is_open, open_time, close_time FROM business_hours WHERE business_id=$1 AND weekday=$2`,
		businessID, wd).Scan(&h.IsOpen, &open, &close)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	h.OpenTime = open.String
	h.CloseTime = close.String
	return &h, nil
}

func (p *Postgres) SetBusinessHours(ctx context.Context, businessID string, week map[string]model.BusinessHours) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for wd, h := range week {
		_, err = tx.ExecContext(ctx, `INSERT INTO business_hours (business_id, weekday, is_open, open_time, close_time)
			VALUES ($1,$2,$3,$4,$5)
			ON CONFLICT (business_id, weekday) DO UPDATE SET is_open=$3, open_time=$4, close_time=$5`,
			businessID, wd, h.IsOpen, nullIfEmpty(h.OpenTime), nullIfEmpty(h.CloseTime))
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (p *Postgres) ListOverrides(ctx context.Context, staffID, date string) ([]model.AvailabilityOverride, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT staff_id, start_date::text, end_date::text, type, slots FROM availability_overrides
		 WHERE staff_id=$1 AND start_date <= $2::date AND end_date >= $2::date`, staffID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.AvailabilityOverride{}
	for rows.Next() {
		var o model.AvailabilityOverride
		var slots []byte
		if err := rows.Scan(&o.StaffID, &o.StartDate, &o.EndDate, &o.Type, &slots); err != nil {
			return nil, err
		}
		if len(slots) > 0 {
			_ = json.Unmarshal(slots, &o.TimeSlots)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (p *Postgres) PutOverride(ctx context.Context, o model.AvailabilityOverride) error {
	var slots any
	if len(o.TimeSlots) > 0 {
		b, _ := json.Marshal(o.TimeSlots)
		slots = b
	}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO availability_overrides (staff_id, start_date, end_date, type, slots) VALUES ($1,$2::date,$3::date,$4,$5)`,
		o.StaffID, o.StartDate, o.EndDate, o.Type, slots)
	return err
}

const apptColumns = `id::text, business_id, scheduled_date::text, start_time, end_time, staff_ids, equipment_ids,
	status, service_lat, service_lon, weather_info, weather_rescheduled, original_date::text, cancel_reason`

func scanAppointment(sc interface{ Scan(...any) error }) (model.Appointment, error) {
	var a model.Appointment
	var staff, equip []byte
	var lat, lon sql.NullFloat64
	var weather []byte
	var orig, reason sql.NullString
	err := sc.Scan(&a.ID, &a.BusinessID, &a.ScheduledDate, &a.StartTime, &a.EndTime, &staff, &equip,
		&a.Status, &lat, &lon, &weather, &a.WeatherRescheduled, &orig, &reason)
	if err != nil {
		return model.Appointment{}, err
	}
	_ = json.Unmarshal(staff, &a.StaffIDs)
	_ = json.Unmarshal(equip, &a.EquipmentIDs)
	if lat.Valid && lon.Valid {
		a.ServiceLocation = &model.GeoPoint{Lat: lat.Float64, Lon: lon.Float64}
	}
	if len(weather) > 0 {
		_ = json.Unmarshal(weather, &a.WeatherInfo)
	}
	a.OriginalDate = orig.String
	a.CancelReason = reason.String
	return a, nil
}

func (p *Postgres) GetAppointment(ctx context.Context, businessID, id string) (model.Appointment, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+apptColumns+` FROM appointments WHERE business_id=$1 AND id=$2`, businessID, id)
	a, err := scanAppointment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Appointment{}, ErrNotFound
	}
	return a, err
}

func (p *Postgres) ListAppointments(ctx context.Context, businessID, date string, statusIn []model.AppointmentStatus, staffIDs []string, excludeID string) ([]model.Appointment, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+apptColumns+` FROM appointments
		 WHERE business_id=$1 AND scheduled_date=$2::date AND ($3='' OR id::text <> $3)
		 ORDER BY start_time, id`, businessID, date, excludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		if !statusMatch(a.Status, statusIn) {
			continue
		}
		if len(staffIDs) > 0 && !staffMatch(a.StaffIDs, staffIDs) {
			continue
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (p *Postgres) ListAppointmentsInRange(ctx context.Context, businessID, from, to string, statusIn []model.AppointmentStatus) ([]model.Appointment, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+apptColumns+` FROM appointments
		 WHERE business_id=$1 AND scheduled_date >= $2::date AND scheduled_date <= $3::date
		 ORDER BY scheduled_date, start_time, id`, businessID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		if statusMatch(a.Status, statusIn) {
			out = append(out, a)
		}
	}
	return out, rows.Err()
}

func (p *Postgres) CreateAppointment(ctx context.Context, appt model.Appointment) (model.Appointment, []model.Conflict, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Appointment{}, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	// Lock the day's rows for this business, then re-run the overlap
	// test inside the transaction. Concurrent writers serialize here.
	rows, err := tx.QueryContext(ctx,
		`SELECT id::text, start_time, end_time, staff_ids, equipment_ids FROM appointments
		 WHERE business_id=$1 AND scheduled_date=$2::date AND status IN ('scheduled','confirmed','in_progress')
		 FOR UPDATE`, appt.BusinessID, appt.ScheduledDate)
	if err != nil {
		return model.Appointment{}, nil, err
	}
	var conflicts []model.Conflict
	for rows.Next() {
		var id, start, end string
		var staff, equip []byte
		if err := rows.Scan(&id, &start, &end, &staff, &equip); err != nil {
			rows.Close()
			return model.Appointment{}, nil, err
		}
		if !(appt.StartTime < end && appt.EndTime > start) {
			continue
		}
		var staffIDs, equipIDs []string
		_ = json.Unmarshal(staff, &staffIDs)
		_ = json.Unmarshal(equip, &equipIDs)
		for _, sid := range appt.StaffIDs {
			if contains(staffIDs, sid) {
				conflicts = append(conflicts, model.Conflict{
					Type: model.ConflictStaffDoubleBooked, EntityType: "staff", EntityID: sid,
					Details: fmt.Sprintf("booked %s-%s on appointment %s", start, end, id),
				})
			}
		}
		for _, eid := range appt.EquipmentIDs {
			if contains(equipIDs, eid) {
				conflicts = append(conflicts, model.Conflict{
					Type: model.ConflictEquipmentInUse, EntityType: "equipment", EntityID: eid,
					Details: fmt.Sprintf("in use %s-%s on appointment %s", start, end, id),
				})
			}
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return model.Appointment{}, nil, err
	}
	if len(conflicts) > 0 {
		return model.Appointment{}, conflicts, nil
	}

	if appt.ID == "" {
		appt.ID = uuid.New().String()
	}
	if appt.Status == "" {
		appt.Status = model.StatusScheduled
	}
	staff, _ := json.Marshal(appt.StaffIDs)
	equip, _ := json.Marshal(appt.EquipmentIDs)
	var lat, lon any
	if appt.ServiceLocation != nil {
		lat, lon = appt.ServiceLocation.Lat, appt.ServiceLocation.Lon
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO appointments (id, business_id, scheduled_date, start_time, end_time, staff_ids, equipment_ids, status, service_lat, service_lon, created_at)
		 VALUES ($1,$2,$3::date,$4,$5,$6,$7,$8,$9,$10,$11)`,
		appt.ID, appt.BusinessID, appt.ScheduledDate, appt.StartTime, appt.EndTime, staff, equip, appt.Status, lat, lon, time.Now().UTC())
	if err != nil {
		return model.Appointment{}, nil, err
	}
	if err := tx.Commit(); err != nil {
		return model.Appointment{}, nil, err
	}
	return appt, nil, nil
}

func (p *Postgres) UpdateAppointmentStatus(ctx context.Context, businessID, id string, status model.AppointmentStatus, patch model.AppointmentPatch) (model.Appointment, error) {
	var weather any
	if patch.WeatherInfo != nil {
		b, _ := json.Marshal(patch.WeatherInfo)
		weather = b
	}
	var rescheduled any
	if patch.WeatherRescheduled != nil {
		rescheduled = *patch.WeatherRescheduled
	}
	res, err := p.db.ExecContext(ctx,
		`UPDATE appointments SET status=$3,
			scheduled_date = COALESCE(NULLIF($4,'')::date, scheduled_date),
			start_time     = COALESCE(NULLIF($5,''), start_time),
			end_time       = COALESCE(NULLIF($6,''), end_time),
			weather_info   = COALESCE($7, weather_info),
			weather_rescheduled = COALESCE($8, weather_rescheduled),
			original_date  = COALESCE(NULLIF($9,''), original_date),
			cancel_reason  = COALESCE(NULLIF($10,''), cancel_reason)
		 WHERE business_id=$1 AND id=$2`,
		businessID, id, status, patch.ScheduledDate, patch.StartTime, patch.EndTime,
		weather, rescheduled, patch.OriginalDate, patch.CancelReason)
	if err != nil {
		return model.Appointment{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Appointment{}, ErrNotFound
	}
	return p.GetAppointment(ctx, businessID, id)
}

func (p *Postgres) GetWeatherThresholds(ctx context.Context, businessID string) (model.WeatherThresholds, error) {
	var t model.WeatherThresholds
	err := p.db.QueryRowContext(ctx,
		`SELECT rain_probability_pct, min_temperature_f, max_temperature_f, max_wind_speed_mph, enabled
		 FROM weather_thresholds WHERE business_id=$1`, businessID).
		Scan(&t.RainProbabilityPercent, &t.MinTemperatureF, &t.MaxTemperatureF, &t.MaxWindSpeedMPH, &t.Enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return model.WeatherThresholds{}, ErrNotFound
	}
	return t, err
}

func (p *Postgres) SaveWeatherThresholds(ctx context.Context, businessID string, t model.WeatherThresholds) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO weather_thresholds (business_id, rain_probability_pct, min_temperature_f, max_temperature_f, max_wind_speed_mph, enabled)
		 VALUES ($1,$2,$3,$4,$5,$6)
		 ON CONFLICT (business_id) DO UPDATE SET rain_probability_pct=$2, min_temperature_f=$3, max_temperature_f=$4, max_wind_speed_mph=$5, enabled=$6`,
		businessID, t.RainProbabilityPercent, t.MinTemperatureF, t.MaxTemperatureF, t.MaxWindSpeedMPH, t.Enabled)
	return err
}

func (p *Postgres) ListBusinessIDs(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT DISTINCT business_id FROM business_hours ORDER BY business_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
