package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"aircraftdata/internal/errs"
	"aircraftdata/pkg/adsb"
)

// UpsertResult reports what Upsert did, so the ingestion worker can
// decide whether to write through to the live-state cache and publish
// an event (both skipped when the incoming row lost the priority
// decision and nothing changed).
type UpsertResult struct {
	Applied bool
	Reason  string
}

// Upsert applies the priority/staleness decision tree from the store's
// contract:
//
//  1. no existing row -> insert
//  2. incoming priority better (lower) -> replace unconditionally
//  3. equal priority -> replace iff incoming last_contact >= existing
//  4. incoming priority worse (higher) -> replace only if the existing
//     row is older than cfg.StalenessThreshold, or incoming last_contact
//     is newer than existing by more than cfg.GraceWindow
//
// Every accepted upsert also appends a history row unless skipHistory is
// set, used by the CONUS scanner to avoid a 1Hz history flood.
func (s *Store) Upsert(ctx context.Context, state adsb.AircraftState, skipHistory bool) (UpsertResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return UpsertResult{}, errs.New(errs.StoreTransient, true, fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback()

	var existingPriority int
	var existingLastContact int64
	err = tx.QueryRowContext(ctx,
		`SELECT source_priority, last_contact FROM aircraft_states WHERE icao24 = $1 FOR UPDATE`,
		state.ICAO24,
	).Scan(&existingPriority, &existingLastContact)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		if err := s.insert(ctx, tx, state); err != nil {
			return UpsertResult{}, err
		}
		if !skipHistory {
			if err := s.appendHistory(ctx, tx, state); err != nil {
				return UpsertResult{}, err
			}
		}
		if err := tx.Commit(); err != nil {
			return UpsertResult{}, errs.New(errs.StoreTransient, true, fmt.Errorf("commit insert: %w", err))
		}
		return UpsertResult{Applied: true, Reason: "no existing row"}, nil

	case err != nil:
		return UpsertResult{}, errs.New(errs.StoreTransient, true, fmt.Errorf("lookup existing row: %w", err))
	}

	apply, reason := decideReplace(state.SourcePriority, state.LastContact, existingPriority, existingLastContact, s.cfg)
	if !apply {
		return UpsertResult{Applied: false, Reason: reason}, nil
	}

	if err := s.replace(ctx, tx, state); err != nil {
		return UpsertResult{}, err
	}
	if !skipHistory {
		if err := s.appendHistory(ctx, tx, state); err != nil {
			return UpsertResult{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return UpsertResult{}, errs.New(errs.StoreTransient, true, fmt.Errorf("commit replace: %w", err))
	}
	return UpsertResult{Applied: true, Reason: reason}, nil
}

func decideReplace(pNew int, tNew int64, pOld int, tOld int64, cfg Config) (bool, string) {
	switch {
	case pNew < pOld:
		return true, "higher priority source"
	case pNew == pOld:
		if tNew >= tOld {
			return true, "same priority, newer contact"
		}
		return false, "same priority, stale contact"
	default:
		age := time.Since(time.Unix(tOld, 0))
		if age > cfg.StalenessThreshold {
			return true, "existing row stale, lower priority refresh accepted"
		}
		if time.Unix(tNew, 0).Sub(time.Unix(tOld, 0)) > cfg.GraceWindow {
			return true, "incoming contact beyond grace window"
		}
		return false, "lower priority, existing row still fresh"
	}
}

const upsertColumns = `
	icao24, callsign, latitude, longitude, baro_altitude, geo_altitude,
	velocity, true_track, vertical_rate, on_ground, squawk,
	emergency_status, category, aircraft_type, aircraft_description,
	data_source, source_priority, received_from, time_position,
	last_contact, ingestion_timestamp, updated_at`

func (s *Store) insert(ctx context.Context, tx *sql.Tx, st adsb.AircraftState) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO aircraft_states (`+upsertColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)`,
		insertArgs(st)...,
	)
	if err != nil {
		return errs.New(errs.StoreTransient, true, fmt.Errorf("insert aircraft_states: %w", err))
	}
	return nil
}

func (s *Store) replace(ctx context.Context, tx *sql.Tx, st adsb.AircraftState) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE aircraft_states SET
			callsign = $2, latitude = $3, longitude = $4, baro_altitude = $5,
			geo_altitude = $6, velocity = $7, true_track = $8, vertical_rate = $9,
			on_ground = $10, squawk = $11, emergency_status = $12, category = $13,
			aircraft_type = $14, aircraft_description = $15, data_source = $16,
			source_priority = $17, received_from = $18, time_position = $19,
			last_contact = $20, ingestion_timestamp = $21, updated_at = $22
		WHERE icao24 = $1`,
		insertArgs(st)...,
	)
	if err != nil {
		return errs.New(errs.StoreTransient, true, fmt.Errorf("update aircraft_states: %w", err))
	}
	return nil
}

func insertArgs(st adsb.AircraftState) []any {
	return []any{
		st.ICAO24, st.Callsign, st.Latitude, st.Longitude, st.BaroAltitude, st.GeoAltitude,
		st.Velocity, st.TrueTrack, st.VerticalRate, st.OnGround, st.Squawk,
		st.EmergencyStatus, st.Category, st.AircraftType, st.AircraftDesc,
		string(st.DataSource), st.SourcePriority, st.ReceivedFrom, st.TimePosition,
		st.LastContact, st.IngestionTimestamp, time.Now(),
	}
}

func (s *Store) appendHistory(ctx context.Context, tx *sql.Tx, st adsb.AircraftState) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO aircraft_state_history (
			icao24, latitude, longitude, baro_altitude, geo_altitude,
			velocity, true_track, vertical_rate, on_ground, data_source,
			source_priority, last_contact
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (icao24, created_at) DO NOTHING`,
		st.ICAO24, st.Latitude, st.Longitude, st.BaroAltitude, st.GeoAltitude,
		st.Velocity, st.TrueTrack, st.VerticalRate, st.OnGround, string(st.DataSource),
		st.SourcePriority, st.LastContact,
	)
	if err != nil {
		// A (icao24, created_at) collision never reaches here: ON CONFLICT
		// DO NOTHING skips it. Any other failure is returned as a
		// non-retryable StorePermanent error.
		return errs.New(errs.StorePermanent, false, fmt.Errorf("append history: %w", err))
	}
	return nil
}

// GetByICAO24 returns the latest row for an aircraft, or nil if untracked.
func (s *Store) GetByICAO24(ctx context.Context, icao24 string) (*adsb.AircraftState, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM aircraft_states WHERE icao24 = $1`, icao24)
	st, err := scanState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.New(errs.StoreTransient, true, err)
	}
	return st, nil
}

const selectColumns = `
	icao24, callsign, latitude, longitude, baro_altitude, geo_altitude,
	velocity, true_track, vertical_rate, on_ground, squawk,
	emergency_status, category, aircraft_type, aircraft_description,
	data_source, source_priority, received_from, time_position,
	last_contact, ingestion_timestamp`

// GetByCallsign returns the latest row matching callsign, or nil if none.
// Used by /planes/{identifier} when the identifier isn't a valid icao24.
func (s *Store) GetByCallsign(ctx context.Context, callsign string) (*adsb.AircraftState, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM aircraft_states WHERE callsign = $1 ORDER BY updated_at DESC LIMIT 1`,
		callsign,
	)
	st, err := scanState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.New(errs.StoreTransient, true, err)
	}
	return st, nil
}

// FindInBounds returns every row inside the rectangle with last_contact
// at or after minLastContact. A spatial index on (latitude, longitude)
// backs this when the planner chooses it; otherwise Postgres falls back
// to a sequential scan with the same WHERE clause.
func (s *Store) FindInBounds(ctx context.Context, latMin, lonMin, latMax, lonMax float64, minLastContact int64) ([]adsb.AircraftState, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+selectColumns+` FROM aircraft_states
		WHERE latitude BETWEEN $1 AND $2
		  AND longitude BETWEEN $3 AND $4
		  AND last_contact >= $5`,
		latMin, latMax, lonMin, lonMax, minLastContact,
	)
	if err != nil {
		return nil, errs.New(errs.StoreTransient, true, fmt.Errorf("find_in_bounds query: %w", err))
	}
	defer rows.Close()

	var out []adsb.AircraftState
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, errs.New(errs.StoreTransient, true, fmt.Errorf("scan row: %w", err))
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanState(row rowScanner) (*adsb.AircraftState, error) {
	var st adsb.AircraftState
	var dataSource string
	err := row.Scan(
		&st.ICAO24, &st.Callsign, &st.Latitude, &st.Longitude, &st.BaroAltitude, &st.GeoAltitude,
		&st.Velocity, &st.TrueTrack, &st.VerticalRate, &st.OnGround, &st.Squawk,
		&st.EmergencyStatus, &st.Category, &st.AircraftType, &st.AircraftDesc,
		&dataSource, &st.SourcePriority, &st.ReceivedFrom, &st.TimePosition,
		&st.LastContact, &st.IngestionTimestamp,
	)
	if err != nil {
		return nil, err
	}
	st.DataSource = adsb.DataSourceKind(dataSource)
	return &st, nil
}

// GetPositionHistory returns history rows for icao24 within [from, to],
// ordered oldest-first, used by the /history endpoint's GeoJSON output.
func (s *Store) GetPositionHistory(ctx context.Context, icao24 string, from, to time.Time) ([]adsb.AircraftState, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT icao24, latitude, longitude, baro_altitude, geo_altitude,
		       velocity, true_track, vertical_rate, on_ground, data_source,
		       source_priority, last_contact
		FROM aircraft_state_history
		WHERE icao24 = $1 AND created_at BETWEEN $2 AND $3
		ORDER BY created_at ASC`,
		icao24, from, to,
	)
	if err != nil {
		return nil, errs.New(errs.StoreTransient, true, fmt.Errorf("history query: %w", err))
	}
	defer rows.Close()

	var out []adsb.AircraftState
	for rows.Next() {
		var st adsb.AircraftState
		var dataSource string
		if err := rows.Scan(
			&st.ICAO24, &st.Latitude, &st.Longitude, &st.BaroAltitude, &st.GeoAltitude,
			&st.Velocity, &st.TrueTrack, &st.VerticalRate, &st.OnGround, &dataSource,
			&st.SourcePriority, &st.LastContact,
		); err != nil {
			return nil, errs.New(errs.StoreTransient, true, fmt.Errorf("scan history row: %w", err))
		}
		st.DataSource = adsb.DataSourceKind(dataSource)
		out = append(out, st)
	}
	return out, rows.Err()
}
