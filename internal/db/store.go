package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Tani1964/DelphiX/internal/model"
)

// Store is the single persistence layer: verification history, the IPFS
// index, SOS sessions, and user profiles.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Verification history

func (s *Store) SaveVerification(ctx context.Context, v model.Verification) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO drug_verifications
			(id, user_id, nafdac_code, method, drug_name, manufacturer, status, expiry_date, batch_number, result, source, ipfs_cid, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, v.ID, v.UserID, v.NafdacCode, v.Method, v.Record.Name, v.Record.Manufacturer, v.Record.Status,
		v.Record.ExpiryDate, v.Record.BatchNumber, v.Result, v.Source, v.CID, v.CreatedAt)
	return err
}

func (s *Store) VerificationsByUser(ctx context.Context, userID string, limit int) ([]model.Verification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id::text, nafdac_code, method, drug_name, manufacturer, status, expiry_date, batch_number, result, source, ipfs_cid, created_at
		FROM drug_verifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var verifications []model.Verification
	for rows.Next() {
		v, err := scanVerification(rows)
		if err != nil {
			return nil, err
		}
		verifications = append(verifications, v)
	}
	return verifications, rows.Err()
}

func (s *Store) VerificationByID(ctx context.Context, id uuid.UUID) (*model.Verification, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id::text, nafdac_code, method, drug_name, manufacturer, status, expiry_date, batch_number, result, source, ipfs_cid, created_at
		FROM drug_verifications
		WHERE id = $1
	`, id)
	v, err := scanVerification(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// LatestVerified returns the most recent record for the code whose verdict
// was verified, used as the last resolution source before the placeholder.
func (s *Store) LatestVerified(ctx context.Context, nafdacCode string) (*model.DrugRecord, error) {
	var record model.DrugRecord
	row := s.pool.QueryRow(ctx, `
		SELECT COALESCE(drug_name, ''), COALESCE(manufacturer, ''), COALESCE(status, ''), COALESCE(expiry_date, ''), COALESCE(batch_number, '')
		FROM drug_verifications
		WHERE nafdac_code = $1 AND result = 'verified'
		ORDER BY created_at DESC
		LIMIT 1
	`, nafdacCode)
	err := row.Scan(&record.Name, &record.Manufacturer, &record.Status, &record.ExpiryDate, &record.BatchNumber)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// IPFS index

func (s *Store) LatestCID(ctx context.Context, nafdacCode string) (string, error) {
	var cid string
	row := s.pool.QueryRow(ctx, `
		SELECT ipfs_cid
		FROM ipfs_index
		WHERE nafdac_code = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, nafdacCode)
	err := row.Scan(&cid)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return cid, nil
}

func (s *Store) SaveCID(ctx context.Context, nafdacCode, cid string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ipfs_index (id, nafdac_code, ipfs_cid, created_at)
		VALUES ($1, $2, $3, $4)
	`, uuid.New(), nafdacCode, cid, time.Now().UTC())
	return err
}

// SOS sessions

func (s *Store) ActiveSession(ctx context.Context, userID string) (*model.SOSSession, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id::text, status, activated_at, last_heartbeat, escalated_at, resolved_at, contacts_notified, facilities_notified
		FROM sos_sessions
		WHERE user_id = $1 AND status = 'active'
	`, userID)
	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// CreateIfNoneActive inserts the session unless the user already has an
// active one. The partial unique index on (user_id) WHERE status = 'active'
// makes the existing-session check atomic under concurrent activations.
func (s *Store) CreateIfNoneActive(ctx context.Context, session model.SOSSession) (*model.SOSSession, error) {
	for attempt := 0; attempt < 2; attempt++ {
		tag, err := s.pool.Exec(ctx, `
			INSERT INTO sos_sessions
				(id, user_id, status, activated_at, last_heartbeat, contacts_notified, facilities_notified)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (user_id) WHERE status = 'active' DO NOTHING
		`, session.ID, session.UserID, session.Status, session.ActivatedAt, session.LastHeartbeat,
			session.ContactsNotified, session.FacilitiesNotified)
		if err != nil {
			return nil, err
		}
		if tag.RowsAffected() == 1 {
			created := session
			return &created, nil
		}
		existing, err := s.ActiveSession(ctx, session.UserID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
		// The conflicting session was resolved between insert and read.
	}
	return nil, errors.New("could not create sos session")
}

func (s *Store) TouchHeartbeat(ctx context.Context, userID string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE sos_sessions
		SET last_heartbeat = $1
		WHERE user_id = $2 AND status = 'active'
	`, at, userID)
	return err
}

func (s *Store) ResolveActive(ctx context.Context, userID string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE sos_sessions
		SET status = 'resolved', resolved_at = $1
		WHERE user_id = $2 AND status = 'active'
	`, at, userID)
	return err
}

func (s *Store) StaleActiveSessions(ctx context.Context, olderThan time.Time) ([]model.SOSSession, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id::text, status, activated_at, last_heartbeat, escalated_at, resolved_at, contacts_notified, facilities_notified
		FROM sos_sessions
		WHERE status = 'active' AND (last_heartbeat IS NULL OR last_heartbeat < $1)
	`, olderThan)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.SOSSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// MarkEscalated touches only the escalation columns so a concurrent
// heartbeat (last_heartbeat) cannot be lost; last write wins per column.
func (s *Store) MarkEscalated(ctx context.Context, sessionID uuid.UUID, at time.Time, contacts, facilities []string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE sos_sessions
		SET escalated_at = $1, contacts_notified = $2, facilities_notified = $3
		WHERE id = $4
	`, at, contacts, facilities, sessionID)
	return err
}

// Users

func (s *Store) UserByID(ctx context.Context, userID string) (*model.User, error) {
	var (
		user    model.User
		lat     *float64
		lng     *float64
		address *string
	)
	row := s.pool.QueryRow(ctx, `
		SELECT id::text, email, name, role, lat, lng, address, created_at, updated_at
		FROM users
		WHERE id = $1
	`, userID)
	err := row.Scan(&user.ID, &user.Email, &user.Name, &user.Role, &lat, &lng, &address, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if lat != nil && lng != nil {
		user.Location = &model.Location{Lat: *lat, Lng: *lng}
		if address != nil {
			user.Location.Address = *address
		}
	}
	return &user, nil
}

func (s *Store) UpdateUserLocation(ctx context.Context, userID string, location model.Location) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE users
		SET lat = $1, lng = $2, address = $3, updated_at = $4
		WHERE id = $5
	`, location.Lat, location.Lng, location.Address, time.Now().UTC(), userID)
	return err
}

func (s *Store) EmergencyContacts(ctx context.Context, userID string) ([]model.EmergencyContact, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, user_id::text, name, phone, relationship
		FROM emergency_contacts
		WHERE user_id = $1
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contacts []model.EmergencyContact
	for rows.Next() {
		var (
			contact      model.EmergencyContact
			relationship *string
		)
		if err := rows.Scan(&contact.ID, &contact.UserID, &contact.Name, &contact.Phone, &relationship); err != nil {
			return nil, err
		}
		if relationship != nil {
			contact.Relationship = *relationship
		}
		contacts = append(contacts, contact)
	}
	return contacts, rows.Err()
}

func (s *Store) ReplaceEmergencyContacts(ctx context.Context, userID string, contacts []model.EmergencyContact) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM emergency_contacts WHERE user_id = $1`, userID); err != nil {
		return err
	}
	for _, contact := range contacts {
		if _, err := tx.Exec(ctx, `
			INSERT INTO emergency_contacts (id, user_id, name, phone, relationship, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, uuid.New(), userID, contact.Name, contact.Phone, contact.Relationship, time.Now().UTC()); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// Scan helpers

func scanVerification(row pgx.Row) (model.Verification, error) {
	var (
		v          model.Verification
		nafdacCode *string
		cid        *string
		expiry     *string
		batch      *string
		name       *string
		maker      *string
		status     *string
	)
	err := row.Scan(&v.ID, &v.UserID, &nafdacCode, &v.Method, &name, &maker, &status, &expiry, &batch, &v.Result, &v.Source, &cid, &v.CreatedAt)
	if err != nil {
		return model.Verification{}, err
	}
	if nafdacCode != nil {
		v.NafdacCode = *nafdacCode
	}
	if cid != nil {
		v.CID = *cid
	}
	if name != nil {
		v.Record.Name = *name
	}
	if maker != nil {
		v.Record.Manufacturer = *maker
	}
	if status != nil {
		v.Record.Status = model.DrugStatus(*status)
	}
	if expiry != nil {
		v.Record.ExpiryDate = *expiry
	}
	if batch != nil {
		v.Record.BatchNumber = *batch
	}
	return v, nil
}

func scanSession(row pgx.Row) (model.SOSSession, error) {
	var session model.SOSSession
	err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.Status,
		&session.ActivatedAt,
		&session.LastHeartbeat,
		&session.EscalatedAt,
		&session.ResolvedAt,
		&session.ContactsNotified,
		&session.FacilitiesNotified,
	)
	return session, err
}
