package sos

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/Tani1964/DelphiX/internal/model"
)

// SessionStore persists SOS sessions. CreateIfNoneActive must be atomic at
// the store boundary so concurrent activations for one user converge on a
// single active session.
type SessionStore interface {
	ActiveSession(ctx context.Context, userID string) (*model.SOSSession, error)
	CreateIfNoneActive(ctx context.Context, session model.SOSSession) (*model.SOSSession, error)
	TouchHeartbeat(ctx context.Context, userID string, at time.Time) error
	ResolveActive(ctx context.Context, userID string, at time.Time) error
	StaleActiveSessions(ctx context.Context, olderThan time.Time) ([]model.SOSSession, error)
	MarkEscalated(ctx context.Context, sessionID uuid.UUID, at time.Time, contacts, facilities []string) error
}

// UserDirectory reads the session owner's profile and emergency contacts.
type UserDirectory interface {
	UserByID(ctx context.Context, userID string) (*model.User, error)
	EmergencyContacts(ctx context.Context, userID string) ([]model.EmergencyContact, error)
}

// FacilityLocator finds candidate facilities near a point, closest first.
type FacilityLocator interface {
	Nearby(ctx context.Context, lat, lng float64, radius int) ([]model.Hospital, error)
}

// Notifier dispatches best-effort alerts. A failed send is reported through
// the returned error but never treated as fatal by the monitor.
type Notifier interface {
	NotifyContact(ctx context.Context, contact model.EmergencyContact, session model.SOSSession) error
	NotifyFacility(ctx context.Context, facility model.Hospital, session model.SOSSession) error
}

const facilityNotifyLimit = 3

type Monitor struct {
	store      SessionStore
	users      UserDirectory
	facilities FacilityLocator
	notifier   Notifier
	threshold  time.Duration
	radius     int
}

func NewMonitor(store SessionStore, users UserDirectory, facilities FacilityLocator, notifier Notifier, threshold time.Duration, radius int) *Monitor {
	if threshold <= 0 {
		threshold = 2 * time.Minute
	}
	if radius <= 0 {
		radius = 5000
	}
	return &Monitor{
		store:      store,
		users:      users,
		facilities: facilities,
		notifier:   notifier,
		threshold:  threshold,
		radius:     radius,
	}
}

// Activate returns the existing active session for the user if one exists,
// otherwise creates a fresh one. Idempotent.
func (m *Monitor) Activate(ctx context.Context, userID string) (*model.SOSSession, error) {
	now := time.Now().UTC()
	session := model.SOSSession{
		ID:                 uuid.New(),
		UserID:             userID,
		Status:             model.SOSStatusActive,
		ActivatedAt:        now,
		LastHeartbeat:      &now,
		ContactsNotified:   []string{},
		FacilitiesNotified: []string{},
	}
	return m.store.CreateIfNoneActive(ctx, session)
}

// Heartbeat advances the active session's last-activity timestamp. A missing
// active session is a no-op, not an error.
func (m *Monitor) Heartbeat(ctx context.Context, userID string) error {
	return m.store.TouchHeartbeat(ctx, userID, time.Now().UTC())
}

// Resolve transitions the user's active session to resolved. No-op without
// an active session.
func (m *Monitor) Resolve(ctx context.Context, userID string) error {
	return m.store.ResolveActive(ctx, userID, time.Now().UTC())
}

func (m *Monitor) GetActive(ctx context.Context, userID string) (*model.SOSSession, error) {
	return m.store.ActiveSession(ctx, userID)
}

// Sweep escalates every active session whose last heartbeat is older than
// the inactivity threshold or missing. Escalation failures are isolated per
// session; a session already escalated but still inactive is escalated again
// on the next pass. Returns the number of sessions escalated.
func (m *Monitor) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-m.threshold)
	sessions, err := m.store.StaleActiveSessions(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	escalated := 0
	for _, session := range sessions {
		if err := m.escalate(ctx, session); err != nil {
			log.Printf("sos escalation failed for session %s: %v", session.ID, err)
			continue
		}
		escalated++
	}
	return escalated, nil
}

func (m *Monitor) escalate(ctx context.Context, session model.SOSSession) error {
	user, err := m.users.UserByID(ctx, session.UserID)
	if err != nil {
		return err
	}
	if user == nil {
		return nil
	}

	notifiedContacts := []string{}
	contacts, err := m.users.EmergencyContacts(ctx, session.UserID)
	if err != nil {
		log.Printf("sos contact lookup error for user %s: %v", session.UserID, err)
	}
	for _, contact := range contacts {
		if err := m.notifier.NotifyContact(ctx, contact, session); err != nil {
			log.Printf("sos contact notify error for %s: %v", contact.Phone, err)
		}
		// Record the attempt even when the send failed.
		id := contact.ID
		if id == "" {
			id = contact.Name
		}
		notifiedContacts = append(notifiedContacts, id)
	}

	notifiedFacilities := []string{}
	if user.Location != nil {
		hospitals, err := m.facilities.Nearby(ctx, user.Location.Lat, user.Location.Lng, m.radius)
		if err != nil {
			log.Printf("sos facility lookup error for user %s: %v", session.UserID, err)
		} else {
			if len(hospitals) > facilityNotifyLimit {
				hospitals = hospitals[:facilityNotifyLimit]
			}
			for _, hospital := range hospitals {
				if err := m.notifier.NotifyFacility(ctx, hospital, session); err != nil {
					log.Printf("sos facility notify error for %s: %v", hospital.Name, err)
				}
				id := hospital.PlaceID
				if id == "" {
					id = hospital.Name
				}
				notifiedFacilities = append(notifiedFacilities, id)
			}
		}
	}

	return m.store.MarkEscalated(ctx, session.ID, time.Now().UTC(), notifiedContacts, notifiedFacilities)
}
