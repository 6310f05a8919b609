package model

import (
	"time"

	"github.com/google/uuid"
)

type DrugStatus string

const (
	DrugStatusVerified   DrugStatus = "verified"
	DrugStatusExpired    DrugStatus = "expired"
	DrugStatusUnverified DrugStatus = "unverified"
)

// Verdict is the final classification of a verification, distinct from the
// raw status reported by whichever source produced the record.
type Verdict string

const (
	VerdictVerified   Verdict = "verified"
	VerdictExpired    Verdict = "expired"
	VerdictUnverified Verdict = "unverified"
	VerdictInvalid    Verdict = "invalid"
)

type Source string

const (
	SourceExternalAPI Source = "external_api"
	SourceIPFS        Source = "ipfs"
	SourceDatabase    Source = "database"
	SourceUnknown     Source = "unknown"
)

type VerificationMethod string

const (
	MethodCode  VerificationMethod = "code"
	MethodText  VerificationMethod = "text"
	MethodImage VerificationMethod = "image"
)

type DrugRecord struct {
	Name         string     `json:"name"`
	Manufacturer string     `json:"manufacturer"`
	Status       DrugStatus `json:"status"`
	ExpiryDate   string     `json:"expiryDate,omitempty"`
	BatchNumber  string     `json:"batchNumber,omitempty"`
}

type VerificationResult struct {
	Record        DrugRecord `json:"drugInfo"`
	Source        Source     `json:"source"`
	CID           string     `json:"ipfsCID,omitempty"`
	ExtractedCode string     `json:"extractedNafdacCode,omitempty"`
}

// Verification is the persisted audit record of a single verification call.
type Verification struct {
	ID         uuid.UUID          `json:"id"`
	UserID     string             `json:"userId"`
	NafdacCode string             `json:"nafdacCode,omitempty"`
	Method     VerificationMethod `json:"verificationMethod"`
	Record     DrugRecord         `json:"drugInfo"`
	Result     Verdict            `json:"result"`
	Source     Source             `json:"verificationSource"`
	CID        string             `json:"ipfsCID,omitempty"`
	CreatedAt  time.Time          `json:"createdAt"`
}

// IPFSDrugRecord is the write-once document pinned to the content-addressed
// store. The store supports no search, so ipfs_index maps NAFDAC codes to CIDs.
type IPFSDrugRecord struct {
	NafdacCode   string     `json:"nafdacCode"`
	Name         string     `json:"name"`
	Manufacturer string     `json:"manufacturer"`
	Status       DrugStatus `json:"status"`
	ExpiryDate   string     `json:"expiryDate"`
	BatchNumber  string     `json:"batchNumber"`
	RegisteredAt string     `json:"registeredAt"`
	RegisteredBy string     `json:"registeredBy,omitempty"`
}

type SOSStatus string

const (
	SOSStatusActive   SOSStatus = "active"
	SOSStatusResolved SOSStatus = "resolved"
)

type SOSSession struct {
	ID                 uuid.UUID  `json:"id"`
	UserID             string     `json:"userId"`
	Status             SOSStatus  `json:"status"`
	ActivatedAt        time.Time  `json:"activatedAt"`
	LastHeartbeat      *time.Time `json:"lastActivityCheck,omitempty"`
	EscalatedAt        *time.Time `json:"helpRequestedAt,omitempty"`
	ResolvedAt         *time.Time `json:"resolvedAt,omitempty"`
	ContactsNotified   []string   `json:"emergencyContactsNotified"`
	FacilitiesNotified []string   `json:"hospitalsNotified"`
}

type Location struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address,omitempty"`
}

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	Location  *Location `json:"location,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type EmergencyContact struct {
	ID           string `json:"id"`
	UserID       string `json:"userId"`
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Relationship string `json:"relationship,omitempty"`
}

type Hospital struct {
	PlaceID  string  `json:"placeId,omitempty"`
	Name     string  `json:"name"`
	Address  string  `json:"address"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Distance float64 `json:"distance,omitempty"`
	Rating   float64 `json:"rating,omitempty"`
}
