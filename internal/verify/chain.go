package verify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/Tani1964/DelphiX/internal/model"
)

// NAFDAC registration numbers are two digits, a hyphen, four digits.
var nafdacPattern = regexp.MustCompile(`\b\d{2}-\d{4}\b`)

var (
	ErrMissingFields   = errors.New("drug name and manufacturer are required")
	ErrIPFSUnavailable = errors.New("content store is not configured")
)

// Registry is the authoritative drug registry (EMDEX). A nil record with a
// nil error means the code is unknown to the registry.
type Registry interface {
	Lookup(ctx context.Context, nafdacCode string) (*model.DrugRecord, error)
}

// ContentStore is the write-once IPFS-backed store. It supports no search,
// so lookups go through the Index.
type ContentStore interface {
	Configured() bool
	Get(ctx context.Context, cid string) (*model.IPFSDrugRecord, error)
	Put(ctx context.Context, record model.IPFSDrugRecord) (string, error)
}

// Index maps NAFDAC codes to content addresses.
type Index interface {
	LatestCID(ctx context.Context, nafdacCode string) (string, error)
	SaveCID(ctx context.Context, nafdacCode, cid string) error
}

// History reads previously stored verifications, restricted to records whose
// verdict was verified, most recent first.
type History interface {
	LatestVerified(ctx context.Context, nafdacCode string) (*model.DrugRecord, error)
}

// OCR extracts text from an image.
type OCR interface {
	ExtractText(ctx context.Context, image []byte) (string, error)
}

type Verifier struct {
	registry Registry
	content  ContentStore
	index    Index
	history  History
	ocr      OCR
	timeout  time.Duration
}

func New(registry Registry, content ContentStore, index Index, history History, ocr OCR, timeout time.Duration) *Verifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Verifier{
		registry: registry,
		content:  content,
		index:    index,
		history:  history,
		ocr:      ocr,
		timeout:  timeout,
	}
}

// VerifyByCode resolves a NAFDAC code against progressively less
// authoritative sources: external registry, then IPFS, then local history.
// Adapter errors and timeouts count as misses; the chain never aborts early
// on a failed source. The first hit wins and is tagged with its origin.
func (v *Verifier) VerifyByCode(ctx context.Context, nafdacCode string) model.VerificationResult {
	if record := v.lookupRegistry(ctx, nafdacCode); record != nil {
		return model.VerificationResult{Record: *record, Source: model.SourceExternalAPI}
	}

	if record, cid := v.lookupIPFS(ctx, nafdacCode); record != nil {
		return model.VerificationResult{Record: *record, Source: model.SourceIPFS, CID: cid}
	}

	if record := v.lookupHistory(ctx, nafdacCode); record != nil {
		return model.VerificationResult{Record: *record, Source: model.SourceDatabase}
	}

	return model.VerificationResult{
		Record: placeholderRecord(fmt.Sprintf("Drug %s", nafdacCode)),
		Source: model.SourceUnknown,
	}
}

// VerifyByText resolves free text: a NAFDAC pattern in the text delegates to
// the code chain, otherwise the text is matched against known drug names.
func (v *Verifier) VerifyByText(ctx context.Context, text string) model.VerificationResult {
	if code := nafdacPattern.FindString(text); code != "" {
		return v.VerifyByCode(ctx, code)
	}

	lower := strings.ToLower(text)
	for term, record := range knownDrugs {
		if strings.Contains(lower, term) {
			return model.VerificationResult{Record: record, Source: model.SourceDatabase}
		}
	}

	return model.VerificationResult{
		Record: placeholderRecord(text),
		Source: model.SourceDatabase,
	}
}

// VerifyByImage runs OCR first. A NAFDAC code in the recognized text
// delegates to the code chain and is recorded as extracted; otherwise the
// recognized text goes through the text search. OCR failure or empty output
// yields the unverified placeholder directly.
func (v *Verifier) VerifyByImage(ctx context.Context, image []byte) model.VerificationResult {
	callCtx, cancel := context.WithTimeout(ctx, v.timeout)
	text, err := v.ocr.ExtractText(callCtx, image)
	cancel()
	if err != nil || text == "" {
		if err != nil {
			log.Printf("ocr extraction error: %v", err)
		}
		return model.VerificationResult{
			Record: placeholderRecord("Unknown Drug"),
			Source: model.SourceUnknown,
		}
	}

	if code := nafdacPattern.FindString(text); code != "" {
		result := v.VerifyByCode(ctx, code)
		result.ExtractedCode = code
		return result
	}

	return v.VerifyByText(ctx, text)
}

// Register pins a record to the content store and indexes its CID. Admin
// only; never invoked by the read path.
func (v *Verifier) Register(ctx context.Context, nafdacCode string, record model.DrugRecord, userID string) (string, error) {
	if record.Name == "" || record.Manufacturer == "" {
		return "", ErrMissingFields
	}
	if !v.content.Configured() {
		return "", ErrIPFSUnavailable
	}

	ipfsRecord := model.IPFSDrugRecord{
		NafdacCode:   nafdacCode,
		Name:         record.Name,
		Manufacturer: record.Manufacturer,
		Status:       record.Status,
		ExpiryDate:   record.ExpiryDate,
		BatchNumber:  record.BatchNumber,
		RegisteredAt: time.Now().UTC().Format(time.RFC3339),
		RegisteredBy: userID,
	}
	if ipfsRecord.Status == "" {
		ipfsRecord.Status = model.DrugStatusUnverified
	}
	if ipfsRecord.BatchNumber == "" {
		ipfsRecord.BatchNumber = fmt.Sprintf("BATCH-%s", nafdacCode)
	}

	cid, err := v.content.Put(ctx, ipfsRecord)
	if err != nil {
		return "", err
	}
	if err := v.index.SaveCID(ctx, nafdacCode, cid); err != nil {
		return "", err
	}
	return cid, nil
}

func (v *Verifier) lookupRegistry(ctx context.Context, nafdacCode string) *model.DrugRecord {
	callCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()
	record, err := v.registry.Lookup(callCtx, nafdacCode)
	if err != nil {
		log.Printf("registry lookup error for %s: %v", nafdacCode, err)
		return nil
	}
	return record
}

func (v *Verifier) lookupIPFS(ctx context.Context, nafdacCode string) (*model.DrugRecord, string) {
	if !v.content.Configured() {
		return nil, ""
	}

	cid, err := v.index.LatestCID(ctx, nafdacCode)
	if err != nil {
		log.Printf("ipfs index lookup error for %s: %v", nafdacCode, err)
		return nil, ""
	}
	if cid == "" {
		// No index entry means no pinned record; skip the gateway entirely.
		return nil, ""
	}

	callCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()
	ipfsRecord, err := v.content.Get(callCtx, cid)
	if err != nil {
		log.Printf("ipfs fetch error for %s (%s): %v", nafdacCode, cid, err)
		return nil, ""
	}
	if ipfsRecord == nil {
		return nil, ""
	}
	record := model.DrugRecord{
		Name:         ipfsRecord.Name,
		Manufacturer: ipfsRecord.Manufacturer,
		Status:       ipfsRecord.Status,
		ExpiryDate:   ipfsRecord.ExpiryDate,
		BatchNumber:  ipfsRecord.BatchNumber,
	}
	return &record, cid
}

func (v *Verifier) lookupHistory(ctx context.Context, nafdacCode string) *model.DrugRecord {
	callCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()
	record, err := v.history.LatestVerified(callCtx, nafdacCode)
	if err != nil {
		log.Printf("history lookup error for %s: %v", nafdacCode, err)
		return nil
	}
	return record
}

func placeholderRecord(name string) model.DrugRecord {
	return model.DrugRecord{
		Name:         name,
		Manufacturer: "Unknown Manufacturer",
		Status:       model.DrugStatusUnverified,
	}
}

// knownDrugs backs the text search until the registry's name-search API is
// wired in.
var knownDrugs = map[string]model.DrugRecord{
	"paracetamol": {
		Name:         "Paracetamol 500mg",
		Manufacturer: "Emzor Pharmaceuticals",
		Status:       model.DrugStatusVerified,
		ExpiryDate:   "2025-12-31",
		BatchNumber:  "BATCH-2024-001",
	},
	"amoxicillin": {
		Name:         "Amoxicillin 250mg",
		Manufacturer: "Fidson Healthcare",
		Status:       model.DrugStatusVerified,
		ExpiryDate:   "2024-06-30",
		BatchNumber:  "BATCH-2023-045",
	},
}
