package verify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Tani1964/DelphiX/internal/model"
)

type fakeRegistry struct {
	records map[string]model.DrugRecord
	err     error
	calls   int
}

func (f *fakeRegistry) Lookup(_ context.Context, code string) (*model.DrugRecord, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if record, ok := f.records[code]; ok {
		return &record, nil
	}
	return nil, nil
}

type fakeContentStore struct {
	configured bool
	records    map[string]model.IPFSDrugRecord
	getErr     error
	putCID     string
	putErr     error
	getCalls   int
}

func (f *fakeContentStore) Configured() bool { return f.configured }

func (f *fakeContentStore) Get(_ context.Context, cid string) (*model.IPFSDrugRecord, error) {
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	if record, ok := f.records[cid]; ok {
		return &record, nil
	}
	return nil, nil
}

func (f *fakeContentStore) Put(_ context.Context, _ model.IPFSDrugRecord) (string, error) {
	if f.putErr != nil {
		return "", f.putErr
	}
	return f.putCID, nil
}

type fakeIndex struct {
	cids  map[string]string
	err   error
	saved map[string]string
}

func (f *fakeIndex) LatestCID(_ context.Context, code string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.cids[code], nil
}

func (f *fakeIndex) SaveCID(_ context.Context, code, cid string) error {
	if f.saved == nil {
		f.saved = map[string]string{}
	}
	f.saved[code] = cid
	return nil
}

type fakeHistory struct {
	records map[string]model.DrugRecord
	err     error
}

func (f *fakeHistory) LatestVerified(_ context.Context, code string) (*model.DrugRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	if record, ok := f.records[code]; ok {
		return &record, nil
	}
	return nil, nil
}

type fakeOCR struct {
	text string
	err  error
}

func (f *fakeOCR) ExtractText(_ context.Context, _ []byte) (string, error) {
	return f.text, f.err
}

func newTestVerifier(registry *fakeRegistry, content *fakeContentStore, index *fakeIndex, history *fakeHistory, ocr *fakeOCR) *Verifier {
	if registry == nil {
		registry = &fakeRegistry{}
	}
	if content == nil {
		content = &fakeContentStore{}
	}
	if index == nil {
		index = &fakeIndex{}
	}
	if history == nil {
		history = &fakeHistory{}
	}
	if ocr == nil {
		ocr = &fakeOCR{}
	}
	return New(registry, content, index, history, ocr, time.Second)
}

func TestVerifyByCodeExternalAPIWins(t *testing.T) {
	registry := &fakeRegistry{records: map[string]model.DrugRecord{
		"04-1234": {Name: "Paracetamol 500mg", Manufacturer: "Emzor Pharmaceuticals", Status: model.DrugStatusVerified, ExpiryDate: "2099-12-31"},
	}}
	history := &fakeHistory{records: map[string]model.DrugRecord{
		"04-1234": {Name: "Stale copy", Status: model.DrugStatusVerified},
	}}
	verifier := newTestVerifier(registry, nil, nil, history, nil)

	result := verifier.VerifyByCode(context.Background(), "04-1234")
	if result.Source != model.SourceExternalAPI {
		t.Fatalf("expected source external_api, got %s", result.Source)
	}
	if result.Record.Name != "Paracetamol 500mg" {
		t.Fatalf("expected registry record, got %s", result.Record.Name)
	}
	if got := Classify(result.Record); got != model.VerdictVerified {
		t.Fatalf("expected verified verdict, got %s", got)
	}
}

func TestVerifyByCodeIPFSFallback(t *testing.T) {
	content := &fakeContentStore{
		configured: true,
		records: map[string]model.IPFSDrugRecord{
			"bafytest": {NafdacCode: "05-5678", Name: "Amoxicillin 250mg", Manufacturer: "Fidson Healthcare", Status: model.DrugStatusVerified},
		},
	}
	index := &fakeIndex{cids: map[string]string{"05-5678": "bafytest"}}
	verifier := newTestVerifier(nil, content, index, nil, nil)

	result := verifier.VerifyByCode(context.Background(), "05-5678")
	if result.Source != model.SourceIPFS {
		t.Fatalf("expected source ipfs, got %s", result.Source)
	}
	if result.CID != "bafytest" {
		t.Fatalf("expected cid recorded, got %q", result.CID)
	}
	if result.Record.Manufacturer != "Fidson Healthcare" {
		t.Fatalf("unexpected record %+v", result.Record)
	}
}

func TestVerifyByCodeIPFSSkippedWithoutIndexEntry(t *testing.T) {
	content := &fakeContentStore{configured: true}
	index := &fakeIndex{cids: map[string]string{}}
	verifier := newTestVerifier(nil, content, index, nil, nil)

	result := verifier.VerifyByCode(context.Background(), "09-0000")
	if content.getCalls != 0 {
		t.Fatalf("expected no gateway fetch without index entry, got %d", content.getCalls)
	}
	if result.Source != model.SourceUnknown {
		t.Fatalf("expected source unknown, got %s", result.Source)
	}
}

func TestVerifyByCodeDatabaseFallback(t *testing.T) {
	history := &fakeHistory{records: map[string]model.DrugRecord{
		"06-4321": {Name: "Ibuprofen 400mg", Manufacturer: "May & Baker", Status: model.DrugStatusVerified, ExpiryDate: "2099-01-01"},
	}}
	verifier := newTestVerifier(nil, nil, nil, history, nil)

	result := verifier.VerifyByCode(context.Background(), "06-4321")
	if result.Source != model.SourceDatabase {
		t.Fatalf("expected source database, got %s", result.Source)
	}
	if result.Record.Name != "Ibuprofen 400mg" {
		t.Fatalf("expected history record, got %s", result.Record.Name)
	}
}

func TestVerifyByCodeUnknownPlaceholder(t *testing.T) {
	verifier := newTestVerifier(nil, nil, nil, nil, nil)

	result := verifier.VerifyByCode(context.Background(), "99-9999")
	if result.Source != model.SourceUnknown {
		t.Fatalf("expected source unknown, got %s", result.Source)
	}
	if result.Record.Status != model.DrugStatusUnverified {
		t.Fatalf("expected unverified status, got %s", result.Record.Status)
	}
	if result.Record.Manufacturer != "Unknown Manufacturer" {
		t.Fatalf("expected generic manufacturer, got %s", result.Record.Manufacturer)
	}
	if result.Record.Name != "Drug 99-9999" {
		t.Fatalf("unexpected placeholder name %s", result.Record.Name)
	}
}

func TestVerifyByCodeAdapterErrorsAreMisses(t *testing.T) {
	registry := &fakeRegistry{err: errors.New("registry down")}
	content := &fakeContentStore{configured: true, getErr: errors.New("gateway timeout")}
	index := &fakeIndex{cids: map[string]string{"07-1111": "bafybroken"}}
	history := &fakeHistory{records: map[string]model.DrugRecord{
		"07-1111": {Name: "Chloroquine 250mg", Manufacturer: "Evans", Status: model.DrugStatusVerified},
	}}
	verifier := newTestVerifier(registry, content, index, history, nil)

	result := verifier.VerifyByCode(context.Background(), "07-1111")
	if result.Source != model.SourceDatabase {
		t.Fatalf("expected chain to fall through to database, got %s", result.Source)
	}
}

func TestVerifyByTextExtractsCode(t *testing.T) {
	registry := &fakeRegistry{records: map[string]model.DrugRecord{
		"04-1234": {Name: "Paracetamol 500mg", Manufacturer: "Emzor Pharmaceuticals", Status: model.DrugStatusVerified},
	}}
	verifier := newTestVerifier(registry, nil, nil, nil, nil)

	result := verifier.VerifyByText(context.Background(), "NAFDAC REG NO 04-1234 keep out of reach of children")
	if result.Source != model.SourceExternalAPI {
		t.Fatalf("expected delegation to code chain, got source %s", result.Source)
	}
	if registry.calls != 1 {
		t.Fatalf("expected one registry call, got %d", registry.calls)
	}
}

func TestVerifyByTextKnownTerm(t *testing.T) {
	verifier := newTestVerifier(nil, nil, nil, nil, nil)

	result := verifier.VerifyByText(context.Background(), "Is this Paracetamol safe?")
	if result.Source != model.SourceDatabase {
		t.Fatalf("expected source database, got %s", result.Source)
	}
	if result.Record.Manufacturer != "Emzor Pharmaceuticals" {
		t.Fatalf("expected known-term match, got %+v", result.Record)
	}
}

func TestVerifyByTextUnmatched(t *testing.T) {
	verifier := newTestVerifier(nil, nil, nil, nil, nil)

	result := verifier.VerifyByText(context.Background(), "mystery tonic")
	if result.Source != model.SourceDatabase {
		t.Fatalf("expected source database, got %s", result.Source)
	}
	if result.Record.Status != model.DrugStatusUnverified {
		t.Fatalf("expected unverified, got %s", result.Record.Status)
	}
}

func TestVerifyByImageExtractsCode(t *testing.T) {
	registry := &fakeRegistry{records: map[string]model.DrugRecord{
		"04-1234": {Name: "Paracetamol 500mg", Manufacturer: "Emzor Pharmaceuticals", Status: model.DrugStatusVerified},
	}}
	ocr := &fakeOCR{text: "PARACETAMOL\nNAFDAC 04-1234\nEXP 12/2025"}
	verifier := newTestVerifier(registry, nil, nil, nil, ocr)

	result := verifier.VerifyByImage(context.Background(), []byte("fake image"))
	if result.Source != model.SourceExternalAPI {
		t.Fatalf("expected source external_api, got %s", result.Source)
	}
	if result.ExtractedCode != "04-1234" {
		t.Fatalf("expected extracted code recorded, got %q", result.ExtractedCode)
	}
}

func TestVerifyByImageFallsBackToTextSearch(t *testing.T) {
	ocr := &fakeOCR{text: "AMOXICILLIN capsules BP"}
	verifier := newTestVerifier(nil, nil, nil, nil, ocr)

	result := verifier.VerifyByImage(context.Background(), []byte("fake image"))
	if result.Source != model.SourceDatabase {
		t.Fatalf("expected text-search fallback, got %s", result.Source)
	}
	if result.Record.Name != "Amoxicillin 250mg" {
		t.Fatalf("expected known-term match, got %s", result.Record.Name)
	}
}

func TestVerifyByImageOCRFailure(t *testing.T) {
	ocr := &fakeOCR{err: errors.New("vision api unreachable")}
	verifier := newTestVerifier(nil, nil, nil, nil, ocr)

	result := verifier.VerifyByImage(context.Background(), []byte("fake image"))
	if result.Source != model.SourceUnknown {
		t.Fatalf("expected source unknown on OCR failure, got %s", result.Source)
	}
	if result.Record.Status != model.DrugStatusUnverified {
		t.Fatalf("expected unverified placeholder, got %s", result.Record.Status)
	}
}

func TestRegisterValidation(t *testing.T) {
	verifier := newTestVerifier(nil, &fakeContentStore{configured: true, putCID: "bafynew"}, nil, nil, nil)

	if _, err := verifier.Register(context.Background(), "08-0001", model.DrugRecord{Name: "No maker"}, "admin-1"); !errors.Is(err, ErrMissingFields) {
		t.Fatalf("expected ErrMissingFields, got %v", err)
	}
}

func TestRegisterRequiresContentStore(t *testing.T) {
	verifier := newTestVerifier(nil, &fakeContentStore{configured: false}, nil, nil, nil)

	record := model.DrugRecord{Name: "Paracetamol", Manufacturer: "Emzor"}
	if _, err := verifier.Register(context.Background(), "08-0001", record, "admin-1"); !errors.Is(err, ErrIPFSUnavailable) {
		t.Fatalf("expected ErrIPFSUnavailable, got %v", err)
	}
}

func TestRegisterPinsAndIndexes(t *testing.T) {
	index := &fakeIndex{}
	verifier := newTestVerifier(nil, &fakeContentStore{configured: true, putCID: "bafynew"}, index, nil, nil)

	record := model.DrugRecord{Name: "Paracetamol", Manufacturer: "Emzor", Status: model.DrugStatusVerified}
	cid, err := verifier.Register(context.Background(), "08-0001", record, "admin-1")
	if err != nil {
		t.Fatalf("register error: %v", err)
	}
	if cid != "bafynew" {
		t.Fatalf("expected cid bafynew, got %s", cid)
	}
	if index.saved["08-0001"] != "bafynew" {
		t.Fatalf("expected index entry saved, got %+v", index.saved)
	}
}
