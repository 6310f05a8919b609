package http

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/Tani1964/DelphiX/internal/auth"
	"github.com/Tani1964/DelphiX/internal/clients"
	"github.com/Tani1964/DelphiX/internal/config"
	"github.com/Tani1964/DelphiX/internal/db"
	"github.com/Tani1964/DelphiX/internal/model"
	"github.com/Tani1964/DelphiX/internal/sos"
	"github.com/Tani1964/DelphiX/internal/verify"
)

const maxImageBytes = 8 << 20

type Server struct {
	cfg      config.Config
	store    *db.Store
	verifier *verify.Verifier
	monitor  *sos.Monitor
	places   *clients.PlacesClient
	redis    *redis.Client
	cacheTTL time.Duration
}

func NewServer(cfg config.Config, store *db.Store, verifier *verify.Verifier, monitor *sos.Monitor, places *clients.PlacesClient, redisClient *redis.Client) *Server {
	return &Server{
		cfg:      cfg,
		store:    store,
		verifier: verifier,
		monitor:  monitor,
		places:   places,
		redis:    redisClient,
		cacheTTL: cfg.VerifyCacheTTL,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.With(s.authMiddleware).Post("/drug/verify", s.handleVerifyDrug)
	r.With(s.authMiddleware).Get("/history", s.handleHistory)
	r.With(s.authMiddleware).Get("/history/{id}", s.handleHistoryByID)
	r.With(s.authMiddleware, s.adminMiddleware).Post("/admin/drugs/register", s.handleRegisterDrug)

	r.With(s.authMiddleware).Get("/hospitals/nearby", s.handleHospitalsNearby)

	r.With(s.authMiddleware).Post("/sos/activate", s.handleSOSActivate)
	r.With(s.authMiddleware).Post("/sos/check", s.handleSOSCheck)
	r.With(s.authMiddleware).Post("/sos/resolve", s.handleSOSResolve)
	r.With(s.authMiddleware).Get("/sos/status", s.handleSOSStatus)

	r.With(s.authMiddleware).Put("/users/me/location", s.handleUpdateLocation)
	r.With(s.authMiddleware).Get("/users/me/contacts", s.handleListContacts)
	r.With(s.authMiddleware).Put("/users/me/contacts", s.handleReplaceContacts)

	return r
}

// Auth

type claimsKey struct{}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}
		claims, err := auth.ParseToken(s.cfg.JWTSecret, token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_token")
			return
		}
		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) adminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFromContext(r.Context())
		if claims == nil || !claims.IsAdmin() {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func claimsFromContext(ctx context.Context) *auth.Claims {
	value := ctx.Value(claimsKey{})
	claims, _ := value.(*auth.Claims)
	return claims
}

// Drug verification

type verifyRequest struct {
	Method     string `json:"method"`
	NafdacCode string `json:"nafdacCode"`
	Text       string `json:"text"`
	Image      string `json:"image"`
}

type verifyResponse struct {
	model.Verification
	ExtractedCode string `json:"extractedNafdacCode,omitempty"`
}

func (s *Server) handleVerifyDrug(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	var req verifyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	var result model.VerificationResult
	method := model.VerificationMethod(req.Method)
	switch {
	case method == model.MethodCode && req.NafdacCode != "":
		result = s.verifyByCodeCached(r.Context(), strings.TrimSpace(req.NafdacCode))
	case method == model.MethodText && req.Text != "":
		result = s.verifier.VerifyByText(r.Context(), req.Text)
	case method == model.MethodImage && req.Image != "":
		image, err := base64.StdEncoding.DecodeString(req.Image)
		if err != nil || len(image) == 0 || len(image) > maxImageBytes {
			writeError(w, http.StatusBadRequest, "invalid_image")
			return
		}
		result = s.verifier.VerifyByImage(r.Context(), image)
	default:
		writeError(w, http.StatusBadRequest, "invalid_method")
		return
	}

	verdict := verify.Classify(result.Record)
	verificationsTotal.WithLabelValues(string(result.Source), string(verdict)).Inc()

	nafdacCode := ""
	if method == model.MethodCode {
		nafdacCode = strings.TrimSpace(req.NafdacCode)
	} else if result.ExtractedCode != "" {
		nafdacCode = result.ExtractedCode
	}

	verification := model.Verification{
		ID:         uuid.New(),
		UserID:     claims.UserID,
		NafdacCode: nafdacCode,
		Method:     method,
		Record:     result.Record,
		Result:     verdict,
		Source:     result.Source,
		CID:        result.CID,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.SaveVerification(r.Context(), verification); err != nil {
		log.Printf("save verification error: %v", err)
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusOK, verifyResponse{
		Verification:  verification,
		ExtractedCode: result.ExtractedCode,
	})
}

// verifyByCodeCached consults redis before the resolution chain and caches
// registry hits only; lower-priority sources stay uncached so a late
// registry entry takes over immediately.
func (s *Server) verifyByCodeCached(ctx context.Context, nafdacCode string) model.VerificationResult {
	cacheKey := "verify:code:" + nafdacCode
	if s.redis != nil {
		if cached, err := s.redis.Get(ctx, cacheKey).Result(); err == nil {
			var result model.VerificationResult
			if err := json.Unmarshal([]byte(cached), &result); err == nil {
				return result
			}
		}
	}

	result := s.verifier.VerifyByCode(ctx, nafdacCode)

	if s.redis != nil && result.Source == model.SourceExternalAPI {
		if payload, err := json.Marshal(result); err == nil {
			if err := s.redis.Set(ctx, cacheKey, payload, s.cacheTTL).Err(); err != nil {
				log.Printf("verify cache set error: %v", err)
			}
		}
	}
	return result
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 200 {
			writeError(w, http.StatusBadRequest, "invalid_limit")
			return
		}
		limit = parsed
	}

	verifications, err := s.store.VerificationsByUser(r.Context(), claims.UserID, limit)
	if err != nil {
		log.Printf("history query error: %v", err)
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if verifications == nil {
		verifications = []model.Verification{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"verifications": verifications})
}

func (s *Server) handleHistoryByID(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id")
		return
	}

	verification, err := s.store.VerificationByID(r.Context(), id)
	if err != nil {
		log.Printf("history lookup error: %v", err)
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if verification == nil {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	if verification.UserID != claims.UserID && !claims.IsAdmin() {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	writeJSON(w, http.StatusOK, verification)
}

type registerDrugRequest struct {
	NafdacCode   string `json:"nafdacCode"`
	Name         string `json:"name"`
	Manufacturer string `json:"manufacturer"`
	Status       string `json:"status"`
	ExpiryDate   string `json:"expiryDate"`
	BatchNumber  string `json:"batchNumber"`
}

func (s *Server) handleRegisterDrug(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	var req registerDrugRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.NafdacCode == "" {
		writeError(w, http.StatusBadRequest, "missing_nafdac_code")
		return
	}

	record := model.DrugRecord{
		Name:         req.Name,
		Manufacturer: req.Manufacturer,
		Status:       model.DrugStatus(req.Status),
		ExpiryDate:   req.ExpiryDate,
		BatchNumber:  req.BatchNumber,
	}
	cid, err := s.verifier.Register(r.Context(), req.NafdacCode, record, claims.UserID)
	if errors.Is(err, verify.ErrMissingFields) {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}
	if errors.Is(err, verify.ErrIPFSUnavailable) {
		writeError(w, http.StatusServiceUnavailable, "ipfs_not_configured")
		return
	}
	if err != nil {
		log.Printf("drug registration error: %v", err)
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"cid": cid})
}

// Hospitals

func (s *Server) handleHospitalsNearby(w http.ResponseWriter, r *http.Request) {
	lat, latErr := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lng, lngErr := strconv.ParseFloat(r.URL.Query().Get("lng"), 64)
	if latErr != nil || lngErr != nil {
		writeError(w, http.StatusBadRequest, "invalid_coordinates")
		return
	}

	radius := s.cfg.FacilitySearchRadius
	if raw := r.URL.Query().Get("radius"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 50000 {
			writeError(w, http.StatusBadRequest, "invalid_radius")
			return
		}
		radius = parsed
	}

	hospitals, err := s.places.Nearby(r.Context(), lat, lng, radius)
	if err != nil {
		log.Printf("hospital search error: %v", err)
		writeError(w, http.StatusBadGateway, "hospital_search_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"hospitals": hospitals})
}

// SOS

func (s *Server) handleSOSActivate(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	session, err := s.monitor.Activate(r.Context(), claims.UserID)
	if err != nil {
		log.Printf("sos activation error: %v", err)
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "sosEvent": session})
}

type sosCheckRequest struct {
	Heartbeat bool `json:"heartbeat"`
	Check     bool `json:"check"`
}

func (s *Server) handleSOSCheck(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	var req sosCheckRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	switch {
	case req.Heartbeat:
		if err := s.monitor.Heartbeat(r.Context(), claims.UserID); err != nil {
			log.Printf("sos heartbeat error: %v", err)
			writeError(w, http.StatusInternalServerError, "server_error")
			return
		}
	case req.Check:
		escalated, err := s.monitor.Sweep(r.Context())
		if err != nil {
			log.Printf("sos sweep error: %v", err)
			writeError(w, http.StatusInternalServerError, "server_error")
			return
		}
		sosEscalationsTotal.Add(float64(escalated))
	default:
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleSOSResolve(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	if err := s.monitor.Resolve(r.Context(), claims.UserID); err != nil {
		log.Printf("sos resolve error: %v", err)
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleSOSStatus(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	session, err := s.monitor.GetActive(r.Context(), claims.UserID)
	if err != nil {
		log.Printf("sos status error: %v", err)
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"active": session != nil, "sosEvent": session})
}

// Profile

type updateLocationRequest struct {
	Lat     *float64 `json:"lat"`
	Lng     *float64 `json:"lng"`
	Address string   `json:"address"`
}

func (s *Server) handleUpdateLocation(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	var req updateLocationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.Lat == nil || req.Lng == nil {
		writeError(w, http.StatusBadRequest, "invalid_coordinates")
		return
	}

	location := model.Location{Lat: *req.Lat, Lng: *req.Lng, Address: req.Address}
	if err := s.store.UpdateUserLocation(r.Context(), claims.UserID, location); err != nil {
		log.Printf("location update error: %v", err)
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleListContacts(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	contacts, err := s.store.EmergencyContacts(r.Context(), claims.UserID)
	if err != nil {
		log.Printf("contacts query error: %v", err)
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if contacts == nil {
		contacts = []model.EmergencyContact{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"contacts": contacts})
}

type replaceContactsRequest struct {
	Contacts []struct {
		Name         string `json:"name"`
		Phone        string `json:"phone"`
		Relationship string `json:"relationship"`
	} `json:"contacts"`
}

func (s *Server) handleReplaceContacts(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	var req replaceContactsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	contacts := make([]model.EmergencyContact, 0, len(req.Contacts))
	for _, c := range req.Contacts {
		if c.Name == "" || c.Phone == "" {
			writeError(w, http.StatusBadRequest, "missing_fields")
			return
		}
		contacts = append(contacts, model.EmergencyContact{
			Name:         c.Name,
			Phone:        c.Phone,
			Relationship: c.Relationship,
		})
	}

	if err := s.store.ReplaceEmergencyContacts(r.Context(), claims.UserID, contacts); err != nil {
		log.Printf("contacts update error: %v", err)
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Utilities

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
