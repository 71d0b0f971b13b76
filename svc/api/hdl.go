package api

import (
	"encoding/json"
	"io"
	"linkdump/cfg"
	"linkdump/pkg/domain"
	"linkdump/pkg/expiry"
	"linkdump/svc/ident"
	"linkdump/svc/lim"
	"linkdump/svc/svc"
	"linkdump/svc/util"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/hlog"
	"golang.org/x/text/unicode/norm"
)

type Hdl struct {
	dumps    *svc.Dumps
	hasher   *ident.Hasher
	resolver *ident.Resolver
	cfg      *cfg.Cfg
}
type CreateReq struct {
	Text   string `json:"text"`
	Expiry string `json:"expiry,omitempty"`
}
type CreateResp struct {
	Slug      string     `json:"slug"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at"`
}
type DumpResp struct {
	Slug             string       `json:"slug"`
	Items            domain.Items `json:"items"`
	CreatedAt        time.Time    `json:"created_at"`
	ExpiresAt        *time.Time   `json:"expires_at"`
	RemainingSeconds *int64       `json:"remaining_seconds,omitempty"`
}

func (h *Hdl) CreateDump(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	contentType := r.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType != "application/json" {
		log.Warn().
			Str("content_type", contentType).
			Str("request_id", requestID).
			Msg("invalid Content-Type header")
		w.WriteHeader(http.StatusUnsupportedMediaType)
		json.NewEncoder(w).Encode(map[string]string{
			"error":      "expected Content-Type: application/json",
			"request_id": requestID,
		})
		return
	}

	limit := h.cfg.MaxDumpSize * 2
	if clHeader := r.Header.Get("Content-Length"); clHeader != "" {
		cl, err := strconv.ParseInt(clHeader, 10, 64)
		if err != nil || cl < 0 {
			log.Warn().Str("content_length", clHeader).Msg("invalid Content-Length")
			writeErr(w, domain.ErrInvalidRequest, requestID)
			return
		}
		if cl > limit {
			log.Warn().Int64("content_length", cl).Msg("Content-Length exceeds maximum")
			writeErr(w, domain.ErrDumpTooLarge, requestID)
			return
		}
		if ce := r.Header.Get("Content-Encoding"); ce != "" {
			log.Warn().Str("content_encoding", ce).Msg("compressed content not allowed")
			writeErr(w, domain.ErrInvalidRequest, requestID)
			return
		}
	} else {
		log.Warn().Msg("missing Content-Length on POST")
		writeErr(w, domain.ErrInvalidRequest, requestID)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	var req CreateReq
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		if err == io.EOF {
			log.Warn().Msg("empty request body")
		} else {
			log.Warn().Err(err).Msg("invalid request")
		}
		writeErr(w, domain.ErrInvalidRequest, requestID)
		return
	}
	if req.Text == "" {
		log.Warn().Msg("empty text")
		writeErr(w, domain.ErrContentRequired, requestID)
		return
	}
	if int64(len(req.Text)) > h.cfg.MaxDumpSize {
		log.Warn().Int("text_length", len(req.Text)).Msg("text exceeds maximum size")
		writeErr(w, domain.ErrDumpTooLarge, requestID)
		return
	}

	clientID := h.clientID(r)

	params := domain.CreateParams{
		Text:         sanitizeText(req.Text),
		ExpiryOption: req.Expiry,
		ClientID:     clientID,
	}
	dump, err := h.dumps.Create(r.Context(), params)
	if err != nil {
		if errors.Is(err, domain.ErrRateLimited) {
			log.Warn().
				Str("ip", util.RedactIP(r.RemoteAddr)).
				Msg("write rate limit exceeded")
			w.Header().Set("Retry-After", strconv.Itoa(int(h.cfg.RateLimit.WriteWindow.Seconds())))
			writeErr(w, domain.ErrRateLimited, requestID)
			return
		}
		log.Error().Err(err).Msg("failed to create dump")
		if errors.Is(err, domain.ErrDumpTooLarge) ||
			errors.Is(err, domain.ErrContentRequired) ||
			errors.Is(err, domain.ErrInvalidExpiry) ||
			errors.Is(err, domain.ErrStorageUnavailable) {
			writeErr(w, err, requestID)
			return
		}
		writeErr(w, domain.ErrInternalServer, requestID)
		return
	}
	log.Info().
		Str("slug", dump.Slug).
		Int("items", len(dump.Items)).
		Str("expiry", req.Expiry).
		Msg("dump created")
	resp := CreateResp{
		Slug:      dump.Slug,
		CreatedAt: dump.CreatedAt,
		ExpiresAt: dump.ExpiresAt,
	}
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(resp)
}

func (h *Hdl) GetDump(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	slug := chi.URLParam(r, "slug")
	now := time.Now()
	dump, err := h.dumps.Fetch(r.Context(), slug, now)
	if err != nil {
		// Expired and never-existed collapse to one user-facing answer;
		// the distinction survives in logs and metrics.
		if errors.Is(err, domain.ErrDumpNotFound) || errors.Is(err, domain.ErrDumpExpired) {
			log.Info().Err(err).Str("slug", slug).Msg("dump unavailable")
			writeErr(w, err, requestID)
			return
		}
		if errors.Is(err, domain.ErrStorageUnavailable) {
			writeErr(w, domain.ErrStorageUnavailable, requestID)
			return
		}
		log.Error().Err(err).Str("slug", slug).Msg("fetch failed")
		writeErr(w, domain.ErrInternalServer, requestID)
		return
	}
	resp := DumpResp{
		Slug:      dump.Slug,
		Items:     dump.Items,
		CreatedAt: dump.CreatedAt,
		ExpiresAt: dump.ExpiresAt,
	}
	if left, ok := dump.Remaining(now); ok {
		secs := int64(left.Seconds())
		resp.RemainingSeconds = &secs
	}
	log.Info().
		Str("slug", slug).
		Str("client_ip", util.RedactIP(r.RemoteAddr)).
		Msg("dump retrieved")
	json.NewEncoder(w).Encode(resp)
}

func (h *Hdl) GetExpiries(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(expiry.Options())
}

// clientID resolves the originating identity used for rate limiting and
// stored provenance. It never fails the request: when the address is local
// and the external resolver cannot help, the degraded fallback is used.
func (h *Hdl) clientID(r *http.Request) string {
	log := hlog.FromRequest(r)
	ip := lim.GetRealIP(r, h.cfg.TrustedProxies)
	if ident.IsLocal(ip) && h.resolver != nil {
		resolved, err := h.resolver.PublicIP(r.Context())
		if err != nil {
			log.Warn().Err(err).Msg("identity resolution failed, degrading")
			ip = ident.FallbackIdentity
		} else {
			ip = resolved
		}
	}
	if h.hasher == nil {
		return ip
	}
	hashed, err := h.hasher.HashID(ip)
	if err != nil {
		log.Warn().Err(err).Msg("identity hashing failed, degrading")
		return ident.FallbackIdentity
	}
	return hashed
}

func writeErr(w http.ResponseWriter, err error, requestID string) {
	statusCode := domain.Status(err)
	w.WriteHeader(statusCode)
	errorMsg := domain.ToResp(err).Error.Msg
	if statusCode >= 500 {
		errorMsg = "internal server error"
		util.Error().
			Err(err).
			Str("request_id", requestID).
			Msg("internal error with detailed info")
	}
	json.NewEncoder(w).Encode(map[string]string{
		"error":      errorMsg,
		"request_id": requestID,
	})
}

// sanitizeText normalizes to NFC and strips control characters other than
// newline, carriage return, and tab before the text reaches the parser.
func sanitizeText(s string) string {
	s = norm.NFC.String(s)
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for _, r := range s {
			if r != utf8.RuneError {
				v = append(v, r)
			}
		}
		s = string(v)
	}
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return r
		}
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, s)
}
