package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/eshaffer321/ledger-balancer/internal/api/dto"
	"github.com/eshaffer321/ledger-balancer/internal/domain/allocator"
	"github.com/eshaffer321/ledger-balancer/internal/domain/fees"
	"github.com/eshaffer321/ledger-balancer/internal/infrastructure/storage"
)

// maxBodyBytes bounds request bodies; invoice batches are the largest.
const maxBodyBytes = 8 << 20

// Base provides shared functionality for all handlers.
type Base struct {
	repo storage.Repository
}

// NewBase creates a new base handler with the given repository.
func NewBase(repo storage.Repository) *Base {
	return &Base{repo: repo}
}

// WriteJSON writes a JSON response with the given status code. A value that
// cannot be encoded becomes a 500 before any header is sent.
func (b *Base) WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	body, err := json.Marshal(data)
	if err != nil {
		status = http.StatusInternalServerError
		body, _ = json.Marshal(dto.InternalError())
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

// WriteError writes an error response with the given status code.
func (b *Base) WriteError(w http.ResponseWriter, status int, err dto.APIError) {
	b.WriteJSON(w, status, err)
}

// ReadJSON decodes the request body into v. On failure it writes a 400 and
// returns false.
func (b *Base) ReadJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		b.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid request body: "+err.Error()))
		return false
	}
	return true
}

// WriteDivisionError maps an allocation failure to a response. A total that
// rounds to zero is unprocessable; malformed weights are validation errors.
func (b *Base) WriteDivisionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, allocator.ErrInvalidTotal):
		b.WriteError(w, http.StatusUnprocessableEntity, dto.InvalidTotalError(err.Error()))
	case errors.Is(err, allocator.ErrNoValues),
		errors.Is(err, allocator.ErrZeroWeight),
		errors.Is(err, allocator.ErrDuplicateKey),
		errors.Is(err, allocator.ErrInvalidPrecision),
		errors.Is(err, allocator.ErrOutOfRange):
		b.WriteError(w, http.StatusBadRequest, dto.ValidationError(err.Error()))
	case errors.Is(err, fees.ErrCurrencyMismatch),
		errors.Is(err, fees.ErrConvertedFee):
		b.WriteError(w, http.StatusUnprocessableEntity, dto.ValidationError(err.Error()))
	default:
		b.WriteError(w, http.StatusInternalServerError, dto.InternalError())
	}
}

// ParseIntParam parses an integer query parameter with a default value.
func ParseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return parsed
}

// ParseBoolParam parses a boolean query parameter with a default value.
func ParseBoolParam(r *http.Request, name string, defaultVal bool) bool {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	return val == "true" || val == "1"
}
