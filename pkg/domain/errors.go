package domain

import (
	"github.com/pkg/errors"
	"net/http"
)

var (
	ErrDumpNotFound       = NewErr("DUMP_NOT_FOUND", "dump not found", http.StatusNotFound)
	ErrDumpExpired        = NewErr("DUMP_EXPIRED", "dump expired", http.StatusNotFound)
	ErrDumpTooLarge       = NewErr("DUMP_TOO_LARGE", "dump too large", http.StatusBadRequest)
	ErrInvalidExpiry      = NewErr("INVALID_EXPIRY", "invalid expiry option", http.StatusBadRequest)
	ErrInvalidRequest     = NewErr("INVALID_REQUEST", "invalid request", http.StatusBadRequest)
	ErrContentRequired    = NewErr("CONTENT_REQUIRED", "content required", http.StatusBadRequest)
	ErrRateLimited        = NewErr("RATE_LIMITED", "rate limit exceeded", http.StatusTooManyRequests)
	ErrSlugCollision      = NewErr("SLUG_COLLISION", "slug collision", http.StatusInternalServerError)
	ErrStorageUnavailable = NewErr("STORAGE_UNAVAILABLE", "storage unavailable", http.StatusServiceUnavailable)
	ErrInternalServer     = NewErr("INTERNAL_ERROR", "internal error", http.StatusInternalServerError)
)

type Err struct {
	Code   string `json:"code"`
	Msg    string `json:"message"`
	Status int    `json:"-"`
}

func (e *Err) Error() string { return e.Msg }
func NewErr(code, msg string, status int) *Err {
	return &Err{Code: code, Msg: msg, Status: status}
}

type ErrResp struct {
	Error ErrDetail `json:"error"`
}
type ErrDetail struct {
	Code string                 `json:"code"`
	Msg  string                 `json:"message"`
	Meta map[string]interface{} `json:"meta,omitempty"`
}

func ToResp(err error) ErrResp {
	if e, ok := err.(*Err); ok {
		return ErrResp{Error: ErrDetail{Code: e.Code, Msg: e.Msg}}
	}
	if e, ok := errors.Cause(err).(*Err); ok {
		return ErrResp{Error: ErrDetail{Code: e.Code, Msg: e.Msg}}
	}
	return ErrResp{Error: ErrDetail{Code: "INTERNAL_ERROR", Msg: "internal error"}}
}
func Status(err error) int {
	if e, ok := err.(*Err); ok {
		return e.Status
	}
	if e, ok := errors.Cause(err).(*Err); ok {
		return e.Status
	}
	return http.StatusInternalServerError
}
