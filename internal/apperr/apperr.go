// Package apperr holds the client-facing error taxonomy. Every error that leaves
// a handler is either an *Error or gets converted into ErrInternal.
package apperr

import (
	"errors"
	"net/http"
)

type Code string

const (
	CodeInvalidQuantity  Code = "invalid_quantity"
	CodeProductNotFound  Code = "product_not_found"
	CodeStockExceeded    Code = "stock_exceeded"
	CodeAlreadyInCart    Code = "already_in_cart"
	CodeLineNotFound     Code = "line_not_found"
	CodeNotAuthenticated Code = "not_authenticated"
	CodeForbidden        Code = "forbidden"
	CodeConflict         Code = "conflict"
	CodeInvalidID        Code = "invalid_id"
	CodeInvalidRequest   Code = "invalid_request"
	CodeEmptyCart        Code = "empty_cart"
	CodeOrderNotFound    Code = "order_not_found"
	CodeRateLimited      Code = "rate_limited"
	CodeAlreadyReviewed  Code = "already_reviewed"
	CodeReviewNotFound   Code = "review_not_found"
	CodeAlreadyFavourite Code = "already_favourite"
	CodeNotFavourite     Code = "not_favourite"
	CodeInternal         Code = "internal_error"
)

type Error struct {
	Code    Code
	Status  int
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches on Code so that errors.Is(err, ErrStockExceeded) holds for copies
// produced by WithMessage or Wrap.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func (e *Error) WithMessage(msg string) *Error {
	cp := *e
	cp.Message = msg
	return &cp
}

func (e *Error) Wrap(cause error) *Error {
	cp := *e
	cp.cause = cause
	return &cp
}

func New(code Code, status int, msg string) *Error {
	return &Error{Code: code, Status: status, Message: msg}
}

var (
	ErrInvalidQuantity  = New(CodeInvalidQuantity, http.StatusBadRequest, "quantity must be greater than 0")
	ErrProductNotFound  = New(CodeProductNotFound, http.StatusNotFound, "product is not found")
	ErrStockExceeded    = New(CodeStockExceeded, http.StatusBadRequest, "this quantity of this product is not available")
	ErrAlreadyInCart    = New(CodeAlreadyInCart, http.StatusConflict, "product is already in cart")
	ErrLineNotFound     = New(CodeLineNotFound, http.StatusNotFound, "product is not in the cart")
	ErrNotAuthenticated = New(CodeNotAuthenticated, http.StatusUnauthorized, "not authorized, please log in")
	ErrForbidden        = New(CodeForbidden, http.StatusForbidden, "available only for admins")
	ErrConflict         = New(CodeConflict, http.StatusConflict, "cart was modified concurrently, retry the request")
	ErrInvalidID        = New(CodeInvalidID, http.StatusBadRequest, "invalid object id")
	ErrInvalidRequest   = New(CodeInvalidRequest, http.StatusBadRequest, "invalid request body")
	ErrEmptyCart        = New(CodeEmptyCart, http.StatusBadRequest, "no order items")
	ErrOrderNotFound    = New(CodeOrderNotFound, http.StatusNotFound, "order is not found")
	ErrRateLimited      = New(CodeRateLimited, http.StatusTooManyRequests, "too many requests")
	ErrAlreadyReviewed  = New(CodeAlreadyReviewed, http.StatusBadRequest, "product already reviewed")
	ErrReviewNotFound   = New(CodeReviewNotFound, http.StatusNotFound, "product is not reviewed")
	ErrAlreadyFavourite = New(CodeAlreadyFavourite, http.StatusBadRequest, "product already is favourite")
	ErrNotFavourite     = New(CodeNotFavourite, http.StatusBadRequest, "product is not favourite")
	ErrInternal         = New(CodeInternal, http.StatusInternalServerError, "internal server error")
)

// From returns the *Error carried by err, or ErrInternal wrapping err when the
// chain holds none. A nil err yields nil.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return ErrInternal.Wrap(err)
}
