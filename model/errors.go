package model

import (
	"context"
	"errors"
	"fmt"

	"signet.dev/verify/bundle"
	"signet.dev/verify/storage"
	"signet.dev/verify/verr"
)

type ErrorCode string

const (
	ErrInvalidRequest   ErrorCode = "INVALID_REQUEST"
	ErrInvalidCID       ErrorCode = "INVALID_CID"
	ErrCanonicalization ErrorCode = "CANONICALIZATION"
	ErrEncoding         ErrorCode = "ENCODING"
	ErrKeyNotFound      ErrorCode = "KEY_NOT_FOUND"
	ErrEmptyChain       ErrorCode = "EMPTY_CHAIN"
	ErrMissingStore     ErrorCode = "MISSING_STORE"
	ErrNotFound         ErrorCode = "NOT_FOUND"
	ErrCIDMismatch      ErrorCode = "CID_MISMATCH"
	ErrStorage          ErrorCode = "STORAGE"
	ErrCanceled         ErrorCode = "CANCELED"
	ErrInternal         ErrorCode = "INTERNAL"
)

// CodedError is a stable error with a machine-readable code and a human message.
type CodedError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	RuleID  string    `json:"ruleId,omitempty"`
}

func (e *CodedError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewError(code ErrorCode, message string) *CodedError {
	return &CodedError{Code: code, Message: message}
}

// MapError converts any error from the verifier packages into a CodedError.
func MapError(err error) *CodedError {
	if err == nil {
		return nil
	}
	var ce *CodedError
	if errors.As(err, &ce) {
		return ce
	}
	switch {
	case errors.Is(err, bundle.ErrEmptyChain):
		return &CodedError{Code: ErrEmptyChain, Message: err.Error(), RuleID: verr.RuleID(err)}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return NewError(ErrCanceled, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		return NewError(ErrNotFound, err.Error())
	case errors.Is(err, storage.ErrCIDMismatch):
		return NewError(ErrCIDMismatch, err.Error())
	case errors.Is(err, storage.ErrInvalidCID):
		return NewError(ErrInvalidCID, err.Error())
	}

	var ve *verr.Error
	if !errors.As(err, &ve) {
		return NewError(ErrInternal, err.Error())
	}
	code := ErrInternal
	switch ve.Kind {
	case verr.KindCanonical:
		code = ErrCanonicalization
	case verr.KindEncoding:
		code = ErrEncoding
	case verr.KindKey:
		code = ErrKeyNotFound
	case verr.KindCID:
		code = ErrInvalidCID
	case verr.KindContract:
		code = ErrInvalidRequest
	case verr.KindStorage:
		code = ErrStorage
	}
	return &CodedError{Code: code, Message: err.Error(), RuleID: ve.RuleID}
}
