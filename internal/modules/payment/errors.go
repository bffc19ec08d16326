package payment

import "errors"

var (
	ErrNotFound         = errors.New("booking not found")
	ErrForbidden        = errors.New("forbidden")
	ErrInvalidState     = errors.New("payment precondition violated")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrNoRefundDue      = errors.New("no refund due")
)
