package booking

import "errors"

var (
	ErrNilState         = errors.New("booking: state not configured")
	ErrNilRegistry      = errors.New("booking: platform registry not configured")
	ErrListingNotFound  = errors.New("booking: listing not found")
	ErrBookingNotFound  = errors.New("booking: booking not found")
	ErrBookingFinalized = errors.New("booking: booking already finalized")
	ErrDuplicateBooking = errors.New("booking: booking id already used")
	ErrInvalidBookingID = errors.New("booking: booking id required")

	ErrUnauthorized  = errors.New("booking: unauthorized")
	ErrGuestMismatch = errors.New("booking: caller is not the signed guest")

	ErrIntentExpired      = errors.New("booking: intent expired")
	ErrInvalidCheckIn     = errors.New("booking: check-in must be in the future")
	ErrInvalidCheckOut    = errors.New("booking: check-out must follow check-in")
	ErrInvalidAmount      = errors.New("booking: invalid booking amount")
	ErrEmptyPolicy        = errors.New("booking: cancellation policy required")
	ErrInvalidPolicyOrder = errors.New("booking: invalid cancellation policy ordering")
	ErrUnsupportedToken   = errors.New("booking: unsupported payment token")
	ErrInvalidInsurance   = errors.New("booking: invalid insurance terms")

	ErrNothingPayable      = errors.New("booking: nothing payable yet")
	ErrInsufficientBalance = errors.New("booking: insufficient balance")

	ErrNoInsurance        = errors.New("booking: booking carries no insurance")
	ErrInvalidKygStatus   = errors.New("booking: invalid kyg status")
	ErrKygAlreadyResolved = errors.New("booking: kyg status already resolved")

	ErrZeroAddress       = errors.New("booking: zero address")
	ErrAlreadyAuthorized = errors.New("booking: address already authorized")
	ErrNotAuthorized     = errors.New("booking: address not authorized")
	ErrSameReceiver      = errors.New("booking: payment receiver unchanged")
	ErrSameHost          = errors.New("booking: host unchanged")
)
