package platform

import "errors"

var (
	ErrNilState           = errors.New("platform: state not configured")
	ErrUnauthorized       = errors.New("platform: unauthorized")
	ErrRatioOutOfRange    = errors.New("platform: fee ratio exceeds denominator")
	ErrReferralExceedsFee = errors.New("platform: referral ratio exceeds fee ratio")
	ErrZeroAddress        = errors.New("platform: zero address")
	ErrInvalidDelay       = errors.New("platform: payout delay must be non-negative")
	ErrTokenExists        = errors.New("platform: payment token already supported")
	ErrTokenNotFound      = errors.New("platform: payment token not supported")
)
