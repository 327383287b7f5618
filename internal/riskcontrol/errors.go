package riskcontrol

import "errors"

var (
	ErrInvalidOrder          = errors.New("invalid order context")
	ErrAlertNotFound         = errors.New("alert not found")
	ErrAlertClosed           = errors.New("alert is in a terminal state")
	ErrInvalidAlertStatus    = errors.New("invalid alert status")
	ErrInvalidBlacklistType  = errors.New("invalid blacklist type")
	ErrInvalidBlacklistValue = errors.New("invalid blacklist value")
	ErrBlacklistNotFound     = errors.New("blacklist entry not found")
)
