package exception

import "errors"

var (
	ErrConfigEmptyPath         = errors.New("config: empty path")
	ErrConfigNoAccounts        = errors.New("config: no accounts defined")
	ErrConfigNoInstruments     = errors.New("config: no instruments defined")
	ErrConfigUnknownAccount    = errors.New("config: limit references unknown account")
	ErrConfigUnknownInstrument = errors.New("config: limit references unknown instrument")
	ErrConfigNegativeLimit     = errors.New("config: limit must not be negative")
	ErrConfigBadScale          = errors.New("config: scale must be >= 0")
	ErrConfigBadDecimal        = errors.New("config: malformed decimal value")
)
