package session

import "errors"

var (
	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")

	// ErrNoSession is returned when a request reaches a session guard
	// without a session store attached.
	ErrNoSession = errors.New("session: no session store in request")

	// ErrRememberMeDisabled is returned by Login(rememberMe=true) on a
	// guard configured without a remember-me token provider.
	ErrRememberMeDisabled = errors.New("session: remember me is not enabled for this guard")
)
