package dispatch

import "errors"

var (
	errMissingModel  = errors.New("dispatch: model id is required")
	errNoCandidates  = errors.New("dispatch: resolver returned zero candidates")
)
