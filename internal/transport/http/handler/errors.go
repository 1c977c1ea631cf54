package handler

const (
	errInternalServer = "Internal server error"
	errInvalidState   = "Install state is invalid or expired"
	errMissingCode    = "Invalid request"
)
