package service

import "errors"

var (
	ErrRoomNotFound           = errors.New("room not found")
	ErrNotOwner               = errors.New("only the room owner may perform this action")
	ErrInvalidLimit           = errors.New("participant limit must be between 0 and 99")
	ErrInvalidName            = errors.New("room name must be between 1 and 100 characters")
	ErrCommunityNotConfigured = errors.New("community is not configured")
	ErrPlatformFailure        = errors.New("platform call failed")
	ErrInternalServer         = errors.New("internal server error")
)
