package domain

import "errors"

var (
	ErrContentRejected = errors.New("content rejected")
	ErrNoFace          = errors.New("no face detected")
	ErrUnavailable     = errors.New("service unavailable")
	ErrDownloadFailed  = errors.New("download failed")
	ErrAlreadyQueued   = errors.New("already queued")
)
