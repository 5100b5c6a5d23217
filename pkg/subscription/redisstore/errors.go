package redisstore

import "errors"

var (
	ErrCorruptRecord     = errors.New("redisstore: stored record cannot be decoded")
	ErrTooMuchContention = errors.New("redisstore: subscription update retries exhausted")
)
