package usecase

import "errors"

var (
	errEmptyReply = errors.New("empty reply text")
	errEmptyAudio = errors.New("empty synthesized audio")
)
