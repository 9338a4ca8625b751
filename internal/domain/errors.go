package domain

import "errors"

// ストア層が返す番兵エラー。サービス層で apperr に変換する
var (
	ErrNotFound             = errors.New("not found")
	ErrAlreadyUsed          = errors.New("temp registration already used")
	ErrTokenReplaced        = errors.New("temp registration token replaced")
	ErrDuplicateExternalID  = errors.New("external id already registered")
	ErrDuplicateDisplayName = errors.New("display name already taken")
	ErrDuplicateCard        = errors.New("card already registered")
	ErrDuplicateTeamName    = errors.New("team name already exists")
	ErrInUse                = errors.New("still referenced")
)
