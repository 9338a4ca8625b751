package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// ===== Error model（全機能共通。HTTP ステータスは Code から決まる） =====
type Code string

const (
	CodeInvalidArgument   Code = "INVALID_ARGUMENT"
	CodeNotFound          Code = "NOT_FOUND"
	CodeConflict          Code = "CONFLICT"
	CodeInternal          Code = "INTERNAL"
	CodeUnknownCard       Code = "UNKNOWN_CARD"
	CodeAlreadyRegistered Code = "ALREADY_REGISTERED"
	CodeInvalidSession    Code = "INVALID_SESSION"
	CodeAlreadyUsed       Code = "ALREADY_USED"
	CodeExpired           Code = "EXPIRED"
	CodeUnauthenticated   Code = "UNAUTHENTICATED"
	CodeForbidden         Code = "FORBIDDEN"
	CodeDuplicateIdentity Code = "DUPLICATE_IDENTITY"
	CodeStoreUnavailable  Code = "STORE_UNAVAILABLE"
)

// DUPLICATE_IDENTITY の内訳
const (
	ReasonExternalID  = "external_id"
	ReasonDisplayName = "display_name"
)

type APIError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
	cause   error
}

func (e *APIError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error { return e.cause }

func Invalid(msg string) *APIError   { return &APIError{Code: CodeInvalidArgument, Message: msg} }
func NotFound(msg string) *APIError  { return &APIError{Code: CodeNotFound, Message: msg} }
func Conflict(msg string) *APIError  { return &APIError{Code: CodeConflict, Message: msg} }
func Forbidden(msg string) *APIError { return &APIError{Code: CodeForbidden, Message: msg} }

func Internal(msg string, cause error) *APIError {
	return &APIError{Code: CodeInternal, Message: msg, cause: cause}
}

func UnknownCard() *APIError {
	return &APIError{Code: CodeUnknownCard, Message: "登録されていないカードです。「/」キーを押して登録してください"}
}

func AlreadyRegistered() *APIError {
	return &APIError{Code: CodeAlreadyRegistered, Message: "このカードはすでに登録されています"}
}

func InvalidSession() *APIError {
	return &APIError{Code: CodeInvalidSession, Message: "登録セッションが見つかりません。キオスクでもう一度カードをかざしてください"}
}

func AlreadyUsed() *APIError {
	return &APIError{Code: CodeAlreadyUsed, Message: "この登録リンクはすでに使用されています"}
}

func Expired() *APIError {
	return &APIError{Code: CodeExpired, Message: "登録の有効期限が切れました。キオスクでもう一度登録をやり直してください"}
}

func Unauthenticated() *APIError {
	return &APIError{Code: CodeUnauthenticated, Message: "ログインが必要です"}
}

func DuplicateExternalID() *APIError {
	return &APIError{Code: CodeDuplicateIdentity, Reason: ReasonExternalID, Message: "このアカウントはすでに別のカードで登録されています"}
}

func DuplicateDisplayName() *APIError {
	return &APIError{Code: CodeDuplicateIdentity, Reason: ReasonDisplayName, Message: "この表示名はすでに使われています"}
}

// StoreUnavailable: DB 障害。利用者には再試行を促す汎用文言のみ返す
func StoreUnavailable(cause error) *APIError {
	return &APIError{Code: CodeStoreUnavailable, Message: "ただいま処理できません。しばらくしてからもう一度お試しください", cause: cause}
}

// Is: errors.Is で Code 比較できるようにする
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Reason == "" || t.Reason == e.Reason)
}

// CodeOf: APIError 以外は INTERNAL
func CodeOf(err error) Code {
	var api *APIError
	if errors.As(err, &api) {
		return api.Code
	}
	return CodeInternal
}

func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeNotFound, CodeUnknownCard, CodeInvalidSession:
		return http.StatusNotFound
	case CodeConflict, CodeAlreadyRegistered, CodeAlreadyUsed, CodeDuplicateIdentity:
		return http.StatusConflict
	case CodeExpired:
		return http.StatusGone
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
