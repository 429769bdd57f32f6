package xerr

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
)

// Kind 稳定的、机器可读的错误类别，对外只暴露 Kind + Msg
type Kind string

const (
	InvalidAmount      Kind = "INVALID_AMOUNT"
	InvalidArgument    Kind = "INVALID_ARGUMENT"
	NotFound           Kind = "NOT_FOUND"
	TokenNotFound      Kind = "TOKEN_NOT_FOUND"
	Conflict           Kind = "CONFLICT"
	NetworkMismatch    Kind = "NETWORK_MISMATCH"
	TokenInactive      Kind = "TOKEN_INACTIVE"
	InvalidAddress     Kind = "INVALID_ADDRESS"
	InvalidKey         Kind = "INVALID_KEY"
	BadPassword        Kind = "BAD_PASSWORD"
	KeyUnavailable     Kind = "KEY_UNAVAILABLE"
	InsufficientFunds  Kind = "INSUFFICIENT_FUNDS"
	SelfTransfer       Kind = "SELF_TRANSFER"
	SettlementFailure  Kind = "SETTLEMENT_FAILURE"
	PersistenceFailure Kind = "PERSISTENCE_FAILURE"
	Forbidden          Kind = "FORBIDDEN"
	RateLimited        Kind = "RATE_LIMITED"
	Internal           Kind = "INTERNAL"
)

// 业务码：HTTP 响应体里的 code 字段
var bizCodes = map[Kind]int{
	InvalidAmount:      1001001,
	InvalidArgument:    1001002,
	InvalidAddress:     1001003,
	InvalidKey:         1001004,
	NetworkMismatch:    1001005,
	SelfTransfer:       1001006,
	BadPassword:        1002001,
	Forbidden:          1002003,
	RateLimited:        1003001,
	NotFound:           1004001,
	TokenNotFound:      1004002,
	Conflict:           1005001,
	TokenInactive:      1006001,
	KeyUnavailable:     1006002,
	InsufficientFunds:  1006003,
	SettlementFailure:  1007001,
	PersistenceFailure: 5000001,
	Internal:           5000000,
}

type CodeError struct {
	Code  int    `json:"code"`
	Kind  Kind   `json:"kind"`
	Msg   string `json:"msg"`
	Cause error  `json:"-"`
}

func (e *CodeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("ErrCode:%d, Kind:%s, Msg:%s, Cause:%v", e.Code, e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("ErrCode:%d, Kind:%s, Msg:%s", e.Code, e.Kind, e.Msg)
}

func (e *CodeError) Unwrap() error { return e.Cause }

// Is 同 Kind 即视为相等，支持 errors.Is(err, xerr.New(xerr.NotFound, ""))
func (e *CodeError) Is(target error) bool {
	var t *CodeError
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

func New(kind Kind, msg string) error {
	return &CodeError{Code: CodeOf(kind), Kind: kind, Msg: msg}
}

func Newf(kind Kind, format string, args ...any) error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap 保留原始错误，Msg 是对外文案，cause 只进日志
func Wrap(cause error, kind Kind, msg string) error {
	if cause == nil {
		return nil
	}
	return &CodeError{Code: CodeOf(kind), Kind: kind, Msg: msg, Cause: cause}
}

func As(err error) (*CodeError, bool) {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// KindOf 非 CodeError 一律视为 Internal
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if ce, ok := As(err); ok {
		return ce.Kind
	}
	return Internal
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func CodeOf(kind Kind) int {
	if c, ok := bizCodes[kind]; ok {
		return c
	}
	return bizCodes[Internal]
}

// Message 对外文案，未知错误不透出细节
func Message(err error) string {
	if ce, ok := As(err); ok && ce.Kind != Internal {
		return ce.Msg
	}
	return "internal error"
}

func HTTPStatus(kind Kind) int {
	switch kind {
	case InvalidAmount, InvalidArgument, InvalidAddress, InvalidKey, NetworkMismatch, SelfTransfer:
		return http.StatusBadRequest
	case BadPassword:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case NotFound, TokenNotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case TokenInactive, KeyUnavailable, InsufficientFunds:
		return http.StatusUnprocessableEntity
	case RateLimited:
		return http.StatusTooManyRequests
	case SettlementFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func GRPCCode(kind Kind) codes.Code {
	switch kind {
	case InvalidAmount, InvalidArgument, InvalidAddress, InvalidKey, NetworkMismatch, SelfTransfer:
		return codes.InvalidArgument
	case BadPassword:
		return codes.Unauthenticated
	case Forbidden:
		return codes.PermissionDenied
	case NotFound, TokenNotFound:
		return codes.NotFound
	case Conflict:
		return codes.AlreadyExists
	case TokenInactive, KeyUnavailable, InsufficientFunds:
		return codes.FailedPrecondition
	case RateLimited:
		return codes.ResourceExhausted
	case SettlementFailure:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}
