package chain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// Kind classifies registry and chain failures.
type Kind int

const (
	KindUnknown Kind = iota
	// KindConfig: a required setting is missing or invalid. Raised before any network I/O.
	KindConfig
	// KindTransport: the endpoint could not be reached, timed out or refused the request.
	KindTransport
	// KindRevert: the node or the contract rejected the call or transaction.
	KindRevert
	// KindDecode: the endpoint answered with data that does not match the ABI.
	KindDecode
	// KindInvalid: the request was rejected client-side before submission.
	KindInvalid
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindTransport:
		return "transport"
	case KindRevert:
		return "revert"
	case KindDecode:
		return "decode"
	case KindInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// UnknownErrorMessage is reported when an error carries no message at all.
const UnknownErrorMessage = "Unknown error"

// Error is a classified failure with a short human-readable message.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Kind.String() + ": " + e.Message
	}
	return e.Op + ": " + e.Kind.String() + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// NewError creates a classified error.
func NewError(kind Kind, op, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: cause}
}

// ConfigError reports a missing or invalid setting.
func ConfigError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindConfig, Message: fmt.Sprintf(format, args...)}
}

// DecodeError reports a response that does not match the ABI.
func DecodeError(op string, cause error) *Error {
	return &Error{Kind: KindDecode, Op: op, Message: shortMessage(cause), Err: cause}
}

// InvalidError reports a request rejected before submission.
func InvalidError(op, format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalid, Op: op, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err, or KindUnknown when err is not classified.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnknown
}

// MessageOf extracts the most specific message available: the short message
// of a classified error, else the error text, else UnknownErrorMessage.
func MessageOf(err error) string {
	if err == nil {
		return UnknownErrorMessage
	}
	var ce *Error
	if errors.As(err, &ce) && strings.TrimSpace(ce.Message) != "" {
		return ce.Message
	}
	if msg := shortMessage(err); msg != "" {
		return msg
	}
	return UnknownErrorMessage
}

// Classify turns a provider error into a classified *Error. Already
// classified errors pass through unchanged.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return err
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewError(KindTransport, op, "rpc timeout", err)
	case errors.Is(err, context.Canceled):
		return NewError(KindTransport, op, "request canceled", err)
	}

	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if reason, ok := revertReason(dataErr.ErrorData()); ok {
			return NewError(KindRevert, op, reason, err)
		}
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		code := rpcErr.ErrorCode()
		// -32700..-32600 are protocol level failures of the endpoint itself.
		if code <= -32600 && code >= -32700 {
			return NewError(KindTransport, op, shortMessage(err), err)
		}
		return NewError(KindRevert, op, shortMessage(err), err)
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return NewError(KindTransport, op, shortMessage(err), err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return NewError(KindTransport, op, "rpc timeout", err)
		}
		return NewError(KindTransport, op, shortMessage(err), err)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return NewError(KindTransport, op, shortMessage(err), err)
	}

	if strings.Contains(strings.ToLower(err.Error()), "execution reverted") {
		return NewError(KindRevert, op, shortMessage(err), err)
	}
	return NewError(KindTransport, op, shortMessage(err), err)
}

// revertReason decodes Error(string) revert data when the provider exposes it.
func revertReason(data interface{}) (string, bool) {
	raw, ok := data.(string)
	if !ok || raw == "" {
		return "", false
	}
	b, err := hexutil.Decode(raw)
	if err != nil || len(b) == 0 {
		return "", false
	}
	reason, err := abi.UnpackRevert(b)
	if err != nil || reason == "" {
		return "", false
	}
	return "execution reverted: " + reason, true
}

// shortMessage keeps the first line of an error message.
func shortMessage(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.TrimSpace(err.Error())
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = strings.TrimSpace(msg[:i])
	}
	return msg
}
