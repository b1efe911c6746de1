package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

// TransportError はバックエンド呼び出しで発生したあらゆる失敗を表す。
// 通信エラーの場合はErrに原因が入り、StatusCodeは0になる。
// HTTPエラーステータスの場合はStatusCodeとエンベロープのMessageが入る。
type TransportError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
	Err        error
}

// Error はerrorインターフェースを実装する。
func (e *TransportError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
	}
}

// Unwrap は原因エラーを返す。
func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsStatus はerrが指定ステータスのTransportErrorであるかを返す。
func IsStatus(err error, status int) bool {
	var te *TransportError
	return errors.As(err, &te) && te.StatusCode == status
}

// IsNotFound はerrが404のTransportErrorであるかを返す。
func IsNotFound(err error) bool {
	return IsStatus(err, http.StatusNotFound)
}

// StatusCode はerrに含まれるHTTPステータスコードを返す。
// TransportErrorでない場合、または通信エラーの場合は0を返す。
func StatusCode(err error) int {
	var te *TransportError
	if errors.As(err, &te) {
		return te.StatusCode
	}
	return 0
}

// UserMessage はerrからバックエンドが返したメッセージを取り出す。
func UserMessage(err error) string {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Message
	}
	return ""
}
