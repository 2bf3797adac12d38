package model

import (
	"errors"
	"fmt"
)

// 定義済みエラーコード
const (
	ErrCodeInvalidSubjectURL = "INVALID_SUBJECT_URL"
	ErrCodeSubjectNotFound   = "SUBJECT_NOT_FOUND"
	ErrCodeLookupFailed      = "LOOKUP_FAILED"
)

// ErrSubjectNotFound は詳細取得で対象が存在しなかったことを表す。
var ErrSubjectNotFound = errors.New("subject not found")

// LookupError は通知1件の詳細取得エラー。
// 1件の失敗はその通知の中に閉じ込め、バッチ全体には伝播させない。
type LookupError struct {
	Code string // エラーコード
	Ref  SubjectRef
	Err  error
}

// Error はerrorインターフェースを実装する。
// 参照先が空の場合は省略する。
func (e *LookupError) Error() string {
	prefix := "[" + e.Code + "]"
	if !e.Ref.IsZero() {
		prefix += " " + e.Ref.String()
	}
	if e.Err == nil {
		return prefix
	}
	return fmt.Sprintf("%s: %v", prefix, e.Err)
}

// Unwrap は元のエラーを返す。
func (e *LookupError) Unwrap() error {
	return e.Err
}

// NewLookupError は元のエラーからエラーコードを判定してLookupErrorを生成する。
func NewLookupError(ref SubjectRef, err error) *LookupError {
	code := ErrCodeLookupFailed
	if errors.Is(err, ErrSubjectNotFound) {
		code = ErrCodeSubjectNotFound
	}
	return &LookupError{Code: code, Ref: ref, Err: err}
}

// NewInvalidSubjectURLError はsubject URLから番号を取り出せない場合のエラーを生成する。
// refには番号以外（owner, repo, 種別）を設定して渡す。
func NewInvalidSubjectURLError(ref SubjectRef, rawURL string, err error) *LookupError {
	return &LookupError{
		Code: ErrCodeInvalidSubjectURL,
		Ref:  ref,
		Err:  fmt.Errorf("subject url %q: %w", rawURL, err),
	}
}

// CursorStoreError はカーソルの読み書き失敗。サイクルにとって致命的なエラー。
type CursorStoreError struct {
	Op  string // "load" または "save"
	Key string
	Err error
}

// Error はerrorインターフェースを実装する。
func (e *CursorStoreError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("cursor store %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("cursor store %s %q failed: %v", e.Op, e.Key, e.Err)
}

// Unwrap は元のエラーを返す。
func (e *CursorStoreError) Unwrap() error {
	return e.Err
}
