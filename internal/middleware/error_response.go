// Package middleware は運用HTTPサーバーのミドルウェアとエラーレスポンスを提供する。
package middleware

import (
	"encoding/json"
	"net/http"
)

// ErrorResponseBody はエラーレスポンスの統一フォーマット。
type ErrorResponseBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:    code,
		Message: message,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、レスポンスには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, "INTERNAL_ERROR", "内部エラーが発生しました。")
}
