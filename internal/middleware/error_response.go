package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/insighthub/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスのフォーマット。
// errorはクライアントがそのまま表示するメッセージ、codeは機械判定用。
type ErrorResponseBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// WriteErrorResponse はAPIErrorをエラーレスポンスとして書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	writeErrorBody(w, statusCode, ErrorResponseBody{Error: apiErr.Message, Code: apiErr.Code})
}

// WriteErrorMessage はコードなしのエラーメッセージを書き込む。
func WriteErrorMessage(w http.ResponseWriter, statusCode int, message string) {
	writeErrorBody(w, statusCode, ErrorResponseBody{Error: message})
}

// WriteInternalServerError は内部サーバーエラーのレスポンスを書き込む。
// 詳細はログのみに記録し、クライアントには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:    model.ErrCodeInternal,
		Message: "Internal server error",
	})
}

func writeErrorBody(w http.ResponseWriter, statusCode int, body ErrorResponseBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}
