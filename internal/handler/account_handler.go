package handler

import (
	"context"
	"net/http"
)

// AccountServiceInterface はアカウントハンドラーが必要とするサービスインターフェース。
type AccountServiceInterface interface {
	Register(ctx context.Context, username, password string) error
	Login(ctx context.Context, username, password string) error
}

// credentialsRequest はPOST /registerとPOST /loginのリクエストボディ。
type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// messageResponse は成功時のレスポンスボディ。
type messageResponse struct {
	Message string `json:"message"`
}

// AccountHandler はユーザー登録とログインのHTTPハンドラー。
type AccountHandler struct {
	service AccountServiceInterface
}

// NewAccountHandler はAccountHandlerを生成する。
func NewAccountHandler(service AccountServiceInterface) *AccountHandler {
	return &AccountHandler{service: service}
}

// Register は新規ユーザーを登録する。
// POST /register
func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		handleServiceError(w, r, err, "Error registering user")
		return
	}

	if err := h.service.Register(r.Context(), req.Username, req.Password); err != nil {
		handleServiceError(w, r, err, "Error registering user")
		return
	}

	writeJSON(w, http.StatusCreated, messageResponse{Message: "User registered successfully"})
}

// Login は資格情報を検証する。セッションやトークンは発行しない。
// POST /login
func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		handleServiceError(w, r, err, "Error logging in")
		return
	}

	if err := h.service.Login(r.Context(), req.Username, req.Password); err != nil {
		handleServiceError(w, r, err, "Error logging in")
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Login successful"})
}
