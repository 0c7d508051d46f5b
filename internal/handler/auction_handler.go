package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/livebid/internal/middleware"
	"github.com/hitoshi/livebid/internal/model"
)

// AuctionReader はHTTPハンドラーが参照するエンジンの読み取り操作。
type AuctionReader interface {
	State(now time.Time) model.StateView
	Hello(identityKey string) model.HelloView
	Item(id string) (model.Item, bool)
}

// AuctionHandler はオークション状態の参照APIを提供する。
// 状態の変更はWebSocketのインテントでのみ行う。
type AuctionHandler struct {
	reader AuctionReader
	now    func() time.Time
}

// NewAuctionHandler はAuctionHandlerを生成する。
func NewAuctionHandler(reader AuctionReader) *AuctionHandler {
	return &AuctionHandler{
		reader: reader,
		now:    time.Now,
	}
}

// State はstateイベントと同じ形式で現在の状態を返す。
// GET /api/state
func (h *AuctionHandler) State(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.reader.State(h.now()))
}

// Me は呼び出し元の識別結果を返す。未登録でも200でrecognized=falseを返す。
// GET /api/me
func (h *AuctionHandler) Me(w http.ResponseWriter, r *http.Request) {
	key, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		key = middleware.FallbackIdentity
	}
	writeJSON(w, http.StatusOK, h.reader.Hello(key))
}

// Player は単一の選手の状態を返す。
// GET /api/players/{id}
func (h *AuctionHandler) Player(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	it, ok := h.reader.Item(id)
	if !ok {
		handleServiceError(w, model.NewUnknownItemError(id))
		return
	}
	writeJSON(w, http.StatusOK, it)
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// handleServiceError はエンジンから返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUnknownIdentity, model.ErrCodePermissionDenied:
		return http.StatusForbidden
	case model.ErrCodeUnknownItem:
		return http.StatusNotFound
	case model.ErrCodeInvalidAmount, model.ErrCodeInvalidWindow, model.ErrCodeInvalidExtend:
		return http.StatusBadRequest
	case model.ErrCodeAuctionNotOpen, model.ErrCodeAuctionClosed:
		return http.StatusConflict
	case model.ErrCodeDuplicateBidder, model.ErrCodeBidTooLow, model.ErrCodeInsufficientCredits:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
