// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// 送信元の接続にのみ返され、エンジンを停止させることはない。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: identity, bid, timing, admin, validation
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnknownIdentity     = "UNKNOWN_IDENTITY"
	ErrCodeUnknownItem         = "UNKNOWN_ITEM"
	ErrCodeInvalidAmount       = "INVALID_AMOUNT"
	ErrCodeAuctionNotOpen      = "AUCTION_NOT_OPEN"
	ErrCodeAuctionClosed       = "AUCTION_CLOSED"
	ErrCodeDuplicateBidder     = "DUPLICATE_BIDDER"
	ErrCodeBidTooLow           = "BID_TOO_LOW"
	ErrCodeInsufficientCredits = "INSUFFICIENT_CREDITS"
	ErrCodePermissionDenied    = "PERMISSION_DENIED"
	ErrCodeInvalidWindow       = "INVALID_WINDOW"
	ErrCodeInvalidExtend       = "INVALID_EXTEND"
)

// IsCode はerrが指定コードのAPIErrorかを返す。
func IsCode(err error, code string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}

// NewUnknownIdentityError は接続元が参加者として登録されていない場合のエラーを生成する。
func NewUnknownIdentityError(key string) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownIdentity,
		Message:  fmt.Sprintf("参加者として認識されていません: %s", key),
		Category: "identity",
		Action:   "登録済みのネットワークから接続してください。",
	}
}

// NewUnknownItemError は商品が存在しない場合のエラーを生成する。
func NewUnknownItemError(itemID string) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownItem,
		Message:  fmt.Sprintf("指定された選手が見つかりません: %s", itemID),
		Category: "bid",
		Action:   "選手IDを確認してください。",
	}
}

// NewInvalidAmountError は入札額が正の整数でない場合のエラーを生成する。
func NewInvalidAmountError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidAmount,
		Message:  "入札額が無効です。",
		Category: "validation",
		Action:   "1以上の整数で入札してください。",
	}
}

// NewAuctionNotOpenError はオークション開始前の入札に対するエラーを生成する。
func NewAuctionNotOpenError() *APIError {
	return &APIError{
		Code:     ErrCodeAuctionNotOpen,
		Message:  "オークションはまだ開始されていません。",
		Category: "timing",
		Action:   "開始時刻まで待ってから入札してください。",
	}
}

// NewAuctionClosedError は締切済みの商品への入札に対するエラーを生成する。
func NewAuctionClosedError(itemID string) *APIError {
	return &APIError{
		Code:     ErrCodeAuctionClosed,
		Message:  fmt.Sprintf("この選手のオークションは終了しました: %s", itemID),
		Category: "timing",
		Action:   "他の選手に入札してください。",
	}
}

// NewDuplicateBidderError は最高入札者が自分自身に再入札した場合のエラーを生成する。
func NewDuplicateBidderError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateBidder,
		Message:  "自分の最新入札に重ねて入札することはできません。",
		Category: "bid",
		Action:   "他の参加者が入札するまで待ってください。",
	}
}

// NewBidTooLowError は入札額が現在値以下の場合のエラーを生成する。
func NewBidTooLowError(currentBid int64) *APIError {
	return &APIError{
		Code:     ErrCodeBidTooLow,
		Message:  fmt.Sprintf("入札額は%dより大きくなければなりません。", currentBid),
		Category: "bid",
		Action:   "現在の入札額より高い金額を指定してください。",
	}
}

// NewInsufficientCreditsError は残りクレジットを超える入札に対するエラーを生成する。
func NewInsufficientCreditsError(remaining int64) *APIError {
	return &APIError{
		Code:     ErrCodeInsufficientCredits,
		Message:  fmt.Sprintf("入札額が残りクレジット（%d）を超えています。", remaining),
		Category: "bid",
		Action:   "残りクレジットの範囲内で入札してください。",
	}
}

// NewPermissionDeniedError は管理者以外による管理操作のエラーを生成する。
func NewPermissionDeniedError() *APIError {
	return &APIError{
		Code:     ErrCodePermissionDenied,
		Message:  "権限がありません（管理者のみ）。",
		Category: "admin",
		Action:   "管理者に操作を依頼してください。",
	}
}

// NewInvalidWindowError は開始・終了時刻の組み合わせが不正な場合のエラーを生成する。
func NewInvalidWindowError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidWindow,
		Message:  fmt.Sprintf("時刻の指定が無効です: %s", reason),
		Category: "admin",
		Action:   "終了時刻は開始時刻より後に設定してください。",
	}
}

// NewInvalidExtendError は延長秒数が不正な場合のエラーを生成する。
func NewInvalidExtendError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidExtend,
		Message:  "入札延長の秒数が無効です。",
		Category: "admin",
		Action:   "0以上の整数秒を指定してください。",
	}
}
