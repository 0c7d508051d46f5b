package transport

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/livebid/internal/auction"
	"github.com/hitoshi/livebid/internal/model"
)

// 受信インテントの種別
const (
	IntentBid                = "bid"
	IntentAdminSetTimes      = "admin:setTimes"
	IntentAdminSetPlayerTime = "admin:setPlayerTimes"
)

// localTimeLayout はdatetime-local入力の形式。タイムゾーンはサーバーのローカル時刻とみなす。
const localTimeLayout = "2006-01-02T15:04"

// envelope は受信フレームの共通形式。
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// flexString は文字列または数値で送られるIDを受け付ける。
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// flexNumber は数値または数値文字列を受け付ける。解釈できない値はNaNになる。
type flexNumber struct {
	value float64
	set   bool
}

func (f *flexNumber) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*f = flexNumber{}
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			v = math.NaN()
		}
		*f = flexNumber{value: v, set: true}
	default:
		var v float64
		if err := json.Unmarshal(b, &v); err != nil {
			*f = flexNumber{value: math.NaN(), set: true}
			return nil
		}
		*f = flexNumber{value: v, set: true}
	}
	return nil
}

// float はnullまたは未指定の場合にdefを返す。
func (f flexNumber) float(def float64) float64 {
	if !f.set {
		return def
	}
	return f.value
}

type bidIntent struct {
	PlayerID flexString `json:"playerId"`
	Amount   flexNumber `json:"amount"`
}

type setTimesIntent struct {
	StartAtISO         *string    `json:"startAtISO"`
	EndAtISO           *string    `json:"endAtISO"`
	ExtendOnBidSeconds flexNumber `json:"extendOnBidSeconds"`
}

type setPlayerTimesIntent struct {
	PlayerID           flexString `json:"playerId"`
	EndAtISO           *string    `json:"endAtISO"`
	ExtendOnBidSeconds flexNumber `json:"extendOnBidSeconds"`
}

// decodeEnvelope は受信フレームを種別とデータに分解する。
func decodeEnvelope(raw []byte) (envelope, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return envelope{}, newMalformedFrameError("JSONとして解釈できません")
	}
	if env.Type == "" {
		return envelope{}, newMalformedFrameError("typeがありません")
	}
	return env, nil
}

func decodeData(data json.RawMessage, v any) error {
	if len(data) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return newMalformedFrameError("dataがありません")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return newMalformedFrameError("dataの形式が不正です")
	}
	return nil
}

// toGlobalTimes は全体設定インテントを検証前の設定値に変換する。
// 延長秒数の未指定とnullは0として扱う。
func (in setTimesIntent) toGlobalTimes() (auction.GlobalTimes, error) {
	start, err := parseTime(in.StartAtISO, time.Local)
	if err != nil {
		return auction.GlobalTimes{}, err
	}
	end, err := parseTime(in.EndAtISO, time.Local)
	if err != nil {
		return auction.GlobalTimes{}, err
	}
	return auction.GlobalTimes{
		StartAt:            start,
		EndAt:              end,
		ExtendOnBidSeconds: in.ExtendOnBidSeconds.float(0),
	}, nil
}

// toItemTimes は商品別設定インテントを変換する。延長秒数のnullは全体設定の継承を表す。
func (in setPlayerTimesIntent) toItemTimes() (auction.ItemTimes, error) {
	end, err := parseTime(in.EndAtISO, time.Local)
	if err != nil {
		return auction.ItemTimes{}, err
	}
	t := auction.ItemTimes{EndAt: end}
	if in.ExtendOnBidSeconds.set {
		v := in.ExtendOnBidSeconds.value
		t.ExtendOnBidSeconds = &v
	}
	return t, nil
}

// parseTime はRFC3339またはdatetime-local形式の時刻を解釈する。
// 空文字列とnullは未設定を表す。
func parseTime(s *string, loc *time.Location) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return &t, nil
	}
	for _, layout := range []string{localTimeLayout, localTimeLayout + ":05"} {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return &t, nil
		}
	}
	return nil, model.NewInvalidWindowError("時刻を解釈できません: " + v)
}

// newMalformedFrameError は受信フレームが解釈できない場合のエラーを生成する。
func newMalformedFrameError(reason string) *model.APIError {
	return &model.APIError{
		Code:     "MALFORMED_FRAME",
		Message:  "受信したメッセージを解釈できません: " + reason,
		Category: "validation",
		Action:   "クライアントを更新して再度お試しください。",
	}
}

// newUnknownIntentError は未知のインテント種別に対するエラーを生成する。
func newUnknownIntentError(intentType string) *model.APIError {
	return &model.APIError{
		Code:     "UNKNOWN_INTENT",
		Message:  "未対応のメッセージ種別です: " + intentType,
		Category: "validation",
		Action:   "クライアントを更新して再度お試しください。",
	}
}

// newRateLimitedError はレート制限超過時のエラーを生成する。
func newRateLimitedError() *model.APIError {
	return &model.APIError{
		Code:     "RATE_LIMIT_EXCEEDED",
		Message:  "操作が多すぎます。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

func nan() float64 { return math.NaN() }
