// Package security はアプリケーションのセキュリティ機能を提供する。
//
// DisplaySanitizer はカタログから読み込んだ表示用文字列（参加者名・選手名・チーム名）を
// 観測者へ配信する前に無害化する。入力のエンティティを一度元の文字に戻してから
// bluemondayのStrictPolicyで全タグを除去し、連続する空白を1つに畳み込む。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// DisplaySanitizer は表示用文字列のサニタイズ機能のインターフェース。
type DisplaySanitizer interface {
	// Sanitize はタグを除去した1行の文字列を返す。
	// HTMLとして特別な意味を持つ文字はエンティティとしてエスケープされる。
	// サニタイズ済みの文字列を再度渡しても結果は変わらない（冪等）。
	Sanitize(raw string) string
}

// displaySanitizer はDisplaySanitizerの実装。
// bluemondayのポリシーはスレッドセーフなため共有して使用する。
type displaySanitizer struct {
	policy *bluemonday.Policy
}

// NewDisplaySanitizer はDisplaySanitizerの新しいインスタンスを生成する。
func NewDisplaySanitizer() *displaySanitizer {
	return &displaySanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は表示用文字列をサニタイズする。
func (s *displaySanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	// エスケープ済みの入力を二重にエスケープせず、エンティティで隠したタグも除去する
	cleaned := s.policy.Sanitize(html.UnescapeString(raw))
	return strings.Join(strings.Fields(cleaned), " ")
}
