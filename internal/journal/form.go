package journal

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/booklog/internal/model"
	"github.com/hitoshi/booklog/internal/security"
)

const msgRequired = "この項目は必須です。"

// form は入力値をエンティティに反映しながらフィールド単位の検証エラーを集める。
// fullがtrue（作成・PUT）の場合は必須項目の省略をエラーにする。
// PATCHでは省略された項目は変更しない。
type form struct {
	full      bool
	sanitizer security.TextSanitizer
	errs      map[string]string
}

func newForm(full bool, sanitizer security.TextSanitizer) *form {
	return &form{full: full, sanitizer: sanitizer, errs: map[string]string{}}
}

func (f *form) fail(field, msg string) {
	if _, ok := f.errs[field]; !ok {
		f.errs[field] = msg
	}
}

// absent は省略された項目を扱う。
func (f *form) absent(field string, required bool) {
	if f.full && required {
		f.fail(field, msgRequired)
	}
}

// text はタグを除去したプレーンテキストを反映する。
func (f *form) text(field string, in *string, dst *string, required bool, maxLen int) {
	if in == nil {
		f.absent(field, required)
		return
	}
	f.assign(field, f.sanitizer.StripTags(*in), dst, required, maxLen)
}

// richText は許可リストの書式タグを残したテキストを反映する。
func (f *form) richText(field string, in *string, dst *string, required bool) {
	if in == nil {
		f.absent(field, required)
		return
	}
	f.assign(field, f.sanitizer.Sanitize(*in), dst, required, 0)
}

func (f *form) assign(field, v string, dst *string, required bool, maxLen int) {
	switch {
	case required && v == "":
		f.fail(field, msgRequired)
	case maxLen > 0 && utf8.RuneCountInString(v) > maxLen:
		f.fail(field, fmt.Sprintf("%d文字以内で入力してください。", maxLen))
	default:
		*dst = v
	}
}

// date はYYYY-MM-DD形式の日付を反映する。空文字は日付を消去する。
func (f *form) date(field string, in *string, dst **time.Time) {
	if in == nil {
		return
	}
	if *in == "" {
		*dst = nil
		return
	}
	t, err := time.Parse(time.DateOnly, *in)
	if err != nil {
		f.fail(field, "日付はYYYY-MM-DD形式で入力してください。")
		return
	}
	*dst = &t
}

// ref は関連エンティティのIDを反映する。
func (f *form) ref(field string, in *string, dst *string, required bool) {
	if in == nil {
		f.absent(field, required)
		return
	}
	if *in == "" && !required {
		*dst = ""
		return
	}
	id, err := uuid.Parse(*in)
	if err != nil {
		f.fail(field, "不正なIDです。")
		return
	}
	*dst = id.String()
}

// intRange は範囲付きの整数を反映する。
func (f *form) intRange(field string, in *int, dst *int, required bool, lo, hi int) {
	if in == nil {
		f.absent(field, required)
		return
	}
	if *in < lo || *in > hi {
		f.fail(field, fmt.Sprintf("%dから%dの範囲で入力してください。", lo, hi))
		return
	}
	*dst = *in
}

// order は開始日が終了日より後になっていないかを検証する。
func (f *form) order(field string, from, to *time.Time) {
	if from != nil && to != nil && to.Before(*from) {
		f.fail(field, "終了日は開始日以降の日付を入力してください。")
	}
}

func (f *form) err() error {
	if len(f.errs) == 0 {
		return nil
	}
	return model.NewValidationError(f.errs)
}
