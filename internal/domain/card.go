package domain

import (
	"strings"

	"golang.org/x/text/width"
)

// NormalizeCardID: カードIDの正規化
// 全角→半角、区切り文字（: - 空白）除去、小文字化。
// IME が有効なままのキオスクから全角で入ってくることがある
func NormalizeCardID(s string) string {
	s = width.Fold.String(s)
	s = strings.TrimSpace(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case ':', '-', ' ', '\t':
			continue
		}
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}
