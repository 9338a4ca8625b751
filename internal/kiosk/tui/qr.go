package tui

import (
	"strings"

	sgr "github.com/foize/go.sgr"
	"rsc.io/qr"
)

// 上下2モジュールを1文字で表す
var halfBlocks = []rune{' ', '▀', '▄', '█'}

// renderQR: 端末に直接出せる QR。明るいモジュールを白前景で塗るので
// ターミナルの配色に依存しない
func renderQR(text string) (string, error) {
	code, err := qr.Encode(text, qr.M)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	quiet := strings.Repeat("█", code.Size+4)
	line := func(s string) {
		b.WriteString(sgr.FgWhite + sgr.BgBlack)
		b.WriteString(s)
		b.WriteString(sgr.Reset)
		b.WriteByte('\n')
	}

	line(quiet)
	for y := 0; y < code.Size; y += 2 {
		var row strings.Builder
		row.WriteString("██")
		for x := 0; x < code.Size; x++ {
			n := 0
			if !code.Black(x, y) {
				n |= 1
			}
			if y+1 >= code.Size || !code.Black(x, y+1) {
				n |= 2
			}
			row.WriteRune(halfBlocks[n])
		}
		row.WriteString("██")
		line(row.String())
	}
	line(strings.Repeat("▀", code.Size+4))
	return b.String(), nil
}
