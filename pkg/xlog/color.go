package xlog

import "fmt"

// Foreground colors for TTY output, same values as zap/internal/color.
const (
	colorRed termColor = iota + 31
	_
	colorYellow
	colorBlue
	colorMagenta
)

type termColor uint8

func (c termColor) Add(s string) string {
	return fmt.Sprintf("\x1b[%dm%s\x1b[0m", uint8(c), s)
}
