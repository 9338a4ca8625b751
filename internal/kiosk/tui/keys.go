package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Quit      key.Binding
	Cancel    key.Binding
	Submit    key.Binding
	Register  key.Binding
	Backspace key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c"),
		key.WithHelp("ctrl+c", "終了"),
	),
	Cancel: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "キャンセル"),
	),
	Submit: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "確定"),
	),
	Register: key.NewBinding(
		key.WithKeys("/"),
		key.WithHelp("/", "カード登録"),
	),
	Backspace: key.NewBinding(
		key.WithKeys("backspace"),
		key.WithHelp("backspace", "1文字消す"),
	),
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Register, k.Cancel, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Register, k.Submit, k.Backspace}, {k.Cancel, k.Quit}}
}
