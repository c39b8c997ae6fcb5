package debugger

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/bft-labs/unitdebug/pkg/message"
)

// printMessage renders msg as a key/value table, keys in lexical order.
// The caption carries the message digest so that repeated reads of the
// same message can be told apart from new ones.
func printMessage(w io.Writer, msg *message.Message) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.SetTitle(fmt.Sprintf("%s (%d fields)", msg.Kind(), msg.Len()))
	t.AppendHeader(table.Row{"Key", "Value"})
	for _, k := range msg.Keys() {
		v, _ := msg.Get(k)
		t.AppendRow(table.Row{k, v})
	}
	t.SetCaption("digest %s", msg.Hash())
	t.Render()
}
