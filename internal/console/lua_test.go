//go:build !noconsolelua

package console

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLua_SelfAndActions(t *testing.T) {
	var out bytes.Buffer
	target := &fakeTarget{}
	in := strings.NewReader(strings.Join([]string{
		"self.id",
		"self.process()",
		"self.processed",
		`print(self.receive()["feed.name"])`,
		`self:send({["feed.name"] = "from lua"})`,
		"self.ack()",
		"error('bad')",
		"exit",
	}, "\n"))

	require.NoError(t, NewLauncher(in, &out).Launch(context.Background(), "lua", target))

	assert.Equal(t, 1, target.processed)
	assert.Equal(t, 1, target.acked)
	require.Len(t, target.sent, 1)
	v, _ := target.sent[0].Get("feed.name")
	assert.Equal(t, "from lua", v)

	got := out.String()
	assert.Contains(t, got, "lua> u\n")
	assert.Contains(t, got, "lua> 1\n")
	assert.Contains(t, got, "lua> x\n")
	assert.Contains(t, got, "error: ")
}
