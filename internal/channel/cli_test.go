package channel

import (
	"bytes"
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tripbot/internal/bus"
	"tripbot/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, input string) ([]domain.InboundMessage, *bus.InMemoryBus, *bytes.Buffer) {
	t.Helper()
	b := bus.New(bus.Config{Logger: testLogger()})
	var out bytes.Buffer
	cli := NewCLI(CLIConfig{
		DisplayName: "旅行助手",
		UserID:      "default_user",
		Logger:      testLogger(),
		In:          strings.NewReader(input),
		Out:         &out,
	})
	require.NoError(t, cli.Start(context.Background(), b))
	b.Close()

	var msgs []domain.InboundMessage
	for msg := range b.Subscribe() {
		msgs = append(msgs, msg)
	}
	return msgs, b, &out
}

func TestCLI_PublishesLines(t *testing.T) {
	msgs, _, out := runCLI(t, "北京今天天气怎么样\n\n/interrupt Hello wo\n/history conf h1\n/quit\nignored\n")

	require.Len(t, msgs, 3)
	assert.Equal(t, domain.InboundText, msgs[0].Kind)
	assert.Equal(t, "cli", msgs[0].Channel)
	assert.Equal(t, "local", msgs[0].ChatID)
	assert.Equal(t, "default_user", msgs[0].SenderID)
	assert.Equal(t, "北京今天天气怎么样", msgs[0].Content)

	assert.Equal(t, domain.InboundInterrupt, msgs[1].Kind)
	assert.Equal(t, "Hello wo", msgs[1].Content)

	assert.Equal(t, domain.InboundHistory, msgs[2].Kind)
	assert.Equal(t, "conf", msgs[2].ConfUID)
	assert.Equal(t, "h1", msgs[2].HistoryUID)

	assert.Contains(t, out.String(), "You> ")
}

func TestCLI_ImageAttachesToNextLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photo.jpg")
	require.NoError(t, os.WriteFile(path, []byte("jpeg-bytes"), 0o600))

	msgs, _, out := runCLI(t, "/image "+path+"\n帮我识别这张图片\n再来一句\n")

	require.Len(t, msgs, 2)
	assert.Equal(t, []string{base64.StdEncoding.EncodeToString([]byte("jpeg-bytes"))}, msgs[0].Images)
	assert.Empty(t, msgs[1].Images)
	assert.Contains(t, out.String(), "image attached")
}

func TestCLI_UsageErrorsPublishNothing(t *testing.T) {
	msgs, _, out := runCLI(t, "/image\n/image /does/not/exist.jpg\n/history only-conf\n")

	assert.Empty(t, msgs)
	assert.Contains(t, out.String(), "usage: /image <path>")
	assert.Contains(t, out.String(), "cannot read image")
	assert.Contains(t, out.String(), "usage: /history")
}

func TestCLI_Send(t *testing.T) {
	var out bytes.Buffer
	cli := NewCLI(CLIConfig{DisplayName: "旅行助手", Out: &out})

	require.NoError(t, cli.Send(context.Background(), domain.OutboundMessage{Content: "晴，25°C"}))
	require.NoError(t, cli.Send(context.Background(), domain.OutboundMessage{Name: "导游", Content: "失败", IsError: true}))

	assert.Contains(t, out.String(), "--- 旅行助手 ---\n晴，25°C\n")
	assert.Contains(t, out.String(), "--- 导游 (error) ---\n失败\n")
}
