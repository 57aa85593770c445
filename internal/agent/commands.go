package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"tripbot/internal/domain"
)

// ChatCommand represents a parsed chat command.
type ChatCommand struct {
	Name string   // command name without "/"
	Args []string // arguments after the command
	Raw  string   // original full text
}

// CommandResult holds the response for a handled command.
type CommandResult struct {
	Response string
	Handled  bool // false means the text goes to the dispatcher as a normal turn
}

// startTime records when the process started for /status.
var startTime = time.Now()

// ParseCommand returns the command in text, or nil when text does not
// start with "/".
func ParseCommand(text string) *ChatCommand {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return nil
	}
	parts := strings.Fields(text)
	if len(parts) == 0 {
		return nil
	}
	return &ChatCommand{
		Name: strings.ToLower(strings.TrimPrefix(parts[0], "/")),
		Args: parts[1:],
		Raw:  text,
	}
}

// HandleCommand answers the bot's own slash commands. Anything it does not
// know is passed through as an ordinary utterance. The caller holds
// sess.turnMu.
func (l *Loop) HandleCommand(ctx context.Context, sess *Session, cmd *ChatCommand, msg domain.InboundMessage) CommandResult {
	switch cmd.Name {
	case "help":
		return CommandResult{Response: helpText, Handled: true}

	case "new", "reset":
		l.sessions.Reset(sess)
		return CommandResult{Response: "对话已清空，我们重新开始吧。", Handled: true}

	case "profile":
		return CommandResult{Response: l.profileText(ctx, l.userID(msg)), Handled: true}

	case "tools":
		return CommandResult{Response: l.toolsText(), Handled: true}

	case "status":
		return CommandResult{Response: l.statusText(), Handled: true}

	default:
		return CommandResult{Handled: false}
	}
}

const helpText = `可用命令:
/help     显示本帮助
/new      清空当前对话
/profile  查看已记录的旅行偏好
/tools    列出可用工具
/status   查看运行状态`

func (l *Loop) profileText(ctx context.Context, userID string) string {
	if l.profiles == nil {
		return "用户信息存储未启用。"
	}
	p, err := l.profiles.Get(ctx, userID)
	if err != nil {
		return fmt.Sprintf("读取用户信息失败: %s", err)
	}
	if p.IsEmpty() {
		return "还没有记录您的旅行偏好。告诉我您想去哪里、预算或喜好吧！"
	}
	data, _ := json.MarshalIndent(p, "", "  ")
	return string(data)
}

func (l *Loop) toolsText() string {
	if l.tools == nil {
		return "没有可用工具。"
	}
	defs := l.tools.Definitions()
	var sb strings.Builder
	fmt.Fprintf(&sb, "可用工具 (%d):\n", len(defs))
	for _, d := range defs {
		fmt.Fprintf(&sb, "• %s: %s\n", d.Name, d.Description)
	}
	return sb.String()
}

func (l *Loop) statusText() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "运行时间: %s\n", time.Since(startTime).Round(time.Second))
	fmt.Fprintf(&sb, "活跃会话: %d\n", l.sessions.Count())
	if l.tools != nil {
		fmt.Fprintf(&sb, "工具数量: %d\n", len(l.tools.Names()))
		if last, ok := l.tools.LastCall(); ok {
			fmt.Fprintf(&sb, "最近一次工具调用: %s (%s)\n", last.Name, last.Timestamp.Format(time.DateTime))
		}
	}
	return sb.String()
}
