package channel

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"tripbot/internal/domain"
)

const (
	cliChannel = "cli"
	cliChatID  = "local"
)

// CLI implements domain.Channel for interactive terminal chat.
type CLI struct {
	bus         domain.MessageBus
	logger      *slog.Logger
	in          io.Reader
	out         io.Writer
	displayName string
	userID      string

	outMu   sync.Mutex
	pending []string // images attached to the next line

	thinking  bool
	thinkMu   sync.Mutex
	thinkStop chan struct{}
	spinner   bool
}

type CLIConfig struct {
	DisplayName string
	UserID      string
	Spinner     bool
	Logger      *slog.Logger
	In          io.Reader
	Out         io.Writer
}

func NewCLI(cfg CLIConfig) *CLI {
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.DisplayName == "" {
		cfg.DisplayName = "tripbot"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &CLI{
		logger:      cfg.Logger,
		in:          cfg.In,
		out:         cfg.Out,
		displayName: cfg.DisplayName,
		userID:      cfg.UserID,
		spinner:     cfg.Spinner,
	}
}

func (c *CLI) Name() string { return cliChannel }

// Start runs the interactive REPL and blocks until the context is cancelled
// or the input is exhausted.
func (c *CLI) Start(ctx context.Context, bus domain.MessageBus) error {
	c.bus = bus
	bus.OnOutbound(cliChannel, func(msg domain.OutboundMessage) {
		_ = c.Send(ctx, msg)
	})

	c.printf("%s CLI. Type a message and press Enter. /image <path>, /interrupt <heard>, /history <conf> <uid>, /quit.\n", c.displayName)
	c.printf("You> ")

	scanner := bufio.NewScanner(c.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if !scanner.Scan() {
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			c.printf("You> ")
			continue
		}
		if line == "/quit" || line == "/exit" || line == "/q" {
			c.logger.Info("user requested quit")
			return nil
		}

		msg, ok := c.parseLine(line)
		if !ok {
			c.printf("You> ")
			continue
		}
		if msg.Kind == domain.InboundText {
			c.startThinking()
		} else {
			c.printf("You> ")
		}
		c.bus.Publish(msg)
	}
}

// parseLine turns one REPL line into an inbound message. Lines that only
// change local state (image attachment, usage errors) report false.
func (c *CLI) parseLine(line string) (domain.InboundMessage, bool) {
	msg := domain.InboundMessage{
		Kind:     domain.InboundText,
		Channel:  cliChannel,
		ChatID:   cliChatID,
		SenderID: c.userID,
		Content:  line,
	}

	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	switch cmd {
	case "/image":
		if rest == "" {
			c.printf("usage: /image <path>\n")
			return msg, false
		}
		data, err := os.ReadFile(rest)
		if err != nil {
			c.printf("cannot read image: %v\n", err)
			return msg, false
		}
		c.pending = append(c.pending, base64.StdEncoding.EncodeToString(data))
		c.printf("image attached (%d bytes), it will be sent with your next message\n", len(data))
		return msg, false
	case "/interrupt":
		msg.Kind = domain.InboundInterrupt
		msg.Content = rest
		return msg, true
	case "/history":
		conf, uid, _ := strings.Cut(rest, " ")
		if conf == "" || strings.TrimSpace(uid) == "" {
			c.printf("usage: /history <conf_uid> <history_uid>\n")
			return msg, false
		}
		msg.Kind = domain.InboundHistory
		msg.Content = ""
		msg.ConfUID = conf
		msg.HistoryUID = strings.TrimSpace(uid)
		return msg, true
	}

	msg.Images = c.pending
	c.pending = nil
	return msg, true
}

// Send prints a reply block and re-issues the prompt.
func (c *CLI) Send(_ context.Context, msg domain.OutboundMessage) error {
	c.stopThinking()
	name := msg.Name
	if name == "" {
		name = c.displayName
	}
	if msg.IsError {
		name += " (error)"
	}
	c.outMu.Lock()
	defer c.outMu.Unlock()
	_, err := fmt.Fprintf(c.out, "\r\033[K--- %s ---\n%s\n----------------\nYou> ", name, msg.Content)
	return err
}

// Stop is a no-op; the REPL exits when Start returns.
func (c *CLI) Stop() error { return nil }

func (c *CLI) printf(format string, args ...any) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	_, _ = fmt.Fprintf(c.out, format, args...)
}

func (c *CLI) startThinking() {
	if !c.spinner {
		return
	}
	c.thinkMu.Lock()
	defer c.thinkMu.Unlock()
	if c.thinking {
		return
	}
	c.thinking = true
	c.thinkStop = make(chan struct{})
	go func(stop <-chan struct{}) {
		frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			case <-ticker.C:
				c.printf("\r%s 思考中...", frames[i%len(frames)])
			}
		}
	}(c.thinkStop)
}

func (c *CLI) stopThinking() {
	c.thinkMu.Lock()
	defer c.thinkMu.Unlock()
	if !c.thinking {
		return
	}
	c.thinking = false
	close(c.thinkStop)
}
