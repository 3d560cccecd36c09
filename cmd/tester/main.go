// Interactive protocol tester: connects to a running hub as one user and
// lets you post, sync, mark read, and search from the terminal while every
// server frame is printed as it arrives.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"livehub/auth"
	"livehub/client"
	"livehub/transport"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

type Config struct {
	Host              string        `env:"HOST,default=localhost"`
	Port              int           `env:"PORT,default=8080"`
	TokenSecret       string        `env:"TOKEN_SECRET,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=1h"`
	UserID            string        `env:"TESTER_USER_ID,default=tester"`
	DisplayName       string        `env:"TESTER_DISPLAY_NAME,default=Tester"`
	RoomID            string        `env:"TESTER_ROOM_ID,default=general"`
	LogLevel          string        `env:"LOG_LEVEL,default=INFO"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Tester error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// The tester signs its own token with the shared secret, same as any
	// trusted issuer would.
	issuer := auth.NewTokenIssuer([]byte(config.TokenSecret), config.AuthTokenDuration)
	token, err := issuer.Generate(config.UserID, config.DisplayName)
	if err != nil {
		return exitRuntime, fmt.Errorf("token generation failed: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := client.Dial(ctx, client.URL(config.Host, config.Port, token), log)
	if err != nil {
		return exitRuntime, err
	}
	defer func() { _ = c.Close() }()

	color.Green.Printf(">>> Connected as %s, room %q (Ctrl+C to quit)\n", config.UserID, config.RoomID)
	color.Gray.Println("    text           post a message")
	color.Gray.Println("    /sync          room snapshot")
	color.Gray.Println("    /read          mark room read now")
	color.Gray.Println("    /search WORDS  search room history")

	go printFrames(ctx, c, config.RoomID)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case line == "/sync":
			err = c.Sync(config.RoomID, 20)
		case line == "/read":
			err = c.MarkRead(config.RoomID, time.Now().UTC())
		case strings.HasPrefix(line, "/search "):
			err = c.Search(config.RoomID, strings.TrimPrefix(line, "/search "), 20)
		default:
			err = c.SendChat(config.RoomID, line)
		}
		if err != nil {
			return exitRuntime, fmt.Errorf("send failed: %w", err)
		}
	}

	return exitOK, nil
}

func printFrames(ctx context.Context, c *client.Client, openRoom string) {
	for {
		frame, err := c.Next(ctx)
		if err != nil {
			if ctx.Err() == nil {
				color.Red.Printf("connection lost: %v\n", err)
			}
			return
		}
		printFrame(frame)
		ackOpenRoom(c, openRoom, frame)
	}
}

// ackOpenRoom is the immediate mark-read of the room on screen: a message
// that just got printed has been seen, so the read marker advances to its
// timestamp right away instead of waiting for the next sync.
func ackOpenRoom(c *client.Client, openRoom string, frame transport.Frame) {
	if frame.Type != transport.TypeMessage {
		return
	}
	var p transport.MessagePayload
	if json.Unmarshal(frame.Payload, &p) != nil || p.RoomID != openRoom {
		return
	}
	if err := c.MarkRead(openRoom, time.UnixMilli(p.CreatedAt).UTC()); err != nil {
		color.Red.Printf("mark-read failed: %v\n", err)
	}
}

func printFrame(frame transport.Frame) {
	switch frame.Type {
	case transport.TypeMessage:
		var p transport.MessagePayload
		if json.Unmarshal(frame.Payload, &p) == nil {
			at := time.UnixMilli(p.CreatedAt).Format(time.TimeOnly)
			color.Cyan.Printf("[%s] %s: %s\n", at, p.SenderName, p.Body)
		}
	case transport.TypeSnapshot:
		var p transport.SnapshotPayload
		if json.Unmarshal(frame.Payload, &p) == nil {
			color.Yellow.Printf("-- %s: %d messages, members %v, unread %d --\n",
				p.RoomID, len(p.Messages), p.Members, p.Unread)
			for _, m := range p.Messages {
				at := time.UnixMilli(m.CreatedAt).Format(time.TimeOnly)
				color.Cyan.Printf("[%s] %s: %s\n", at, m.SenderName, m.Body)
			}
		}
	case transport.TypeUnread:
		var p transport.UnreadPayload
		if json.Unmarshal(frame.Payload, &p) == nil {
			color.Yellow.Printf("-- unread in %s: %d --\n", p.RoomID, p.Count)
		}
	case transport.TypePresence:
		var p transport.PresencePayload
		if json.Unmarshal(frame.Payload, &p) == nil {
			state := "offline"
			if p.Online {
				state = "online"
			}
			color.Magenta.Printf("** %s is %s **\n", p.DisplayName, state)
		}
	case transport.TypeSearchResult:
		var p transport.SearchResultPayload
		if json.Unmarshal(frame.Payload, &p) == nil {
			color.Yellow.Printf("-- %d hits for %q --\n", p.Total, p.Query)
			for _, hit := range p.Hits {
				color.Cyan.Printf("  %s: %s\n", hit.SenderName, hit.Body)
			}
		}
	case transport.TypeError:
		var p transport.ErrorPayload
		if json.Unmarshal(frame.Payload, &p) == nil {
			color.Red.Printf("!! %s error: %s\n", p.Code, p.Message)
		}
	default:
		color.Gray.Printf("<%s frame>\n", frame.Type)
	}
}
