package main

import (
	"bufio"
	"chat-relay/domain/event"
	"chat-relay/infrastructure/ws"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerAddress string `env:"CHAT_SERVER_ADDR,default=localhost:3000"`
	UserID        string `env:"CHAT_USER_ID,required=true"`
	UserName      string `env:"CHAT_USER_NAME,required=true"`
	RoomID        string `env:"CHAT_ROOM_ID,default=general"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

// run drives one interactive session: announce online, join the configured
// room, then relay stdin lines as messages until interrupted. Received
// messages are acknowledged with mark-delivered automatically.
func run() (int, error) {
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	url := fmt.Sprintf("ws://%s/ws", config.ServerAddress)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return exitRuntime, fmt.Errorf("could not connect to %s: %w", url, err)
	}
	defer conn.Close()

	emit := func(name event.Name, payload any) error {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		return conn.WriteJSON(ws.Envelope{Event: name, Data: data})
	}

	if err := emit(event.NameUserOnline, event.UserOnline{UserID: config.UserID}); err != nil {
		return exitRuntime, err
	}
	if err := emit(event.NameJoinRoom, event.JoinRoom{RoomID: config.RoomID, UserID: config.UserID}); err != nil {
		return exitRuntime, err
	}

	color.Greenln(fmt.Sprintf(">>> Connected to %s as %s, room %q (Ctrl+C to quit)",
		config.ServerAddress, config.UserName, config.RoomID))
	color.Grayln("    /typing starts a typing indicator, /stop ends it, anything else is a message")

	// Reader goroutine: print incoming events and acknowledge messages.
	go func() {
		defer stop()
		for {
			var env ws.Envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			printEvent(env)
			if env.Event == event.NameReceiveMessage {
				var msg event.ReceiveMessage
				if json.Unmarshal(env.Data, &msg) == nil {
					_ = emit(event.NameMarkDelivered,
						event.MarkDelivered{MessageID: msg.ID, RoomID: msg.RoomID})
				}
			}
		}
	}()

	// Writer loop: stdin lines become events.
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			_ = emit(event.NameLeaveRoom, event.LeaveRoom{RoomID: config.RoomID, UserID: config.UserID})
			color.Yellowln("Disconnecting...")
			return exitOK, nil
		case line, ok := <-lines:
			if !ok {
				return exitOK, nil
			}
			if err := handleLine(emit, config, strings.TrimSpace(line)); err != nil {
				return exitRuntime, err
			}
		}
	}
}

func handleLine(emit func(event.Name, any) error, config Config, line string) error {
	switch {
	case line == "":
		return nil
	case line == "/typing":
		return emit(event.NameTyping, event.Typing{RoomID: config.RoomID, UserID: config.UserID})
	case line == "/stop":
		return emit(event.NameStopTyping, event.StopTyping{RoomID: config.RoomID, UserID: config.UserID})
	default:
		return emit(event.NameSendMessage, event.SendMessage{
			RoomID:   config.RoomID,
			UserID:   config.UserID,
			UserName: config.UserName,
			Text:     line,
		})
	}
}

func printEvent(env ws.Envelope) {
	switch env.Event {
	case event.NameReceiveMessage:
		var msg event.ReceiveMessage
		if json.Unmarshal(env.Data, &msg) != nil {
			return
		}
		color.Cyanln(fmt.Sprintf("[%s] %s: %s", msg.RoomID, msg.UserName, msg.Text))
	case event.NameUserStatus:
		var status event.UserStatus
		if json.Unmarshal(env.Data, &status) != nil {
			return
		}
		color.Grayln(fmt.Sprintf("* %s is %s", status.UserID, status.Status))
	case event.NameUserTyping:
		color.Grayln("* someone is typing...")
	case event.NameUserStopTyping:
		// Quiet: the indicator going away needs no line of its own.
	case event.NameMessageSent:
		color.Greenln("  ✓ sent")
	case event.NameMessageDelivered:
		color.Greenln("  ✓✓ delivered")
	case event.NameMessageSeen:
		color.Greenln("  ✓✓ seen")
	case event.NameMessageError:
		var msgErr event.MessageError
		if json.Unmarshal(env.Data, &msgErr) != nil {
			return
		}
		color.Redln("  ✗ " + msgErr.Error)
	default:
		color.Grayln(fmt.Sprintf("* %s %s", env.Event, string(env.Data)))
	}
}
