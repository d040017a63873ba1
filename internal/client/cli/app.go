// Package cli is an interactive terminal chat client for carenest.
package cli

import (
	"bufio"
	"context"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/dmitrijs2005/carenest/internal/client/client"
	"github.com/dmitrijs2005/carenest/internal/client/config"
	"github.com/dmitrijs2005/carenest/internal/messaging"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

// chatAPI is the slice of client.GRPCClient the commands use.
type chatAPI interface {
	Ping(ctx context.Context) error
	Login(ctx context.Context, email, password string) error
	Logout()
	LoggedIn() bool
	SendMessage(ctx context.Context, req *messaging.SendMessageRequest) (*messaging.Message, error)
	History(ctx context.Context, conversationID string, page, pageSize int) ([]messaging.Message, error)
	MarkRead(ctx context.Context, conversationID string) (int64, error)
	Close() error
}

type App struct {
	config *config.Config
	api    chatAPI
	reader *bufio.Reader
	out    io.Writer

	mu           sync.Mutex
	mode         Mode
	recipientID  string
	conversation string
}

func NewApp(c *config.Config) (*App, error) {
	api, err := client.NewGRPCClient(c.ServerEndpointAddr)
	if err != nil {
		return nil, err
	}
	return &App{config: c, api: api, reader: bufio.NewReader(os.Stdin), out: os.Stdout, mode: ModeOffline}, nil
}

func (a *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer a.api.Close()

	go a.StartOnlineStatusWatcher(ctx, a.config.OnlineCheckInterval)

	runREPL(ctx, a, a.status, bufio.NewScanner(a.reader))
}

func (a *App) isLoggedIn() bool { return a.api.LoggedIn() }

func (a *App) status() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	target := "-"
	switch {
	case a.conversation != "":
		target = "#" + a.conversation
	case a.recipientID != "":
		target = "@" + a.recipientID
	}
	return string(a.mode) + " " + target
}

func (a *App) setMode(mode Mode) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mode != mode {
		a.mode = mode
		log.Printf("Switched to %s mode\n", mode)
	}
}

func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := a.api.Ping(pctx)
			cancel()
			if err != nil {
				a.setMode(ModeOffline)
			} else {
				a.setMode(ModeOnline)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.config == nil || a.config.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.config.RequestTimeout)
}
