package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/carenest/internal/common"
	"github.com/dmitrijs2005/carenest/internal/messaging"
)

const historyPageSize = 20

// getSimpleText and getPassword are swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

var errNoTarget = errors.New("choose a recipient with 'to' or a conversation with 'open'")

func (a *App) fail(err error) error {
	fmt.Fprintln(a.out, "Error:", err)
	return err
}

func (a *App) Login(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}
	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()
	if err := a.api.Login(ctx, email, string(password)); err != nil {
		return a.fail(err)
	}
	a.setMode(ModeOnline)
	fmt.Fprintln(a.out, "Logged in.")
	return nil
}

func (a *App) Logout(context.Context) error {
	a.api.Logout()
	a.mu.Lock()
	a.recipientID, a.conversation = "", ""
	a.mu.Unlock()
	fmt.Fprintln(a.out, "Logged out.")
	return nil
}

// To targets a direct conversation with recipientID; the server finds or
// creates it on the first send.
func (a *App) To(_ context.Context, recipientID string) error {
	if recipientID == "" {
		return a.fail(errors.New("usage: to <userId>"))
	}
	a.mu.Lock()
	a.recipientID, a.conversation = recipientID, ""
	a.mu.Unlock()
	return nil
}

func (a *App) Open(_ context.Context, conversationID string) error {
	if conversationID == "" {
		return a.fail(errors.New("usage: open <conversationId>"))
	}
	a.mu.Lock()
	a.recipientID, a.conversation = "", conversationID
	a.mu.Unlock()
	return nil
}

func (a *App) Send(ctx context.Context, text string) error {
	a.mu.Lock()
	req := &messaging.SendMessageRequest{ConversationID: a.conversation, RecipientID: a.recipientID, Text: text}
	a.mu.Unlock()
	if req.ConversationID == "" && req.RecipientID == "" {
		return a.fail(errNoTarget)
	}

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()
	msg, err := a.api.SendMessage(ctx, req)
	if err != nil {
		return a.fail(err)
	}

	// later sends go straight to the resolved conversation
	a.mu.Lock()
	a.recipientID, a.conversation = "", msg.ConversationID
	a.mu.Unlock()

	fmt.Fprintf(a.out, "sent %s (%s)\n", msg.ID, msg.DeliveryState)
	return nil
}

func (a *App) History(ctx context.Context, pageArg string) error {
	conv := a.currentConversation()
	if conv == "" {
		return a.fail(errNoTarget)
	}
	page := 1
	if pageArg != "" {
		p, err := strconv.Atoi(pageArg)
		if err != nil || p < 1 {
			return a.fail(fmt.Errorf("invalid page %q", pageArg))
		}
		page = p
	}

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()
	msgs, err := a.api.History(ctx, conv, page, historyPageSize)
	if err != nil {
		return a.fail(err)
	}
	if len(msgs) == 0 {
		fmt.Fprintln(a.out, "(no messages)")
		return nil
	}
	for _, m := range msgs {
		fmt.Fprintln(a.out, formatMessage(m))
	}
	return nil
}

func (a *App) Read(ctx context.Context) error {
	conv := a.currentConversation()
	if conv == "" {
		return a.fail(errNoTarget)
	}
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()
	n, err := a.api.MarkRead(ctx, conv)
	if err != nil {
		return a.fail(err)
	}
	fmt.Fprintf(a.out, "marked %d message(s) read\n", n)
	return nil
}

func (a *App) currentConversation() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conversation
}

func formatMessage(m messaging.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s: %s", m.CreatedAt.Local().Format(time.DateTime), m.SenderID, m.Text)
	for _, att := range m.Attachments {
		fmt.Fprintf(&b, " <%s>", att.Name)
	}
	if m.Read {
		b.WriteString(" (read)")
	}
	return b.String()
}
