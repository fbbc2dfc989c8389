// Package tui provides an interactive terminal chat UI for pharmabot,
// backed by the REST API.
package tui

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/pharmesol/pharmabot/pkg/client"
)

// App is the chat TUI. It opens one session against the API server and
// renders the running transcript above an input field.
type App struct {
	app        *tview.Application
	header     *tview.TextView
	transcript *tview.TextView
	input      *tview.InputField
	footer     *tview.TextView
	layout     *tview.Flex

	client    *client.Client
	phone     string
	sessionID string

	mu         sync.Mutex
	waiting    bool   // a message is in flight; input is ignored until the reply
	statusLine string // transient "typing" line currently at the end of the transcript
}

// NewApp creates a chat TUI connected to the given API server.
func NewApp(serverAddr, phone string) *App {
	a := &App{
		app:    tview.NewApplication(),
		client: client.New(serverAddr),
		phone:  phone,
	}

	// -- Header --
	a.header = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	a.header.SetBackgroundColor(tcell.ColorDarkBlue)

	// -- Transcript --
	a.transcript = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWrap(true).
		SetChangedFunc(func() {
			a.transcript.ScrollToEnd()
			a.app.Draw()
		})
	a.transcript.SetBorder(true).
		SetTitle(" Conversation ").
		SetBorderColor(tcell.ColorDodgerBlue)

	// -- Input --
	a.input = tview.NewInputField().
		SetLabel(" You: ").
		SetFieldBackgroundColor(tcell.ColorBlack).
		SetLabelColor(tcell.ColorGreen)
	a.input.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		text := strings.TrimSpace(a.input.GetText())
		if text == "" {
			return
		}
		a.input.SetText("")
		a.sendMessage(text)
	})

	// -- Footer --
	a.footer = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	a.footer.SetBackgroundColor(tcell.ColorDarkBlue)
	fmt.Fprint(a.footer, " [yellow]Enter[white] send  [yellow]Ctrl-C[white] quit")

	a.layout = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.header, 1, 0, false).
		AddItem(a.transcript, 0, 1, false).
		AddItem(a.input, 1, 0, true).
		AddItem(a.footer, 1, 0, false)

	a.app.SetRoot(a.layout, true).SetFocus(a.input)
	return a
}

// Run opens the session and blocks until the UI exits.
func (a *App) Run() error {
	session, err := a.client.StartSession(a.phone)
	if err != nil {
		return fmt.Errorf("starting session: %w", err)
	}
	a.sessionID = session.ID

	pharmacy := session.PharmacyName
	if pharmacy == "" {
		pharmacy = "unknown caller"
	}
	fmt.Fprintf(a.header, " [::b]Pharmabot[::-]  session %s  |  %s  |  %s",
		shortID(session.ID), pharmacy, session.Mode)

	for _, turn := range session.Turns {
		a.appendTurn(turn.Role, turn.Content)
	}

	defer a.endSession()
	return a.app.Run()
}

// sendMessage posts the caller's text and appends the reply when it arrives.
// The API call runs off the UI goroutine.
func (a *App) sendMessage(text string) {
	a.mu.Lock()
	if a.waiting {
		a.mu.Unlock()
		return
	}
	a.waiting = true
	a.mu.Unlock()

	a.appendTurn("user", text)
	a.appendStatus("agent is typing...")

	go func() {
		reply, err := a.client.SendMessage(a.sessionID, text)

		a.app.QueueUpdateDraw(func() {
			a.clearStatus()
			if err != nil {
				a.appendStatus(fmt.Sprintf("error: %v", err))
			} else {
				a.appendTurn("assistant", reply)
			}
		})

		a.mu.Lock()
		a.waiting = false
		a.mu.Unlock()
	}()
}

// endSession tears down the server-side session on exit. Best effort.
func (a *App) endSession() {
	if a.sessionID != "" {
		_ = a.client.EndSession(a.sessionID)
	}
}

// appendTurn writes one transcript entry with role-specific coloring.
func (a *App) appendTurn(role, content string) {
	label := "[green::b]You[-::-]"
	if role == "assistant" {
		label = "[aqua::b]Agent[-::-]"
	}
	fmt.Fprintf(a.transcript, "%s  %s\n\n", label, tview.Escape(content))
}

// appendStatus writes a transient status line; clearStatus removes it by
// trimming it back off the end of the transcript.
func (a *App) appendStatus(msg string) {
	line := "[gray]" + tview.Escape(msg) + "[-]\n"
	a.mu.Lock()
	a.statusLine = line
	a.mu.Unlock()
	fmt.Fprint(a.transcript, line)
}

func (a *App) clearStatus() {
	a.mu.Lock()
	line := a.statusLine
	a.statusLine = ""
	a.mu.Unlock()
	if line == "" {
		return
	}
	text := a.transcript.GetText(false)
	if idx := strings.LastIndex(text, line); idx >= 0 {
		a.transcript.SetText(text[:idx])
	}
}

// shortID truncates a session UUID for the header line.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
