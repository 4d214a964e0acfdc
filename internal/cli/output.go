package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/mcoot/liveshard/internal/api/response"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
	w      io.Writer
}

// NewOutput creates a new Output formatter
func NewOutput(format string, w io.Writer) *Output {
	return &Output{format: format, w: w}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) {
	if o.format == "json" {
		data, _ := json.Marshal(map[string]string{"message": msg})
		_, _ = fmt.Fprintln(o.w, string(data))
	} else {
		_, _ = fmt.Fprintln(o.w, msg)
	}
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case response.Health:
		o.printf("Status: %s\n", v.Status)
		o.printf("Sessions: %d\n", v.Sessions)
	case response.Session:
		o.printSession(v)
	case response.SessionList:
		o.printSessionList(v)
	case response.Character:
		o.printCharacter(v)
	case response.Decision:
		o.printf("Decision: %s\n", v.Decision)
	default:
		// Fallback to JSON for unknown types
		o.printJSON(data)
	}
}

func (o *Output) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(o.w, format, args...)
}

func (o *Output) printSession(s response.Session) {
	o.printf("Player: %s (%d)\n", s.Name, s.UserID)
	o.printf("Joined: %s\n", s.JoinedAt.Format("2006-01-02 15:04:05"))
	if s.Data == nil {
		return
	}
	o.printf("Balance: %d\n", s.Data.Balance.Money)

	passes := make([]string, 0, len(s.Data.Mtx.GamePasses))
	for id, p := range s.Data.Mtx.GamePasses {
		state := "inactive"
		if p.Active {
			state = "active"
		}
		passes = append(passes, fmt.Sprintf("%s (%s)", id, state))
	}
	if len(passes) > 0 {
		sort.Strings(passes)
		o.printf("Game passes: %s\n", strings.Join(passes, ", "))
	}
	if n := len(s.Data.Mtx.ReceiptHistory); n > 0 {
		o.printf("Receipts: %d\n", n)
	}
}

func (o *Output) printSessionList(l response.SessionList) {
	if len(l.Sessions) == 0 {
		o.printf("No sessions\n")
		return
	}
	o.printf("Sessions (%d):\n", len(l.Sessions))
	for _, s := range l.Sessions {
		o.printf("  - %s (%d)\n", s.Name, s.UserID)
	}
}

func (o *Output) printCharacter(c response.Character) {
	o.printf("Rig: %s\n", c.RigID)
	o.printf("State: %s\n", c.State)
	o.printf("Attached: %t\n", c.Attached)
	if c.CollisionGroup != "" {
		o.printf("Collision group: %s\n", c.CollisionGroup)
	}
	names := make([]string, 0, len(c.Parts))
	for name := range c.Parts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		o.printf("  - %s (%s)\n", name, c.Parts[name])
	}
}
