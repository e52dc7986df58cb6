package renderer

import (
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"github.com/pageforge/pageforge/internal/types"
)

// maxConsoleEntries caps the buffer; chatty pages log in tight loops.
const maxConsoleEntries = 500

// consoleCollector buffers console API calls for the outcome. It lives
// for one session page and stops when the page context ends.
type consoleCollector struct {
	mu      sync.Mutex
	entries []types.ConsoleEntry
	dropped bool
}

// collectConsole subscribes to the page's console events. The page must
// already be bound to the render context; the subscription dies with it.
func collectConsole(page *rod.Page) *consoleCollector {
	c := &consoleCollector{}
	go page.EachEvent(func(e *proto.RuntimeConsoleAPICalled) {
		c.add(page, e)
	})()
	return c
}

func (c *consoleCollector) add(page *rod.Page, e *proto.RuntimeConsoleAPICalled) {
	parts := make([]string, 0, len(e.Args))
	for _, arg := range e.Args {
		parts = append(parts, formatRemoteObject(page, arg))
	}
	c.append(levelFor(e.Type), strings.Join(parts, " "))
}

func (c *consoleCollector) append(level, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= maxConsoleEntries {
		c.dropped = true
		return
	}
	c.entries = append(c.entries, types.ConsoleEntry{Level: level, Text: text})
}

// Entries returns the buffered log, appending a truncation notice when
// the cap was hit.
func (c *consoleCollector) Entries() []types.ConsoleEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]types.ConsoleEntry, len(c.entries))
	copy(out, c.entries)
	if c.dropped {
		out = append(out, types.ConsoleEntry{
			Level: "warning",
			Text:  "console log truncated",
		})
	}
	return out
}

// formatRemoteObject renders one console argument. Remote references are
// resolved through the page; anything unresolvable falls back to the
// object description.
func formatRemoteObject(page *rod.Page, obj *proto.RuntimeRemoteObject) string {
	j, err := page.ObjectToJSON(obj)
	if err != nil {
		if obj.Description != "" {
			return obj.Description
		}
		return string(obj.Type)
	}
	return formatJSON(j)
}

func formatJSON(j gson.JSON) string {
	if j.Nil() {
		return "null"
	}
	if s, ok := j.Val().(string); ok {
		return s
	}
	return j.JSON("", "")
}

// levelFor flattens the CDP console call types onto the wire levels.
func levelFor(t proto.RuntimeConsoleAPICalledType) string {
	switch t {
	case proto.RuntimeConsoleAPICalledTypeError, proto.RuntimeConsoleAPICalledTypeAssert:
		return "error"
	case proto.RuntimeConsoleAPICalledTypeWarning:
		return "warning"
	case proto.RuntimeConsoleAPICalledTypeDebug:
		return "debug"
	case proto.RuntimeConsoleAPICalledTypeInfo:
		return "info"
	default:
		return "log"
	}
}
