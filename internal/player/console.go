package player

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/gitoutofhere7/japan-post-demo/pkg/protocol"
)

const barWidth = 20

// ConsoleRenderer prints a line per update. Renderers created with the same
// writer lock via a shared mutex, so several players can share a terminal.
type ConsoleRenderer struct {
	w      io.Writer
	mu     *sync.Mutex
	prefix string
}

// NewConsoleRenderer creates a ConsoleRenderer. mu may be nil for a single
// renderer.
func NewConsoleRenderer(w io.Writer, mu *sync.Mutex, prefix string) *ConsoleRenderer {
	if mu == nil {
		mu = &sync.Mutex{}
	}
	return &ConsoleRenderer{w: w, mu: mu, prefix: prefix}
}

func (r *ConsoleRenderer) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	line := fmt.Sprintf(format, args...)
	fmt.Fprintf(r.w, "%s%s\n", r.prefix, line)
}

func (r *ConsoleRenderer) Status(message string) {
	r.printf("status   %s", message)
}

func (r *ConsoleRenderer) Progress(percent int) {
	filled := max(0, min(barWidth, percent*barWidth/100))
	r.printf("progress [%s%s] %3d%%", strings.Repeat("#", filled), strings.Repeat(".", barWidth-filled), percent)
}

func (r *ConsoleRenderer) Step(id protocol.StepID, description string) {
	r.printf("step     %s. %s", id, description)
}

func (r *ConsoleRenderer) LiveView(url string) {
	r.printf("live     %s", url)
}

func (r *ConsoleRenderer) Screenshot(imageBase64 string) {
	r.printf("shot     <%d bytes base64>", len(imageBase64))
}
