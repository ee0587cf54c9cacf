package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/longkey1/flowchat/internal/flowchat/chat"
	"github.com/longkey1/flowchat/internal/flowchat/flow"
	"github.com/longkey1/flowchat/internal/flowchat/render"
)

func newTerminalRenderer() (*render.Renderer, error) {
	return render.NewRenderer(render.TerminalWidth(os.Stdout, 80), render.ColorEnabled(os.Stdout))
}

// printResult prints the assistant's answer and any notices of a turn.
func printResult(r *render.Renderer, res *chat.Result, openAction bool) {
	fmt.Print(r.RenderContent(res.AssistantMessage.Content))

	for _, n := range res.Notices {
		fmt.Fprintf(os.Stderr, "%s: %s\n", n.Title, n.Message)
	}
	if res.Err != nil && verbose {
		fmt.Fprintf(os.Stderr, "Flow %s failed: %v\n", res.Flow, res.Err)
	}

	if res.Action != nil && res.Action.Kind == flow.ActionOpenURL {
		if !openAction {
			fmt.Fprintf(os.Stderr, "\nSuggested link: %s (use --open to open it)\n", res.Action.URL)
			return
		}
		if err := openBrowser(res.Action.URL); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not open %s: %v\n", res.Action.URL, err)
		}
	}
}

// openBrowser opens target with the platform's default handler.
func openBrowser(target string) error {
	var c *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		c = exec.Command("open", target)
	case "windows":
		c = exec.Command("rundll32", "url.dll,FileProtocolHandler", target)
	default:
		c = exec.Command("xdg-open", target)
	}
	return c.Start()
}

// startSpinner shows a spinner on stderr until the returned func is called.
// Nothing is drawn when stderr is not a terminal.
func startSpinner(message string) func() {
	if !render.ColorEnabled(os.Stderr) {
		return func() {}
	}
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		spinners := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
		ticker := time.NewTicker(80 * time.Millisecond)
		defer ticker.Stop()
		for i := 0; ; i = (i + 1) % len(spinners) {
			fmt.Fprintf(os.Stderr, "\r%s %s", spinners[i], message)
			select {
			case <-done:
				fmt.Fprint(os.Stderr, "\r\033[K")
				return
			case <-ticker.C:
			}
		}
	}()
	return func() {
		close(done)
		<-stopped
	}
}
