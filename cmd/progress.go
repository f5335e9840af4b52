package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

const progressRefresh = 300 * time.Millisecond

// progressPrinter redraws a single status line on stderr while a batch of
// Safes is analysed.
type progressPrinter struct {
	label string
	out   io.Writer

	mu       sync.Mutex
	total    int
	ok       int
	failed   int
	elapsed  float64
	lastLine int

	updates  chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newProgressPrinter(total int, label string) *progressPrinter {
	if total <= 0 {
		total = 1
	}
	return &progressPrinter{
		label:   label,
		out:     os.Stderr,
		total:   total,
		updates: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

func (p *progressPrinter) Start() {
	go p.loop()
}

// Increment records one finished Safe and its duration in seconds.
func (p *progressPrinter) Increment(success bool, duration float64) {
	p.mu.Lock()
	if success {
		p.ok++
	} else {
		p.failed++
	}
	p.elapsed += duration
	p.mu.Unlock()

	select {
	case p.updates <- struct{}{}:
	default:
	}
}

// Stop ends the refresh loop and leaves the final line on screen.
func (p *progressPrinter) Stop() {
	p.stopOnce.Do(func() { close(p.done) })

	p.mu.Lock()
	defer p.mu.Unlock()
	p.render()
	fmt.Fprintln(p.out)
}

func (p *progressPrinter) loop() {
	ticker := time.NewTicker(progressRefresh)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-p.updates:
		case <-ticker.C:
		}
		p.mu.Lock()
		p.render()
		p.mu.Unlock()
	}
}

// render must be called with mu held.
func (p *progressPrinter) render() {
	completed := p.ok + p.failed
	if completed > p.total {
		p.total = completed
	}
	avg := 0.0
	if completed > 0 {
		avg = p.elapsed / float64(completed)
	}

	line := fmt.Sprintf("[%s] Progress: %d/%d (%.1f%%) OK:%d Fail:%d Avg:%.2fs",
		p.label, completed, p.total, float64(completed)/float64(p.total)*100, p.ok, p.failed, avg)
	pad := ""
	if n := p.lastLine - len(line); n > 0 {
		pad = strings.Repeat(" ", n)
	}
	fmt.Fprintf(p.out, "\r%s%s", line, pad)
	p.lastLine = len(line)
}
