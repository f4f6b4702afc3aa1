package main

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/term"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// ProgressPrinter shows a one-line status with elapsed or remaining seconds on stderr.
//
// Usage:
//
//	p := NewProgressPrinter("Connecting to AA:BB...", "Connecting")
//	p.Start()
//	defer p.Stop()
//
// A ProgressPrinter is single-use: Start at most once, Stop as often as convenient.
// When stderr is not a terminal it prints nothing, so piped output and tests stay clean.
type ProgressPrinter struct {
	out       io.Writer
	enabled   bool
	prefix    string
	phase     atomic.Value // string
	startTime time.Time
	ticker    atomic.Pointer[time.Ticker]
	stopChan  chan struct{}
	done      chan struct{}
	started   atomic.Bool
	countUp   bool
	duration  time.Duration
}

// NewProgressPrinter creates a printer that counts elapsed seconds.
func NewProgressPrinter(prefix, phase string) *ProgressPrinter {
	p := &ProgressPrinter{
		out:     os.Stderr,
		enabled: term.IsTerminal(int(os.Stderr.Fd())),
		prefix:  prefix,
		countUp: true,
	}
	p.phase.Store(phase)
	return p
}

// NewCountdownProgressPrinter creates a printer that counts down from duration.
func NewCountdownProgressPrinter(prefix, phase string, duration time.Duration) *ProgressPrinter {
	p := NewProgressPrinter(prefix, phase)
	p.countUp = false
	p.duration = duration
	return p
}

// Start begins displaying progress updates in a background goroutine.
// Panics if called more than once on the same ProgressPrinter instance.
func (p *ProgressPrinter) Start() {
	if !p.started.CompareAndSwap(false, true) {
		panic("ProgressPrinter.Start called more than once")
	}
	if !p.enabled {
		return
	}

	p.done = make(chan struct{})
	p.stopChan = make(chan struct{})
	p.startTime = time.Now()
	ticker := time.NewTicker(progressUpdateInterval)
	p.ticker.Store(ticker)

	fmt.Fprintf(p.out, "\r%s (%s...)   ", p.prefix, p.phase.Load().(string))
	go p.loop(ticker)
}

func (p *ProgressPrinter) loop(ticker *time.Ticker) {
	defer close(p.done)

	for {
		select {
		case <-p.stopChan:
			return
		case <-ticker.C:
			elapsed := time.Since(p.startTime)
			var seconds int
			if p.countUp {
				seconds = int(elapsed.Seconds())
			} else if remaining := p.duration - elapsed; remaining > 0 {
				// Round to the nearest second, e.g. 3.7s -> 4s
				seconds = int(remaining.Seconds() + 0.5)
			}
			p.print(p.phase.Load().(string), seconds)
		}
	}
}

func (p *ProgressPrinter) print(phase string, seconds int) {
	if seconds > 0 {
		fmt.Fprintf(p.out, "\r%s (%s %ds)   ", p.prefix, phase, seconds)
	} else {
		fmt.Fprintf(p.out, "\r%s (%s...)   ", p.prefix, phase)
	}
}

// SetPhase changes the label shown next to the timer. Safe for concurrent use.
func (p *ProgressPrinter) SetPhase(phase string) {
	p.phase.Store(phase)
}

// Stop stops the display and clears the line. Only the first call has an effect.
func (p *ProgressPrinter) Stop() {
	ticker := p.ticker.Swap(nil)
	if ticker == nil {
		return
	}

	ticker.Stop()
	close(p.stopChan)
	<-p.done

	fmt.Fprint(p.out, clearLineSequence)
}
