package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
)

// StageProgress shows a run advancing through a fixed number of stages.
type StageProgress struct {
	bar *progressbar.ProgressBar
}

// NewStageProgress creates a progress bar for stages steps. A nil writer
// discards output.
func NewStageProgress(w io.Writer, stages int) *StageProgress {
	if w == nil {
		w = io.Discard
	}
	bar := progressbar.NewOptions(stages,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetDescription("[magenta][bold]Starting[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[magenta]=[reset]",
			SaucerHead:    "[magenta]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			_, _ = fmt.Fprintln(w)
		}),
	)
	return &StageProgress{bar: bar}
}

// NewTerminalProgress writes to stderr so stdout stays clean for the summary.
func NewTerminalProgress(stages int) *StageProgress {
	return NewStageProgress(os.Stderr, stages)
}

// Describe labels the stage currently running.
func (p *StageProgress) Describe(stage string) {
	p.bar.Describe(fmt.Sprintf("[magenta][bold]%s[reset]", stage))
}

// Step marks the current stage done.
func (p *StageProgress) Step() {
	_ = p.bar.Add(1)
}

// Finish completes the bar, whatever stages remain. It is safe to call twice.
func (p *StageProgress) Finish() {
	if p.Done() {
		return
	}
	_ = p.bar.Finish()
}

// Abort stops the bar where it is unless it already finished.
func (p *StageProgress) Abort() {
	if p.Done() {
		return
	}
	_ = p.bar.Exit()
}

// Done reports whether the bar completed, either by stepping every stage or
// through Finish.
func (p *StageProgress) Done() bool {
	return p.bar.IsFinished()
}
