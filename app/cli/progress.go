package cli

import (
	"io"
	"time"

	"github.com/schollz/progressbar/v3"
)

// progress counts records on a terminal. A nil progress ignores every call.
type progress struct {
	bar *progressbar.ProgressBar
}

// newProgress returns nil unless w is a terminal. The bar spins until a
// total is known.
func newProgress(w io.Writer, desc, unit string) *progress {
	if !isTerminal(w) {
		return nil
	}

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetItsString(unit),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(15),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)

	return &progress{bar: bar}
}

func (p *progress) total(n int) {
	if p != nil {
		p.bar.ChangeMax(n)
	}
}

func (p *progress) add() {
	if p != nil {
		_ = p.bar.Add(1)
	}
}

func (p *progress) finish() {
	if p != nil {
		_ = p.bar.Finish()
	}
}
