package training

import (
	"fmt"
	"io"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// progress draws one bar per epoch. A nil *progress draws nothing.
type progress struct {
	p *mpb.Progress
}

func newProgress(w io.Writer) *progress {
	if w == nil {
		return nil
	}
	return &progress{p: mpb.New(mpb.WithOutput(w), mpb.WithWidth(64))}
}

// bar tracks one pass over n batches.
type bar struct {
	b *mpb.Bar
}

func (p *progress) bar(label string, n int) *bar {
	if p == nil {
		return nil
	}
	return &bar{b: p.p.AddBar(int64(n),
		mpb.PrependDecorators(
			decor.Name(label, decor.WCSyncSpaceR),
			decor.CountersNoUnit("%d / %d"),
		),
		mpb.AppendDecorators(
			decor.Percentage(),
			decor.AverageETA(decor.ET_STYLE_GO),
		),
	)}
}

func (b *bar) inc() {
	if b != nil {
		b.b.Increment()
	}
}

// done completes the bar even when fewer batches than planned arrived.
func (b *bar) done(err error) {
	if b == nil {
		return
	}
	if err != nil {
		b.b.Abort(false)
		return
	}
	b.b.SetTotal(-1, true)
}

func (p *progress) wait() {
	if p != nil {
		p.p.Wait()
	}
}

func epochLabel(phase string, epoch, total int) string {
	return fmt.Sprintf("%s %d/%d", phase, epoch, total)
}
