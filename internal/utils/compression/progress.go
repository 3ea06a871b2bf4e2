package compression

import (
	"io"
	"os"
	"time"

	"github.com/megaguards/mg-setup/internal/utils/logger"
	"github.com/schollz/progressbar/v3"
)

type countingReader struct {
	r   io.Reader
	add func(n int64)
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.add(int64(n))
	}
	return n, err
}

// progress returns a reporter taking byte increments and a finish func. The
// reporter forwards cumulative totals to e.Progress or to a byte bar.
func (e *Extractor) progress(desc string) (func(n, total int64), func()) {
	var done int64
	if e.Progress != nil {
		return func(n, total int64) {
			done += n
			e.Progress(done, total)
		}, func() {}
	}

	out := e.Output
	if out == nil {
		out = os.Stderr
	}

	var bar *progressbar.ProgressBar
	return func(n, total int64) {
			if bar == nil {
				bar = NewBytesBar(out, total, "unpacking "+desc)
			}
			if n > 0 {
				_ = bar.Add(int(n))
			}
		}, func() {
			if bar == nil {
				return
			}
			if err := bar.Finish(); err != nil {
				logger.Logger().Debugf("failed to finish progress bar: %v", err)
			}
		}
}

// NewBytesBar returns a byte-count progress bar writing to out. total may be
// -1 when unknown.
func NewBytesBar(out io.Writer, total int64, desc string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(200*time.Millisecond),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}
