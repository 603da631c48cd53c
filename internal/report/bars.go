package report

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-runewidth"
	"golang.org/x/term"
)

const (
	barRune             = '█'
	barSeparator        = " │ "
	minBarWidth         = 10
	terminalWidthBackup = 80
	barColor            = "\x1b[36m"
	colorReset          = "\x1b[0m"
)

// RenderDailyBars prints one horizontal bar per day, scaled to the busiest day.
// A width of zero sizes the chart to the terminal.
func RenderDailyBars(w io.Writer, title string, daily []DailyTotal, width int, forceColor bool) error {
	if len(daily) == 0 {
		return nil
	}
	if width <= 0 {
		width = terminalWidth()
	}
	var maxSecs int64
	labels := make([]string, len(daily))
	labelWidth := 0
	for i, d := range daily {
		if d.Seconds > maxSecs {
			maxSecs = d.Seconds
		}
		labels[i] = FormatDuration(d.Seconds)
		if d.Seconds == 0 {
			labels[i] = "-"
		}
		if lw := runewidth.StringWidth(labels[i]); lw > labelWidth {
			labelWidth = lw
		}
	}
	barWidth := BarWidthFor(width, labelWidth)
	useColor := shouldUseColor(w, forceColor)

	if title != "" {
		if _, err := fmt.Fprintln(w, title); err != nil {
			return err
		}
	}
	for i, d := range daily {
		n := 0
		if maxSecs > 0 {
			n = int(float64(d.Seconds) / float64(maxSecs) * float64(barWidth))
			if n == 0 && d.Seconds > 0 {
				n = 1
			}
		}
		bar := strings.Repeat(string(barRune), n)
		if useColor && n > 0 {
			bar = barColor + bar + colorReset
		}
		line := d.Date + barSeparator + bar + strings.Repeat(" ", barWidth-n) + " " + labels[i]
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "")
	return err
}

// BarWidthFor computes how many cells a bar may use within totalWidth.
func BarWidthFor(totalWidth, labelWidth int) int {
	dateWidth := len("2006-01-02") + runewidth.StringWidth(barSeparator)
	bar := totalWidth - dateWidth - labelWidth - 1
	if bar < minBarWidth {
		bar = minBarWidth
	}
	return bar
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return terminalWidthBackup
	}
	return width
}

func shouldUseColor(w io.Writer, force bool) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if force {
		return true
	}
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(file.Fd()))
}
