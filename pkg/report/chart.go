package report

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/slacklytics/slacklytics/pkg/models"
)

// SVGChartRenderer renders the weekly hourly activity series as an SVG
// bar chart, one bar per hour-slot across the successful days.
type SVGChartRenderer struct {
	// Dir receives the rendered files; empty means the OS temp dir.
	Dir string
}

// RenderWeekly implements ChartRenderer. A week with no hourly data
// renders nothing.
func (r SVGChartRenderer) RenderWeekly(stats models.WeeklyStats) ([]Attachment, error) {
	if len(stats.HourlyMessageCounts) == 0 {
		return nil, nil
	}

	f, err := os.CreateTemp(r.Dir, "weekly-activity-*.svg")
	if err != nil {
		return nil, fmt.Errorf("create chart file: %w", err)
	}
	defer f.Close()

	if err := writeBarChart(f, stats.HourlyMessageCounts); err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("render chart: %w", err)
	}

	title := fmt.Sprintf("Hourly activity %s to %s", stats.StartDate, stats.EndDate)
	return []Attachment{{Path: f.Name(), Title: title}}, nil
}

func writeBarChart(w io.Writer, counts []int) error {
	const (
		barWidth  = 6
		gap       = 2
		chartH    = 120
		margin    = 10
		barColor  = "#4a7ebb"
		axisColor = "#999999"
	)

	maxCount := 1
	for _, c := range counts {
		if c > maxCount {
			maxCount = c
		}
	}

	width := margin*2 + len(counts)*(barWidth+gap)
	var b strings.Builder
	fmt.Fprintf(&b, "<svg xmlns=\"http://www.w3.org/2000/svg\" width=\"%d\" height=\"%d\">\n",
		width, chartH+margin*2)
	fmt.Fprintf(&b, "<line x1=\"%d\" y1=\"%d\" x2=\"%d\" y2=\"%d\" stroke=\"%s\"/>\n",
		margin, margin+chartH, width-margin, margin+chartH, axisColor)
	for i, c := range counts {
		h := c * chartH / maxCount
		x := margin + i*(barWidth+gap)
		y := margin + chartH - h
		fmt.Fprintf(&b, "<rect x=\"%d\" y=\"%d\" width=\"%d\" height=\"%d\" fill=\"%s\"/>\n",
			x, y, barWidth, h, barColor)
	}
	b.WriteString("</svg>\n")

	_, err := io.WriteString(w, b.String())
	return err
}
