package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/datallboy/gofetch/internal/domain"
)

// renderProgress repaints a single CLI progress line once a second.
func renderProgress(ctx context.Context, group *domain.RequestGroup) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			printProgress(group.Snapshot())
		case <-ctx.Done():
			return
		}
	}
}

func printProgress(p domain.Progress) {
	if p.TotalBytes == 0 {
		fmt.Printf("\r%d MB | %.2f Mbps      ",
			p.BytesWritten/1024/1024, mbps(p.Speed))
		return
	}

	percent := float64(p.BytesWritten) / float64(p.TotalBytes) * 100

	etaStr := "calc..."
	if p.Speed > 0 {
		etaSeconds := (p.TotalBytes - p.BytesWritten) / p.Speed
		etaStr = (time.Duration(etaSeconds) * time.Second).String()
	}

	// [====>   ] bar
	const barWidth = 20
	completedWidth := int(percent / 100 * barWidth)
	bar := strings.Repeat("=", completedWidth)
	if completedWidth < barWidth {
		bar += ">" + strings.Repeat(" ", barWidth-completedWidth-1)
	}

	fmt.Printf("\r[%s] %5.1f%% | Speed: %6.2f Mbps | ETA: %-7s | %d/%d MB      ",
		bar, percent, mbps(p.Speed), etaStr,
		p.BytesWritten/1024/1024, p.TotalBytes/1024/1024)
}

func mbps(bytesPerSec int64) float64 {
	return float64(bytesPerSec) * 8 / (1024 * 1024)
}
