package monitor

import (
	stderrors "errors"
	"fmt"

	"github.com/rileyhilliard/nodewatch/internal/codec"
	"github.com/rileyhilliard/nodewatch/internal/errors"
	"github.com/rileyhilliard/nodewatch/internal/session"
)

// Page is one detail view bound to a single stream topic.
type Page struct {
	Title    string
	Category codec.Category
	Scale    Scale
	// Unit formats the primary value.
	Unit func(float64) string
}

// Route is the page's navigation route.
func (p Page) Route() string {
	return "/" + string(p.Category)
}

// DefaultPages lists the detail pages in tab order.
var DefaultPages = []Page{
	{Title: "CPU", Category: codec.CategoryCPU, Scale: ScalePercent, Unit: formatPercent},
	{Title: "Memory", Category: codec.CategoryMemory, Scale: ScalePercent, Unit: formatPercent},
	{Title: "Disk", Category: codec.CategoryDisk, Scale: ScalePercent, Unit: formatPercent},
	{Title: "Network", Category: codec.CategoryNetwork, Scale: ScaleZeroBased, Unit: FormatRate},
	{Title: "Ethernet", Category: codec.CategoryEthernet, Scale: ScaleZeroBased, Unit: FormatRate},
	{Title: "Wi-Fi", Category: codec.CategoryWifi, Scale: ScaleZeroBased, Unit: FormatRate},
}

// Status is what a page shows about its stream. A page is never left
// loading indefinitely: it is always in exactly one of these.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusLive
	StatusReconnecting
	StatusError
	StatusPaused
)

// String returns the status label.
func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusLive:
		return "live"
	case StatusReconnecting:
		return "reconnecting"
	case StatusError:
		return "error"
	case StatusPaused:
		return "paused"
	default:
		return "disconnected"
	}
}

// deriveStatus maps session state and the last reported error to a status.
func deriveStatus(enabled bool, s *session.Session, lastErr error) Status {
	if !enabled {
		return StatusPaused
	}
	if s == nil {
		if lastErr != nil {
			return StatusError
		}
		return StatusDisconnected
	}

	switch s.State() {
	case session.StateConnecting:
		return StatusConnecting
	case session.StateOpen:
		return StatusLive
	}
	if s.RetryPending() {
		return StatusReconnecting
	}
	if lastErr != nil || s.Errored() {
		return StatusError
	}
	return StatusDisconnected
}

// statusDetail returns the secondary text for a status: the error summary
// and what the user can do about it.
func statusDetail(st Status, lastErr error, retryIn string) (detail, hint string) {
	switch st {
	case StatusReconnecting:
		detail = "retrying in " + retryIn
		if lastErr != nil {
			detail += ": " + errors.Summarize(lastErr)
		}
		return detail, ""
	case StatusError:
		if lastErr == nil {
			return "stream failed", "press r to retry"
		}
		hint = "press r to retry"
		var nwErr *errors.Error
		if stderrors.As(lastErr, &nwErr) && nwErr.Suggestion != "" {
			hint = nwErr.Suggestion
		}
		return errors.Summarize(lastErr), hint
	case StatusDisconnected:
		return "", "press r to reconnect"
	case StatusPaused:
		return "monitoring is off", "press m to resume"
	}
	return "", ""
}

func formatPercent(v float64) string {
	return fmt.Sprintf("%.1f%%", v)
}

// FormatRate formats bytes per second.
func FormatRate(bytesPerSecond float64) string {
	switch {
	case bytesPerSecond < 1024:
		return fmt.Sprintf("%.0f B/s", bytesPerSecond)
	case bytesPerSecond < 1024*1024:
		return fmt.Sprintf("%.1f KB/s", bytesPerSecond/1024)
	case bytesPerSecond < 1024*1024*1024:
		return fmt.Sprintf("%.1f MB/s", bytesPerSecond/(1024*1024))
	}
	return fmt.Sprintf("%.1f GB/s", bytesPerSecond/(1024*1024*1024))
}

// formatBytes formats a byte count.
func formatBytes(bytes float64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%.0f B", bytes)
	}
	div, exp := float64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	units := []string{"KB", "MB", "GB", "TB", "PB"}
	if exp >= len(units) {
		exp = len(units) - 1
	}
	return fmt.Sprintf("%.1f %s", bytes/div, units[exp])
}
