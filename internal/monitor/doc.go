// Package monitor implements the terminal dashboard for one node's live
// metrics.
//
// The dashboard uses Bubble Tea (Model-Update-View). It never polls: every
// panel reads from a streaming session owned by the mux package, and stream
// callbacks only wake the program so the next View reflects the session's
// buffers and state.
//
// # Layout
//
//	Sidebar  - mini-graphs from the shared aggregate stream (cpu, memory,
//	           disks, interfaces), kept open across page changes
//	Page     - one detail page per category, each on its own private stream
//
// # Lifecycle
//
// Streams are bound to a lifecycle.Coordinator. The sidebar binding has no
// route; each page binding uses the page route, so navigating closes the old
// page's stream. Quitting unloads every binding.
//
// # Status
//
// Each panel is always in one of: connecting, live, reconnecting, error,
// disconnected or paused. Errors show their summary and a suggestion.
//
// # Keyboard Shortcuts
//
//	q, Ctrl+C       - Quit
//	r               - Restart streams (clears graphs)
//	m               - Toggle monitoring
//	Tab / l / →     - Next page
//	S-Tab / h / ←   - Previous page
//	1-9             - Jump to page
//	?               - Toggle help overlay
package monitor
