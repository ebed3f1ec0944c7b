// Package logx configures horobot's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - An optional Slack sink (min-level + rate limiting) for an ops channel
package logx
