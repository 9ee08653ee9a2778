// Package logx wraps zerolog behind a small structured-logging API with
// console and file sinks. The zero Logger value is a safe no-op.
package logx
