// Package client provides the `chatqueue` command-line client.
//
// The commands talk to a running node's HTTP API. The base URL is supplied
// by the application that embeds the commands via a BaseURLFunc; the
// standalone binary reads CHATQ_HTTP and defaults to
// http://127.0.0.1:8080.
//
// Usage
//
//	chatqueue stats
//	chatqueue recover
//	chatqueue dlq list --partition web:s-42
//	chatqueue dlq list --filter 'reason.contains("timeout")'
//	chatqueue dlq delete --partition web:s-42 --id MESSAGE_ID
package client
