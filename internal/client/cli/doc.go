// Package cli provides the interactive Marketgram command-line client.
//
// It wires configuration, the local SQLite database, the REST client, two
// realtime WebSocket channels, and the upload coordinator into a REPL.
// Typical flow: restore or prompt for credentials, connect both channels,
// resume interrupted uploads, and execute user commands.
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
