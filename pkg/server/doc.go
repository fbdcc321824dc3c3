// Package server drives responses over TCP connections.
//
// It reads one request per connection, asks a Handler for the response,
// writes the header block once and then the body one unit per turn. When
// the response upgrades the connection, inbound bytes are fed to the
// response between turns. Connections are closed after the response
// completes; keep-alive is not supported.
package server
