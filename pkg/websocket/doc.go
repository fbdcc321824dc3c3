// Package websocket implements the wire-level pieces of the WebSocket
// protocol: the opening handshake key derivation and the frame codec.
//
// WebSockets are a way to have a persistent connection between a browser and a
// server. The package does not own a connection; it turns frames into bytes
// and bytes into frames so that a response driven by an external I/O loop
// can speak the protocol one turn at a time.
//
// Diagram
//
//	+----------------+                          +----------------+
//	|     Client     |                          |     Server     |
//	+----------------+                          +----------------+
//	         |                                           |
//	         |------------ GET /live/ HTTP/1.1 --------->|
//	         |                                           |
//	         |<- - HTTP/1.1 101 Switching Protocols - - -|
//	         |                                           |
//	         |------ Frame: masked text, "Hello" ------->|
//	         |                                           |
//	         |<----- Frame: unmasked text, "Hello" ------|
//	         |                                           |
//	         .                                           .
package websocket
