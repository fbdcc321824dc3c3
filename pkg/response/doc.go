// Package response turns application results into HTTP/1.x bytes.
//
// Every response is emitted in two phases driven by an external I/O loop:
// WriteHeader once, then WriteBody once per loop turn until BodySent
// reports true. Streaming responses (files, upgraded WebSocket channels)
// produce one unit of output per WriteBody call, so a scheduler applies
// backpressure simply by not calling again until the socket is writable.
//
//	resp := response.NewHTML([]byte("<h1>hi</h1>"))
//	if err := resp.WriteHeader(conn); err != nil {
//		return err
//	}
//	for !resp.BodySent() {
//		if err := resp.WriteBody(conn); err != nil {
//			return err
//		}
//	}
//
// A response is bound to one connection and is not safe for concurrent use.
package response
