// ABOUTME: Minimal HTTP transport that tolerates Shoutcast's "ICY 200 OK" status line
// ABOUTME: One TCP connection per request; no pooling, matching a one-shot streaming GET
package reactor

import (
	"bufio"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
)

// icyTransport is an http.RoundTripper that writes the request directly
// to a dialed connection and rewrites a Shoutcast "ICY <code> <reason>"
// status line into the "HTTP/1.0 <code> <reason>" form net/http's
// response parser expects, before handing the rest of the connection to
// http.ReadResponse. net/http's built-in transport has no hook for this
// rewrite, which is why this subsystem can't just use http.Transport.
type icyTransport struct {
	dialer net.Dialer
	proxy  *url.URL
}

func (t *icyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	target := req.URL.Host
	if t.proxy != nil {
		target = t.proxy.Host
	}

	conn, err := t.dialer.DialContext(req.Context(), "tcp", target)
	if err != nil {
		return nil, err
	}

	if t.proxy != nil {
		err = req.WriteProxy(conn)
	} else {
		err = req.Write(conn)
	}
	if err != nil {
		conn.Close()
		return nil, err
	}

	br := bufio.NewReader(conn)
	resp, err := readICYResponse(br, req)
	if err != nil {
		conn.Close()
		return nil, err
	}
	resp.Body = &connClosingBody{ReadCloser: resp.Body, conn: conn}
	return resp, nil
}

// readICYResponse parses an HTTP response from r, rewriting a leading
// "ICY " status-line token to "HTTP/1.0 " first. Split out from
// RoundTrip so it can be exercised directly against a buffered string
// in tests, without a real socket.
func readICYResponse(r *bufio.Reader, req *http.Request) (*http.Response, error) {
	peek, err := r.Peek(4)
	if err == nil && string(peek) == "ICY " {
		if _, err := r.Discard(4); err != nil {
			return nil, err
		}
		rest, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		combined := io.MultiReader(strings.NewReader("HTTP/1.0 "+rest), r)
		r = bufio.NewReader(combined)
	}
	return http.ReadResponse(r, req)
}

// connClosingBody closes the underlying connection when the response
// body is closed, since icyTransport never pools connections.
type connClosingBody struct {
	io.ReadCloser
	conn net.Conn
}

// Close closes the connection before the body: a Read blocked on the
// connection then returns with an error and releases the body's lock,
// and the body's own Close does not wait for the rest of the response.
func (b *connClosingBody) Close() error {
	cerr := b.conn.Close()
	err := b.ReadCloser.Close()
	if err == nil {
		err = cerr
	}
	return err
}
