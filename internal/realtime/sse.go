package realtime

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// SSEDialer connects with text/event-stream.
type SSEDialer struct {
	Endpoint Endpoint
	Client   *http.Client
}

func (d *SSEDialer) Name() string { return "sse" }

func (d *SSEDialer) Dial(ctx context.Context, creds Credentials, lastEventID string) (Stream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(d.Endpoint.BaseURL, "/")+streamPath, nil)
	if err != nil {
		return nil, err
	}
	req.Header = d.Endpoint.header(creds)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if lastEventID != "" {
		req.Header.Set("Last-Event-ID", lastEventID)
	}

	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		_ = resp.Body.Close()
		return nil, ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		_ = resp.Body.Close()
		return nil, fmt.Errorf("stream returned %d", resp.StatusCode)
	}
	return &sseStream{body: resp.Body, r: newSSEReader(resp.Body)}, nil
}

type sseStream struct {
	body io.Closer
	r    *sseReader
}

func (s *sseStream) Next() (Event, error) { return s.r.Next() }
func (s *sseStream) Close() error         { return s.body.Close() }

// sseReader parses the text/event-stream framing: field lines, blank line
// dispatch, multi-line data joined with newlines, comments starting with ':'.
// The last event id outlives the frame that set it, as in the browser
// EventSource, so every dispatched event carries the newest id seen.
type sseReader struct {
	r      *bufio.Reader
	lastID string
}

func newSSEReader(r io.Reader) *sseReader {
	return &sseReader{r: bufio.NewReader(r)}
}

func (p *sseReader) Next() (Event, error) {
	var (
		evt     Event
		data    bytes.Buffer
		hasData bool
	)
	for {
		line, err := p.r.ReadString('\n')
		if err != nil && (line == "" || err != io.EOF) {
			return Event{}, err
		}
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "" && hasData:
			if evt.Name == "" {
				evt.Name = "message"
			}
			evt.ID = p.lastID
			evt.Data = data.Bytes()
			return evt, nil
		case line == "":
			evt = Event{}
		case strings.HasPrefix(line, ":"):
		default:
			field, value, _ := strings.Cut(line, ":")
			value = strings.TrimPrefix(value, " ")
			switch field {
			case "event":
				evt.Name = value
			case "data":
				if hasData {
					data.WriteByte('\n')
				}
				data.WriteString(value)
				hasData = true
			case "id":
				p.lastID = value
			}
		}
		if err == io.EOF {
			return Event{}, io.ErrUnexpectedEOF
		}
	}
}
