// ABOUTME: Streaming reader for the engine's newline-delimited event feed
// ABOUTME: Bad records surface as ErrDecode without ending the stream

package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// EventStream yields engine events one record at a time.
//
// Next returns io.EOF when the engine closes the feed, an ErrDecode-wrapped
// error for a single malformed record (the stream stays usable), and an
// ErrUnreachable-wrapped error when the connection fails.
type EventStream interface {
	Next() (Event, error)
	Close() error
}

// Events opens the engine event feed. A non-zero since asks the engine to
// replay events from that instant on.
func (c *Client) Events(ctx context.Context, since time.Time) (EventStream, error) {
	req := Request{Method: http.MethodGet, Path: "/events"}
	if !since.IsZero() {
		req.Query = url.Values{"since": {formatSince(since)}}
	}

	httpReq, err := c.newHTTPRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := c.streaming.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &RejectedError{StatusCode: resp.StatusCode, Body: truncate(data, maxErrorBody)}
	}

	return newLineStream(resp.Body), nil
}

// formatSince renders t the way the engine accepts it: seconds.nanoseconds.
func formatSince(t time.Time) string {
	return fmt.Sprintf("%d.%09d", t.Unix(), t.Nanosecond())
}

type lineStream struct {
	body   io.ReadCloser
	reader *bufio.Reader
	err    error // terminal error deferred until the last record is returned

	closeOnce sync.Once
}

func newLineStream(body io.ReadCloser) *lineStream {
	return &lineStream{body: body, reader: bufio.NewReader(body)}
}

func (s *lineStream) Next() (Event, error) {
	for {
		if s.err != nil {
			return Event{}, s.err
		}

		line, err := s.reader.ReadBytes('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.err = io.EOF
			} else {
				s.err = fmt.Errorf("%w: reading event stream: %v", ErrUnreachable, err)
			}
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			return Event{}, fmt.Errorf("%w: event record: %v", ErrDecode, err)
		}
		return ev, nil
	}
}

func (s *lineStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.body.Close()
	})
	return err
}
