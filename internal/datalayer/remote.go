package datalayer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PutRequest is the body of POST /v1/items.
type PutRequest struct {
	Node string  `json:"node"`
	Path string  `json:"path"`
	Data DataMap `json:"data"`
}

// PutResponse is the body returned by POST /v1/items.
type PutResponse struct {
	Item    DataItem `json:"item"`
	Changed bool     `json:"changed"`
}

type connState int

const (
	stateDisconnected connState = iota
	stateConnecting
	stateConnected
)

// RemoteClient talks to a Hub served over HTTP: puts are POSTed and changes
// arrive on a server-sent event stream. When the stream drops the client
// reports OnSuspended and stays down until Connect is called again.
type RemoteClient struct {
	baseURL      string
	node         string
	httpClient   *http.Client
	streamClient *http.Client
	dispatch     Dispatcher
	callbacks    ConnectionCallbacks
	logger       *zap.Logger
	listeners    listenerSet

	mu      sync.Mutex
	state   connState
	gen     int
	cancel  context.CancelFunc
	pending []pendingPut
}

// NewRemoteClient creates a client for node against the hub at baseURL.
// timeout bounds each put request; the event stream has no timeout.
func NewRemoteClient(baseURL, node string, timeout time.Duration, dispatch Dispatcher, callbacks ConnectionCallbacks, logger *zap.Logger) *RemoteClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &RemoteClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		node:         node,
		httpClient:   &http.Client{Timeout: timeout},
		streamClient: &http.Client{},
		dispatch:     dispatch,
		callbacks:    callbacks,
		logger:       logger.With(zap.String("node", node)),
	}
}

func (c *RemoteClient) NodeID() string {
	return c.node
}

// Connect opens the event stream in the background. OnConnected is reported
// once the hub accepts the stream; OnFailed if it cannot be opened.
func (c *RemoteClient) Connect() {
	c.mu.Lock()
	if c.state != stateDisconnected {
		c.mu.Unlock()
		return
	}
	c.state = stateConnecting
	c.gen++
	gen := c.gen
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.mu.Unlock()

	go c.stream(ctx, gen)
}

// Disconnect closes the event stream without reporting a suspension.
func (c *RemoteClient) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.state = stateDisconnected
	c.gen++
}

func (c *RemoteClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateConnected
}

func (c *RemoteClient) AddListener(l DataListener) {
	c.listeners.add(l)
}

func (c *RemoteClient) RemoveListener(l DataListener) {
	c.listeners.remove(l)
}

// PutDataItem posts data at path in this node's namespace.
func (c *RemoteClient) PutDataItem(path string, data DataMap, callback func(PutResult)) {
	p := pendingPut{path: path, data: data.Clone(), callback: callback}
	c.mu.Lock()
	if c.state != stateConnected {
		c.pending = append(c.pending, p)
		c.mu.Unlock()
		c.logger.Debug("put held until connected", zap.String("path", path))
		return
	}
	c.mu.Unlock()
	go c.put(p)
}

// setState changes state only if gen is still the current session.
func (c *RemoteClient) setState(gen int, s connState) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	c.state = s
	return true
}

func (c *RemoteClient) stream(ctx context.Context, gen int) {
	u := c.baseURL + "/v1/events?node=" + url.QueryEscape(c.node)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		c.setState(gen, stateDisconnected)
		c.fail(fmt.Errorf("build event stream request: %w", err))
		return
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		if c.setState(gen, stateDisconnected) && ctx.Err() == nil {
			c.fail(fmt.Errorf("open event stream: %w", err))
		}
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		if c.setState(gen, stateDisconnected) {
			c.fail(fmt.Errorf("open event stream: HTTP %d", resp.StatusCode))
		}
		return
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.state = stateConnected
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	c.logger.Debug("event stream open")
	if c.callbacks != nil {
		c.dispatch(c.callbacks.OnConnected)
	}
	for _, p := range pending {
		go c.put(p)
	}

	err = readEvents(resp.Body, func(payload []byte) {
		var events []DataEvent
		dec := json.NewDecoder(bytes.NewReader(payload))
		dec.UseNumber()
		if err := dec.Decode(&events); err != nil {
			c.logger.Warn("discarding malformed event", zap.Error(err))
			return
		}
		if len(events) > 0 {
			c.listeners.notify(c.dispatch, events)
		}
	})
	if !c.setState(gen, stateDisconnected) || ctx.Err() != nil {
		return
	}
	c.logger.Info("event stream closed", zap.Error(err))
	if c.callbacks != nil {
		c.dispatch(func() { c.callbacks.OnSuspended(CauseNetworkLost) })
	}
}

func (c *RemoteClient) fail(err error) {
	c.logger.Debug("connect failed", zap.Error(err))
	if c.callbacks != nil {
		c.dispatch(func() { c.callbacks.OnFailed(err) })
	}
}

func (c *RemoteClient) put(p pendingPut) {
	result := c.doPut(p)
	if p.callback != nil {
		c.dispatch(func() { p.callback(result) })
	}
}

func (c *RemoteClient) doPut(p pendingPut) PutResult {
	body, err := json.Marshal(PutRequest{Node: c.node, Path: p.path, Data: p.data})
	if err != nil {
		return PutResult{Err: fmt.Errorf("encode put: %w", err)}
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/v1/items", bytes.NewReader(body))
	if err != nil {
		return PutResult{Err: fmt.Errorf("build put request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return PutResult{Err: fmt.Errorf("put %s: %w", p.path, err)}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return PutResult{Err: fmt.Errorf("read put response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return PutResult{Err: fmt.Errorf("put %s: HTTP %d: %s", p.path, resp.StatusCode, strings.TrimSpace(string(raw)))}
	}

	var out PutResponse
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return PutResult{Err: fmt.Errorf("parse put response: %w", err)}
	}
	return PutResult{Item: out.Item, Changed: out.Changed}
}

// readEvents parses a server-sent event stream and calls onData with the
// joined data lines of every dispatched event. Comment lines are skipped.
func readEvents(r io.Reader, onData func([]byte)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	var buf bytes.Buffer
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if buf.Len() > 0 {
				onData(append([]byte(nil), buf.Bytes()...))
				buf.Reset()
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "data:"):
			if buf.Len() > 0 {
				buf.WriteByte('\n')
			}
			buf.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return io.EOF
}
