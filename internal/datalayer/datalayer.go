// Package datalayer is a small cross-device key-value synchronization layer.
// Each node writes data items under its own namespace; a Hub stores the latest
// payload per (node, path) and notifies the other nodes when a payload changes.
// Writing an identical payload again is a no-op, so callers that need
// redelivery must add a differentiating field.
package datalayer

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidPath  = errors.New("invalid data item path")
	ErrInvalidNode  = errors.New("invalid node id")
	ErrNotConnected = errors.New("client not connected")
)

// EventType classifies a DataEvent.
type EventType int

const (
	EventChanged EventType = 1
	EventDeleted EventType = 2
)

func (t EventType) String() string {
	switch t {
	case EventChanged:
		return "changed"
	case EventDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// SuspendCause explains why a connected session was suspended.
type SuspendCause int

const (
	CauseServiceDisconnected SuspendCause = 1
	CauseNetworkLost         SuspendCause = 2
)

func (c SuspendCause) String() string {
	switch c {
	case CauseServiceDisconnected:
		return "service_disconnected"
	case CauseNetworkLost:
		return "network_lost"
	default:
		return "unknown"
	}
}

// DataItem is a payload stored at a path in a node's namespace.
type DataItem struct {
	Node string  `json:"node"`
	Path string  `json:"path"`
	Data DataMap `json:"data"`
}

// URI renders the item address as wear://node/path.
func (i DataItem) URI() string {
	return "wear://" + i.Node + i.Path
}

// DataEvent is delivered to listeners of nodes other than the writer.
type DataEvent struct {
	Type EventType `json:"type"`
	Item DataItem  `json:"item"`
}

// PutResult is delivered to the PutDataItem callback. Changed is false when the
// hub already held an identical payload and therefore delivered nothing.
type PutResult struct {
	Item    DataItem
	Changed bool
	Err     error
}

// Success reports whether the put was accepted by the hub.
func (r PutResult) Success() bool {
	return r.Err == nil
}

// ConnectionCallbacks receives session lifecycle notifications.
type ConnectionCallbacks interface {
	OnConnected()
	OnSuspended(cause SuspendCause)
	OnFailed(err error)
}

// DataListener receives batches of data events.
type DataListener interface {
	OnDataChanged(events []DataEvent)
}

// Dispatcher runs fn on the owner's callback queue. Returning false means the
// queue is closed and fn was dropped.
type Dispatcher func(fn func()) bool

// Client is a node's session with the data layer. All callbacks run through the
// Dispatcher supplied at construction. Puts issued before the session is
// connected are held and submitted once it is.
type Client interface {
	NodeID() string
	Connect()
	Disconnect()
	IsConnected() bool
	PutDataItem(path string, data DataMap, callback func(PutResult))
	AddListener(l DataListener)
	RemoveListener(l DataListener)
}

// ValidatePath checks that path is absolute, has no empty segments and no whitespace.
func ValidatePath(path string) error {
	if !strings.HasPrefix(path, "/") || len(path) < 2 {
		return fmt.Errorf("%w: %q must start with / and name an item", ErrInvalidPath, path)
	}
	if strings.HasSuffix(path, "/") || strings.Contains(path, "//") {
		return fmt.Errorf("%w: %q has an empty segment", ErrInvalidPath, path)
	}
	if strings.ContainsAny(path, " \t\r\n?#") {
		return fmt.Errorf("%w: %q contains reserved characters", ErrInvalidPath, path)
	}
	return nil
}

// ValidateNode checks a node id.
func ValidateNode(node string) error {
	if strings.TrimSpace(node) == "" || strings.ContainsAny(node, "/ \t\r\n") {
		return fmt.Errorf("%w: %q", ErrInvalidNode, node)
	}
	return nil
}
