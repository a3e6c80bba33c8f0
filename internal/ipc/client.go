package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func call[Resp any](c *Client, method string, req any) (*Resp, error) {
	var resp Resp
	if err := c.client.Call(ServiceName+"."+method, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Start requests the daemon to start the pipeline.
func (c *Client) Start() (*StartResponse, error) {
	return call[StartResponse](c, "Start", StartRequest{})
}

// Stop requests the daemon to stop the pipeline.
func (c *Client) Stop() (*StopResponse, error) {
	return call[StopResponse](c, "Stop", StopRequest{})
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	return call[StatusResponse](c, "Status", StatusRequest{})
}

// TaskCreate registers a monitor task.
func (c *Client) TaskCreate(req TaskCreateRequest) (*TaskResponse, error) {
	return call[TaskResponse](c, "TaskCreate", req)
}

// TaskStart starts polling a task.
func (c *Client) TaskStart(id int64) (*TaskActionResponse, error) {
	return call[TaskActionResponse](c, "TaskStart", TaskIDRequest{ID: id})
}

// TaskStop stops a task after its in-flight cycle.
func (c *Client) TaskStop(id int64) (*TaskActionResponse, error) {
	return call[TaskActionResponse](c, "TaskStop", TaskIDRequest{ID: id})
}

// TaskDelete removes a task.
func (c *Client) TaskDelete(id int64) (*TaskActionResponse, error) {
	return call[TaskActionResponse](c, "TaskDelete", TaskIDRequest{ID: id})
}

// TaskList lists tasks, optionally filtered by status.
func (c *Client) TaskList(statuses []string) (*TaskListResponse, error) {
	return call[TaskListResponse](c, "TaskList", TaskListRequest{Statuses: statuses})
}

// ReplyList lists reply records, optionally filtered by status.
func (c *Client) ReplyList(statuses []string) (*ReplyListResponse, error) {
	return call[ReplyListResponse](c, "ReplyList", ReplyListRequest{Statuses: statuses})
}

// ReplyRetry re-queues a failed reply.
func (c *Client) ReplyRetry(id string) (*ReplyResponse, error) {
	return call[ReplyResponse](c, "ReplyRetry", ReplyIDRequest{ID: id})
}

// ReplyHistory returns the transitions of a reply.
func (c *Client) ReplyHistory(id string) (*ReplyHistoryResponse, error) {
	return call[ReplyHistoryResponse](c, "ReplyHistory", ReplyIDRequest{ID: id})
}

// Drain runs a drain pass immediately.
func (c *Client) Drain() (*DrainResponse, error) {
	return call[DrainResponse](c, "Drain", DrainRequest{})
}

// TestNotification sends a test notification through the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	return call[TestNotificationResponse](c, "TestNotification", TestNotificationRequest{})
}
