package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/johnmikel306/learntrack-sub002/internal/gateway/protocol"
)

// Client is a websocket client of the review gateway.
type Client struct {
	conn        *websocket.Conn
	workspaceID string
	nextID      int
}

// message decodes any gateway message.
type message struct {
	protocol.BaseMessage
	Command  string                `json:"command"`
	OK       bool                  `json:"ok"`
	Code     string                `json:"code"`
	Message  string                `json:"message"`
	View     *protocol.View        `json:"view"`
	Results  []protocol.ItemResult `json:"results"`
	Sessions json.RawMessage       `json:"sessions"`
}

// Dial connects to the gateway.
func Dial(addr string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error {
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.conn.Close()
}

// Hello binds the connection to a workspace and returns its current view.
func (c *Client) Hello(apiKey, workspaceID string) (*protocol.View, error) {
	msg := protocol.HelloMessage{
		BaseMessage: protocol.BaseMessage{
			Type:        protocol.TypeHello,
			Ts:          time.Now().UnixMilli(),
			WorkspaceID: workspaceID,
		},
		APIKey:     apiKey,
		ClientMeta: map[string]string{"client": "qgen-cli"},
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		return nil, fmt.Errorf("write hello: %w", err)
	}

	reply, err := c.Read()
	if err != nil {
		return nil, fmt.Errorf("read hello_ack: %w", err)
	}
	if reply.Type == protocol.TypeError {
		return nil, fmt.Errorf("hello failed: %s - %s", reply.Code, reply.Message)
	}
	if reply.Type != protocol.TypeHelloAck {
		return nil, fmt.Errorf("expected hello_ack, got: %s", reply.Type)
	}
	c.workspaceID = reply.WorkspaceID
	return reply.View, nil
}

// Send writes a command and returns its request id.
func (c *Client) Send(cmd protocol.CommandMessage) (string, error) {
	c.nextID++
	cmd.RequestID = fmt.Sprintf("req_%d", c.nextID)
	cmd.Ts = time.Now().UnixMilli()
	cmd.WorkspaceID = c.workspaceID
	return cmd.RequestID, c.conn.WriteJSON(cmd)
}

// Read blocks for the next gateway message.
func (c *Client) Read() (*message, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", data, err)
	}
	return &msg, nil
}
