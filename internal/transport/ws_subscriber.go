package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vektah/gqlparser/v2/ast"

	"graphqlcache"
)

// WSSubscriberConfig configures a WSSubscriber.
type WSSubscriberConfig struct {
	URL               string
	Headers           map[string]string
	KeepaliveInterval time.Duration
}

// WSSubscriber dials a graphql-ws style endpoint once per Resolve call,
// sending a "start" message and decoding "data"/"error"/"complete"
// frames, mirroring the server-side connection lifecycle the teacher's
// ConnectionManager drives in the opposite direction.
type WSSubscriber struct {
	url       string
	headers   map[string]string
	keepalive time.Duration
}

// NewWSSubscriber builds a WSSubscriber from cfg.
func NewWSSubscriber(cfg WSSubscriberConfig) *WSSubscriber {
	keepalive := cfg.KeepaliveInterval
	if keepalive == 0 {
		keepalive = 30 * time.Second
	}
	return &WSSubscriber{url: cfg.URL, headers: cfg.Headers, keepalive: keepalive}
}

type wsOperationMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type wsStartPayload struct {
	Query         string `json:"query"`
	OperationName string `json:"operationName,omitempty"`
}

type wsDataPayload struct {
	Data   map[string]interface{} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Resolve implements graphqlcache.Subscriber.
func (s *WSSubscriber) Resolve(ctx context.Context, query string, _ *ast.OperationDefinition, onMessage func(graphqlcache.ExecutorResult) error, opts graphqlcache.ExecutorOptions) error {
	header := make(map[string][]string)
	for k, v := range s.headers {
		header[k] = []string{v}
	}
	for k, v := range opts.Headers {
		header[k] = []string{v}
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, header)
	if err != nil {
		return fmt.Errorf("transport: dial subscription endpoint: %w", err)
	}
	defer conn.Close()

	payload, err := json.Marshal(wsStartPayload{Query: query, OperationName: opts.OperationName})
	if err != nil {
		return fmt.Errorf("transport: encode start payload: %w", err)
	}
	start := wsOperationMessage{Type: "start", ID: "1", Payload: payload}
	if err := conn.WriteJSON(start); err != nil {
		return fmt.Errorf("transport: send start message: %w", err)
	}

	keepaliveTicker := time.NewTicker(s.keepalive)
	defer keepaliveTicker.Stop()

	msgs := make(chan wsOperationMessage)
	readErrs := make(chan error, 1)
	go func() {
		for {
			var msg wsOperationMessage
			if err := conn.ReadJSON(&msg); err != nil {
				readErrs <- err
				close(msgs)
				return
			}
			msgs <- msg
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteJSON(wsOperationMessage{Type: "stop", ID: "1"})
			return ctx.Err()

		case <-keepaliveTicker.C:
			_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))

		case err := <-readErrs:
			return fmt.Errorf("transport: read subscription message: %w", err)

		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			switch msg.Type {
			case "data":
				var data wsDataPayload
				if err := json.Unmarshal(msg.Payload, &data); err != nil {
					return fmt.Errorf("transport: decode data message: %w", err)
				}
				result := graphqlcache.ExecutorResult{Data: data.Data}
				for _, e := range data.Errors {
					result.Errors = append(result.Errors, fmt.Errorf("%s", e.Message))
				}
				if err := onMessage(result); err != nil {
					return err
				}
			case "error":
				return fmt.Errorf("transport: subscription error: %s", msg.Payload)
			case "complete":
				return nil
			}
		}
	}
}
