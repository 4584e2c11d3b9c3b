package router

import (
	"context"
	"time"

	"connect-service/apperr"
	"connect-service/messenger"
	"connect-service/push"
	"connect-service/utils"

	"github.com/zishang520/socket.io/v2/socket"
	"go.uber.org/zap"
)

const socketCallTimeout = 10 * time.Second

type SocketDeps struct {
	Registry   *push.Registry
	Dispatcher *messenger.Dispatcher
	Aggregator *messenger.Aggregator
	Log        *zap.Logger
}

type socketError struct {
	Event   string `json:"event"`
	Message string `json:"message"`
}

// Socket turns every socket.io connection into the user's push channel and
// serves the messenger events clients send over it.
func Socket(server *socket.Server, deps SocketDeps) {
	server.On("connection", func(clients ...any) {
		client := clients[0].(*socket.Socket)
		meta, ok := client.Data().(*utils.TokenMetadata)
		if !ok {
			client.Disconnect(true)
			return
		}
		userID := meta.Id

		ch := deps.Registry.Register(userID)
		go forward(client, ch)

		client.On("disconnect", func(...any) {
			deps.Registry.UnregisterChannel(ch)
		})

		reply := func(event string, fn func(ctx context.Context) (any, error)) {
			ctx, cancel := context.WithTimeout(context.Background(), socketCallTimeout)
			defer cancel()

			data, err := fn(ctx)
			if err != nil {
				if apperr.HTTPStatus(err) >= 500 {
					deps.Log.Error("socket event failed", zap.String("event", event), zap.String("user", userID), zap.Error(err))
				}
				client.Emit("messenger_error", socketError{Event: event, Message: apperr.Message(err)})
				return
			}
			client.Emit(event, data)
		}

		conversations := func(event string) func(...any) {
			return func(...any) {
				reply(event, func(ctx context.Context) (any, error) {
					return deps.Aggregator.Summarize(ctx, userID)
				})
			}
		}
		client.On("init", conversations("init"))
		client.On("messenger_conversations", conversations("messenger_conversations"))

		client.On("messenger_send_message", func(args ...any) {
			reply("messenger_send_message", func(ctx context.Context) (any, error) {
				return deps.Dispatcher.Send(ctx, userID, argString(args, 0), messenger.Content{Text: argString(args, 1)})
			})
		})

		client.On("messenger_history", func(args ...any) {
			reply("messenger_history", func(ctx context.Context) (any, error) {
				return deps.Dispatcher.History(ctx, userID, argString(args, 0))
			})
		})

		client.On("messenger_delete_message", func(args ...any) {
			reply("messenger_delete_message", func(ctx context.Context) (any, error) {
				id := argString(args, 0)
				if err := deps.Dispatcher.Delete(ctx, userID, id); err != nil {
					return nil, err
				}
				return map[string]string{"message_id": id}, nil
			})
		})
	})
}

// forward relays push events to the socket until the channel is closed.
func forward(client *socket.Socket, ch *push.Channel) {
	for {
		select {
		case <-ch.Done():
			return
		case ev := <-ch.Events():
			client.Emit(ev.Type, ev.Payload)
		}
	}
}

func argString(args []any, i int) string {
	if i >= len(args) {
		return ""
	}
	s, _ := args[i].(string)
	return s
}
