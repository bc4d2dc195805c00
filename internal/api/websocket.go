// internal/api/websocket.go
package api

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/Corphon/PersonaChat/internal/services"
	"github.com/Corphon/PersonaChat/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// WebSocket 升级器配置
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 在生产环境中应该进行更严格的检查
		return true
	},
}

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 45 * time.Second
	// 单条入站消息上限，聊天消息不应超过这个量级
	wsMaxMessageSize = 32 * 1024
)

// ChatSocketClient 表示一个流式聊天的 WebSocket 连接
// 同一连接上的请求串行处理：上一条回复没流完之前，
// 新到的请求会在读循环中排队
type ChatSocketClient struct {
	conn   *websocket.Conn
	send   chan []byte
	closed int32 // 原子操作标志，0=开启，1=关闭
}

// Close 安全关闭客户端连接
func (client *ChatSocketClient) Close() {
	if atomic.CompareAndSwapInt32(&client.closed, 0, 1) {
		if client.conn != nil {
			client.conn.Close()
		}
	}
}

// IsClosed 检查连接是否已关闭
func (client *ChatSocketClient) IsClosed() bool {
	return atomic.LoadInt32(&client.closed) == 1
}

// SendFrame 安全发送一帧JSON消息到客户端
func (client *ChatSocketClient) SendFrame(frame map[string]interface{}) {
	if client.IsClosed() {
		return
	}

	msgBytes, err := json.Marshal(frame)
	if err != nil {
		return
	}

	select {
	case client.send <- msgBytes:
	default:
		// 队列满，丢弃这一帧而不阻塞读循环
		utils.GetLogger().Warn("WebSocket发送队列已满，帧被丢弃", nil)
	}
}

// SendError 发送错误帧到客户端
func (client *ChatSocketClient) SendError(message string) {
	client.SendFrame(map[string]interface{}{
		"type":    "error",
		"message": sanitizeErrorMessage(message),
	})
}

// writePump 把发送队列中的帧写到连接上，并周期性发送ping
func (client *ChatSocketClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		client.Close()
	}()

	for {
		select {
		case msg, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ChatWebSocket 处理 /ws/chat 流式聊天连接
// 每条入站消息是一个ChatRequest，响应以分片帧流回：
// {type:"chunk"} ... {type:"done"}，失败时 {type:"error"}
func (h *Handler) ChatWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		utils.GetLogger().Error("WebSocket升级失败", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	client := &ChatSocketClient{
		conn: conn,
		send: make(chan []byte, 256),
	}

	conn.SetReadLimit(wsMaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	go client.writePump()
	defer func() {
		client.Close()
		close(client.send)
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				utils.GetLogger().Warn("WebSocket连接异常断开", map[string]interface{}{
					"error": err.Error(),
				})
			}
			return
		}

		var req ChatRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			client.SendError("无效的请求格式: " + err.Error())
			continue
		}

		h.streamChatToClient(c, client, &req)
	}
}

// streamChatToClient 执行一次流式聊天并把分片转发给客户端
func (h *Handler) streamChatToClient(c *gin.Context, client *ChatSocketClient, req *ChatRequest) {
	chunks, commit, err := h.ChatService.StreamChat(c.Request.Context(), services.ChatInput{
		SessionID: req.SessionID,
		Message:   req.Message,
		Persona:   req.Persona,
		Culture:   req.Culture,
		History:   req.ConversationHistory,
	})
	if err != nil {
		client.SendError(err.Error())
		return
	}

	var full string
	var simulated bool
	completed := false

	for chunk := range chunks {
		if chunk.Simulated {
			simulated = true
		}
		if chunk.Done {
			completed = true
			break
		}
		if chunk.Text == "" {
			continue
		}
		full += chunk.Text
		client.SendFrame(map[string]interface{}{
			"type": "chunk",
			"text": chunk.Text,
		})
	}

	if !completed {
		// 流在收到结束标志前中断，会话保持原状
		client.SendError("生成中断")
		return
	}

	commit(full)
	client.SendFrame(map[string]interface{}{
		"type":       "done",
		"response":   full,
		"persona":    req.Persona,
		"culture":    req.Culture,
		"session_id": req.SessionID,
		"simulated":  simulated,
	})
}
