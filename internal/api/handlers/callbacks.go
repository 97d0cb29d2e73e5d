package handlers

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/acme/group-call-bot/internal/queue"
)

// notificationBatch is the envelope the platform posts to the callback URL.
type notificationBatch struct {
	Value []json.RawMessage `json:"value"`
}

type notification struct {
	ChangeType   string `json:"changeType"`
	ResourceURL  string `json:"resourceUrl"`
	ResourceData struct {
		ID string `json:"id"`
	} `json:"resourceData"`
}

func (h *HandlerSet) callingProbe(ctx *fiber.Ctx) error {
	return ctx.SendString("calling-callback")
}

// callingNotification acknowledges every notification. Forwarding is best
// effort and never changes the response.
func (h *HandlerSet) callingNotification(ctx *fiber.Ctx) error {
	if h.deps.Notifications != nil {
		body := bytes.TrimSpace(ctx.Body())
		if len(body) > 0 {
			for _, msg := range parseNotifications(body) {
				if err := h.deps.Notifications.PublishNotification(ctx.UserContext(), msg); err != nil {
					h.deps.Logger.WithContext(ctx.UserContext()).Warn("calling callback: publish notification",
						zap.String("call_id", msg.CallID),
						zap.Error(err),
					)
				}
			}
		}
	}
	ctx.Status(fiber.StatusOK)
	return nil
}

// parseNotifications splits a batch into one message per entry. Bodies that do
// not match the batch shape are forwarded whole.
func parseNotifications(body []byte) []queue.NotificationMessage {
	now := time.Now().UTC()
	raw := json.RawMessage(append([]byte(nil), body...))

	var batch notificationBatch
	if err := json.Unmarshal(body, &batch); err != nil || len(batch.Value) == 0 {
		if !json.Valid(body) {
			encoded, _ := json.Marshal(string(body))
			raw = encoded
		}
		return []queue.NotificationMessage{{Payload: raw, ReceivedAt: now}}
	}

	msgs := make([]queue.NotificationMessage, 0, len(batch.Value))
	for _, entry := range batch.Value {
		var n notification
		_ = json.Unmarshal(entry, &n)
		msgs = append(msgs, queue.NotificationMessage{
			CallID:     callIDFromNotification(n),
			ChangeType: n.ChangeType,
			Payload:    entry,
			ReceivedAt: now,
		})
	}
	return msgs
}

func callIDFromNotification(n notification) string {
	const marker = "/communications/calls/"
	if idx := strings.Index(n.ResourceURL, marker); idx >= 0 {
		rest := n.ResourceURL[idx+len(marker):]
		if slash := strings.IndexByte(rest, '/'); slash >= 0 {
			rest = rest[:slash]
		}
		return rest
	}
	return n.ResourceData.ID
}
