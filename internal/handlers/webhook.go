package handlers

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/kmercer/salewatch/internal/ingest"
	"github.com/kmercer/salewatch/internal/model"
	"github.com/kmercer/salewatch/internal/orchestrator"
)

// SecretHeader carries the shared webhook secret.
const SecretHeader = "X-Webhook-Secret"

// Triggerer is the slice of the orchestrator the HTTP surface needs.
type Triggerer interface {
	ResolveTitle(title string) (string, error)
	Trigger(ctx context.Context, sourceID string, opts ingest.RunOptions) (orchestrator.Result, error)
	Running() []string
	Locked(ctx context.Context) ([]model.Lock, error)
}

// ChangePayload is the body an external page-watcher posts when a source
// site changes. Only SourceTitle carries routing information; the rest is
// kept as an audit note on the run.
type ChangePayload struct {
	SourceTitle   string `json:"source_title"`
	SourceURL     string `json:"source_url"`
	DiffAdded     string `json:"diff_added"`
	DiffRemoved   string `json:"diff_removed"`
	Snapshot      string `json:"snapshot"`
	TriggeredText string `json:"triggered_text"`
	Timestamp     string `json:"timestamp"`
}

// WebhookHandler handles POST /webhooks/change. Responses: 200 queued,
// 202 already running, 400 malformed title, 401 bad secret.
func WebhookHandler(orc Triggerer, secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !secretOK(c, secret) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid secret"})
		}

		var payload ChangePayload
		if err := c.BodyParser(&payload); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid payload"})
		}

		sourceID, err := orc.ResolveTitle(payload.SourceTitle)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}

		note := webhookNote(&payload)
		result, err := orc.Trigger(c.Context(), sourceID, ingest.RunOptions{
			Trigger:     model.TriggerWebhook,
			Note:        note,
			Incremental: true,
		})
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to queue crawl"})
		}

		return respondTrigger(c, sourceID, result)
	}
}

// TriggerHandler handles POST /trigger/:source, the manual per-source
// trigger with the same secret and response semantics as the webhook.
func TriggerHandler(orc Triggerer, secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !secretOK(c, secret) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid secret"})
		}

		sourceID := c.Params("source")
		full := c.QueryBool("full", false)

		result, err := orc.Trigger(c.Context(), sourceID, ingest.RunOptions{
			Trigger:     model.TriggerManual,
			Incremental: !full,
		})
		if err != nil {
			if errors.Is(err, orchestrator.ErrUnknownSource) {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to queue crawl"})
		}

		return respondTrigger(c, sourceID, result)
	}
}

func respondTrigger(c *fiber.Ctx, sourceID string, result orchestrator.Result) error {
	if result == orchestrator.ResultAlreadyRunning {
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"status": "already running",
			"source": sourceID,
		})
	}
	return c.JSON(fiber.Map{
		"status": "queued",
		"source": sourceID,
	})
}

func secretOK(c *fiber.Ctx, secret string) bool {
	if secret == "" {
		return false
	}
	got := c.Get(SecretHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(secret)) == 1
}

func webhookNote(p *ChangePayload) string {
	var parts []string
	if p.DiffAdded != "" {
		parts = append(parts, fmt.Sprintf("added: %s", p.DiffAdded))
	}
	if p.DiffRemoved != "" {
		parts = append(parts, fmt.Sprintf("removed: %s", p.DiffRemoved))
	}
	if p.TriggeredText != "" {
		parts = append(parts, fmt.Sprintf("trigger: %s", p.TriggeredText))
	}
	note := strings.Join(parts, "; ")
	if len(note) > 2000 {
		note = note[:2000]
	}
	return note
}
