// Package webhookserver is the inbound edge: it authenticates platform
// webhook deliveries, audits them, and drives the reply pipeline.
package webhookserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"botgw/internal/domain"
	"botgw/internal/observability"
	"botgw/internal/platform"
	sqsqueue "botgw/internal/queue/sqs"
	"botgw/internal/store"
	"botgw/internal/util"
)

const maxBodyBytes = 1 << 20

type Store interface {
	GetActiveDeployment(ctx context.Context, deploymentID, secret string) (store.DeploymentWithBot, bool, error)
	InsertWebhookLog(ctx context.Context, in store.WebhookLogInsert) error
	ListWebhookLogs(ctx context.Context, deploymentID string, limit int) ([]store.WebhookLog, error)
}

type Replier interface {
	Reply(ctx context.Context, bot domain.BotConfig, msg domain.CanonicalMessage) (string, error)
}

type Enqueuer interface {
	EnqueueReply(ctx context.Context, job sqsqueue.ReplyJob) error
}

type Gateway struct {
	Store   Store
	Replier Replier

	// Queue is optional; nil means replies are computed and logged but not
	// delivered anywhere.
	Queue Enqueuer

	LogIDGen func() string
	JobIDGen func() string

	// Wall-clock bound on reply orchestration per delivery.
	ReplyTimeout time.Duration
}

func (g *Gateway) Register(r *mux.Router) {
	r.HandleFunc("/v1/webhooks/{platform}", g.handleDelivery).Methods(http.MethodPost)
	r.HandleFunc("/v1/webhooks/{platform}", g.handleVerify).Methods(http.MethodGet)
	r.HandleFunc("/v1/webhook-logs", g.handleListLogs).Methods(http.MethodGet)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// authenticate resolves the deployment for a delivery. Missing deployment,
// wrong secret and deactivated deployment all produce the same 403 so probes
// cannot tell which part was wrong.
func (g *Gateway) authenticate(w http.ResponseWriter, r *http.Request) (store.DeploymentWithBot, bool) {
	deploymentID := r.URL.Query().Get("deployment_id")
	secret := r.URL.Query().Get("secret")
	if deploymentID == "" || secret == "" {
		writeError(w, http.StatusBadRequest, errMissingParams)
		return store.DeploymentWithBot{}, false
	}

	dep, found, err := g.Store.GetActiveDeployment(r.Context(), deploymentID, secret)
	if err != nil {
		slog.Error("deployment lookup failed", "err", err, "deployment_id", deploymentID)
		writeError(w, http.StatusInternalServerError, errDependency)
		return store.DeploymentWithBot{}, false
	}
	if !found {
		writeError(w, http.StatusForbidden, errInvalidDeployment)
		return store.DeploymentWithBot{}, false
	}
	return dep, true
}

// handleVerify serves the WhatsApp subscription handshake. Other platforms
// have no GET leg.
func (g *Gateway) handleVerify(w http.ResponseWriter, r *http.Request) {
	p, ok := domain.ParsePlatform(mux.Vars(r)["platform"])
	if !ok || p != domain.PlatformWhatsApp {
		writeError(w, http.StatusNotFound, errUnknownPlatform)
		return
	}

	dep, ok := g.authenticate(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	if q.Get("hub.mode") == "subscribe" && q.Get("hub.verify_token") == dep.Deployment.WebhookSecret {
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, q.Get("hub.challenge"))
		return
	}
	http.Error(w, "Forbidden", http.StatusForbidden)
}

type webhookLogView struct {
	ID             string          `json:"id"`
	DeploymentID   string          `json:"deployment_id"`
	RequestBody    json.RawMessage `json:"request_body"`
	ResponseStatus int             `json:"response_status"`
	Error          string          `json:"error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// handleListLogs is the debugging surface: recent audit rows for one
// deployment, guarded by the same deployment credentials as deliveries.
func (g *Gateway) handleListLogs(w http.ResponseWriter, r *http.Request) {
	dep, ok := g.authenticate(w, r)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	logs, err := g.Store.ListWebhookLogs(r.Context(), dep.Deployment.ID, limit)
	if err != nil {
		slog.Error("webhook log list failed", "err", err, "deployment_id", dep.Deployment.ID)
		writeError(w, http.StatusInternalServerError, errDependency)
		return
	}

	out := make([]webhookLogView, 0, len(logs))
	for _, l := range logs {
		out = append(out, webhookLogView{
			ID:             l.ID,
			DeploymentID:   l.DeploymentID,
			RequestBody:    json.RawMessage(l.RequestBody),
			ResponseStatus: l.ResponseStatus,
			Error:          l.Error,
			CreatedAt:      l.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": out})
}

func (g *Gateway) handleDelivery(w http.ResponseWriter, r *http.Request) {
	p, ok := domain.ParsePlatform(mux.Vars(r)["platform"])
	if !ok {
		writeError(w, http.StatusNotFound, errUnknownPlatform)
		return
	}

	dep, ok := g.authenticate(w, r)
	if !ok {
		observability.WebhookDeliveries.WithLabelValues(string(p), "rejected").Inc()
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	// Discord verification pings are answered before anything else, logging
	// included; Discord disables the endpoint if the ping round-trip is slow.
	if p == domain.PlatformDiscord && platform.IsDiscordPing(body) {
		observability.WebhookDeliveries.WithLabelValues(string(p), "ping").Inc()
		writeJSON(w, http.StatusOK, map[string]int{"type": 1})
		return
	}

	// Audit is best effort: a logging failure never blocks the reply path.
	logEntry := store.WebhookLogInsert{
		ID:             g.LogIDGen(),
		DeploymentID:   dep.Deployment.ID,
		RequestBody:    json.RawMessage(body),
		ResponseStatus: http.StatusOK,
		Now:            util.NowUTC(),
	}
	if err := g.Store.InsertWebhookLog(r.Context(), logEntry); err != nil {
		slog.Error("webhook log insert failed", "err", err, "deployment_id", dep.Deployment.ID)
	}

	msg, ok := platform.Normalize(p, body)
	if !ok {
		// valid delivery with nothing to answer (status callback, edit, ...)
		observability.WebhookDeliveries.WithLabelValues(string(p), "ignored").Inc()
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
		return
	}

	ctx := r.Context()
	if g.ReplyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.ReplyTimeout)
		defer cancel()
	}

	bot := domain.BotConfig{
		Personality: dep.Bot.Personality,
		Description: dep.Bot.Description,
		Greeting:    dep.Bot.Greeting,
		BotType:     dep.Bot.BotType,
	}
	reply, err := g.Replier.Reply(ctx, bot, msg)
	if err != nil {
		slog.Error("reply orchestration failed", "err", err,
			"deployment_id", dep.Deployment.ID, "platform", p)
		observability.WebhookDeliveries.WithLabelValues(string(p), "error").Inc()
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	slog.Info("bot reply computed", "deployment_id", dep.Deployment.ID,
		"platform", p, "sender", msg.SenderID, "reply_len", len(reply))

	// Delivery is also best effort from the webhook's point of view; the
	// platform already got its message through.
	if g.Queue != nil {
		job := sqsqueue.ReplyJob{
			JobID:        g.JobIDGen(),
			DeploymentID: dep.Deployment.ID,
			Platform:     p,
			Recipient:    msg.ReplyTo,
			Text:         reply,
		}
		if err := g.Queue.EnqueueReply(ctx, job); err != nil {
			slog.Error("reply enqueue failed", "err", err, "job_id", job.JobID)
			observability.ReplyEnqueues.WithLabelValues("error").Inc()
		} else {
			observability.ReplyEnqueues.WithLabelValues("ok").Inc()
		}
	}

	observability.WebhookDeliveries.WithLabelValues(string(p), "ok").Inc()
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
