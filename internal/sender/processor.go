// Package sender consumes reply jobs and delivers them through the platform
// send APIs.
package sender

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"botgw/internal/domain"
	"botgw/internal/observability"
	"botgw/internal/outbound"
	"botgw/internal/provider"
	sqsqueue "botgw/internal/queue/sqs"
	"botgw/internal/store"
)

type Store interface {
	GetDeployment(ctx context.Context, deploymentID string) (store.Deployment, bool, error)
}

// PlatformSender delivers one message. Implementations return the upstream
// HTTP status when they have one.
type PlatformSender interface {
	Send(ctx context.Context, to, text string) (int, error)
}

type Processor struct {
	Store   Store
	Limiter *rate.Limiter
	Breaker *gobreaker.CircuitBreaker
	HTTP    *http.Client

	// Factory seams for tests; nil means the real clients.
	WhatsAppFactory func(accessToken, phoneNumberID string) PlatformSender
	TelegramFactory func(token string) (PlatformSender, error)
}

func configString(cfg map[string]any, key string) string {
	v, _ := cfg[key].(string)
	return v
}

func (p *Processor) senderFor(d store.Deployment) (PlatformSender, error) {
	switch d.Platform {
	case domain.PlatformWhatsApp:
		token := configString(d.Config, "whatsapp_access_token")
		phoneID := configString(d.Config, "phone_number_id")
		if token == "" || phoneID == "" {
			return nil, errors.New("whatsapp credentials missing from deployment config")
		}
		if p.WhatsAppFactory != nil {
			return p.WhatsAppFactory(token, phoneID), nil
		}
		return &outbound.WhatsAppClient{AccessToken: token, PhoneNumberID: phoneID, HTTP: p.HTTP}, nil
	case domain.PlatformTelegram:
		token := configString(d.Config, "telegram_bot_token")
		if token == "" {
			return nil, errors.New("telegram bot token missing from deployment config")
		}
		if p.TelegramFactory != nil {
			return p.TelegramFactory(token)
		}
		return outbound.NewTelegramClient(token)
	}
	return nil, errors.New("no send client for platform " + string(d.Platform))
}

// Process delivers one reply job. A nil return deletes the message; an error
// leaves it for SQS redrive. Jobs that can never succeed (missing deployment,
// missing credentials, unsupported platform) are dropped, not redriven.
func (p *Processor) Process(ctx context.Context, job sqsqueue.ReplyJob) error {
	d, found, err := p.Store.GetDeployment(ctx, job.DeploymentID)
	if err != nil {
		return err
	}
	if !found || !d.IsActive {
		slog.Warn("dropping reply for missing or inactive deployment",
			"job_id", job.JobID, "deployment_id", job.DeploymentID)
		observability.OutboundSends.WithLabelValues(string(job.Platform), "dropped").Inc()
		return nil
	}

	sender, err := p.senderFor(d)
	if err != nil {
		slog.Warn("dropping undeliverable reply", "job_id", job.JobID, "err", err)
		observability.OutboundSends.WithLabelValues(string(job.Platform), "dropped").Inc()
		return nil
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if p.Limiter != nil {
			waitCtx, cancelWait := context.WithTimeout(ctx, 2*time.Second)
			err := p.Limiter.Wait(waitCtx)
			cancelWait()
			if err != nil {
				observability.OutboundSends.WithLabelValues(string(job.Platform), "rate_limited_local").Inc()
				time.Sleep(200 * time.Millisecond)
				continue
			}
		}

		status, err := p.executeWithBreaker(ctx, sender, job)
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			observability.OutboundSends.WithLabelValues(string(job.Platform), "cb_open").Inc()
			// transient provider protection; let SQS redrive later
			return err
		}
		if err == nil {
			observability.OutboundSends.WithLabelValues(string(job.Platform), "ok").Inc()
			return nil
		}

		lastErr = err
		var sce sendCallError
		if errors.As(err, &sce) {
			status = sce.httpStatus
		}
		observability.OutboundSends.WithLabelValues(string(job.Platform), "error").Inc()
		slog.Error("platform send failed", "job_id", job.JobID, "platform", job.Platform,
			"status", strconv.Itoa(status), "err", err)

		// classify by HTTP status when the call got that far, by transport
		// error otherwise
		retryable := provider.ShouldRetry(sce.err, 0)
		if status > 0 {
			retryable = provider.ShouldRetry(nil, status)
		}
		if !retryable {
			// permanent rejection; redriving would loop forever
			return nil
		}
		time.Sleep(provider.Backoff(attempt))
	}
	return lastErr
}

func (p *Processor) executeWithBreaker(ctx context.Context, sender PlatformSender, job sqsqueue.ReplyJob) (int, error) {
	call := func() (any, error) {
		reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		status, callErr := sender.Send(reqCtx, job.Recipient, job.Text)
		if callErr != nil {
			return nil, sendCallError{err: callErr, httpStatus: status}
		}
		return status, nil
	}

	if p.Breaker == nil {
		res, err := call()
		return resultStatus(res), err
	}
	res, err := p.Breaker.Execute(call)
	return resultStatus(res), err
}

func resultStatus(res any) int {
	if s, ok := res.(int); ok {
		return s
	}
	return 0
}

type sendCallError struct {
	err        error
	httpStatus int
}

func (e sendCallError) Error() string { return e.err.Error() }
func (e sendCallError) Unwrap() error { return e.err }
