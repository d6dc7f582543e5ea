package config

import "github.com/kelseyhightower/envconfig"

type WebhookConfig struct {
	DBDSN     string `envconfig:"DB_DSN" required:"true"`
	Port      string `envconfig:"PORT" default:"8080"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	// AI gateway (OpenAI-compatible chat completions)
	ProviderAPIKey  string `envconfig:"PROVIDER_API_KEY" required:"true"`
	ProviderBaseURL string `envconfig:"PROVIDER_BASE_URL" default:"https://openrouter.ai/api/v1"`
	ProviderReferer string `envconfig:"PROVIDER_REFERER"`
	ProviderTitle   string `envconfig:"PROVIDER_TITLE" default:"BotGenius Hub"`

	ChatModel     string `envconfig:"CHAT_MODEL" default:"tngtech/deepseek-r1t2-chimera:free"`
	CompactModel  string `envconfig:"COMPACT_MODEL" default:"xiaomi/mimo-v2-flash:free"`
	AgentModel    string `envconfig:"AGENT_MODEL" default:"xiaomi/mimo-v2-flash:free"`
	AgentMaxTurns int    `envconfig:"AGENT_MAX_TURNS" default:"8"`

	// Shopify Storefront API (commerce tools for ecommerce bots)
	ShopifyStoreDomain     string `envconfig:"SHOPIFY_STORE_DOMAIN"`
	ShopifyStorefrontToken string `envconfig:"SHOPIFY_STOREFRONT_TOKEN"`
	ShopifyAPIVersion      string `envconfig:"SHOPIFY_API_VERSION" default:"2025-07"`

	// Outbound reply queue. Empty queue URL disables delivery enqueue;
	// replies are then computed and logged only.
	AWSRegion          string `envconfig:"AWS_REGION" default:"us-east-1"`
	ReplyQueueURL      string `envconfig:"REPLY_QUEUE_URL"`
	LocalstackEndpoint string `envconfig:"LOCALSTACK_ENDPOINT"`

	// Wall-clock bound on one webhook's reply orchestration.
	ReplyTimeoutSeconds int `envconfig:"REPLY_TIMEOUT_SECONDS" default:"90"`
}

type ChatConfig struct {
	Port      string `envconfig:"PORT" default:"8080"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	ProviderAPIKey  string `envconfig:"PROVIDER_API_KEY" required:"true"`
	ProviderBaseURL string `envconfig:"PROVIDER_BASE_URL" default:"https://openrouter.ai/api/v1"`
	ProviderReferer string `envconfig:"PROVIDER_REFERER"`
	ProviderTitle   string `envconfig:"PROVIDER_TITLE" default:"BotGenius Hub"`

	ChatModel    string `envconfig:"CHAT_MODEL" default:"tngtech/deepseek-r1t2-chimera:free"`
	DefaultModel string `envconfig:"DEFAULT_MODEL" default:"qwen/qwen3-coder:free"`
}

type SenderConfig struct {
	DBDSN     string `envconfig:"DB_DSN" required:"true"`
	Port      string `envconfig:"PORT" default:"8080"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	AWSRegion          string `envconfig:"AWS_REGION" required:"true"`
	ReplyQueueURL      string `envconfig:"REPLY_QUEUE_URL" required:"true"`
	LocalstackEndpoint string `envconfig:"LOCALSTACK_ENDPOINT"`
	SQSWaitTime        int32  `envconfig:"SQS_WAIT_TIME" default:"20"`
	SQSMaxMsgs         int32  `envconfig:"SQS_MAX_MSGS" default:"10"`
	SQSVizTimeout      int32  `envconfig:"SQS_VISIBILITY_TIMEOUT" default:"60"`

	WorkerConcurrency int `envconfig:"WORKER_CONCURRENCY" default:"20"`

	// Per-pod rate limit for platform send APIs.
	SendRPSPerPod float64 `envconfig:"SEND_RPS_PER_POD" default:"5"`
	SendBurst     int     `envconfig:"SEND_BURST" default:"10"`
}

func LoadWebhook() WebhookConfig {
	var cfg WebhookConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}

func LoadChat() ChatConfig {
	var cfg ChatConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}

func LoadSender() SenderConfig {
	var cfg SenderConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}
