package config

const (
	defaultConfigPath          = "~/.config/murmur/config.toml"
	defaultDataDir             = "~/.local/share/murmur"
	defaultLogDir              = "~/.local/share/murmur/logs"
	defaultTemplatesFile       = "~/.config/murmur/templates.yaml"
	defaultSocketName          = "murmurd.sock"
	defaultMinPollInterval     = 60
	defaultPollInterval        = 300
	defaultMaxPollInterval     = 3600
	defaultMonitorWorkers      = 4
	defaultFailureThreshold    = 5
	defaultPollsPerHour        = 30
	defaultRetryBaseSeconds    = 30
	defaultRetryMaxSeconds     = 1800
	defaultMinContentLength    = 5
	defaultMaxContentLength    = 500
	defaultDrainInterval       = 30
	defaultDrainBatchSize      = 100
	defaultDispatchWorkers     = 4
	defaultMaxAttempts         = 3
	defaultBackoffBaseSeconds  = 60
	defaultBackoffMaxSeconds   = 3600
	defaultFallbackReply       = "感谢您的留言，我们已收到，会尽快与您联系。"
	defaultStyleHint           = "professional"
	defaultMaxReplyLength      = 200
	defaultHourlyCap           = 10
	defaultAIProvider          = ProviderOpenRouter
	defaultAIBaseURL           = "https://openrouter.ai/api/v1/chat/completions"
	defaultAIModel             = "google/gemini-3-flash-preview"
	defaultGeminiModel         = "gemini-2.5-flash"
	defaultAIReferer           = "https://github.com/murmur/murmur"
	defaultAITitle             = "murmur reply composer"
	defaultAITimeoutSeconds    = 15
	defaultBridgeURL           = "http://127.0.0.1:8765"
	defaultBridgeTimeout       = 60
	defaultTemplateTieBreak    = TieBreakRecent
	defaultDedupRetentionDays  = 90
	defaultNotifyTimeout       = 10
	defaultNotifyDedupWindow   = 600
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultLogRetentionDays    = 30
	maxAllowedPollInterval     = 86400
	maxAllowedReplyLength      = 500
	minAllowedReplyLength      = 10
	maxAllowedDispatchAttempts = 20
)

// Composer providers.
const (
	ProviderOpenRouter = "openrouter"
	ProviderGemini     = "gemini"
)

// Template tie-break policies.
const (
	TieBreakRecent   = "recent"
	TieBreakPriority = "priority"
)

// Reply modes a classifier rule can request.
const (
	ModeTemplate = "template"
	ModeAI       = "ai"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:       defaultDataDir,
			LogDir:        defaultLogDir,
			TemplatesFile: defaultTemplatesFile,
		},
		Monitor: Monitor{
			MinPollInterval:     defaultMinPollInterval,
			DefaultPollInterval: defaultPollInterval,
			MaxPollInterval:     defaultMaxPollInterval,
			Workers:             defaultMonitorWorkers,
			FailureThreshold:    defaultFailureThreshold,
			PollsPerHour:        defaultPollsPerHour,
			RetryBaseSeconds:    defaultRetryBaseSeconds,
			RetryMaxSeconds:     defaultRetryMaxSeconds,
			MinContentLength:    defaultMinContentLength,
			MaxContentLength:    defaultMaxContentLength,
			FilterSpam:          true,
		},
		Dispatch: Dispatch{
			DrainInterval:      defaultDrainInterval,
			BatchSize:          defaultDrainBatchSize,
			Workers:            defaultDispatchWorkers,
			MaxAttempts:        defaultMaxAttempts,
			BackoffBaseSeconds: defaultBackoffBaseSeconds,
			BackoffMaxSeconds:  defaultBackoffMaxSeconds,
			FallbackReply:      defaultFallbackReply,
			StyleHint:          defaultStyleHint,
			MaxReplyLength:     defaultMaxReplyLength,
		},
		RateLimit: RateLimit{
			HourlyCap: defaultHourlyCap,
		},
		AI: AI{
			Provider:       defaultAIProvider,
			BaseURL:        defaultAIBaseURL,
			Model:          defaultAIModel,
			Referer:        defaultAIReferer,
			Title:          defaultAITitle,
			TimeoutSeconds: defaultAITimeoutSeconds,
		},
		Bridge: Bridge{
			URL:            defaultBridgeURL,
			TimeoutSeconds: defaultBridgeTimeout,
		},
		Classifier: Classifier{
			TemplateTieBreak: defaultTemplateTieBreak,
			Rules:            DefaultRules(),
		},
		Dedup: Dedup{
			RetentionDays: defaultDedupRetentionDays,
		},
		Notifications: Notifications{
			RequestTimeout:     defaultNotifyTimeout,
			TaskFailures:       true,
			SessionInvalid:     true,
			ReplyFailures:      true,
			DedupWindowSeconds: defaultNotifyDedupWindow,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}

// DefaultRules returns the built-in classifier rule table. Spam is checked
// first so solicitation never reaches a reply path.
func DefaultRules() []Rule {
	return []Rule{
		{
			Category: "Spam",
			Patterns: []string{
				`加.*微信`, `联系.*微信`, `咨询.*微信`,
				`广告`, `推广`, `刷.*粉`, `买.*粉`, `代.*刷`,
				`www\.`, `https?://`,
			},
			Priority: 1,
			Mode:     ModeTemplate,
		},
		{
			Category: "LegalConsultation",
			Keywords: []string{"咨询", "法律", "律师", "维权", "起诉", "合同", "纠纷"},
			Priority: 30,
			Mode:     ModeTemplate,
		},
		{
			Category: "Gratitude",
			Keywords: []string{"谢谢", "感谢", "厉害", "专业", "棒", "赞"},
			Priority: 10,
			Mode:     ModeTemplate,
		},
		{
			Category: "Challenge",
			Keywords: []string{"不对", "错误", "质疑", "反对", "不同意"},
			Priority: 20,
			Mode:     ModeAI,
		},
		{
			Category: "LegalConsultation",
			Patterns: []string{`[?？]\s*$`},
			Priority: 25,
			Mode:     ModeAI,
		},
	}
}
