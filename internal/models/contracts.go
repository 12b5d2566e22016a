package models

// UploadedImage is one verified chart held by a timeframe slot.
type UploadedImage struct {
	Data      string `json:"-"`
	MediaType string `json:"mediaType"`
	Preview   string `json:"previewUrl"`
	Size      int    `json:"size"`
}

type KeyIndicator struct {
	Indicator string `json:"indicator"`
	Signal    string `json:"signal"`
	Details   string `json:"details"`
}

type Verdict string

const (
	VerdictBullish Verdict = "BULLISH"
	VerdictBearish Verdict = "BEARISH"
	VerdictNeutral Verdict = "NEUTRAL"
)

func (v Verdict) Valid() bool {
	return v == VerdictBullish || v == VerdictBearish || v == VerdictNeutral
}

type Decision string

const (
	DecisionBuy  Decision = "BUY"
	DecisionSell Decision = "SELL"
	DecisionHold Decision = "HOLD"
)

func (d Decision) Valid() bool {
	return d == DecisionBuy || d == DecisionSell || d == DecisionHold
}

type AnalysisResult struct {
	Verdict         Verdict        `json:"verdict"`
	Confidence      float64        `json:"confidence"`
	AnalysisSummary string         `json:"analysisSummary"`
	KeyIndicators   []KeyIndicator `json:"keyIndicators"`
	TradingDecision Decision       `json:"tradingDecision"`
	EntryPrice      *float64       `json:"entryPrice,omitempty"`
	StopLoss        float64        `json:"stopLoss"`
	TakeProfit      float64        `json:"takeProfit"`
	RiskManagement  string         `json:"riskManagement"`
	Disclaimer      string         `json:"disclaimer"`
}

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

type ChatMessage struct {
	ID               string   `json:"id"`
	Role             Role     `json:"role"`
	Content          string   `json:"content"`
	ImagePreviewURLs []string `json:"imagePreviewUrls,omitempty"`
}

type Verification struct {
	IsValid bool   `json:"isValid"`
	Reason  string `json:"reason"`
}

type SlotState struct {
	Timeframe Timeframe      `json:"timeframe"`
	Label     string         `json:"label"`
	FullLabel string         `json:"fullLabel"`
	Required  bool           `json:"required"`
	Image     *UploadedImage `json:"image,omitempty"`
}

type WorkspaceSnapshot struct {
	User          string          `json:"user"`
	ActiveSlot    Timeframe       `json:"activeSlot"`
	Slots         []SlotState     `json:"slots"`
	Missing       []Timeframe     `json:"missing"`
	UploadError   string          `json:"uploadError,omitempty"`
	Analysis      *AnalysisResult `json:"analysis,omitempty"`
	AnalysisError string          `json:"analysisError,omitempty"`
	Analyzing     bool            `json:"analyzing"`
	ChatStarted   bool            `json:"chatStarted"`
	ChatStreaming bool            `json:"chatStreaming"`
	ChatError     string          `json:"chatError,omitempty"`
	Messages      []ChatMessage   `json:"messages"`
}

// ChatEvent is one transcript update pushed to a streaming client.
type ChatEvent struct {
	Type      string       `json:"type"`
	Message   *ChatMessage `json:"message,omitempty"`
	MessageID string       `json:"messageId,omitempty"`
	Delta     string       `json:"delta,omitempty"`
	Error     string       `json:"error,omitempty"`
}

const (
	ChatEventMessage = "message"
	ChatEventDelta   = "delta"
	ChatEventError   = "error"
	ChatEventDone    = "done"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token     string `json:"token"`
	Email     string `json:"email"`
	ExpiresAt string `json:"expiresAt"`
}

type DepStatus struct {
	Ok    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type HealthResponse struct {
	Ok         bool                 `json:"ok"`
	TsISO      string               `json:"tsISO"`
	Service    string               `json:"service"`
	Version    string               `json:"version"`
	Model      string               `json:"model"`
	DepsStatus map[string]DepStatus `json:"deps_status"`
	Features   map[string]bool      `json:"features"`
}
