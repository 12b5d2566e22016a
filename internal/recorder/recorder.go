package recorder

import "chartsense/backend-go/internal/models"

// VerificationEvent is one verdict of the timeframe gate.
type VerificationEvent struct {
	User      string
	Timeframe models.Timeframe
	IsValid   bool
	Reason    string
	Degraded  bool // the model could not answer and the gate fell back
}

// AnalysisEvent is one completed static analysis.
type AnalysisEvent struct {
	User       string
	Timeframes []models.Timeframe
	Result     models.AnalysisResult
}

// ChatTurnEvent is one finished chat transcript entry.
type ChatTurnEvent struct {
	User    string
	Message models.ChatMessage
}

// Recorder keeps a history of verdicts, analyses and chat turns.
type Recorder interface {
	RecordVerification(evt *VerificationEvent) error
	RecordAnalysis(evt *AnalysisEvent) error
	RecordChatTurn(evt *ChatTurnEvent) error
	Close() error
}
