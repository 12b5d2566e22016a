package recorder

// NoopRecorder is used when RECORDER_DB_PATH is not set.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordVerification(_ *VerificationEvent) error { return nil }
func (n *NoopRecorder) RecordAnalysis(_ *AnalysisEvent) error         { return nil }
func (n *NoopRecorder) RecordChatTurn(_ *ChatTurnEvent) error         { return nil }
func (n *NoopRecorder) Close() error                                  { return nil }
