package services

import (
	"context"
	"sync"

	"chartsense/backend-go/internal/models"
)

type fakeModel struct {
	mu          sync.Mutex
	verify      models.Verification
	verifyErr   error
	verifyCalls int
	analysis    models.AnalysisResult
	analyzeErr  error
	gotParts    []Part
}

func (f *fakeModel) Verify(_ context.Context, _ ImageData, _ models.Timeframe) (models.Verification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifyCalls++
	return f.verify, f.verifyErr
}

func (f *fakeModel) Analyze(_ context.Context, parts []Part) (models.AnalysisResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotParts = parts
	return f.analysis, f.analyzeErr
}

func (f *fakeModel) CreateSession(_ context.Context) (ChatSession, error) {
	return nil, nil
}
