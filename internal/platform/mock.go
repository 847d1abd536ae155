package platform

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/alfredjeanlab/taskflow/internal/model"
)

// MockSink accepts every task and synthesizes a reference. It is the default
// sink for demos and tests.
type MockSink struct{}

// Compile-time check that MockSink implements Sink.
var _ Sink = (*MockSink)(nil)

func NewMockSink() *MockSink {
	return &MockSink{}
}

func (*MockSink) Name() model.Platform {
	return model.PlatformMock
}

func (*MockSink) Create(_ context.Context, _ *model.ExtractedTask) (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate reference: %w", err)
	}
	return fmt.Sprintf("%s_%s", model.PlatformMock, hex.EncodeToString(buf)), nil
}
