package upstream

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/blackrockpay/terminal-gateway/internal/mti"
)

// MockProcessor simulates the upstream card processor for local development
// and tests. It decodes each request, fabricates a response and feeds it
// back through the Respond callback after Latency, the same way the real
// transport delivers completions.
type MockProcessor struct {
	// Respond receives the encoded response bytes. Wire this to the
	// transaction service's completion handler.
	Respond func(raw []byte)

	// ResponseCode goes into field 39. "00" approves.
	ResponseCode string
	// ApprovalCode goes into field 38 on approvals.
	ApprovalCode string
	// Latency delays the simulated completion.
	Latency time.Duration
	// Mute suppresses responses entirely, so pending exchanges time out.
	Mute bool

	online atomic.Bool
	logger *slog.Logger
}

func NewMockProcessor(logger *slog.Logger) *MockProcessor {
	p := &MockProcessor{
		ResponseCode: mti.ResponseApproved,
		ApprovalCode: "123456",
		logger:       logger.With("adapter", "mock_processor"),
	}
	p.online.Store(true)
	return p
}

func (p *MockProcessor) SetOnline(v bool) { p.online.Store(v) }

func (p *MockProcessor) Online() bool { return p.online.Load() }

func (p *MockProcessor) Send(ctx context.Context, raw []byte) error {
	req, err := mti.Decode(raw)
	if err != nil {
		p.logger.ErrorContext(ctx, "mock processor received undecodable request", "error", err)
		return err
	}
	if p.Mute || p.Respond == nil {
		return nil
	}

	resp, err := p.buildResponse(req)
	if err != nil {
		p.logger.ErrorContext(ctx, "mock processor failed to build response", "error", err)
		return nil
	}
	go func() {
		if p.Latency > 0 {
			time.Sleep(p.Latency)
		}
		p.Respond(resp)
	}()
	return nil
}

func (p *MockProcessor) buildResponse(req *mti.Message) ([]byte, error) {
	respMTI, ok := mti.ResponseMTI(req.MTI)
	if !ok {
		return nil, &mti.EncodeError{Reason: "no response pair for " + req.MTI}
	}
	resp := mti.NewMessage(respMTI)
	for _, f := range []int{mti.FieldProcessingCode, mti.FieldAmount, mti.FieldTrace, mti.FieldTerminalID, mti.FieldMerchantID} {
		if v, ok := req.Get(f); ok {
			if err := resp.Set(f, v); err != nil {
				return nil, err
			}
		}
	}
	if err := resp.Set(mti.FieldTransmission, mti.FormatTransmission(time.Now().UTC())); err != nil {
		return nil, err
	}
	if err := resp.Set(mti.FieldResponseCode, p.ResponseCode); err != nil {
		return nil, err
	}
	if p.ResponseCode == mti.ResponseApproved && respMTI != mti.AdviceResponse {
		if err := resp.Set(mti.FieldApprovalCode, p.ApprovalCode); err != nil {
			return nil, err
		}
	}
	return mti.Encode(resp)
}
