package groupcall

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/jmehdipour/scrum-callbot/internal/platform"
)

var ErrNoTargets = errors.New("nobody is attending")

// Service places the daily group call.
type Service struct {
	assembler *Assembler
	client    platform.Client
	log       *zap.Logger
}

func NewService(assembler *Assembler, client platform.Client, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{assembler: assembler, client: client, log: log}
}

// StartGroupCall invites everyone attending and returns the platform call id and the number of invitees.
func (s *Service) StartGroupCall(ctx context.Context) (string, int, error) {
	req, err := s.assembler.BuildRequest(ctx)
	if err != nil {
		return "", 0, err
	}
	if len(req.Targets) == 0 {
		return "", 0, ErrNoTargets
	}

	callID, err := s.client.CreateCall(ctx, req)
	if err != nil {
		return "", len(req.Targets), fmt.Errorf("create group call: %w", err)
	}

	s.log.Info("group call created", zap.String("call_id", callID), zap.Int("targets", len(req.Targets)))
	return callID, len(req.Targets), nil
}
