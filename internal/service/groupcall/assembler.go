package groupcall

import (
	"context"
	"fmt"

	"github.com/jmehdipour/scrum-callbot/internal/model"
)

// AttendingLister is the slice of the roster store the assembler needs.
type AttendingLister interface {
	ListAttending(ctx context.Context) ([]model.Employee, error)
}

type Options struct {
	CallbackURI string
	TenantID    string
	Subject     string
	AppID       string
	DisplayName string
}

// Assembler turns the current attending roster into an outbound group call request.
type Assembler struct {
	roster AttendingLister
	opts   Options
}

func NewAssembler(roster AttendingLister, opts Options) *Assembler {
	return &Assembler{roster: roster, opts: opts}
}

// BuildTargets returns one invitation per attending employee in roster order. An empty roster yields an empty slice.
func (a *Assembler) BuildTargets(ctx context.Context) ([]model.InvitationTarget, error) {
	employees, err := a.roster.ListAttending(ctx)
	if err != nil {
		return nil, fmt.Errorf("list attending: %w", err)
	}

	targets := make([]model.InvitationTarget, 0, len(employees))
	for _, e := range employees {
		if !e.Attends {
			continue
		}
		targets = append(targets, e.Target())
	}
	return targets, nil
}

func (a *Assembler) BuildRequest(ctx context.Context) (model.OutboundCallRequest, error) {
	targets, err := a.BuildTargets(ctx)
	if err != nil {
		return model.OutboundCallRequest{}, err
	}

	req := model.OutboundCallRequest{
		ODataType:           "#microsoft.graph.call",
		Direction:           model.DirectionOutgoing,
		Subject:             a.opts.Subject,
		CallbackURI:         a.opts.CallbackURI,
		Targets:             targets,
		RequestedModalities: []model.Modality{model.ModalityAudio},
		MediaConfig:         model.NewServiceHostedMediaConfig(),
		TenantID:            a.opts.TenantID,
	}
	if a.opts.AppID != "" {
		req.Source = &model.ParticipantInfo{
			Identity: model.IdentitySet{
				Application: &model.Identity{ID: a.opts.AppID, DisplayName: a.opts.DisplayName},
			},
		}
	}
	return req, nil
}
