package command

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/jmehdipour/scrum-callbot/internal/model"
	"github.com/jmehdipour/scrum-callbot/internal/platform"
	"github.com/jmehdipour/scrum-callbot/internal/repository"
	"github.com/jmehdipour/scrum-callbot/internal/service/groupcall"
)

var ErrAnonymousSender = errors.New("sender id is required")

const tryAgain = "Something went wrong on our side, please try again in a moment."

type Roster interface {
	Register(ctx context.Context, id, displayName string) error
	SetAttendance(ctx context.Context, id string, attends bool) error
	List(ctx context.Context) ([]model.Employee, error)
	Get(ctx context.Context, id string) (*model.Employee, error)
}

type GroupCaller interface {
	StartGroupCall(ctx context.Context) (string, int, error)
}

// Transferer hands an established call over to another participant.
type Transferer interface {
	TransferCall(ctx context.Context, callID string, target model.InvitationTarget) error
}

// Sender identifies the chat user a command came from.
type Sender struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Reply struct {
	Text   string           `json:"text"`
	Card   string           `json:"card,omitempty"`
	Roster []model.Employee `json:"roster,omitempty"`
	CallID string           `json:"call_id,omitempty"`
}

type Handler struct {
	roster    Roster
	calls     GroupCaller
	transfers Transferer
	log       *zap.Logger
}

// NewHandler builds a command handler. transfers may be nil, the transfer command then reports it is unavailable.
func NewHandler(roster Roster, calls GroupCaller, transfers Transferer, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{roster: roster, calls: calls, transfers: transfers, log: log}
}

// Handle executes cmd on behalf of s. Store and platform failures become user-facing replies;
// only a sender without id is reported as an error.
func (h *Handler) Handle(ctx context.Context, s Sender, cmd Command) (Reply, error) {
	switch cmd.Kind {
	case KindRegister:
		if s.ID == "" {
			return Reply{}, ErrAnonymousSender
		}
		return h.register(ctx, s), nil
	case KindCheckIn, KindCheckOut:
		if s.ID == "" {
			return Reply{}, ErrAnonymousSender
		}
		return h.attendance(ctx, s, cmd.Kind == KindCheckIn), nil
	case KindDailyScrum:
		return h.dailyScrum(ctx), nil
	case KindReport:
		return h.report(ctx), nil
	case KindTransfer:
		if len(cmd.Args) == 1 && s.ID == "" {
			return Reply{}, ErrAnonymousSender
		}
		return h.transfer(ctx, s, cmd.Args), nil
	case KindHelp:
		return Reply{
			Text: "Commands: register, checkin, checkout (or reportsick), dailyscrum, report, " +
				"transfer <call id> [employee id], help.",
			Card: "info",
		}, nil
	default:
		return Reply{Text: "Welcome to the scrum bot. This is what you said: " + cmd.Input}, nil
	}
}

func (h *Handler) register(ctx context.Context, s Sender) Reply {
	name := strings.TrimSpace(s.Name)
	if name == "" {
		name = s.ID
	}

	err := h.roster.Register(ctx, s.ID, name)
	switch {
	case errors.Is(err, repository.ErrAlreadyExists):
		h.log.Info("duplicate registration", zap.String("employee_id", s.ID))
		return Reply{Text: "You are already registered."}
	case err != nil:
		h.log.Error("register failed", zap.String("employee_id", s.ID), zap.Error(err))
		return Reply{Text: tryAgain}
	}
	return Reply{Text: fmt.Sprintf("Hello %s! Your registration was successful.", name)}
}

func (h *Handler) attendance(ctx context.Context, s Sender, attends bool) Reply {
	err := h.roster.SetAttendance(ctx, s.ID, attends)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return Reply{Text: "You are not registered yet. Send 'register' first."}
	case err != nil:
		h.log.Error("set attendance failed", zap.String("employee_id", s.ID), zap.Bool("attends", attends), zap.Error(err))
		return Reply{Text: tryAgain}
	}
	if attends {
		return Reply{Text: fmt.Sprintf("Okay %s, you are checked in for the next meeting.", s.Name)}
	}
	return Reply{Text: fmt.Sprintf("Okay %s, you are checked out of the next meeting. Use 'checkin' if your plans change, "+
		"and consider leaving a short written scrum update.", s.Name)}
}

func (h *Handler) dailyScrum(ctx context.Context) Reply {
	callID, n, err := h.calls.StartGroupCall(ctx)
	switch {
	case errors.Is(err, groupcall.ErrNoTargets):
		return Reply{Text: "Nobody is checked in, no call was placed."}
	case err != nil:
		h.log.Error("group call failed", zap.Error(err))
		return Reply{Text: tryAgain}
	}
	return Reply{Text: fmt.Sprintf("Calling %d participants for the daily scrum.", n), CallID: callID}
}

func (h *Handler) report(ctx context.Context) Reply {
	employees, err := h.roster.List(ctx)
	if err != nil {
		h.log.Error("list roster failed", zap.Error(err))
		return Reply{Text: tryAgain}
	}

	attending := 0
	for _, e := range employees {
		if e.Attends {
			attending++
		}
	}
	return Reply{
		Text:   fmt.Sprintf("%d registered, %d attending the next meeting.", len(employees), attending),
		Card:   "report",
		Roster: employees,
	}
}

// transfer moves a call to the employee named in args, or to the sender when none is given.
func (h *Handler) transfer(ctx context.Context, s Sender, args []string) Reply {
	if len(args) == 0 {
		return Reply{Text: "Usage: transfer <call id> [employee id]"}
	}
	if h.transfers == nil {
		return Reply{Text: "Call transfer is not available."}
	}
	callID, targetID := args[0], s.ID
	if len(args) > 1 {
		targetID = args[1]
	}

	e, err := h.roster.Get(ctx, targetID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return Reply{Text: fmt.Sprintf("%s is not registered, the call can only go to registered employees.", targetID)}
	case err != nil:
		h.log.Error("roster lookup failed", zap.String("employee_id", targetID), zap.Error(err))
		return Reply{Text: tryAgain}
	}

	log := h.log.With(zap.String("call_id", callID), zap.String("employee_id", e.ID))
	err = h.transfers.TransferCall(ctx, callID, e.Target())
	var se *platform.StatusError
	switch {
	case errors.As(err, &se) && se.Status == http.StatusNotFound:
		log.Info("transfer of unknown call")
		return Reply{Text: fmt.Sprintf("Call %s was not found.", callID)}
	case err != nil:
		log.Error("transfer failed", zap.Error(err))
		return Reply{Text: tryAgain}
	}
	log.Info("call transfer requested")
	return Reply{Text: fmt.Sprintf("Transferring call %s to %s.", callID, e.DisplayName), CallID: callID}
}
