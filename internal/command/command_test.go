package command_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jmehdipour/scrum-callbot/internal/command"
	"github.com/jmehdipour/scrum-callbot/internal/model"
	"github.com/jmehdipour/scrum-callbot/internal/platform"
	"github.com/jmehdipour/scrum-callbot/internal/repository"
	"github.com/jmehdipour/scrum-callbot/internal/service/groupcall"
)

func TestParse(t *testing.T) {
	cases := []struct {
		text, card string
		want       command.Kind
	}{
		{"  Register ", "", command.KindRegister},
		{"CHECKIN", "", command.KindCheckIn},
		{"reportsick", "", command.KindCheckOut},
		{"checkout", "", command.KindCheckOut},
		{"newgc", "", command.KindDailyScrum},
		{"dailyscrum", "", command.KindDailyScrum},
		{"", "report", command.KindReport},
		{"help", "register", command.KindHelp},
		{"what is this", "", command.KindEcho},
		{"Transfer call-1", "", command.KindTransfer},
		{"transfercall call-1 u2", "", command.KindTransfer},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, command.Parse(tc.text, tc.card).Kind, "text=%q card=%q", tc.text, tc.card)
	}
	assert.Equal(t, "what is this", command.Parse(" What is THIS ", "").Input)
	assert.Equal(t, []string{"Call-AB", "U2"}, command.Parse(" TRANSFER  Call-AB U2", "").Args)
}

type fakeRoster struct {
	registered map[string]string
	attends    map[string]bool
	err        error
}

func newFakeRoster() *fakeRoster {
	return &fakeRoster{registered: map[string]string{}, attends: map[string]bool{}}
}

func (f *fakeRoster) Register(_ context.Context, id, name string) error {
	if f.err != nil {
		return f.err
	}
	if _, ok := f.registered[id]; ok {
		return repository.ErrAlreadyExists
	}
	f.registered[id] = name
	f.attends[id] = true
	return nil
}

func (f *fakeRoster) SetAttendance(_ context.Context, id string, attends bool) error {
	if f.err != nil {
		return f.err
	}
	if _, ok := f.registered[id]; !ok {
		return repository.ErrNotFound
	}
	f.attends[id] = attends
	return nil
}

func (f *fakeRoster) List(context.Context) ([]model.Employee, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []model.Employee
	for id, name := range f.registered {
		out = append(out, model.Employee{ID: id, DisplayName: name, Attends: f.attends[id]})
	}
	return out, nil
}

func (f *fakeRoster) Get(_ context.Context, id string) (*model.Employee, error) {
	if f.err != nil {
		return nil, f.err
	}
	name, ok := f.registered[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &model.Employee{ID: id, DisplayName: name, Attends: f.attends[id]}, nil
}

type fakeCaller struct {
	n   int
	err error
}

func (f fakeCaller) StartGroupCall(context.Context) (string, int, error) {
	return "gc-1", f.n, f.err
}

var adele = command.Sender{ID: "u1", Name: "Adele"}

func TestRegisterAndDuplicate(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	roster := newFakeRoster()
	h := command.NewHandler(roster, fakeCaller{}, nil, zap.New(core))
	ctx := context.Background()

	r, err := h.Handle(ctx, adele, command.Parse("register", ""))
	require.NoError(t, err)
	assert.Contains(t, r.Text, "registration was successful")

	r, err = h.Handle(ctx, adele, command.Parse("register", ""))
	require.NoError(t, err)
	assert.Equal(t, "You are already registered.", r.Text)
	assert.Zero(t, logs.FilterLevelExact(zap.ErrorLevel).Len())
}

func TestAttendanceCommands(t *testing.T) {
	roster := newFakeRoster()
	h := command.NewHandler(roster, fakeCaller{}, nil, nil)
	ctx := context.Background()

	r, _ := h.Handle(ctx, adele, command.Parse("checkin", ""))
	assert.Contains(t, r.Text, "not registered")

	_, _ = h.Handle(ctx, adele, command.Parse("register", ""))
	_, _ = h.Handle(ctx, adele, command.Parse("reportsick", ""))
	assert.False(t, roster.attends["u1"])

	r, _ = h.Handle(ctx, adele, command.Parse("checkin", ""))
	assert.True(t, roster.attends["u1"])
	assert.Contains(t, r.Text, "checked in")
}

func TestStoreFailureAsksToRetry(t *testing.T) {
	roster := newFakeRoster()
	roster.err = errors.New("connection reset")
	h := command.NewHandler(roster, fakeCaller{}, nil, nil)

	for _, in := range []string{"register", "checkin", "checkout", "report"} {
		r, err := h.Handle(context.Background(), adele, command.Parse(in, ""))
		require.NoError(t, err)
		assert.Contains(t, r.Text, "try again", in)
	}
}

func TestAnonymousSender(t *testing.T) {
	h := command.NewHandler(newFakeRoster(), fakeCaller{}, nil, nil)
	_, err := h.Handle(context.Background(), command.Sender{}, command.Parse("register", ""))
	assert.ErrorIs(t, err, command.ErrAnonymousSender)
}

func TestDailyScrum(t *testing.T) {
	ctx := context.Background()

	r, _ := command.NewHandler(newFakeRoster(), fakeCaller{n: 3}, nil, nil).Handle(ctx, adele, command.Parse("dailyscrum", ""))
	assert.Equal(t, "gc-1", r.CallID)
	assert.Contains(t, r.Text, "3 participants")

	r, _ = command.NewHandler(newFakeRoster(), fakeCaller{err: groupcall.ErrNoTargets}, nil, nil).Handle(ctx, adele, command.Parse("newgc", ""))
	assert.Empty(t, r.CallID)
	assert.Contains(t, r.Text, "Nobody is checked in")

	r, _ = command.NewHandler(newFakeRoster(), fakeCaller{err: errors.New("503")}, nil, nil).Handle(ctx, adele, command.Parse("newgc", ""))
	assert.Contains(t, r.Text, "try again")
}

func TestReportAndEcho(t *testing.T) {
	roster := newFakeRoster()
	h := command.NewHandler(roster, fakeCaller{}, nil, nil)
	ctx := context.Background()
	_, _ = h.Handle(ctx, adele, command.Parse("register", ""))

	r, _ := h.Handle(ctx, adele, command.Parse("report", ""))
	assert.Equal(t, "report", r.Card)
	assert.Len(t, r.Roster, 1)

	r, _ = h.Handle(ctx, adele, command.Parse("hi", ""))
	assert.Contains(t, r.Text, "This is what you said: hi")
}

type transferCall struct {
	callID string
	target model.InvitationTarget
}

type fakeTransferer struct {
	calls []transferCall
	err   error
}

func (f *fakeTransferer) TransferCall(_ context.Context, callID string, target model.InvitationTarget) error {
	f.calls = append(f.calls, transferCall{callID: callID, target: target})
	return f.err
}

func TestTransferToRegisteredEmployee(t *testing.T) {
	roster := newFakeRoster()
	roster.registered["u2"] = "Megan"
	tr := &fakeTransferer{}
	h := command.NewHandler(roster, fakeCaller{}, tr, nil)

	r, err := h.Handle(context.Background(), adele, command.Parse("transfer call-9 u2", ""))
	require.NoError(t, err)
	assert.Equal(t, "Transferring call call-9 to Megan.", r.Text)
	assert.Equal(t, "call-9", r.CallID)

	require.Len(t, tr.calls, 1)
	assert.Equal(t, "call-9", tr.calls[0].callID)
	require.NotNil(t, tr.calls[0].target.Identity.User)
	assert.Equal(t, "u2", tr.calls[0].target.Identity.User.ID)
	assert.Equal(t, "Megan", tr.calls[0].target.Identity.User.DisplayName)
}

func TestTransferDefaultsToSender(t *testing.T) {
	roster := newFakeRoster()
	roster.registered[adele.ID] = adele.Name
	tr := &fakeTransferer{}
	h := command.NewHandler(roster, fakeCaller{}, tr, nil)

	_, err := h.Handle(context.Background(), adele, command.Parse("transfer call-9", ""))
	require.NoError(t, err)
	require.Len(t, tr.calls, 1)
	assert.Equal(t, adele.ID, tr.calls[0].target.Identity.User.ID)

	_, err = h.Handle(context.Background(), command.Sender{}, command.Parse("transfer call-9", ""))
	assert.ErrorIs(t, err, command.ErrAnonymousSender)
	assert.Len(t, tr.calls, 1)
}

func TestTransferFailures(t *testing.T) {
	ctx := context.Background()
	roster := newFakeRoster()
	roster.registered["u2"] = "Megan"

	r, _ := command.NewHandler(roster, fakeCaller{}, &fakeTransferer{}, nil).Handle(ctx, adele, command.Parse("transfer", ""))
	assert.Contains(t, r.Text, "Usage: transfer")

	tr := &fakeTransferer{}
	r, _ = command.NewHandler(roster, fakeCaller{}, tr, nil).Handle(ctx, adele, command.Parse("transfer call-9 nobody", ""))
	assert.Contains(t, r.Text, "nobody is not registered")
	assert.Empty(t, tr.calls)

	gone := &fakeTransferer{err: &platform.StatusError{Command: "transfer", Status: 404}}
	r, _ = command.NewHandler(roster, fakeCaller{}, gone, nil).Handle(ctx, adele, command.Parse("transfer call-9 u2", ""))
	assert.Equal(t, "Call call-9 was not found.", r.Text)

	core, logs := observer.New(zap.ErrorLevel)
	down := &fakeTransferer{err: platform.ErrBreakerOpen}
	r, _ = command.NewHandler(roster, fakeCaller{}, down, zap.New(core)).Handle(ctx, adele, command.Parse("transfer call-9 u2", ""))
	assert.Contains(t, r.Text, "try again")
	assert.Equal(t, 1, logs.FilterMessage("transfer failed").Len())

	r, _ = command.NewHandler(roster, fakeCaller{}, nil, nil).Handle(ctx, adele, command.Parse("transfer call-9 u2", ""))
	assert.Equal(t, "Call transfer is not available.", r.Text)
}
