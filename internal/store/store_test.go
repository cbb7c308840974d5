package store

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/codenerd-labs/evolution-engine/internal/evotypes"
)

func newTestProposal(id string) *evotypes.Proposal {
	return &evotypes.Proposal{
		ID:           id,
		Category:     evotypes.CategoryRuleAdd,
		DeclaredRisk: evotypes.RiskLow,
		Title:        "add a rule",
		Status:       evotypes.StatusPending,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
		Payload: evotypes.RuleAddPayload{
			ScopeValue: evotypes.ScopeProject,
			TargetPath: "rules/style.md",
			RuleText:   "prefer early returns",
		},
	}
}

func TestPutGetAndListPending(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	p := newTestProposal(uuid.NewString())
	require.NoError(t, s.PutProposal(p))

	got, err := s.GetProposal(p.ID)
	require.NoError(t, err)
	require.Equal(t, p.Title, got.Title)

	pending := s.ListPending()
	require.Len(t, pending, 1)
	require.Equal(t, p.ID, pending[0].ID)
}

func TestPutDuplicateProposalFails(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	p := newTestProposal("dup-1")
	require.NoError(t, s.PutProposal(p))
	require.Error(t, s.PutProposal(p))
}

func TestUpdateProposalStatusFollowsStateMachine(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	p := newTestProposal("sm-1")
	require.NoError(t, s.PutProposal(p))

	require.NoError(t, s.UpdateProposalStatus(p.ID, evotypes.StatusApproved, nil))
	require.Empty(t, s.ListPending(), "approving removes the proposal from the pending queue")

	require.NoError(t, s.UpdateProposalStatus(p.ID, evotypes.StatusApplied, func(pr *evotypes.Proposal) {
		pr.RollbackRecordID = "rb-1"
	}))

	got, err := s.GetProposal(p.ID)
	require.NoError(t, err)
	require.Equal(t, evotypes.StatusApplied, got.Status)
	require.Equal(t, "rb-1", got.RollbackRecordID)

	// applied -> rejected is not a legal edge.
	require.Error(t, s.UpdateProposalStatus(p.ID, evotypes.StatusRejected, nil))
}

func TestReopenReconstructsProposalsAndPendingOrder(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)

	a := newTestProposal("a")
	a.CreatedAt = time.Now().Add(-time.Hour)
	b := newTestProposal("b")
	require.NoError(t, s.PutProposal(a))
	require.NoError(t, s.PutProposal(b))
	require.NoError(t, s.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer reopened.Close()

	pending := reopened.ListPending()
	require.Len(t, pending, 2)
	require.Equal(t, "a", pending[0].ID, "pending order follows CreatedAt")
}

func TestSecondOpenFailsWithAlreadyLocked(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	defer s.Close()

	_, err = Open(dir)
	require.Error(t, err)
}

func TestCountersRolloverOnNewUTCDay(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	stale := evotypes.Counters{Day: "2000-01-01", ProposalsApplied: 9}
	require.NoError(t, s.SaveCounters(stale))

	got := s.LoadCounters()
	require.Equal(t, evotypes.UTCDayString(time.Now()), got.Day)
	require.Zero(t, got.ProposalsApplied)
}

func TestApplicationEventLogRoundTrips(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.RecordApplicationEvent(evotypes.ApplicationEvent{
			Kind:       evotypes.EventExecutionComplete,
			ProposalID: "p-1",
			Timestamp:  time.Now(),
		}))
	}

	events := s.ListRecentApplicationEvents(2)
	require.Len(t, events, 2)
}

func TestSignalsRecentWindow(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.AddSignal(evotypes.Signal{Kind: evotypes.SignalTaskOutcome, Source: "executor"}))
	recent, err := s.RecentSignals(time.Hour)
	require.NoError(t, err)
	require.Len(t, recent, 1)

	old, err := s.RecentSignals(0)
	require.NoError(t, err)
	require.Empty(t, old)
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.PutProposal(newTestProposal("snap-1")))
	first, err := s.SnapshotAll()
	require.NoError(t, err)

	require.NoError(t, s.RestoreAll(first))
	second, err := s.SnapshotAll()
	require.NoError(t, err)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("snapshot -> restore -> snapshot mismatch (-first +second):\n%s", diff)
	}
}

func TestExternallyApprovedProposalIsPickedUpByWatch(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	defer s.Close()

	p := newTestProposal("ext-1")
	require.NoError(t, s.PutProposal(p))

	edited := *p
	edited.Status = evotypes.StatusApproved
	edited.UpdatedAt = time.Now()
	require.NoError(t, writeJSONAtomic(s.proposalPath(p.ID), &edited))

	require.Eventually(t, func() bool {
		got, err := s.GetProposal(p.ID)
		return err == nil && got.Status == evotypes.StatusApproved
	}, 2*time.Second, 10*time.Millisecond, "external approve was not picked up by the proposal watch")

	require.Empty(t, s.ListPending(), "externally-approved proposal must leave the pending queue")
}
