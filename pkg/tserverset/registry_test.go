package tserverset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRegisterAndIsLive(t *testing.T) {
	r := NewRegistry(time.Minute)
	r.Register("ts1", "127.0.0.1:9100", CloudInfo{Cloud: "aws", Region: "us-east-1", Zone: "a"})

	require.True(t, r.IsLive("ts1"))
	require.False(t, r.IsLive("unknown"))
}

func TestIsLiveExpiresAfterLivenessPeriod(t *testing.T) {
	r := NewRegistry(time.Millisecond)
	r.Register("ts1", "127.0.0.1:9100", CloudInfo{})
	time.Sleep(5 * time.Millisecond)

	require.False(t, r.IsLive("ts1"))
}

func TestCandidatesFiltersByPlacementBlock(t *testing.T) {
	r := NewRegistry(time.Minute)
	r.Register("ts1", "127.0.0.1:9101", CloudInfo{Cloud: "aws", Region: "us-east-1", Zone: "a"})
	r.Register("ts2", "127.0.0.1:9102", CloudInfo{Cloud: "aws", Region: "us-west-2", Zone: "b"})

	got := r.Candidates(CloudInfo{Cloud: "aws", Region: "us-east-1"})
	require.Len(t, got, 1)
	require.Equal(t, "ts1", got[0].ID)
}

func TestCandidatesExcludeBlacklisted(t *testing.T) {
	r := NewRegistry(time.Minute)
	r.Register("ts1", "127.0.0.1:9101", CloudInfo{})
	r.SetBlacklisted("ts1", true)

	require.Empty(t, r.Candidates(CloudInfo{}))
}

func TestTouchUpdatesReplicaCount(t *testing.T) {
	r := NewRegistry(time.Minute)
	r.Register("ts1", "127.0.0.1:9101", CloudInfo{})
	r.Touch("ts1", 7)

	d := r.Get("ts1")
	require.Equal(t, 7, d.NumLiveReplicas)
}

func TestRecordReplicaCreationIncrements(t *testing.T) {
	r := NewRegistry(time.Minute)
	r.Register("ts1", "127.0.0.1:9101", CloudInfo{})
	r.RecordReplicaCreation("ts1")
	r.RecordReplicaCreation("ts1")

	require.Equal(t, 2, r.Get("ts1").RecentReplicaCreations)
}

func TestRemoveDropsTserver(t *testing.T) {
	r := NewRegistry(time.Minute)
	r.Register("ts1", "127.0.0.1:9101", CloudInfo{})
	r.Remove("ts1")

	require.Nil(t, r.Get("ts1"))
	require.Empty(t, r.List())
}
