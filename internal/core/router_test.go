package core

import (
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestRouter() (*Router, *Registry) {
	reg := NewRegistry()
	return NewRouter(reg, nopLogger()), reg
}

func TestBroadcastExcludesOneConnection(t *testing.T) {
	router, reg := newTestRouter()

	sender := &fakeConn{}
	senderConn := NewConn(sender)
	reg.Add("alice", senderConn)

	receivers := []*fakeConn{{}, {}}
	reg.Add("bob", NewConn(receivers[0]))
	reg.Add("carol", NewConn(receivers[1]))

	failed := router.Broadcast("alice: hi", senderConn)
	require.Zero(t, failed)
	for _, fc := range receivers {
		require.Equal(t, []string{"alice: hi"}, fc.Lines())
	}
	require.Empty(t, sender.Lines())
}

// One dead peer must not abort delivery to the rest; the failure is
// only counted.
func TestBroadcastSurvivesFailedRecipient(t *testing.T) {
	router, reg := newTestRouter()

	dead := &fakeConn{fail: true}
	alive := &fakeConn{}
	reg.Add("dead", NewConn(dead))
	reg.Add("alive", NewConn(alive))

	failed := router.Broadcast("news", nil)
	require.Equal(t, 1, failed)
	require.Equal(t, []string{"news"}, alive.Lines())
}

func TestUnicastOutcomes(t *testing.T) {
	router, reg := newTestRouter()

	bob := &fakeConn{}
	reg.Add("bob", NewConn(bob))

	require.Equal(t, TargetOffline, router.Unicast("ghost", "hi"))

	require.Equal(t, Delivered, router.Unicast("bob", "hi"))
	require.Equal(t, []string{"hi"}, bob.Lines())

	bob.setFail(true)
	require.Equal(t, DeliveryFailed, router.Unicast("bob", "again"))

	// The registry entry survives the failed write.
	_, ok := reg.Lookup("bob")
	require.True(t, ok)
}

func benchmarkBroadcast(b *testing.B, recipients int) {
	reg := NewRegistry()
	router := NewRouter(reg, nopLogger())

	sender := NewConn(io.Discard)
	reg.Add("sender", sender)
	for i := 0; i < recipients; i++ {
		reg.Add(fmt.Sprintf("user%03d", i), NewConn(io.Discard))
	}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		router.Broadcast("sender: payload", sender)
	}
}

func BenchmarkBroadcast_10(b *testing.B)  { benchmarkBroadcast(b, 10) }
func BenchmarkBroadcast_100(b *testing.B) { benchmarkBroadcast(b, 100) }
func BenchmarkBroadcast_500(b *testing.B) { benchmarkBroadcast(b, 500) }
