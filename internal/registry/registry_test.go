package registry

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateRoomAssignsUniqueCodes(t *testing.T) {
	r := New()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code, err := r.CreateRoom(fmt.Sprintf("teacher-%d", i))
		require.NoError(t, err)
		assert.Len(t, code, CodeLength)
		assert.False(t, seen[code], "code %q issued twice among live rooms", code)
		seen[code] = true
	}
}

func TestCreateRoomIndexesTeacher(t *testing.T) {
	r := New()
	code, err := r.CreateRoom("t1")
	require.NoError(t, err)

	gotCode, role, bound := r.Lookup("t1")
	require.True(t, bound)
	assert.Equal(t, code, gotCode)
	assert.Equal(t, RoleTeacher, role)

	view, err := r.Snapshot(code)
	require.NoError(t, err)
	assert.False(t, view.AttentionMode)
	assert.Empty(t, view.Students)
}

func TestJoinRoomUnknownCode(t *testing.T) {
	r := New()

	_, err := r.JoinRoom("NOSUCH", "s1", "Alice")
	assert.ErrorIs(t, err, ErrRoomNotFound)

	// A failed join must not leave any trace.
	_, _, bound := r.Lookup("s1")
	assert.False(t, bound)
}

func TestJoinRoomInsertsIdleStudent(t *testing.T) {
	r := New()
	code, _ := r.CreateRoom("t1")

	attention, err := r.JoinRoom(code, "s1", "Alice")
	require.NoError(t, err)
	assert.False(t, attention)

	view, err := r.Snapshot(code)
	require.NoError(t, err)
	require.Len(t, view.Students, 1)
	assert.Equal(t, "s1", view.Students[0].ID)
	assert.Equal(t, "Alice", view.Students[0].Name)
	assert.Equal(t, StatusIdle, view.Students[0].Status)
	assert.Empty(t, view.Students[0].Metrics)
}

func TestJoinRoomReportsActiveAttentionMode(t *testing.T) {
	r := New()
	code, _ := r.CreateRoom("t1")
	require.True(t, r.SetAttention(code, true))

	attention, err := r.JoinRoom(code, "s1", "Alice")
	require.NoError(t, err)
	assert.True(t, attention)
}

func TestSnapshotListsStudentsInJoinOrder(t *testing.T) {
	r := New()
	code, _ := r.CreateRoom("t1")

	names := []string{"Alice", "Bob", "Carol", "Dave"}
	for i, name := range names {
		_, err := r.JoinRoom(code, fmt.Sprintf("s%d", i), name)
		require.NoError(t, err)
	}

	view, err := r.Snapshot(code)
	require.NoError(t, err)
	require.Len(t, view.Students, len(names))
	for i, name := range names {
		assert.Equal(t, name, view.Students[i].Name)
	}
}

func TestUpdateStatusMergesFields(t *testing.T) {
	r := New()
	code, _ := r.CreateRoom("t1")
	_, err := r.JoinRoom(code, "s1", "Alice")
	require.NoError(t, err)

	gotCode, err := r.UpdateStatus("s1", StatusCollecting, Metrics{"samples": 12})
	require.NoError(t, err)
	assert.Equal(t, code, gotCode)

	// Omitted metrics keep their previous value.
	_, err = r.UpdateStatus("s1", StatusTraining, nil)
	require.NoError(t, err)

	view, _ := r.Snapshot(code)
	require.Len(t, view.Students, 1)
	assert.Equal(t, StatusTraining, view.Students[0].Status)
	assert.Equal(t, Metrics{"samples": 12}, view.Students[0].Metrics)

	// Omitted status keeps its previous value.
	_, err = r.UpdateStatus("s1", "", Metrics{"accuracy": 0.9})
	require.NoError(t, err)

	view, _ = r.Snapshot(code)
	assert.Equal(t, StatusTraining, view.Students[0].Status)
	assert.Equal(t, Metrics{"accuracy": 0.9}, view.Students[0].Metrics)
}

func TestUpdateStatusFromUnboundConnection(t *testing.T) {
	r := New()

	_, err := r.UpdateStatus("ghost", StatusTraining, nil)
	assert.ErrorIs(t, err, ErrNotBound)
}

func TestUpdateStatusFromTeacher(t *testing.T) {
	r := New()
	_, err := r.CreateRoom("t1")
	require.NoError(t, err)

	_, err = r.UpdateStatus("t1", StatusTraining, nil)
	assert.ErrorIs(t, err, ErrNotBound)
}

func TestKickedStudentCannotResurrectRecord(t *testing.T) {
	r := New()
	code, _ := r.CreateRoom("t1")
	_, err := r.JoinRoom(code, "s1", "Alice")
	require.NoError(t, err)

	require.True(t, r.Kick(code, "s1"))

	// The very next status report from the removed connection is a no-op.
	_, err = r.UpdateStatus("s1", StatusPredicting, Metrics{"clusters": 3})
	assert.ErrorIs(t, err, ErrNotBound)

	view, _ := r.Snapshot(code)
	assert.Empty(t, view.Students)
	_, _, bound := r.Lookup("s1")
	assert.False(t, bound)
}

func TestKickUnknownStudent(t *testing.T) {
	r := New()
	code, _ := r.CreateRoom("t1")

	assert.False(t, r.Kick(code, "nobody"))
	assert.False(t, r.Kick("NOSUCH", "s1"))
}

func TestLeaveStudent(t *testing.T) {
	r := New()
	code, _ := r.CreateRoom("t1")
	_, err := r.JoinRoom(code, "s1", "Alice")
	require.NoError(t, err)

	res, err := r.Leave("s1")
	require.NoError(t, err)
	assert.Equal(t, code, res.Code)
	assert.False(t, res.WasTeacher)
	assert.Equal(t, "Alice", res.StudentName)

	view, err := r.Snapshot(code)
	require.NoError(t, err)
	assert.Empty(t, view.Students)
}

func TestLeaveIsIdempotent(t *testing.T) {
	r := New()
	code, _ := r.CreateRoom("t1")
	_, err := r.JoinRoom(code, "s1", "Alice")
	require.NoError(t, err)

	_, err = r.Leave("s1")
	require.NoError(t, err)

	// Second leave observes the same end state and reports NotBound.
	_, err = r.Leave("s1")
	assert.ErrorIs(t, err, ErrNotBound)

	view, _ := r.Snapshot(code)
	assert.Empty(t, view.Students)
}

func TestTeacherLeaveDestroysRoomAndEvictsStudents(t *testing.T) {
	r := New()
	code, _ := r.CreateRoom("t1")
	for i := 0; i < 5; i++ {
		_, err := r.JoinRoom(code, fmt.Sprintf("s%d", i), "x")
		require.NoError(t, err)
	}

	res, err := r.Leave("t1")
	require.NoError(t, err)
	assert.True(t, res.WasTeacher)
	assert.Equal(t, code, res.Code)

	_, err = r.Snapshot(code)
	assert.ErrorIs(t, err, ErrRoomNotFound)

	// No orphaned reverse-index entries.
	for i := 0; i < 5; i++ {
		_, _, bound := r.Lookup(fmt.Sprintf("s%d", i))
		assert.False(t, bound)
	}
	_, _, bound := r.Lookup("t1")
	assert.False(t, bound)
	assert.Equal(t, 0, r.Stats()["bound_connections"])
}

func TestDestroyRoomIsIdempotent(t *testing.T) {
	r := New()
	code, _ := r.CreateRoom("t1")

	r.DestroyRoom(code)
	r.DestroyRoom(code) // no-op
	r.DestroyRoom("NOSUCH")

	_, err := r.Snapshot(code)
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestCodeReusableAfterDestroy(t *testing.T) {
	r := New()
	code, _ := r.CreateRoom("t1")
	r.DestroyRoom(code)

	// The code space treats destroyed codes as free; joining the old code
	// must fail rather than find a stale room.
	_, err := r.JoinRoom(code, "s1", "Alice")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestSetAttention(t *testing.T) {
	r := New()
	code, _ := r.CreateRoom("t1")

	assert.True(t, r.SetAttention(code, true))
	view, _ := r.Snapshot(code)
	assert.True(t, view.AttentionMode)

	assert.True(t, r.SetAttention(code, false))
	view, _ = r.Snapshot(code)
	assert.False(t, view.AttentionMode)

	assert.False(t, r.SetAttention("NOSUCH", true))
}

func TestMembersIncludesTeacherAndStudents(t *testing.T) {
	r := New()
	code, _ := r.CreateRoom("t1")
	_, err := r.JoinRoom(code, "s1", "Alice")
	require.NoError(t, err)
	_, err = r.JoinRoom(code, "s2", "Bob")
	require.NoError(t, err)

	members := r.Members(code)
	assert.Len(t, members, 3)
	assert.Equal(t, "t1", members[0])
	assert.ElementsMatch(t, []string{"t1", "s1", "s2"}, members)

	assert.Nil(t, r.Members("NOSUCH"))
}

func TestStudentName(t *testing.T) {
	r := New()
	code, _ := r.CreateRoom("t1")
	_, err := r.JoinRoom(code, "s1", "Alice")
	require.NoError(t, err)

	name, ok := r.StudentName(code, "s1")
	require.True(t, ok)
	assert.Equal(t, "Alice", name)

	_, ok = r.StudentName(code, "t1")
	assert.False(t, ok)
	_, ok = r.StudentName("NOSUCH", "s1")
	assert.False(t, ok)
}

func TestStats(t *testing.T) {
	r := New()
	code1, _ := r.CreateRoom("t1")
	_, err := r.CreateRoom("t2")
	require.NoError(t, err)
	_, err = r.JoinRoom(code1, "s1", "Alice")
	require.NoError(t, err)

	stats := r.Stats()
	assert.Equal(t, 2, stats["active_rooms"])
	assert.Equal(t, 3, stats["bound_connections"])
	assert.Equal(t, 1, stats["students"])
}
