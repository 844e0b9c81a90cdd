package platform_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voiceroom-manager/internal/platform"
)

// fakePlatform 记录收到的请求并按 method 返回预设响应。
type fakePlatform struct {
	t         *testing.T
	responses map[string]string // method -> 响应 JSON
	requests  map[string]map[string]interface{}
	lastAuth  string
}

func newFakePlatform(t *testing.T) (*fakePlatform, *httptest.Server) {
	f := &fakePlatform{
		t:         t,
		responses: make(map[string]string),
		requests:  make(map[string]map[string]interface{}),
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.URL.Path[1:]
		f.lastAuth = r.Header.Get("Authorization")

		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.requests[method] = body

		resp, ok := f.responses[method]
		if !ok {
			resp = `{"ok":true}`
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(resp))
	}))
	t.Cleanup(server.Close)
	return f, server
}

func TestClient_CreateVoiceRoom(t *testing.T) {
	fake, server := newFakePlatform(t)
	fake.responses["createRoom"] = `{"ok":true,"result":{"id":"v42"}}`
	client := platform.NewClient(server.URL, "tok123")

	grants := []platform.AccessGrant{{SubjectID: "p1", Allow: platform.OwnerVoicePermissions}}
	id, err := client.CreateVoiceRoom(context.Background(), "c1", "parent", "Ana's Channel", 5, 64000, grants)

	require.NoError(t, err)
	assert.Equal(t, "v42", id)
	assert.Equal(t, "Bot tok123", fake.lastAuth)

	req := fake.requests["createRoom"]
	assert.Equal(t, "c1", req["community_id"])
	assert.Equal(t, "parent", req["parent_id"])
	assert.Equal(t, "voice", req["type"])
	assert.Equal(t, float64(5), req["limit"])
}

func TestClient_DeleteRoomNotFound(t *testing.T) {
	fake, server := newFakePlatform(t)
	fake.responses["deleteRoom"] = `{"ok":false,"error_code":404,"description":"room not found"}`
	client := platform.NewClient(server.URL, "tok")

	err := client.DeleteRoom(context.Background(), "gone")

	assert.ErrorIs(t, err, platform.ErrNotFound, "平台 404 应映射到 ErrNotFound 哨兵")
}

func TestClient_PlatformErrorIsWrapped(t *testing.T) {
	fake, server := newFakePlatform(t)
	fake.responses["editRoom"] = `{"ok":false,"error_code":429,"description":"rate limited"}`
	client := platform.NewClient(server.URL, "tok")

	name := "x"
	err := client.EditRoom(context.Background(), "v1", platform.RoomPatch{Name: &name})

	require.Error(t, err)
	assert.NotErrorIs(t, err, platform.ErrNotFound)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestClient_ListRoomsUnder(t *testing.T) {
	fake, server := newFakePlatform(t)
	fake.responses["listRooms"] = `{"ok":true,"result":[
		{"id":"v1","type":"voice","occupants":["p1","p2"]},
		{"id":"t1","type":"text","occupants":[]}
	]}`
	client := platform.NewClient(server.URL, "tok")

	rooms, err := client.ListRoomsUnder(context.Background(), "c1", "parent")

	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, platform.RoomTypeVoice, rooms[0].Type)
	assert.Equal(t, []string{"p1", "p2"}, rooms[0].Occupants)
	assert.Equal(t, platform.RoomTypeText, rooms[1].Type)
}

func TestClient_EditRoomOmitsUnsetFields(t *testing.T) {
	fake, server := newFakePlatform(t)
	client := platform.NewClient(server.URL, "tok")

	limit := 10
	err := client.EditRoom(context.Background(), "v1", platform.RoomPatch{Limit: &limit})

	require.NoError(t, err)
	req := fake.requests["editRoom"]
	assert.Equal(t, float64(10), req["limit"])
	_, hasName := req["name"]
	assert.False(t, hasName, "未修改的字段不应出现在请求中")
	_, hasRegion := req["region"]
	assert.False(t, hasRegion)
}

func TestClient_Participant(t *testing.T) {
	fake, server := newFakePlatform(t)
	fake.responses["getParticipant"] = `{"ok":true,"result":{"id":"p1","handle":"ana_h","display_name":"Ana"}}`
	client := platform.NewClient(server.URL, "tok")

	info, err := client.Participant(context.Background(), "c1", "p1")

	require.NoError(t, err)
	assert.Equal(t, platform.ParticipantInfo{ID: "p1", Handle: "ana_h", DisplayName: "Ana"}, info)
}
