package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client 是 API 接口的 REST 实现。
// 平台接口统一为 POST /<method>，请求和响应都是 JSON。
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    string
}

// NewClient 创建平台 REST 客户端。
func NewClient(baseURL, token string) *Client {
	if baseURL == "" {
		panic("platform base URL cannot be empty")
	}
	return &Client{
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
	}
}

// apiResponse 是平台 API 的统一响应外壳。
type apiResponse struct {
	OK          bool            `json:"ok"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
}

// 平台返回的资源不存在错误码。
const codeNotFound = 404

// call 执行一次平台 API 调用并返回原始结果。
func (c *Client) call(ctx context.Context, method string, payload interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bot "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(data, &apiResp); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	if !apiResp.OK {
		if apiResp.ErrorCode == codeNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("platform: %s (code %d)", apiResp.Description, apiResp.ErrorCode)
	}
	return apiResp.Result, nil
}

type grantPayload struct {
	SubjectID string `json:"subject_id"`
	Allow     uint32 `json:"allow"`
	Deny      uint32 `json:"deny"`
}

func encodeGrants(grants []AccessGrant) []grantPayload {
	out := make([]grantPayload, 0, len(grants))
	for _, g := range grants {
		out = append(out, grantPayload{SubjectID: g.SubjectID, Allow: uint32(g.Allow), Deny: uint32(g.Deny)})
	}
	return out
}

type createRoomRequest struct {
	CommunityID string         `json:"community_id"`
	ParentID    string         `json:"parent_id"`
	Name        string         `json:"name"`
	Type        string         `json:"type"`
	Limit       int            `json:"limit,omitempty"`
	Bitrate     int            `json:"bitrate,omitempty"`
	Grants      []grantPayload `json:"grants,omitempty"`
}

type createRoomResult struct {
	ID string `json:"id"`
}

// CreateVoiceRoom 实现 API.CreateVoiceRoom
func (c *Client) CreateVoiceRoom(ctx context.Context, communityID, parentID, name string, limit, bitrate int, grants []AccessGrant) (string, error) {
	result, err := c.call(ctx, "createRoom", createRoomRequest{
		CommunityID: communityID,
		ParentID:    parentID,
		Name:        name,
		Type:        string(RoomTypeVoice),
		Limit:       limit,
		Bitrate:     bitrate,
		Grants:      encodeGrants(grants),
	})
	if err != nil {
		return "", err
	}
	var room createRoomResult
	if err := json.Unmarshal(result, &room); err != nil {
		return "", fmt.Errorf("unmarshal room: %w", err)
	}
	return room.ID, nil
}

// CreateTextRoom 实现 API.CreateTextRoom
func (c *Client) CreateTextRoom(ctx context.Context, communityID, parentID, name string, grants []AccessGrant) (string, error) {
	result, err := c.call(ctx, "createRoom", createRoomRequest{
		CommunityID: communityID,
		ParentID:    parentID,
		Name:        name,
		Type:        string(RoomTypeText),
		Grants:      encodeGrants(grants),
	})
	if err != nil {
		return "", err
	}
	var room createRoomResult
	if err := json.Unmarshal(result, &room); err != nil {
		return "", fmt.Errorf("unmarshal room: %w", err)
	}
	return room.ID, nil
}

// DeleteRoom 实现 API.DeleteRoom
func (c *Client) DeleteRoom(ctx context.Context, roomID string) error {
	_, err := c.call(ctx, "deleteRoom", map[string]string{"room_id": roomID})
	return err
}

type editRoomRequest struct {
	RoomID string  `json:"room_id"`
	Name   *string `json:"name,omitempty"`
	Limit  *int    `json:"limit,omitempty"`
	Region *string `json:"region,omitempty"`
}

// EditRoom 实现 API.EditRoom
func (c *Client) EditRoom(ctx context.Context, roomID string, patch RoomPatch) error {
	_, err := c.call(ctx, "editRoom", editRoomRequest{
		RoomID: roomID,
		Name:   patch.Name,
		Limit:  patch.Limit,
		Region: patch.Region,
	})
	return err
}

type setGrantRequest struct {
	RoomID string `json:"room_id"`
	grantPayload
}

// SetAccessGrant 实现 API.SetAccessGrant
func (c *Client) SetAccessGrant(ctx context.Context, roomID string, grant AccessGrant) error {
	_, err := c.call(ctx, "setAccessGrant", setGrantRequest{
		RoomID:       roomID,
		grantPayload: grantPayload{SubjectID: grant.SubjectID, Allow: uint32(grant.Allow), Deny: uint32(grant.Deny)},
	})
	return err
}

// RemoveAccessGrant 实现 API.RemoveAccessGrant
func (c *Client) RemoveAccessGrant(ctx context.Context, roomID, subjectID string) error {
	_, err := c.call(ctx, "removeAccessGrant", map[string]string{
		"room_id":    roomID,
		"subject_id": subjectID,
	})
	return err
}

// MoveParticipant 实现 API.MoveParticipant
func (c *Client) MoveParticipant(ctx context.Context, communityID, participantID, roomID string) error {
	_, err := c.call(ctx, "moveParticipant", map[string]string{
		"community_id":   communityID,
		"participant_id": participantID,
		"room_id":        roomID,
	})
	return err
}

// DisconnectParticipant 实现 API.DisconnectParticipant
func (c *Client) DisconnectParticipant(ctx context.Context, communityID, participantID string) error {
	_, err := c.call(ctx, "disconnectParticipant", map[string]string{
		"community_id":   communityID,
		"participant_id": participantID,
	})
	return err
}

type roomInfoPayload struct {
	ID        string   `json:"id"`
	Type      string   `json:"type"`
	Occupants []string `json:"occupants"`
}

// ListRoomsUnder 实现 API.ListRoomsUnder
func (c *Client) ListRoomsUnder(ctx context.Context, communityID, parentID string) ([]RoomInfo, error) {
	result, err := c.call(ctx, "listRooms", map[string]string{
		"community_id": communityID,
		"parent_id":    parentID,
	})
	if err != nil {
		return nil, err
	}
	var payload []roomInfoPayload
	if err := json.Unmarshal(result, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal rooms: %w", err)
	}
	rooms := make([]RoomInfo, 0, len(payload))
	for _, p := range payload {
		rooms = append(rooms, RoomInfo{ID: p.ID, Type: RoomType(p.Type), Occupants: p.Occupants})
	}
	return rooms, nil
}

type participantPayload struct {
	ID          string `json:"id"`
	Handle      string `json:"handle"`
	DisplayName string `json:"display_name"`
}

// Participant 实现 API.Participant
func (c *Client) Participant(ctx context.Context, communityID, participantID string) (ParticipantInfo, error) {
	result, err := c.call(ctx, "getParticipant", map[string]string{
		"community_id":   communityID,
		"participant_id": participantID,
	})
	if err != nil {
		return ParticipantInfo{}, err
	}
	var p participantPayload
	if err := json.Unmarshal(result, &p); err != nil {
		return ParticipantInfo{}, fmt.Errorf("unmarshal participant: %w", err)
	}
	return ParticipantInfo{ID: p.ID, Handle: p.Handle, DisplayName: p.DisplayName}, nil
}

// Notify 实现 API.Notify
func (c *Client) Notify(ctx context.Context, participantID, message string) error {
	_, err := c.call(ctx, "sendDirectMessage", map[string]string{
		"participant_id": participantID,
		"text":           message,
	})
	return err
}
