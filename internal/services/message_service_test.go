package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"ridechat/internal/models"
	"ridechat/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type messageFixture struct {
	rooms     *fakeRoomRepo
	messages  *fakeMessageRepo
	transport *fakeTransport
	submitter *fakeSubmitter
	service   MessageService
}

func newMessageFixture() *messageFixture {
	rooms := newFakeRoomRepo(
		&models.ChatRoom{RideID: "ride-1", DriverID: "driver-1", PassengerIDs: []string{"pass-1"}},
		&models.ChatRoom{RideID: "ride-closed", DriverID: "driver-1", IsClosed: true},
	)
	messages := newFakeMessageRepo()
	transport := newFakeTransport("c-driver", "c-pass")
	transport.Join("c-driver", models.RoomGroup("ride-1"))
	transport.Join("c-pass", models.RoomGroup("ride-1"))
	submitter := &fakeSubmitter{}

	return &messageFixture{
		rooms:     rooms,
		messages:  messages,
		transport: transport,
		submitter: submitter,
		service:   NewMessageService(testChatConfig(), rooms, messages, transport, submitter, logger.NewDiscard()),
	}
}

func (f *messageFixture) send(t *testing.T, senderID, content string) *models.Message {
	t.Helper()
	message, err := f.service.SendMessage(context.Background(), &SendMessageRequest{
		RideID:       "ride-1",
		SenderID:     senderID,
		Content:      content,
		ConnectionID: "c-driver",
	})
	require.NoError(t, err)
	return message
}

func TestSendMessage_PersistsBroadcastsAndEnqueues(t *testing.T) {
	f := newMessageFixture()

	message := f.send(t, "driver-1", "on my way")

	stored := f.messages.stored(message.ID.Hex())
	assert.Equal(t, models.MessageStatusActive, stored.Status)
	assert.False(t, stored.IsFlagged)
	assert.Equal(t, "on my way", stored.Content)

	received := f.transport.lastPayload("c-pass", EventMessageReceived).(*models.Message)
	assert.Equal(t, stored.ID, received.ID)
	assert.Contains(t, f.transport.events("c-driver"), EventMessageReceived)

	ack := f.transport.lastPayload("c-driver", EventMessageSent).(map[string]interface{})
	assert.Equal(t, message.ID.Hex(), ack["messageId"])
	assert.NotContains(t, f.transport.events("c-pass"), EventMessageSent)

	jobs := f.submitter.submitted()
	require.Len(t, jobs, 1)
	assert.Equal(t, models.ModerationJob{
		MessageID: message.ID.Hex(),
		Content:   "on my way",
		SenderID:  "driver-1",
		RideID:    "ride-1",
	}, *jobs[0])

	assert.Equal(t, int64(1), f.rooms.room("ride-1").MessageCount)
}

func TestSendMessage_Validation(t *testing.T) {
	tests := []struct {
		name    string
		request SendMessageRequest
		wantErr error
	}{
		{"missing ride", SendMessageRequest{SenderID: "driver-1", Content: "hi"}, ErrInvalidInput},
		{"missing sender", SendMessageRequest{RideID: "ride-1", Content: "hi"}, ErrInvalidInput},
		{"missing content", SendMessageRequest{RideID: "ride-1", SenderID: "driver-1"}, ErrInvalidInput},
		{"blank content", SendMessageRequest{RideID: "ride-1", SenderID: "driver-1", Content: "   "}, ErrInvalidInput},
		{"too long", SendMessageRequest{RideID: "ride-1", SenderID: "driver-1", Content: strings.Repeat("a", 501)}, ErrInvalidInput},
		{"unknown room", SendMessageRequest{RideID: "ride-x", SenderID: "driver-1", Content: "hi"}, ErrNotFound},
		{"not a member", SendMessageRequest{RideID: "ride-1", SenderID: "stranger", Content: "hi"}, ErrUnauthorized},
		{"closed room", SendMessageRequest{RideID: "ride-closed", SenderID: "driver-1", Content: "hi"}, ErrRoomClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newMessageFixture()
			req := tt.request
			_, err := f.service.SendMessage(context.Background(), &req)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, 0, f.messages.count())
			assert.Empty(t, f.submitter.submitted())
			assert.Equal(t, 0, f.transport.broadcastCount(EventMessageReceived))
		})
	}
}

func TestSendMessage_LengthCountsCodePoints(t *testing.T) {
	f := newMessageFixture()
	f.send(t, "pass-1", strings.Repeat("é", 500))
	assert.Equal(t, 1, f.messages.count())
}

func TestSendMessage_CounterFailureDoesNotFailSend(t *testing.T) {
	f := newMessageFixture()
	f.rooms.incrementErr = errors.New("write conflict")

	message := f.send(t, "driver-1", "hello")
	assert.NotEmpty(t, message.ID.Hex())
	assert.Len(t, f.submitter.submitted(), 1)
}

func TestSendMessage_StorageFailureIsVisible(t *testing.T) {
	f := newMessageFixture()
	f.messages.createErr = errors.New("mongo down")

	_, err := f.service.SendMessage(context.Background(), &SendMessageRequest{RideID: "ride-1", SenderID: "driver-1", Content: "hi"})
	assert.Error(t, err)
	assert.Equal(t, 0, f.transport.broadcastCount(EventMessageReceived))
	assert.Empty(t, f.submitter.submitted())
}

func TestDeleteMessage(t *testing.T) {
	f := newMessageFixture()
	ctx := context.Background()
	message := f.send(t, "pass-1", "wrong ride, sorry")
	id := message.ID.Hex()

	_, err := f.service.DeleteMessage(ctx, id, "driver-1")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.service.DeleteMessage(ctx, "000000000000000000000000", "pass-1")
	assert.ErrorIs(t, err, ErrNotFound)

	deleted, err := f.service.DeleteMessage(ctx, id, "pass-1")
	require.NoError(t, err)
	assert.Equal(t, models.MessageStatusRemoved, deleted.Status)
	assert.Equal(t, models.MessageStatusRemoved, f.messages.stored(id).Status)

	payload := f.transport.lastPayload("c-driver", EventMessageDeleted).(map[string]interface{})
	assert.Equal(t, id, payload["messageId"])

	again, err := f.service.DeleteMessage(ctx, id, "pass-1")
	require.NoError(t, err)
	assert.Equal(t, models.MessageStatusRemoved, again.Status)
	assert.Equal(t, 1, f.transport.broadcastCount(EventMessageDeleted))
}

func TestApplyModerationResult(t *testing.T) {
	ctx := context.Background()

	t.Run("unflagged is a no-op", func(t *testing.T) {
		f := newMessageFixture()
		id := f.send(t, "driver-1", "hi").ID.Hex()

		flagged, err := f.service.ApplyModerationResult(ctx, id, safeResult())
		require.NoError(t, err)
		assert.False(t, flagged)
		assert.Equal(t, models.MessageStatusActive, f.messages.stored(id).Status)
		assert.Equal(t, 0, f.transport.broadcastCount(EventMessageFlagged))
	})

	t.Run("flagged updates and broadcasts", func(t *testing.T) {
		f := newMessageFixture()
		id := f.send(t, "driver-1", "something nasty").ID.Hex()

		flagged, err := f.service.ApplyModerationResult(ctx, id, flaggedResult("harassment"))
		require.NoError(t, err)
		assert.True(t, flagged)

		stored := f.messages.stored(id)
		assert.Equal(t, models.MessageStatusFlagged, stored.Status)
		assert.True(t, stored.IsFlagged)
		assert.Equal(t, "Message contains harassment", stored.FlagReason)
		require.NotNil(t, stored.ModerationDetails)
		assert.Equal(t, 0.97, stored.ModerationDetails.CategoryScores["harassment"])
		assert.Equal(t, "omni-moderation-latest", stored.ModerationDetails.ModerationModel)

		payload := f.transport.lastPayload("c-pass", EventMessageFlagged).(map[string]interface{})
		assert.Equal(t, id, payload["messageId"])
		assert.Equal(t, "Message contains harassment", payload["flagReason"])
	})

	t.Run("flag is never cleared", func(t *testing.T) {
		f := newMessageFixture()
		id := f.send(t, "driver-1", "something nasty").ID.Hex()

		_, err := f.service.ApplyModerationResult(ctx, id, flaggedResult("hate"))
		require.NoError(t, err)

		for i := 0; i < 3; i++ {
			flagged, err := f.service.ApplyModerationResult(ctx, id, safeResult())
			require.NoError(t, err)
			assert.False(t, flagged)
		}
		flagged, err := f.service.ApplyModerationResult(ctx, id, flaggedResult("violence"))
		require.NoError(t, err)
		assert.False(t, flagged)

		stored := f.messages.stored(id)
		assert.Equal(t, models.MessageStatusFlagged, stored.Status)
		assert.Equal(t, "Message contains hate speech", stored.FlagReason)
		assert.Equal(t, 1, f.transport.broadcastCount(EventMessageFlagged))
	})

	t.Run("removed stays removed with audit fields", func(t *testing.T) {
		f := newMessageFixture()
		id := f.send(t, "driver-1", "something nasty").ID.Hex()
		_, err := f.service.DeleteMessage(ctx, id, "driver-1")
		require.NoError(t, err)

		flagged, err := f.service.ApplyModerationResult(ctx, id, flaggedResult("violence"))
		require.NoError(t, err)
		assert.False(t, flagged)

		stored := f.messages.stored(id)
		assert.Equal(t, models.MessageStatusRemoved, stored.Status)
		assert.True(t, stored.IsFlagged)
		assert.Equal(t, "Message contains violent content", stored.FlagReason)
		assert.Equal(t, 0, f.transport.broadcastCount(EventMessageFlagged))
	})

	t.Run("missing message completes quietly", func(t *testing.T) {
		f := newMessageFixture()
		flagged, err := f.service.ApplyModerationResult(ctx, "000000000000000000000000", flaggedResult("hate"))
		require.NoError(t, err)
		assert.False(t, flagged)
	})

	t.Run("storage failure is returned for retry", func(t *testing.T) {
		f := newMessageFixture()
		id := f.send(t, "driver-1", "something nasty").ID.Hex()
		f.messages.updateErr = errors.New("write timeout")

		_, err := f.service.ApplyModerationResult(ctx, id, flaggedResult("hate"))
		assert.Error(t, err)
		assert.Equal(t, models.MessageStatusActive, f.messages.stored(id).Status)
	})

	t.Run("flagged without categories gets generic reason", func(t *testing.T) {
		f := newMessageFixture()
		id := f.send(t, "driver-1", "hmm").ID.Hex()

		_, err := f.service.ApplyModerationResult(ctx, id, &models.ModerationResult{IsFlagged: true})
		require.NoError(t, err)
		assert.Equal(t, "Content violates community guidelines", f.messages.stored(id).FlagReason)
	})
}

func TestListMessages(t *testing.T) {
	f := newMessageFixture()
	ctx := context.Background()
	for _, content := range []string{"one", "two", "three"} {
		f.send(t, "driver-1", content)
	}

	messages, err := f.service.ListMessages(ctx, "ride-1", 2, 0)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "three", messages[0].Content)
	assert.Equal(t, "two", messages[1].Content)

	messages, err = f.service.ListMessages(ctx, "ride-1", 0, 2)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "one", messages[0].Content)

	count, err := f.service.CountMessages(ctx, "ride-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	_, err = f.service.ListMessages(ctx, "", 10, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
