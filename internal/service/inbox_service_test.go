package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"storyreel-server/internal/interfaces/mocks"
	"storyreel-server/internal/messaging"
	messagingMocks "storyreel-server/internal/messaging/mocks"
	"storyreel-server/internal/models"
	"storyreel-server/internal/service"
)

type inboxServiceMocks struct {
	inboxRepo *mocks.InboxRepository
	publisher *messagingMocks.TaskPublisher
}

func newInboxService(t *testing.T) (service.InboxService, *inboxServiceMocks) {
	t.Helper()
	m := &inboxServiceMocks{
		inboxRepo: new(mocks.InboxRepository),
		publisher: new(messagingMocks.TaskPublisher),
	}
	svc := service.NewInboxService(nil, nil, m.inboxRepo, m.publisher, zap.NewNop())
	return svc, m
}

func TestCreateAgent(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	t.Run("Success", func(t *testing.T) {
		svc, m := newInboxService(t)
		m.inboxRepo.On("CreateAgent", ctx, mock.Anything, mock.MatchedBy(func(a *models.Agent) bool {
			return a.UserID == userID && a.Name == "Редактор" && a.Personality == "строгий, лаконичный"
		})).Return(nil).Once()

		agent, err := svc.CreateAgent(ctx, userID, "Редактор", "правит сценарии", "строгий, лаконичный")

		assert.NoError(t, err)
		assert.NotNil(t, agent)
		m.inboxRepo.AssertExpectations(t)
	})

	t.Run("RepoErrorWrapped", func(t *testing.T) {
		svc, m := newInboxService(t)
		repoErr := errors.New("insert failed")
		m.inboxRepo.On("CreateAgent", ctx, mock.Anything, mock.Anything).Return(repoErr).Once()

		agent, err := svc.CreateAgent(ctx, userID, "Редактор", "", "")

		assert.ErrorIs(t, err, repoErr)
		assert.Nil(t, agent)
	})
}

func TestDeleteAgent(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	agentID := uuid.New()

	t.Run("Success", func(t *testing.T) {
		svc, m := newInboxService(t)
		m.inboxRepo.On("GetAgent", ctx, mock.Anything, agentID).
			Return(&models.Agent{ID: agentID, UserID: userID}, nil).Once()
		m.inboxRepo.On("DeleteAgent", ctx, mock.Anything, agentID).Return(nil).Once()

		err := svc.DeleteAgent(ctx, agentID, userID)

		assert.NoError(t, err)
		m.inboxRepo.AssertExpectations(t)
	})

	t.Run("ForeignAgentForbidden", func(t *testing.T) {
		svc, m := newInboxService(t)
		m.inboxRepo.On("GetAgent", ctx, mock.Anything, agentID).
			Return(&models.Agent{ID: agentID, UserID: uuid.New()}, nil).Once()

		err := svc.DeleteAgent(ctx, agentID, userID)

		assert.ErrorIs(t, err, models.ErrForbidden)
		m.inboxRepo.AssertNotCalled(t, "DeleteAgent", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("NotFound", func(t *testing.T) {
		svc, m := newInboxService(t)
		m.inboxRepo.On("GetAgent", ctx, mock.Anything, agentID).
			Return(nil, models.ErrAgentNotFound).Once()

		err := svc.DeleteAgent(ctx, agentID, userID)

		assert.ErrorIs(t, err, models.ErrAgentNotFound)
	})
}

func TestStartConversation(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	agentID := uuid.New()
	ownAgent := &models.Agent{ID: agentID, UserID: userID, Name: "Редактор"}

	t.Run("Success", func(t *testing.T) {
		svc, m := newInboxService(t)
		m.inboxRepo.On("GetAgent", ctx, mock.Anything, agentID).Return(ownAgent, nil).Once()
		m.inboxRepo.On("CreateConversation", ctx, mock.Anything, mock.MatchedBy(func(c *models.Conversation) bool {
			return c.UserID == userID && c.AgentID == agentID && c.Title == "Правки по третьей серии"
		})).Return(nil).Once()

		conv, err := svc.StartConversation(ctx, userID, agentID, "Правки по третьей серии")

		assert.NoError(t, err)
		assert.NotNil(t, conv)
		m.inboxRepo.AssertExpectations(t)
	})

	t.Run("EmptyTitleDefaultsToAgentName", func(t *testing.T) {
		svc, m := newInboxService(t)
		m.inboxRepo.On("GetAgent", ctx, mock.Anything, agentID).Return(ownAgent, nil).Once()
		m.inboxRepo.On("CreateConversation", ctx, mock.Anything, mock.MatchedBy(func(c *models.Conversation) bool {
			return c.Title == "Редактор"
		})).Return(nil).Once()

		conv, err := svc.StartConversation(ctx, userID, agentID, "")

		assert.NoError(t, err)
		assert.Equal(t, "Редактор", conv.Title)
	})

	t.Run("ForeignAgentForbidden", func(t *testing.T) {
		svc, m := newInboxService(t)
		m.inboxRepo.On("GetAgent", ctx, mock.Anything, agentID).
			Return(&models.Agent{ID: agentID, UserID: uuid.New(), Name: "Чужой"}, nil).Once()

		conv, err := svc.StartConversation(ctx, userID, agentID, "")

		assert.ErrorIs(t, err, models.ErrForbidden)
		assert.Nil(t, conv)
		m.inboxRepo.AssertNotCalled(t, "CreateConversation", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestGetConversation(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	convID := uuid.New()

	t.Run("SuccessWithMessages", func(t *testing.T) {
		svc, m := newInboxService(t)
		conv := &models.Conversation{ID: convID, UserID: userID, Title: "Сценарий"}
		msgs := []*models.ConversationMessage{
			{ID: uuid.New(), ConversationID: convID, Author: models.AuthorUser, Content: "Перепиши финал"},
			{ID: uuid.New(), ConversationID: convID, Author: models.AuthorAgent, Content: "Готово, финал стал короче"},
		}
		m.inboxRepo.On("GetConversation", ctx, mock.Anything, convID).Return(conv, nil).Once()
		m.inboxRepo.On("ListMessages", ctx, mock.Anything, convID).Return(msgs, nil).Once()

		gotConv, gotMsgs, err := svc.GetConversation(ctx, convID, userID)

		assert.NoError(t, err)
		assert.Equal(t, conv, gotConv)
		assert.Len(t, gotMsgs, 2)
	})

	t.Run("ForeignConversationForbidden", func(t *testing.T) {
		svc, m := newInboxService(t)
		m.inboxRepo.On("GetConversation", ctx, mock.Anything, convID).
			Return(&models.Conversation{ID: convID, UserID: uuid.New()}, nil).Once()

		gotConv, gotMsgs, err := svc.GetConversation(ctx, convID, userID)

		assert.ErrorIs(t, err, models.ErrForbidden)
		assert.Nil(t, gotConv)
		assert.Nil(t, gotMsgs)
		m.inboxRepo.AssertNotCalled(t, "ListMessages", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestSendMessage(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	convID := uuid.New()
	ownConv := &models.Conversation{ID: convID, UserID: userID}

	t.Run("SuccessPublishesAgentReplyTask", func(t *testing.T) {
		svc, m := newInboxService(t)
		m.inboxRepo.On("GetConversation", ctx, mock.Anything, convID).Return(ownConv, nil).Once()
		m.inboxRepo.On("CreateMessage", ctx, mock.Anything, mock.MatchedBy(func(msg *models.ConversationMessage) bool {
			return msg.ConversationID == convID && msg.Author == models.AuthorUser && msg.Content == "Добавь диалог в начало"
		})).Return(nil).Once()
		m.publisher.On("PublishGenerationTask", ctx, mock.MatchedBy(func(p messaging.GenerationTaskPayload) bool {
			return p.TaskType == messaging.TaskAgentReply &&
				p.ConversationID == convID.String() &&
				p.UserID == userID.String() &&
				p.TaskID != ""
		})).Return(nil).Once()

		msg, err := svc.SendMessage(ctx, convID, userID, "Добавь диалог в начало")

		assert.NoError(t, err)
		assert.NotNil(t, msg)
		m.publisher.AssertExpectations(t)
	})

	t.Run("EmptyContent", func(t *testing.T) {
		svc, m := newInboxService(t)

		msg, err := svc.SendMessage(ctx, convID, userID, "")

		assert.Error(t, err)
		assert.Nil(t, msg)
		m.inboxRepo.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("PublishFailureStillReturnsSavedMessage", func(t *testing.T) {
		svc, m := newInboxService(t)
		pubErr := errors.New("broker down")
		m.inboxRepo.On("GetConversation", ctx, mock.Anything, convID).Return(ownConv, nil).Once()
		m.inboxRepo.On("CreateMessage", ctx, mock.Anything, mock.Anything).Return(nil).Once()
		m.publisher.On("PublishGenerationTask", ctx, mock.Anything).Return(pubErr).Once()

		msg, err := svc.SendMessage(ctx, convID, userID, "Добавь диалог")

		assert.ErrorIs(t, err, pubErr)
		assert.NotNil(t, msg)
		assert.Equal(t, models.AuthorUser, msg.Author)
	})

	t.Run("ForeignConversationForbidden", func(t *testing.T) {
		svc, m := newInboxService(t)
		m.inboxRepo.On("GetConversation", ctx, mock.Anything, convID).
			Return(&models.Conversation{ID: convID, UserID: uuid.New()}, nil).Once()

		msg, err := svc.SendMessage(ctx, convID, userID, "Привет")

		assert.ErrorIs(t, err, models.ErrForbidden)
		assert.Nil(t, msg)
	})
}
