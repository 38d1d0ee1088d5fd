package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/haventide/compass-backend/internal/data/repos/plans"
	"github.com/haventide/compass-backend/internal/data/repos/sessions"
	types "github.com/haventide/compass-backend/internal/domain/coaching"
	"github.com/haventide/compass-backend/internal/llm"
	"github.com/haventide/compass-backend/internal/pkg/dbctx"
	"github.com/haventide/compass-backend/internal/platform/apierr"
	"github.com/haventide/compass-backend/internal/platform/logger"
)

// GenerationService produces the dossier from the interview transcript.
// Generation runs at most once per user; a lock keyed by user id keeps
// concurrent triggers from double-spending provider calls.
type GenerationService interface {
	GenerateDossier(ctx context.Context, userID, sessionID uuid.UUID) (*types.Dossier, error)
}

type generationService struct {
	db       *gorm.DB
	log      *logger.Logger
	provider llm.Provider
	locker   Locker
	turns    sessions.SessionTurnRepo
	dossiers plans.DossierRepo
}

func NewGenerationService(db *gorm.DB, baseLog *logger.Logger, provider llm.Provider, locker Locker, turns sessions.SessionTurnRepo, dossiers plans.DossierRepo) GenerationService {
	return &generationService{
		db:       db,
		log:      baseLog.With("service", "GenerationService"),
		provider: provider,
		locker:   locker,
		turns:    turns,
		dossiers: dossiers,
	}
}

func (s *generationService) GenerateDossier(ctx context.Context, userID, sessionID uuid.UUID) (*types.Dossier, error) {
	dbc := dbctx.Context{Ctx: ctx}
	existing, err := s.dossiers.GetByUserID(dbc, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	if !s.locker.TryAcquire(userID) {
		return nil, apierr.New(http.StatusConflict, "dossier_in_progress",
			fmt.Errorf("dossier generation already running"))
	}
	defer s.locker.Release(userID)

	// Re-check under the lock.
	existing, err = s.dossiers.GetByUserID(dbc, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	turns, err := s.turns.ListBySessionID(dbc, sessionID)
	if err != nil {
		return nil, err
	}
	if len(turns) == 0 {
		return nil, fmt.Errorf("no transcript to summarize")
	}

	comp, err := s.provider.Complete(ctx, llm.Request{
		System: dossierSystemPrompt,
		Messages: []llm.Message{{
			Role:    llm.RoleUser,
			Content: transcriptText(turns),
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("dossier generation: %w", err)
	}
	content := strings.TrimSpace(comp.Text)
	if content == "" {
		return nil, fmt.Errorf("dossier generation returned no text")
	}

	dossier, _, err := s.dossiers.CreateIfAbsent(dbc, &types.Dossier{
		UserID:    userID,
		SessionID: sessionID,
		Content:   content,
		Model:     comp.Model,
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("dossier generated", "user_id", userID, "chars", len(content))
	return dossier, nil
}

func transcriptText(turns []*types.SessionTurn) string {
	var b strings.Builder
	for _, t := range turns {
		label := "Client"
		if t.Role == types.TurnRoleAssistant {
			label = "Coach"
		}
		fmt.Fprintf(&b, "%s: %s\n\n", label, t.Content)
	}
	return b.String()
}
