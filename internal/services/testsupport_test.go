package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/haventide/compass-backend/internal/data/db"
	"github.com/haventide/compass-backend/internal/data/repos/plans"
	"github.com/haventide/compass-backend/internal/data/repos/sessions"
	"github.com/haventide/compass-backend/internal/data/repos/users"
	types "github.com/haventide/compass-backend/internal/domain/coaching"
	"github.com/haventide/compass-backend/internal/llm"
	"github.com/haventide/compass-backend/internal/pkg/dbctx"
	"github.com/haventide/compass-backend/internal/platform/logger"
)

type testEnv struct {
	t   *testing.T
	db  *gorm.DB
	log *logger.Logger

	userRepo    users.UserRepo
	journeyRepo users.JourneyStateRepo
	sessionRepo sessions.SessionRepo
	turnRepo    sessions.SessionTurnRepo
	eventRepo   sessions.SessionEventRepo
	planRepo    plans.CoachingPlanRepo
	dossierRepo plans.DossierRepo
	seriousRepo plans.SeriousPlanRepo
	runRepo     plans.PlanInitRunRepo
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrateAll(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	sessionRepo := sessions.NewSessionRepo(gdb, log)
	return &testEnv{
		t:           t,
		db:          gdb,
		log:         log,
		userRepo:    users.NewUserRepo(gdb, log),
		journeyRepo: users.NewJourneyStateRepo(gdb, log),
		sessionRepo: sessionRepo,
		turnRepo:    sessions.NewSessionTurnRepo(gdb, log),
		eventRepo:   sessions.NewSessionEventRepo(gdb, sessionRepo, log),
		planRepo:    plans.NewCoachingPlanRepo(gdb, log),
		dossierRepo: plans.NewDossierRepo(gdb, log),
		seriousRepo: plans.NewSeriousPlanRepo(gdb, log),
		runRepo:     plans.NewPlanInitRunRepo(gdb, log),
	}
}

func (e *testEnv) seedUser() *types.User {
	e.t.Helper()
	user, err := e.userRepo.Create(dbctx.Context{Ctx: context.Background()}, &types.User{
		Email: uuid.NewString() + "@example.com",
	})
	if err != nil {
		e.t.Fatalf("seed user: %v", err)
	}
	return user
}

func (e *testEnv) seedSession(userID uuid.UUID, kind string) *types.Session {
	e.t.Helper()
	session, err := e.sessionRepo.GetOrCreate(dbctx.Context{Ctx: context.Background()}, userID, kind)
	if err != nil {
		e.t.Fatalf("seed session: %v", err)
	}
	return session
}

func (e *testEnv) turnService(provider llm.Provider) TurnService {
	return NewTurnService(TurnDeps{
		DB:            e.db,
		Log:           e.log,
		Provider:      provider,
		Locker:        NewMemoryLocker(),
		Notifier:      NewTurnNotifier(nil),
		Sessions:      e.sessionRepo,
		Turns:         e.turnRepo,
		Events:        e.eventRepo,
		Users:         e.userRepo,
		JourneyStates: e.journeyRepo,
		CoachingPlans: e.planRepo,
		SeriousPlans:  e.seriousRepo,
		PlanInitRuns:  e.runRepo,
	})
}

func (e *testEnv) sessionService(turn TurnService) SessionService {
	return NewSessionService(SessionDeps{
		DB:            e.db,
		Log:           e.log,
		Turn:          turn,
		Notifier:      NewTurnNotifier(nil),
		Sessions:      e.sessionRepo,
		Turns:         e.turnRepo,
		Events:        e.eventRepo,
		JourneyStates: e.journeyRepo,
		CoachingPlans: e.planRepo,
		Dossiers:      e.dossierRepo,
		SeriousPlans:  e.seriousRepo,
		PlanInitRuns:  e.runRepo,
	})
}

// stubProvider replays scripted completions in order. When the script
// runs out it keeps returning the last entry.
type stubProvider struct {
	script []stubStep
	calls  int
	reqs   []llm.Request
}

type stubStep struct {
	comp *llm.Completion
	err  error
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) next() stubStep {
	i := p.calls
	if i >= len(p.script) {
		i = len(p.script) - 1
	}
	p.calls++
	return p.script[i]
}

func (p *stubProvider) Complete(ctx context.Context, req llm.Request) (*llm.Completion, error) {
	p.reqs = append(p.reqs, req)
	step := p.next()
	return step.comp, step.err
}

func (p *stubProvider) Stream(ctx context.Context, req llm.Request, handler llm.StreamHandler) (*llm.Completion, error) {
	p.reqs = append(p.reqs, req)
	step := p.next()
	if step.err != nil {
		return nil, step.err
	}
	if handler.OnTextDelta != nil && step.comp.Text != "" {
		handler.OnTextDelta(step.comp.Text)
	}
	if handler.OnToolCall != nil {
		for _, call := range step.comp.ToolCalls {
			handler.OnToolCall(call)
		}
	}
	return step.comp, step.err
}

func textStep(text string) stubStep {
	return stubStep{comp: &llm.Completion{Text: text}}
}

func toolStep(text string, calls ...llm.ToolCall) stubStep {
	return stubStep{comp: &llm.Completion{Text: text, ToolCalls: calls}}
}
