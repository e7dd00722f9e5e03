package service

import (
	"context"
	"time"

	"github.com/Rifqin-11/PosyanduKlitikan/internal/domain"
	"github.com/Rifqin-11/PosyanduKlitikan/internal/repository"

	"go.uber.org/zap"
)

// ChangeNotifier receives participant change events (MQTT publisher).
// Delivery failures are the notifier's concern and never fail the action.
type ChangeNotifier interface {
	ParticipantChanged(ctx context.Context, ev domain.ParticipantEvent)
}

// ParticipantService 参与者服务接口
// 所有方法都需要 ctx 中带有已登录会话（domain.ContextWithSession）
type ParticipantService interface {
	// List 查询（搜索 + BMI 分类过滤）
	List(ctx context.Context, q ListQuery) (*ParticipantList, error)

	// Create/Update/Delete 成功后重新拉取完整列表
	Create(ctx context.Context, in domain.ParticipantInput) (*ParticipantList, error)
	Update(ctx context.Context, id string, in domain.ParticipantInput) (*ParticipantList, error)
	Delete(ctx context.Context, id string) (*ParticipantList, error)

	// Export 导出过滤后的结果，空集合返回 ErrNothingToExport
	Export(ctx context.Context, q ListQuery) (*ExportTable, error)
}

// ListQuery is the table's search box and BMI category select.
type ListQuery struct {
	Search   string `json:"q"`
	Category string `json:"category"` // CategoryAll or a BMI category label
}

func (q ListQuery) normalize() (ListQuery, error) {
	if q.Category == "" {
		q.Category = CategoryAll
	}
	if q.Category != CategoryAll && !domain.IsCategory(q.Category) {
		return q, domain.ValidationErrors{"category": "Kategori BMI tidak dikenal"}
	}
	return q, nil
}

// ParticipantView is a record with its derived metrics.
type ParticipantView struct {
	*domain.Participant
	domain.DerivedMetrics
}

// ParticipantList is a (filtered) list. Total counts all records, Count the listed ones.
type ParticipantList struct {
	Total int               `json:"total"`
	Count int               `json:"count"`
	Items []ParticipantView `json:"items"`
}

type participantService struct {
	repo     repository.ParticipantsRepository
	notifier ChangeNotifier
	loc      *time.Location
	now      func() time.Time
	logger   *zap.Logger
}

// NewParticipantService 创建 ParticipantService 实例
// notifier 可为 nil；loc 决定"今天"（年龄）和导出日期所用时区
func NewParticipantService(repo repository.ParticipantsRepository, notifier ChangeNotifier, loc *time.Location, logger *zap.Logger) ParticipantService {
	if loc == nil {
		loc = time.UTC
	}
	return &participantService{
		repo:     repo,
		notifier: notifier,
		loc:      loc,
		now:      time.Now,
		logger:   logger,
	}
}

func (s *participantService) today() domain.Date {
	return domain.Today(s.now(), s.loc)
}

func requireSession(ctx context.Context) (*domain.Session, error) {
	sess := domain.SessionFromContext(ctx)
	if sess == nil {
		return nil, ErrNotSignedIn
	}
	return sess, nil
}

func (s *participantService) fetch(ctx context.Context) ([]*domain.Participant, error) {
	records, err := s.repo.List(ctx)
	if err != nil {
		s.logger.Error("Failed to load participants", zap.Error(err))
		return nil, err
	}
	return records, nil
}

func (s *participantService) view(all, listed []*domain.Participant) *ParticipantList {
	today := s.today()
	items := make([]ParticipantView, 0, len(listed))
	for _, p := range listed {
		items = append(items, ParticipantView{Participant: p, DerivedMetrics: domain.Derive(p, today)})
	}
	return &ParticipantList{Total: len(all), Count: len(listed), Items: items}
}

func (s *participantService) List(ctx context.Context, q ListQuery) (*ParticipantList, error) {
	if _, err := requireSession(ctx); err != nil {
		return nil, err
	}
	q, err := q.normalize()
	if err != nil {
		return nil, err
	}
	all, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}
	return s.view(all, FilterParticipants(all, q.Search, q.Category)), nil
}

// refetch reloads the full list after a mutation. The mutation already
// succeeded, so a failed reload is logged and reported as a nil list.
func (s *participantService) refetch(ctx context.Context) []*domain.Participant {
	all, err := s.fetch(ctx)
	if err != nil {
		s.logger.Warn("Participant list refetch after mutation failed", zap.Error(err))
		return nil
	}
	return all
}

func (s *participantService) listOrNil(all []*domain.Participant) *ParticipantList {
	if all == nil {
		return nil
	}
	return s.view(all, all)
}

func (s *participantService) notify(ctx context.Context, event, participantID, userID string) {
	if s.notifier == nil {
		return
	}
	s.notifier.ParticipantChanged(ctx, domain.NewParticipantEvent(event, participantID, userID, s.now()))
}

func (s *participantService) Create(ctx context.Context, in domain.ParticipantInput) (*ParticipantList, error) {
	sess, err := requireSession(ctx)
	if err != nil {
		return nil, err
	}
	fields, err := in.Validate(s.today())
	if err != nil {
		s.logger.Warn("Participant create rejected", zap.Error(err))
		return nil, err
	}
	if err := s.repo.Insert(ctx, fields, sess.User.ID); err != nil {
		s.logger.Error("Failed to create participant", zap.String("user_id", sess.User.ID), zap.Error(err))
		return nil, err
	}

	all := s.refetch(ctx)
	// insert returns nothing; the new record is the newest one with this NIK
	var id string
	for _, p := range all {
		if p.NIK == fields.NIK && (p.UserID == "" || p.UserID == sess.User.ID) {
			id = p.ID
			break
		}
	}
	s.logger.Info("Participant created", zap.String("participant_id", id), zap.String("user_id", sess.User.ID))
	s.notify(ctx, domain.EventParticipantCreated, id, sess.User.ID)
	return s.listOrNil(all), nil
}

func (s *participantService) Update(ctx context.Context, id string, in domain.ParticipantInput) (*ParticipantList, error) {
	sess, err := requireSession(ctx)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, repository.ErrParticipantNotFound
	}
	fields, err := in.Validate(s.today())
	if err != nil {
		s.logger.Warn("Participant update rejected", zap.String("participant_id", id), zap.Error(err))
		return nil, err
	}
	if err := s.repo.Update(ctx, id, fields); err != nil {
		s.logger.Error("Failed to update participant", zap.String("participant_id", id), zap.Error(err))
		return nil, err
	}
	s.logger.Info("Participant updated", zap.String("participant_id", id), zap.String("user_id", sess.User.ID))
	s.notify(ctx, domain.EventParticipantUpdated, id, sess.User.ID)
	return s.listOrNil(s.refetch(ctx)), nil
}

func (s *participantService) Delete(ctx context.Context, id string) (*ParticipantList, error) {
	sess, err := requireSession(ctx)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, repository.ErrParticipantNotFound
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		s.logger.Error("Failed to delete participant", zap.String("participant_id", id), zap.Error(err))
		return nil, err
	}
	s.logger.Info("Participant deleted", zap.String("participant_id", id), zap.String("user_id", sess.User.ID))
	s.notify(ctx, domain.EventParticipantDeleted, id, sess.User.ID)
	return s.listOrNil(s.refetch(ctx)), nil
}

func (s *participantService) Export(ctx context.Context, q ListQuery) (*ExportTable, error) {
	if _, err := requireSession(ctx); err != nil {
		return nil, err
	}
	q, err := q.normalize()
	if err != nil {
		return nil, err
	}
	all, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}
	filtered := FilterParticipants(all, q.Search, q.Category)
	if len(filtered) == 0 {
		return nil, ErrNothingToExport
	}
	table := ExportRows(filtered, s.today(), s.loc)
	table.FileName = ExportFileName(s.now().In(s.loc))
	return table, nil
}
