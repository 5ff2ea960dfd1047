package store

import (
	"context"
	"errors"
	"strings"

	"github.com/psds-microservice/agri-support-service/internal/errs"
	"github.com/psds-microservice/agri-support-service/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore is the Postgres-backed store. Mutations lock the request row with
// SELECT ... FOR UPDATE for the duration of the transaction.
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errs.NotFound(what + " not found")
	}
	return err
}

func (s *GormStore) CreateRequest(ctx context.Context, r *model.SupportRequest, seed *model.Message) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(r).Error; err != nil {
			return err
		}
		if seed == nil {
			return nil
		}
		seed.RequestID = r.ID
		return tx.Omit(clause.Associations).Create(seed).Error
	})
}

func (s *GormStore) GetRequest(ctx context.Context, id uint64) (*model.SupportRequest, error) {
	var r model.SupportRequest
	err := s.db.WithContext(ctx).Preload("Creator").Preload("AssignedAgent").First(&r, id).Error
	if err != nil {
		return nil, notFound(err, "request")
	}
	return &r, nil
}

// lockRequest loads the row FOR UPDATE, then its parties without locking the
// identity rows.
func lockRequest(tx *gorm.DB, id uint64) (*model.SupportRequest, error) {
	var r model.SupportRequest
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&r, id).Error; err != nil {
		return nil, notFound(err, "request")
	}
	var creator model.Identity
	if err := tx.First(&creator, r.CreatorID).Error; err != nil {
		return nil, notFound(err, "creator")
	}
	r.Creator = &creator
	if r.AssignedAgentID != nil {
		var agent model.Identity
		if err := tx.First(&agent, *r.AssignedAgentID).Error; err != nil {
			return nil, notFound(err, "assigned agent")
		}
		r.AssignedAgent = &agent
	}
	return &r, nil
}

func (s *GormStore) MutateRequest(ctx context.Context, id uint64, fn MutateFunc) (*model.SupportRequest, error) {
	var out *model.SupportRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := lockRequest(tx, id)
		if err != nil {
			return err
		}
		changed, err := fn(r)
		if err != nil {
			return err
		}
		if changed {
			if err := tx.Omit(clause.Associations).Save(r).Error; err != nil {
				return err
			}
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *GormStore) AppendMessage(ctx context.Context, requestID uint64, fn AppendFunc) (*model.Message, error) {
	var out *model.Message
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := lockRequest(tx, requestID)
		if err != nil {
			return err
		}
		msg, err := fn(r)
		if err != nil {
			return err
		}
		msg.RequestID = requestID
		if err := tx.Omit(clause.Associations).Create(msg).Error; err != nil {
			return err
		}
		out = msg
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *GormStore) ListRequests(ctx context.Context, f RequestFilter, page model.PageRequest) ([]model.SupportRequest, int64, error) {
	base := func() *gorm.DB {
		tx := s.db.WithContext(ctx).Model(&model.SupportRequest{})
		if f.CreatorID != nil {
			tx = tx.Where("creator_id = ?", *f.CreatorID)
		}
		if f.AssignedAgentID != nil {
			tx = tx.Where("assigned_agent_id = ?", *f.AssignedAgentID)
		}
		if f.Unassigned {
			tx = tx.Where("assigned_agent_id IS NULL")
		}
		if f.Status != nil {
			tx = tx.Where("status = ?", string(*f.Status))
		}
		if f.StatusNot != nil {
			tx = tx.Where("status <> ?", string(*f.StatusNot))
		}
		return tx
	}
	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var items []model.SupportRequest
	tx := base().Preload("Creator").Preload("AssignedAgent").
		Order(orderClause(f.OrderBy)).Order("id DESC")
	if page.Size > 0 {
		tx = tx.Limit(page.Size).Offset(page.Offset())
	}
	if err := tx.Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func orderClause(o OrderBy) string {
	switch o {
	case OrderByTaken:
		return "taken_at DESC NULLS LAST"
	case OrderByArchived:
		return "archived_at DESC NULLS LAST"
	}
	return "created_at DESC"
}

func (s *GormStore) ListMessages(ctx context.Context, requestID uint64, page model.PageRequest) ([]model.Message, int64, error) {
	var exists int64
	if err := s.db.WithContext(ctx).Model(&model.SupportRequest{}).Where("id = ?", requestID).Count(&exists).Error; err != nil {
		return nil, 0, err
	}
	if exists == 0 {
		return nil, 0, errs.NotFound("request not found")
	}
	var total int64
	q := s.db.WithContext(ctx).Model(&model.Message{}).Where("request_id = ?", requestID)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var items []model.Message
	tx := s.db.WithContext(ctx).Where("request_id = ?", requestID).Preload("Sender").
		Order("created_at ASC").Order("id ASC")
	if page.Size > 0 {
		tx = tx.Limit(page.Size).Offset(page.Offset())
	}
	if err := tx.Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *GormStore) IdentityByID(ctx context.Context, id uint64) (*model.Identity, error) {
	var ident model.Identity
	if err := s.db.WithContext(ctx).First(&ident, id).Error; err != nil {
		return nil, notFound(err, "identity")
	}
	return &ident, nil
}

func (s *GormStore) IdentityByUsername(ctx context.Context, username string) (*model.Identity, error) {
	var ident model.Identity
	err := s.db.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).First(&ident).Error
	if err != nil {
		return nil, notFound(err, "identity")
	}
	return &ident, nil
}

func (s *GormStore) IdentitiesWithRole(ctx context.Context, role model.Role) ([]model.Identity, error) {
	var out []model.Identity
	err := s.db.WithContext(ctx).
		Where("',' || roles || ',' LIKE ?", "%,"+string(role)+",%").
		Order("username ASC").Find(&out).Error
	return out, err
}

func (s *GormStore) ListIdentities(ctx context.Context) ([]model.Identity, error) {
	var out []model.Identity
	err := s.db.WithContext(ctx).Order("id ASC").Find(&out).Error
	return out, err
}

func (s *GormStore) SaveIdentity(ctx context.Context, ident *model.Identity) error {
	if strings.TrimSpace(ident.Username) == "" {
		return errs.Validation("username is required")
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "username"}},
		DoUpdates: clause.AssignmentColumns([]string{"roles", "identification_number"}),
	}).Create(ident).Error
}
