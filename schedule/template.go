package schedule

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/timekeeper/generic"
)

// =============================================================================
// TEMPLATE SERVICE
// =============================================================================

// TemplateInput holds the writable template fields. CompanyID defaults to the
// actor's company and is ignored on update.
type TemplateInput struct {
	CompanyID         generic.CompanyID
	Name              string
	StandardHours     decimal.Decimal
	OvertimeThreshold decimal.Decimal
	BreakMinutes      int
	IsFlexTime        bool
	FlexTimeStart     string
	FlexTimeEnd       string
	CoreTimeStart     string
	CoreTimeEnd       string
	IsDefault         bool
}

// TemplateService manages company work-schedule templates. Writes are open to
// system admins for any company and to company admins for their own.
type TemplateService struct {
	Store  TxStore
	Clock  generic.Clock
	Events generic.EventSink

	logger *zap.Logger
}

func NewTemplateService(store TxStore, clock generic.Clock, events generic.EventSink, logger ...*zap.Logger) *TemplateService {
	l := zap.L().Named("schedule.template")
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0].Named("schedule.template")
	}
	if clock == nil {
		clock = generic.SystemClock{}
	}
	if events == nil {
		events = generic.NopSink{}
	}
	return &TemplateService{Store: store, Clock: clock, Events: events, logger: l}
}

// Create stores a new template. With IsDefault set, any previous default of
// the company is unset in the same transaction.
func (s *TemplateService) Create(ctx context.Context, actor generic.Actor, in TemplateInput) (*WorkSchedule, error) {
	if in.CompanyID == "" {
		in.CompanyID = actor.CompanyID
	}
	if !generic.CanManageCompany(actor, in.CompanyID) {
		return nil, s.refused("create", &generic.ForbiddenError{ActorID: actor.ID, Action: "manage work schedules of company " + string(in.CompanyID)})
	}

	now := s.Clock.Now()
	w := in.apply(WorkSchedule{ID: generic.NewRecordID(), CompanyID: in.CompanyID, CreatedAt: now})
	w.UpdatedAt = now
	if err := w.Validate(); err != nil {
		return nil, s.refused("create", err)
	}

	err := s.Store.WithTx(ctx, func(tx Store) error {
		if w.IsDefault {
			if err := tx.ClearDefault(ctx, w.CompanyID, w.ID); err != nil {
				return err
			}
		}
		return tx.InsertTemplate(ctx, w)
	})
	if err != nil {
		return nil, s.refused("create", err, zap.String("company_id", string(w.CompanyID)))
	}

	s.logger.Info("create template success",
		zap.String("template_id", string(w.ID)),
		zap.String("company_id", string(w.CompanyID)),
		zap.Bool("is_default", w.IsDefault),
	)
	s.publish(ctx, actor, w.ID, "", "CREATED")
	return &w, nil
}

// Update replaces the writable fields of a template.
func (s *TemplateService) Update(ctx context.Context, actor generic.Actor, id generic.RecordID, in TemplateInput) (*WorkSchedule, error) {
	var out WorkSchedule
	err := s.Store.WithTx(ctx, func(tx Store) error {
		cur, err := s.loadManaged(ctx, tx, actor, id)
		if err != nil {
			return err
		}
		next := in.apply(*cur)
		next.UpdatedAt = s.Clock.Now()
		if err := next.Validate(); err != nil {
			return err
		}
		if next.IsDefault && !cur.IsDefault {
			if err := tx.ClearDefault(ctx, next.CompanyID, next.ID); err != nil {
				return err
			}
		}
		if err := tx.UpdateTemplate(ctx, next); err != nil {
			return err
		}
		out = next
		return nil
	})
	if err != nil {
		return nil, s.refused("update", err, zap.String("template_id", string(id)))
	}

	s.logger.Info("update template success", zap.String("template_id", string(id)))
	s.publish(ctx, actor, id, "", "UPDATED")
	return &out, nil
}

// SetDefault makes id the only default template of its company.
func (s *TemplateService) SetDefault(ctx context.Context, actor generic.Actor, id generic.RecordID) (*WorkSchedule, error) {
	var out WorkSchedule
	var previous generic.RecordID
	err := s.Store.WithTx(ctx, func(tx Store) error {
		cur, err := s.loadManaged(ctx, tx, actor, id)
		if err != nil {
			return err
		}
		if prev, err := tx.DefaultTemplate(ctx, cur.CompanyID); err != nil {
			return err
		} else if prev != nil {
			previous = prev.ID
		}
		if err := tx.ClearDefault(ctx, cur.CompanyID, cur.ID); err != nil {
			return err
		}
		next := *cur
		next.IsDefault = true
		next.UpdatedAt = s.Clock.Now()
		if err := tx.UpdateTemplate(ctx, next); err != nil {
			return err
		}
		out = next
		return nil
	})
	if err != nil {
		return nil, s.refused("set default", err, zap.String("template_id", string(id)))
	}

	s.logger.Info("set default template success",
		zap.String("template_id", string(id)),
		zap.String("previous_id", string(previous)),
	)
	s.publish(ctx, actor, id, "", "DEFAULT")
	return &out, nil
}

// Get returns a template of the actor's company. Admins see every company.
func (s *TemplateService) Get(ctx context.Context, actor generic.Actor, id generic.RecordID) (*WorkSchedule, error) {
	w, err := s.Store.GetTemplate(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load template %s: %w", id, err)
	}
	if w == nil {
		return nil, &generic.NotFoundError{Kind: "work schedule", ID: string(id)}
	}
	if actor.Role != generic.RoleAdmin && w.CompanyID != actor.CompanyID {
		return nil, &generic.ForbiddenError{ActorID: actor.ID, Action: "view work schedules of company " + string(w.CompanyID)}
	}
	return w, nil
}

// List returns the templates of company. Non-admins only ever see their own
// company; admins see every company when company is empty.
func (s *TemplateService) List(ctx context.Context, actor generic.Actor, company generic.CompanyID) ([]WorkSchedule, error) {
	if actor.Role != generic.RoleAdmin {
		if company != "" && company != actor.CompanyID {
			return nil, &generic.ForbiddenError{ActorID: actor.ID, Action: "view work schedules of company " + string(company)}
		}
		if actor.CompanyID == "" {
			return []WorkSchedule{}, nil
		}
		company = actor.CompanyID
	}
	return s.Store.ListTemplates(ctx, company)
}

func (s *TemplateService) loadManaged(ctx context.Context, tx Store, actor generic.Actor, id generic.RecordID) (*WorkSchedule, error) {
	cur, err := tx.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, &generic.NotFoundError{Kind: "work schedule", ID: string(id)}
	}
	if !generic.CanManageCompany(actor, cur.CompanyID) {
		return nil, &generic.ForbiddenError{ActorID: actor.ID, Action: "manage work schedules of company " + string(cur.CompanyID)}
	}
	return cur, nil
}

func (s *TemplateService) publish(ctx context.Context, actor generic.Actor, id generic.RecordID, from, to string) {
	s.Events.Publish(ctx, generic.StatusChanged{
		Kind:     generic.KindWorkSchedule,
		RecordID: id,
		ActorID:  actor.ID,
		From:     from,
		To:       to,
		At:       s.Clock.Now(),
	})
}

func (s *TemplateService) refused(op string, err error, fields ...zap.Field) error {
	return logOutcome(s.logger, op+" template", err, fields...)
}

// apply copies the input over w, keeping identity and company.
func (in TemplateInput) apply(w WorkSchedule) WorkSchedule {
	w.Name = strings.TrimSpace(in.Name)
	w.StandardHours = in.StandardHours
	w.OvertimeThreshold = in.OvertimeThreshold
	w.BreakMinutes = in.BreakMinutes
	w.IsFlexTime = in.IsFlexTime
	w.FlexTimeStart = in.FlexTimeStart
	w.FlexTimeEnd = in.FlexTimeEnd
	w.CoreTimeStart = in.CoreTimeStart
	w.CoreTimeEnd = in.CoreTimeEnd
	w.IsDefault = in.IsDefault
	return w
}

// logOutcome logs a reported outcome at Warn and infrastructure faults at Error.
func logOutcome(logger *zap.Logger, op string, err error, fields ...zap.Field) error {
	fields = append(fields, zap.String("code", generic.Kind(err)), zap.Error(err))
	if generic.IsClientError(err) {
		logger.Warn(op+" refused", fields...)
	} else {
		logger.Error(op+" failed", fields...)
	}
	return err
}
