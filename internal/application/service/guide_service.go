package service

import (
	"context"
	"fmt"

	"github.com/garyjia/guide-audit/internal/application/port"
	"github.com/garyjia/guide-audit/internal/domain/entity"
	"github.com/garyjia/guide-audit/pkg/utils"
	"github.com/shopspring/decimal"
)

// ProcedureInput is one billed line of a new guide. TotalValue defaults to
// UnitPrice times Quantity, rounded to cents.
type ProcedureInput struct {
	Code        string              `json:"code" validate:"required"`
	Description string              `json:"description"`
	ExpenseCode string              `json:"expense_code" validate:"omitempty,oneof=01 02 03 04 05 06"`
	UnitPrice   decimal.Decimal     `json:"unit_price"`
	Quantity    decimal.Decimal     `json:"quantity"`
	TotalValue  decimal.NullDecimal `json:"total_value"`
}

// GuideInput is a guide submitted for audit. The non-procedure subtotals are
// taken as billed.
type GuideInput struct {
	Number           string           `json:"number" validate:"required"`
	OperatorID       string           `json:"operator_id" validate:"required"`
	OperatorName     string           `json:"operator_name"`
	BeneficiaryCard  string           `json:"beneficiary_card"`
	DailiesTotal     decimal.Decimal  `json:"dailies_total"`
	RentalsTotal     decimal.Decimal  `json:"rentals_total"`
	MaterialsTotal   decimal.Decimal  `json:"materials_total"`
	MedicationsTotal decimal.Decimal  `json:"medications_total"`
	DevicesTotal     decimal.Decimal  `json:"devices_total"`
	GasesTotal       decimal.Decimal  `json:"gases_total"`
	Procedures       []ProcedureInput `json:"procedures" validate:"required,min=1,dive"`
}

// GuideView is a guide with its procedures in billing order
type GuideView struct {
	Guide      *entity.Guide       `json:"guide"`
	Procedures []*entity.Procedure `json:"procedures"`
}

// GuideService registers guides for audit and reads them back
type GuideService interface {
	Create(ctx context.Context, in GuideInput) (*GuideView, error)
	Get(ctx context.Context, id int64) (*GuideView, error)
}

type guideServiceImpl struct {
	guideRepo     port.GuideRepository
	procedureRepo port.ProcedureRepository
	txManager     port.TransactionManager
	logger        Logger
}

// NewGuideService creates a new GuideService
func NewGuideService(
	guideRepo port.GuideRepository,
	procedureRepo port.ProcedureRepository,
	txManager port.TransactionManager,
	logger Logger,
) GuideService {
	return &guideServiceImpl{
		guideRepo:     guideRepo,
		procedureRepo: procedureRepo,
		txManager:     txManager,
		logger:        logger,
	}
}

// Create stores the guide and its procedures in one transaction
func (s *guideServiceImpl) Create(ctx context.Context, in GuideInput) (*GuideView, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}

	guide := &entity.Guide{
		Number:           in.Number,
		OperatorID:       in.OperatorID,
		OperatorName:     in.OperatorName,
		BeneficiaryCard:  in.BeneficiaryCard,
		DailiesTotal:     in.DailiesTotal,
		RentalsTotal:     in.RentalsTotal,
		MaterialsTotal:   in.MaterialsTotal,
		MedicationsTotal: in.MedicationsTotal,
		DevicesTotal:     in.DevicesTotal,
		GasesTotal:       in.GasesTotal,
	}
	for _, sub := range []decimal.Decimal{
		guide.DailiesTotal, guide.RentalsTotal, guide.MaterialsTotal,
		guide.MedicationsTotal, guide.DevicesTotal, guide.GasesTotal,
	} {
		if sub.IsNegative() {
			return nil, fmt.Errorf("%w: guide subtotals must not be negative", utils.ErrValidation)
		}
	}

	procs := make([]*entity.Procedure, 0, len(in.Procedures))
	for i, p := range in.Procedures {
		if p.UnitPrice.IsNegative() || p.Quantity.IsNegative() {
			return nil, fmt.Errorf("%w: procedure %d has a negative price or quantity", utils.ErrValidation, i+1)
		}
		proc := &entity.Procedure{
			Sequence:    i + 1,
			Code:        p.Code,
			Description: p.Description,
			ExpenseCode: p.ExpenseCode,
			UnitPrice:   p.UnitPrice,
			Quantity:    p.Quantity,
		}
		if p.TotalValue.Valid {
			if p.TotalValue.Decimal.IsNegative() {
				return nil, fmt.Errorf("%w: procedure %d has a negative total", utils.ErrValidation, i+1)
			}
			proc.TotalValue = p.TotalValue.Decimal
		} else {
			proc.TotalValue = p.UnitPrice.Mul(proc.BilledQuantity()).Round(2)
		}
		procs = append(procs, proc)
	}
	guide.Recompute(procs)

	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.guideRepo.Create(ctx, guide); err != nil {
			return entity.Persist("guide", err)
		}
		for _, proc := range procs {
			proc.GuideID = guide.ID
			if err := s.procedureRepo.Create(ctx, proc); err != nil {
				return entity.Persist("procedure", err)
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to create guide", "number", in.Number, "error", err)
		return nil, err
	}

	s.logger.Info("Guide registered",
		"guide_id", guide.ID,
		"number", guide.Number,
		"procedures", len(procs),
		"grand_total", guide.GrandTotal.String())
	return &GuideView{Guide: guide, Procedures: procs}, nil
}

func (s *guideServiceImpl) Get(ctx context.Context, id int64) (*GuideView, error) {
	guide, err := s.guideRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get guide: %w", err)
	}
	if guide == nil {
		return nil, entity.NewNotFound("guide", id)
	}
	procs, err := s.procedureRepo.ListByGuide(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list procedures: %w", err)
	}
	return &GuideView{Guide: guide, Procedures: procs}, nil
}
