package service

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/guide-audit/internal/application/port"
	"github.com/garyjia/guide-audit/internal/domain/entity"
	"github.com/garyjia/guide-audit/pkg/utils"
	"github.com/shopspring/decimal"
)

// ContractInput registers an operator contract
type ContractInput struct {
	Number     string     `json:"number" validate:"required"`
	OperatorID string     `json:"operator_id" validate:"required"`
	Status     string     `json:"status" validate:"omitempty,oneof=ACTIVE INACTIVE"`
	StartDate  *time.Time `json:"start_date"`
	EndDate    time.Time  `json:"end_date" validate:"required"`
}

// ContractItemInput sets the negotiated terms of one code
type ContractItemInput struct {
	ContractID            int64               `json:"contract_id" validate:"gt=0"`
	Code                  string              `json:"code" validate:"required"`
	ContractedPrice       decimal.Decimal     `json:"contracted_price"`
	InPackage             bool                `json:"in_package"`
	RequiresAuthorization bool                `json:"requires_authorization"`
	MaxQuantity           decimal.NullDecimal `json:"max_quantity"`
	Notes                 string              `json:"notes"`
}

// ReferencePriceInput adds a fee-schedule price
type ReferencePriceInput struct {
	Table     string          `json:"table" validate:"required"`
	Code      string          `json:"code" validate:"required"`
	Price     decimal.Decimal `json:"price"`
	ValidFrom *time.Time      `json:"valid_from"`
	ValidTo   *time.Time      `json:"valid_to"`
}

// SizeClassInput registers the size class of a code
type SizeClassInput struct {
	Code        string `json:"code" validate:"required"`
	SizeClass   string `json:"size_class" validate:"required"`
	Description string `json:"description"`
}

// ReferenceDataService loads the reference data procedures are evaluated
// against and answers lookups for a code.
type ReferenceDataService interface {
	AddContract(ctx context.Context, in ContractInput) (*entity.Contract, error)
	PutContractItem(ctx context.Context, in ContractItemInput) (*entity.ContractItem, error)
	AddReferencePrice(ctx context.Context, in ReferencePriceInput) (*entity.ReferencePrice, error)
	PutSizeClass(ctx context.Context, in SizeClassInput) (*entity.SizeClassification, error)
	Lookup(ctx context.Context, code, operatorID string) (*Reference, error)
}

type referenceDataServiceImpl struct {
	writer   port.ReferenceWriter
	resolver ReferenceResolver
	logger   Logger
}

// NewReferenceDataService creates a new ReferenceDataService
func NewReferenceDataService(writer port.ReferenceWriter, resolver ReferenceResolver, logger Logger) ReferenceDataService {
	return &referenceDataServiceImpl{
		writer:   writer,
		resolver: resolver,
		logger:   logger,
	}
}

func (s *referenceDataServiceImpl) AddContract(ctx context.Context, in ContractInput) (*entity.Contract, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}
	if in.StartDate != nil && in.StartDate.After(in.EndDate) {
		return nil, fmt.Errorf("%w: start_date is after end_date", utils.ErrValidation)
	}

	c := &entity.Contract{
		Number:     in.Number,
		OperatorID: in.OperatorID,
		Status:     in.Status,
		StartDate:  in.StartDate,
		EndDate:    in.EndDate,
	}
	if c.Status == "" {
		c.Status = entity.ContractActive
	}
	if err := s.writer.CreateContract(ctx, c); err != nil {
		return nil, entity.Persist("contract", err)
	}

	s.logger.Info("Contract registered", "contract_id", c.ID, "number", c.Number, "operator_id", c.OperatorID)
	return c, nil
}

func (s *referenceDataServiceImpl) PutContractItem(ctx context.Context, in ContractItemInput) (*entity.ContractItem, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}
	if in.ContractedPrice.IsNegative() {
		return nil, fmt.Errorf("%w: contracted_price must not be negative", utils.ErrValidation)
	}

	item := &entity.ContractItem{
		ContractID:            in.ContractID,
		Code:                  in.Code,
		ContractedPrice:       in.ContractedPrice,
		InPackage:             in.InPackage,
		RequiresAuthorization: in.RequiresAuthorization,
		MaxQuantity:           in.MaxQuantity,
		Notes:                 in.Notes,
	}
	if err := s.writer.PutContractItem(ctx, item); err != nil {
		return nil, entity.Persist("contract item", err)
	}
	return item, nil
}

func (s *referenceDataServiceImpl) AddReferencePrice(ctx context.Context, in ReferencePriceInput) (*entity.ReferencePrice, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}
	if in.Price.IsNegative() {
		return nil, fmt.Errorf("%w: price must not be negative", utils.ErrValidation)
	}
	if in.ValidFrom != nil && in.ValidTo != nil && in.ValidFrom.After(*in.ValidTo) {
		return nil, fmt.Errorf("%w: valid_from is after valid_to", utils.ErrValidation)
	}

	p := &entity.ReferencePrice{
		Table:     in.Table,
		Code:      in.Code,
		Price:     in.Price,
		ValidFrom: in.ValidFrom,
		ValidTo:   in.ValidTo,
	}
	if err := s.writer.CreateReferencePrice(ctx, p); err != nil {
		return nil, entity.Persist("reference price", err)
	}
	return p, nil
}

func (s *referenceDataServiceImpl) PutSizeClass(ctx context.Context, in SizeClassInput) (*entity.SizeClassification, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return nil, err
	}
	sc := &entity.SizeClassification{Code: in.Code, SizeClass: in.SizeClass, Description: in.Description}
	if err := s.writer.PutSizeClass(ctx, sc); err != nil {
		return nil, entity.Persist("size class", err)
	}
	return sc, nil
}

// Lookup resolves every reference for code; missing references are nil members
func (s *referenceDataServiceImpl) Lookup(ctx context.Context, code, operatorID string) (*Reference, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: code is required", utils.ErrValidation)
	}
	return s.resolver.Resolve(ctx, code, operatorID)
}
