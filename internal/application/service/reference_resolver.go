package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/guide-audit/internal/application/port"
	"github.com/garyjia/guide-audit/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// PriceReference is the unit price a procedure code should be billed at
type PriceReference struct {
	UnitPrice      decimal.Decimal     `json:"unit_price"`
	Source         string              `json:"source"`
	ContractNumber string              `json:"contract_number,omitempty"`
	Table          string              `json:"table,omitempty"`
	MaxQuantity    decimal.NullDecimal `json:"max_quantity"`
}

// PackageReference describes how the operator's active contract covers a code
type PackageReference struct {
	ContractID            int64               `json:"contract_id"`
	ContractNumber        string              `json:"contract_number"`
	Itemized              bool                `json:"itemized"`
	InPackage             bool                `json:"in_package"`
	RequiresAuthorization bool                `json:"requires_authorization"`
	MaxQuantity           decimal.NullDecimal `json:"max_quantity"`
}

// Reference bundles every lookup for one code. Nil members were not found.
type Reference struct {
	Price     *PriceReference            `json:"price,omitempty"`
	Package   *PackageReference          `json:"package,omitempty"`
	SizeClass *entity.SizeClassification `json:"size_class,omitempty"`
}

// ReferenceResolver looks up the reference data procedures are evaluated against.
// "Not found" outcomes are returned as entity.ErrNoReference, entity.ErrNoContract
// and entity.ErrSizeClassNotRegistered; any other error is a lookup failure.
type ReferenceResolver interface {
	ResolvePrice(ctx context.Context, code, operatorID string) (*PriceReference, error)
	ResolvePackage(ctx context.Context, code, operatorID string) (*PackageReference, error)
	ResolveSizeClass(ctx context.Context, code string) (*entity.SizeClassification, error)
	Resolve(ctx context.Context, code, operatorID string) (*Reference, error)
}

type referenceResolverImpl struct {
	refs   port.ReferenceRepository
	logger Logger
	now    func() time.Time
}

// NewReferenceResolver creates a new ReferenceResolver
func NewReferenceResolver(refs port.ReferenceRepository, logger Logger) ReferenceResolver {
	return &referenceResolverImpl{
		refs:   refs,
		logger: logger,
		now:    time.Now,
	}
}

// ResolvePrice prefers the operator's active contract, then the reference table
func (r *referenceResolverImpl) ResolvePrice(ctx context.Context, code, operatorID string) (*PriceReference, error) {
	now := r.now()

	if operatorID != "" {
		contract, err := r.refs.ActiveContractFor(ctx, operatorID, code, now)
		if err != nil {
			return nil, fmt.Errorf("resolve contract price: %w", err)
		}
		if contract != nil {
			item, err := r.refs.ContractItem(ctx, contract.ID, code)
			if err != nil {
				return nil, fmt.Errorf("resolve contract price: %w", err)
			}
			if item != nil {
				return &PriceReference{
					UnitPrice:      item.ContractedPrice,
					Source:         entity.SourceContract,
					ContractNumber: contract.Number,
					MaxQuantity:    item.MaxQuantity,
				}, nil
			}
		}
	}

	price, err := r.refs.ReferencePrice(ctx, code, now)
	if err != nil {
		return nil, fmt.Errorf("resolve reference table price: %w", err)
	}
	if price != nil {
		return &PriceReference{
			UnitPrice: price.Price,
			Source:    entity.SourceReferenceTable,
			Table:     price.Table,
		}, nil
	}

	return nil, entity.ErrNoReference
}

// ResolvePackage requires an active contract for the operator. A contract
// listing code is preferred over the newest one.
func (r *referenceResolverImpl) ResolvePackage(ctx context.Context, code, operatorID string) (*PackageReference, error) {
	if operatorID == "" {
		return nil, entity.ErrNoContract
	}

	now := r.now()
	contract, err := r.refs.ActiveContractFor(ctx, operatorID, code, now)
	if err != nil {
		return nil, fmt.Errorf("resolve package: %w", err)
	}
	if contract == nil {
		contract, err = r.refs.ActiveContract(ctx, operatorID, now)
		if err != nil {
			return nil, fmt.Errorf("resolve package: %w", err)
		}
	}
	if contract == nil {
		return nil, entity.ErrNoContract
	}

	ref := &PackageReference{
		ContractID:     contract.ID,
		ContractNumber: contract.Number,
	}

	item, err := r.refs.ContractItem(ctx, contract.ID, code)
	if err != nil {
		return nil, fmt.Errorf("resolve package: %w", err)
	}
	if item != nil {
		ref.Itemized = true
		ref.InPackage = item.InPackage
		ref.RequiresAuthorization = item.RequiresAuthorization
		ref.MaxQuantity = item.MaxQuantity
	}
	return ref, nil
}

// ResolveSizeClass is keyed by code only
func (r *referenceResolverImpl) ResolveSizeClass(ctx context.Context, code string) (*entity.SizeClassification, error) {
	size, err := r.refs.SizeClass(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("resolve size class: %w", err)
	}
	if size == nil {
		return nil, entity.ErrSizeClassNotRegistered
	}
	return size, nil
}

// Resolve runs every lookup; only lookup failures are returned as errors
func (r *referenceResolverImpl) Resolve(ctx context.Context, code, operatorID string) (*Reference, error) {
	var out Reference

	price, err := r.ResolvePrice(ctx, code, operatorID)
	if err != nil && !errors.Is(err, entity.ErrNoReference) {
		return nil, err
	}
	out.Price = price

	pkg, err := r.ResolvePackage(ctx, code, operatorID)
	if err != nil && !errors.Is(err, entity.ErrNoContract) {
		return nil, err
	}
	out.Package = pkg

	size, err := r.ResolveSizeClass(ctx, code)
	if err != nil && !errors.Is(err, entity.ErrSizeClassNotRegistered) {
		return nil, err
	}
	out.SizeClass = size

	return &out, nil
}
