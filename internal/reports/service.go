package reports

import (
	"context"
	"fmt"

	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
	"github.com/google/uuid"
)

// Service builds vendor sales reports.
type Service interface {
	VendorSales(ctx context.Context, vendorID uuid.UUID) (*SalesReport, error)
}

type service struct {
	repo Repository
}

// NewService wires the reports service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("reports repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) VendorSales(ctx context.Context, vendorID uuid.UUID) (*SalesReport, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}

	totals, err := s.repo.Totals(ctx, vendorID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load sales totals")
	}
	recent, err := s.repo.RecentOrders(ctx, vendorID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load recent orders")
	}
	top, err := s.repo.TopProducts(ctx, vendorID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load top products")
	}

	report := &SalesReport{
		VendorID:          vendorID,
		TotalRevenueCents: totals.RevenueCents,
		TotalOrders:       totals.Orders,
		TotalProductsSold: totals.UnitsSold,
		RecentOrders:      make([]RecentOrder, 0, len(recent)),
		TopProducts:       make([]TopProduct, 0, len(top)),
	}
	for _, row := range recent {
		report.RecentOrders = append(report.RecentOrders, RecentOrder{
			OrderID:             row.OrderID,
			Status:              row.Status,
			OrderTotalCents:     row.TotalCents,
			VendorSubtotalCents: row.SubtotalCents,
			CreatedAt:           row.CreatedAt,
		})
	}
	for _, row := range top {
		report.TopProducts = append(report.TopProducts, TopProduct(row))
	}
	return report, nil
}
