package patterns

import (
	"context"

	"github.com/SkySingh04/DreamOps-sub000/internal/models"
)

// HistoryFunc adapts a plain function to the History interface.
type HistoryFunc func(ctx context.Context, req models.ListReportsRequest) ([]models.ExecutionReport, error)

func (f HistoryFunc) List(ctx context.Context, req models.ListReportsRequest) ([]models.ExecutionReport, error) {
	return f(ctx, req)
}
