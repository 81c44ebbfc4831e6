package repository

import (
	"context"

	"github.com/makolabs/mako/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

type FunctionRepository interface {
	CreateFunction(ctx context.Context, fn *model.Function) error
	GetFunctionByName(ctx context.Context, name string) (*model.Function, error)
	ListFunctions(ctx context.Context) ([]model.Function, error)
	DeleteFunction(ctx context.Context, name string) error
}

type VersionRepository interface {
	CreateVersion(ctx context.Context, v *model.Version) error
	GetVersionByID(ctx context.Context, id string) (*model.Version, error)
	ListVersionsByTab(ctx context.Context, tab string, opts ListOptions) ([]model.Version, error)
	LatestVersionByTab(ctx context.Context, tab string) (*model.Version, error)
}
