// Package service holds the business rules between the HTTP handlers and
// the storage layers. Services accept primitives, validate them, return
// domain errors from apperror, and know nothing about HTTP.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/makolabs/mako/internal/apperror"
	"github.com/makolabs/mako/internal/executor/sandbox"
	"github.com/makolabs/mako/internal/model"
	"github.com/makolabs/mako/internal/repository"
)

const (
	MaxFunctionNameLength = 100
	MaxCodeLength         = 100000 // ~100KB of code
)

// functionNameRe is the registry naming rule: saved functions are called
// as `funcs.<name>` inside scripts, so names must be valid identifiers.
var functionNameRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// FunctionService manages the registry of reusable script functions.
// It also implements sandbox.FunctionSource, which is how saved
// functions become importable inside executions.
type FunctionService struct {
	repo   repository.FunctionRepository
	logger *slog.Logger
}

var _ sandbox.FunctionSource = (*FunctionService)(nil)

func NewFunctionService(repo repository.FunctionRepository, logger *slog.Logger) *FunctionService {
	return &FunctionService{
		repo:   repo,
		logger: logger,
	}
}

// Save validates and stores a new registry function. The code must parse
// and define exactly one function whose name matches name; anything else
// would break `import funcs` for every later execution.
func (s *FunctionService) Save(ctx context.Context, name, code, description string) (*model.Function, error) {
	name = strings.TrimSpace(name)

	if name == "" {
		return nil, apperror.ValidationFailed("name", "function name is required")
	}
	if len(name) > MaxFunctionNameLength {
		return nil, apperror.ValidationFailed("name",
			fmt.Sprintf("function name must be %d characters or less", MaxFunctionNameLength))
	}
	if !functionNameRe.MatchString(name) {
		return nil, apperror.ValidationFailed("name",
			"invalid function name: must start with a letter or underscore and contain only letters, numbers, and underscores")
	}
	if strings.TrimSpace(code) == "" {
		return nil, apperror.ValidationFailed("code", "function code is required")
	}
	if len(code) > MaxCodeLength {
		return nil, apperror.ValidationFailed("code",
			fmt.Sprintf("code must be %d characters or less", MaxCodeLength))
	}
	if err := sandbox.CheckFunctionDef(name, code); err != nil {
		return nil, apperror.ValidationFailed("code", err.Error())
	}

	// Pre-check the name so the common duplicate case gets a clean
	// conflict message; the UNIQUE constraint still backstops races.
	if _, err := s.repo.GetFunctionByName(ctx, name); err == nil {
		return nil, apperror.Conflict(fmt.Sprintf("a function named %q already exists", name))
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("checking for existing function: %w", err)
	}

	fn := &model.Function{
		Name:        name,
		Code:        code,
		Description: strings.TrimSpace(description),
	}

	if err := s.repo.CreateFunction(ctx, fn); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		s.logger.Error("failed to save function",
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("saving function: %w", err)
	}

	s.logger.Info("function saved",
		slog.String("id", fn.ID),
		slog.String("name", fn.Name),
	)

	return fn, nil
}

// List returns every saved function, ordered by name.
func (s *FunctionService) List(ctx context.Context) ([]model.Function, error) {
	functions, err := s.repo.ListFunctions(ctx)
	if err != nil {
		s.logger.Error("failed to list functions", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing functions: %w", err)
	}
	return functions, nil
}

// Delete removes a function by name.
// Returns apperror.ErrNotFound if the function doesn't exist.
func (s *FunctionService) Delete(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return apperror.ValidationFailed("name", "function name is required")
	}

	if err := s.repo.DeleteFunction(ctx, name); err != nil {
		return err
	}

	s.logger.Info("function deleted", slog.String("name", name))
	return nil
}

// Functions implements sandbox.FunctionSource: a snapshot of the registry
// as name -> source, taken at import time inside an execution.
func (s *FunctionService) Functions(ctx context.Context) (map[string]string, error) {
	functions, err := s.repo.ListFunctions(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading function registry: %w", err)
	}

	defs := make(map[string]string, len(functions))
	for _, fn := range functions {
		defs[fn.Name] = fn.Code
	}
	return defs, nil
}
