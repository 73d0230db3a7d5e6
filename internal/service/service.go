// Package service implements the reference question generation backend.
package service

import (
	"github.com/pkg/errors"

	"github.com/johnmikel306/learntrack-sub002/internal/adapter/llm"
	"github.com/johnmikel306/learntrack-sub002/internal/config"
	"github.com/johnmikel306/learntrack-sub002/internal/platform/logger"
	"github.com/johnmikel306/learntrack-sub002/internal/policy"
	"github.com/johnmikel306/learntrack-sub002/internal/repository"
)

var (
	// ErrConflict is returned for a review decision on a question that has
	// already been decided the other way.
	ErrConflict = errors.New("question already decided")
	// ErrPolicyDenied is returned when the generation policy refuses a request.
	ErrPolicyDenied = errors.New("generation denied by policy")
	// ErrMaterialNotFound is returned for an unknown material id.
	ErrMaterialNotFound = errors.New("material not found")
)

type Service struct {
	store        store.Store
	generator    llm.QuestionGenerator
	policyEngine *policy.Engine
	config       *config.Config
	log          *logger.Logger
}

func New(store store.Store, generator llm.QuestionGenerator, policyEngine *policy.Engine, cfg *config.Config, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		store:        store,
		generator:    generator,
		policyEngine: policyEngine,
		config:       cfg,
		log:          log.With("component", "service"),
	}
}
