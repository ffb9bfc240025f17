// Package controllers holds the Fiber handlers of the JSON API.
package controllers

import (
	"github.com/go-playground/validator/v10"

	"github.com/JakayaMrisho/SurveyPesa/internal/pkg/eventlog"
	"github.com/JakayaMrisho/SurveyPesa/internal/pkg/reward"
)

// Deps are the services the handlers delegate to. Repositories are reached
// through the global factory like everywhere else.
type Deps struct {
	Reward   *reward.Service
	EventLog *eventlog.Service
}

var (
	deps     Deps
	validate = validator.New()
)

// Setup injects the handler dependencies. Called once from main before the
// router is built.
func Setup(d Deps) {
	deps = d
}
