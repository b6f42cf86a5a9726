package account

import (
	"github.com/go-playground/validator/v10"

	"github.com/basantashrestha/seepalaya/core"
)

type serviceMock struct {
	service
}

// NewServiceMock builds a Service for tests; mail is expected to be a
// synchronous implementation so sent messages can be asserted on.
func NewServiceMock(
	db core.DB,
	repo Repository,
	tokens TokenRepository,
	roster RosterWriter,
	mailSvc core.EmailService,
	conf *core.Config,
	validate *validator.Validate,
) Service {
	initTokenGen(conf)
	return &serviceMock{
		service: service{
			db:       db,
			repo:     repo,
			tokens:   tokens,
			roster:   roster,
			alloc:    NewAllocator(repo),
			mailSvc:  mailSvc,
			logger:   core.NopLogger{},
			conf:     conf,
			validate: validate,
		},
	}
}
