package tasks

import (
	"bittietasks-controlplane/pkg/repository"

	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("tasks",
	fx.Provide(
		func(db *gorm.DB) repository.Repository[Task] {
			return repository.ProvideStore[Task](db)
		},
		func(db *gorm.DB) repository.Repository[TaskParticipant] {
			return repository.ProvideStore[TaskParticipant](db)
		},
		NewService,
	),
)
