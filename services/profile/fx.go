package profile

import (
	"bittietasks-controlplane/pkg/repository"

	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("profile",
	fx.Provide(
		func(db *gorm.DB) repository.Repository[Profile] {
			return repository.ProvideStore[Profile](db)
		},
		NewService,
	),
)
