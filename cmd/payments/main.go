package main

import (
	"bittietasks-controlplane/pkg/config"
	"bittietasks-controlplane/pkg/db"
	"bittietasks-controlplane/pkg/featureflags"
	"bittietasks-controlplane/pkg/gen"
	"bittietasks-controlplane/pkg/health"
	"bittietasks-controlplane/pkg/logger"
	"bittietasks-controlplane/pkg/objstore"
	"bittietasks-controlplane/pkg/otelcol"
	"bittietasks-controlplane/pkg/otelcol/exporters"
	"bittietasks-controlplane/pkg/profiling"
	redispkg "bittietasks-controlplane/pkg/redis"
	"bittietasks-controlplane/pkg/sequence"
	"bittietasks-controlplane/pkg/server"
	"bittietasks-controlplane/pkg/stripe"
	"bittietasks-controlplane/pkg/task"
	"bittietasks-controlplane/services/earnings"
	"bittietasks-controlplane/services/feepolicy"
	"bittietasks-controlplane/services/otp"
	"bittietasks-controlplane/services/payment"
	"bittietasks-controlplane/services/profile"
	"bittietasks-controlplane/services/tasks"
	"bittietasks-controlplane/services/verification"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		gen.Module,
		db.Module,
		redispkg.Module,
		sequence.Module,
		task.Client,
		task.Server,

		fx.Provide(func(cfg *config.Config) (sdktrace.SpanExporter, error) {
			return exporters.ProvideGrpc(cfg)
		}),
		otelcol.Module,
		profiling.Module,
		featureflags.Module,
		objstore.Module,
		stripe.Module,

		server.Module,
		health.Module,

		feepolicy.Module,
		profile.Module,
		earnings.Module,
		tasks.Module,
		payment.Module,
		verification.Module,
		otp.Module,

		fx.Invoke(migrate),
	)

	app.Run()
}

func migrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&profile.Profile{},
		&tasks.Task{},
		&tasks.TaskParticipant{},
		&payment.Payment{},
		&payment.WebhookEvent{},
		&earnings.Earning{},
	)
}
