package services

import (
	"github.com/redis/go-redis/v9"

	"github.com/outreachloop/followup/config"
	"github.com/outreachloop/followup/interfaces"
	"github.com/outreachloop/followup/internal/logger"
	"github.com/outreachloop/followup/internal/repository"
	"github.com/outreachloop/followup/services/analyzer"
	"github.com/outreachloop/followup/services/debounce"
	"github.com/outreachloop/followup/services/dispatch"
	"github.com/outreachloop/followup/services/mailbox"
	"github.com/outreachloop/followup/services/pipeline"
	"github.com/outreachloop/followup/services/schedule"
	"github.com/outreachloop/followup/services/smtp"
	"github.com/outreachloop/followup/services/trainingdata"
)

type Services struct {
	MailboxService       interfaces.MailboxService
	AnalyzerService      interfaces.AnalyzerService
	DebounceService      interfaces.DebounceService
	ScheduleIndexService interfaces.ScheduleIndexService
	SenderService        interfaces.SenderService
	DispatchService      interfaces.DispatchService
	PipelineService      interfaces.PipelineService
	TrainingRecorder     *trainingdata.Recorder
}

func InitServices(cfg *config.Config, redisClient redis.UniversalClient, log logger.Logger, repos *repository.Repositories) *Services {
	recorder := trainingdata.NewRecorder(cfg.AppConfig.TrainingDataPath, log)

	mailboxService := mailbox.NewMailboxService(cfg.IMAPConfig, cfg.AppConfig, cfg.AccountsConfig.All(), log)
	analyzerService := analyzer.NewAnalyzerService(cfg.GroqConfig, recorder, log)
	debounceService := debounce.NewDebounceService(redisClient, log)
	scheduleIndexService := schedule.NewScheduleIndexService(redisClient, repos.ThreadRepository, log)
	senderService := smtp.NewSenderService(cfg.SMTPConfig, cfg.AccountsConfig, log)
	dispatchService := dispatch.NewDispatchService(repos.ThreadRepository, scheduleIndexService, senderService, redisClient, log)
	pipelineService := pipeline.NewPipelineService(
		repos.ThreadRepository,
		repos.ReplyRepository,
		debounceService,
		analyzerService,
		dispatchService,
		mailboxService,
		cfg.AppConfig.MaxConcurrentWorkers,
		log,
	)

	return &Services{
		MailboxService:       mailboxService,
		AnalyzerService:      analyzerService,
		DebounceService:      debounceService,
		ScheduleIndexService: scheduleIndexService,
		SenderService:        senderService,
		DispatchService:      dispatchService,
		PipelineService:      pipelineService,
		TrainingRecorder:     recorder,
	}
}
