package cron

import (
	"context"
	"os"
	"sync"

	"github.com/caarlos0/env/v6"
	cronv3 "github.com/robfig/cron/v3"

	"github.com/outreachloop/followup/interfaces"
	cron_config "github.com/outreachloop/followup/internal/cron/config"
	"github.com/outreachloop/followup/internal/logger"
	"github.com/outreachloop/followup/internal/tracing"
)

// GroupFollowup serializes dispatch and sync jobs so a slow dispatch tick
// cannot overlap the index rebuild in the same process.
const GroupFollowup = "followup"

var jobLocks = struct {
	sync.Mutex
	locks map[string]*sync.Mutex
}{
	locks: map[string]*sync.Mutex{
		GroupFollowup: new(sync.Mutex),
	},
}

type CronManager struct {
	log           logger.Logger
	cron          *cronv3.Cron
	stopCh        chan struct{}
	jobIDs        map[string]cronv3.EntryID
	dispatcher    interfaces.DispatchService
	scheduleIndex interfaces.ScheduleIndexService
	mailbox       interfaces.MailboxService
}

func NewCronManager(log logger.Logger, dispatcher interfaces.DispatchService, scheduleIndex interfaces.ScheduleIndexService, mailbox interfaces.MailboxService) *CronManager {
	return &CronManager{
		log:           log,
		stopCh:        make(chan struct{}),
		jobIDs:        make(map[string]cronv3.EntryID),
		dispatcher:    dispatcher,
		scheduleIndex: scheduleIndex,
		mailbox:       mailbox,
	}
}

// StartCron initializes and starts the cron scheduler
func (cm *CronManager) StartCron() {
	cm.log.Info("Starting cron manager")
	cronOptions := []cronv3.Option{
		cronv3.WithSeconds(),
		cronv3.WithChain(
			cronv3.SkipIfStillRunning(cronv3.DefaultLogger),
			cronv3.Recover(cronv3.DefaultLogger),
		),
	}
	c := cronv3.New(cronOptions...)
	cm.registerJobs(c)
	c.Start()
	cm.cron = c
}

// Stop gracefully stops the cron manager
func (cm *CronManager) Stop() {
	if cm.cron != nil {
		cm.log.Info("Stopping cron manager")
		ctx := cm.cron.Stop()
		<-ctx.Done()
	}
	close(cm.stopCh)
}

// registerJobs adds all cron jobs to the scheduler
func (cm *CronManager) registerJobs(c *cronv3.Cron) {
	var cronConfig cron_config.Config
	if err := env.Parse(&cronConfig); err != nil {
		cm.log.Fatalf("Failed to parse cron config from environment: %v", err)
	}

	if cronConfig.CronScheduleHeartbeat != "" {
		podName := os.Getenv("POD_NAME")
		if podName == "" {
			podName = "local"
		}
		id, err := c.AddFunc(cronConfig.CronScheduleHeartbeat, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			cm.log.Infof("Cron heartbeat from pod: %s", podName)
			cm.reportStatus()
		})
		if err != nil {
			cm.log.Fatalf("Could not add heartbeat cron job: %v", err)
		}
		cm.jobIDs["heartbeat"] = id
		cm.log.Infof("Registered heartbeat job with schedule: %s", cronConfig.CronScheduleHeartbeat)
	}

	if cronConfig.CronScheduleDispatch != "" {
		id, err := c.AddFunc(cronConfig.CronScheduleDispatch, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			jobLocks.locks[GroupFollowup].Lock()
			defer jobLocks.locks[GroupFollowup].Unlock()
			cm.dispatchDueFollowups()
		})
		if err != nil {
			cm.log.Fatalf("Could not add dispatch cron job: %v", err)
		}
		cm.jobIDs["dispatch"] = id
		cm.log.Infof("Registered dispatch job with schedule: %s", cronConfig.CronScheduleDispatch)
	}

	if cronConfig.CronScheduleScheduleSync != "" {
		id, err := c.AddFunc(cronConfig.CronScheduleScheduleSync, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			jobLocks.locks[GroupFollowup].Lock()
			defer jobLocks.locks[GroupFollowup].Unlock()
			cm.syncScheduleIndex()
		})
		if err != nil {
			cm.log.Fatalf("Could not add schedule sync cron job: %v", err)
		}
		cm.jobIDs["schedule_sync"] = id
		cm.log.Infof("Registered schedule sync job with schedule: %s", cronConfig.CronScheduleScheduleSync)
	}
}

// reportStatus logs the pending follow-up count and per-mailbox health.
func (cm *CronManager) reportStatus() {
	ctx := context.Background()

	if count, err := cm.scheduleIndex.Count(ctx); err != nil {
		cm.log.Warnf("Failed to read schedule index size: %v", err)
	} else {
		cm.log.Infof("Followups pending in schedule index: %d", count)
	}

	for account, status := range cm.mailbox.Statuses() {
		if status.Connected {
			cm.log.Infof("Mailbox %s connected, last checked %s, empty bodies dropped: %d",
				account, status.LastChecked.Format("15:04:05"), status.EmptyBodyCount)
			continue
		}
		cm.log.Warnf("Mailbox %s disconnected after %d consecutive failures: %s",
			account, status.ConsecutiveFails, status.LastError)
	}
}

func (cm *CronManager) dispatchDueFollowups() {
	ctx := context.Background()

	span, ctx := tracing.StartTracerSpan(ctx, "CronManager.dispatchDueFollowups")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	if err := cm.dispatcher.DispatchDue(ctx); err != nil {
		tracing.TraceErr(span, err)
		cm.log.Errorf("Failed to dispatch due followups: %v", err)
		return
	}

	cm.log.Info("Completed followup dispatch tick")
}

func (cm *CronManager) syncScheduleIndex() {
	ctx := context.Background()

	span, ctx := tracing.StartTracerSpan(ctx, "CronManager.syncScheduleIndex")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	if err := cm.scheduleIndex.Sync(ctx); err != nil {
		tracing.TraceErr(span, err)
		cm.log.Errorf("Failed to sync schedule index: %v", err)
		return
	}

	cm.log.Info("Completed schedule index sync")
}
