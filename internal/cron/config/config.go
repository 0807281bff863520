package cron_config

type Config struct {
	// Heartbeat check, every minute
	CronScheduleHeartbeat string `env:"CRON_SCHEDULE_HEARTBEAT" envDefault:"0 * * * * *"`
	// Follow-up dispatch tick, every 15 minutes
	CronScheduleDispatch string `env:"CRON_SCHEDULE_DISPATCH" envDefault:"0 */15 * * * *"`
	// Schedule index rebuild, every 15 minutes offset from dispatch
	CronScheduleScheduleSync string `env:"CRON_SCHEDULE_SCHEDULE_SYNC" envDefault:"30 7-59/15 * * * *"`
}
