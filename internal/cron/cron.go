package cron

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	cronv3 "github.com/robfig/cron/v3"

	"github.com/replypilot/replypilot/dto"
	"github.com/replypilot/replypilot/interfaces"
	"github.com/replypilot/replypilot/internal/enum"
	"github.com/replypilot/replypilot/internal/logger"
	"github.com/replypilot/replypilot/internal/tracing"
	"github.com/replypilot/replypilot/internal/utils"
)

const (
	GroupIngestion = "ingestion"
	GroupFollowUps = "followups"
	GroupReminders = "reminders"

	maxTickJitter = 5 * time.Second

	// emails untouched in a non-terminal state for this long are requeued
	stuckThreshold  = 30 * time.Minute
	stuckBatchLimit = 200
)

var jobLocks = struct {
	sync.Mutex
	locks map[string]*sync.Mutex
}{
	locks: map[string]*sync.Mutex{
		GroupIngestion: new(sync.Mutex),
		GroupFollowUps: new(sync.Mutex),
		GroupReminders: new(sync.Mutex),
	},
}

// Config holds the three loop intervals, in seconds.
type Config struct {
	EmailPollInterval     int `env:"EMAIL_POLL_INTERVAL" envDefault:"60"`
	FollowUpCheckInterval int `env:"FOLLOW_UP_CHECK_INTERVAL" envDefault:"300"`
	ReminderCheckInterval int `env:"REMINDER_CHECK_INTERVAL" envDefault:"3600"`
}

// CronManager runs the three periodic loops: mailbox polling, the follow-up
// sweep and the stuck-email reminder sweep.
type CronManager struct {
	cfg       *Config
	log       logger.Logger
	cron      *cronv3.Cron
	jobIDs    map[string]cronv3.EntryID
	ingestion interfaces.IngestionService
	followUp  interfaces.FollowUpService
	emailRepo interfaces.EmailRepository
	publisher interfaces.EventPublisher
}

func NewCronManager(
	cfg *Config,
	log logger.Logger,
	ingestion interfaces.IngestionService,
	followUp interfaces.FollowUpService,
	emailRepo interfaces.EmailRepository,
	publisher interfaces.EventPublisher,
) *CronManager {
	return &CronManager{
		cfg:       cfg,
		log:       log,
		jobIDs:    make(map[string]cronv3.EntryID),
		ingestion: ingestion,
		followUp:  followUp,
		emailRepo: emailRepo,
		publisher: publisher,
	}
}

func (cm *CronManager) Start() {
	cm.log.Infof("starting cron manager")
	c := cronv3.New(
		cronv3.WithSeconds(),
		cronv3.WithChain(
			cronv3.SkipIfStillRunning(cronv3.DefaultLogger),
			cronv3.Recover(cronv3.DefaultLogger),
		),
	)
	cm.registerJobs(c)
	c.Start()
	cm.cron = c
}

// Stop waits for running jobs to finish.
func (cm *CronManager) Stop() {
	if cm.cron != nil {
		cm.log.Infof("stopping cron manager")
		<-cm.cron.Stop().Done()
	}
}

func (cm *CronManager) registerJobs(c *cronv3.Cron) {
	cm.addJob(c, "poll", cm.cfg.EmailPollInterval, GroupIngestion, cm.pollMailboxes)
	cm.addJob(c, "followup_sweep", cm.cfg.FollowUpCheckInterval, GroupFollowUps, cm.sweepFollowUps)
	cm.addJob(c, "reminder_sweep", cm.cfg.ReminderCheckInterval, GroupReminders, cm.sweepStuckEmails)
}

func (cm *CronManager) addJob(c *cronv3.Cron, name string, intervalSeconds int, group string, job func()) {
	schedule := fmt.Sprintf("@every %ds", intervalSeconds)
	id, err := c.AddFunc(schedule, func() {
		defer tracing.RecoverAndLogToJaeger(cm.log)
		time.Sleep(time.Duration(rand.Int63n(int64(maxTickJitter))))
		jobLocks.locks[group].Lock()
		defer jobLocks.locks[group].Unlock()
		job()
	})
	if err != nil {
		cm.log.Fatalf("could not add %s cron job: %v", name, err)
	}
	cm.jobIDs[name] = id
	cm.log.Infof("registered %s job with schedule %s", name, schedule)
}

func (cm *CronManager) pollMailboxes() {
	span, ctx := tracing.StartTracerSpan(context.Background(), "CronManager.pollMailboxes")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	if err := cm.ingestion.PollAll(ctx); err != nil {
		tracing.TraceErr(span, err)
		cm.log.Errorf("mailbox poll failed: %v", err)
	}
}

func (cm *CronManager) sweepFollowUps() {
	span, ctx := tracing.StartTracerSpan(context.Background(), "CronManager.sweepFollowUps")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	if err := cm.followUp.Sweep(ctx); err != nil {
		tracing.TraceErr(span, err)
		cm.log.Errorf("follow-up sweep failed: %v", err)
	}
}

// sweepStuckEmails requeues inbound emails parked in a non-terminal state,
// usually because a worker died mid-flight or a publish was lost.
func (cm *CronManager) sweepStuckEmails() {
	span, ctx := tracing.StartTracerSpan(context.Background(), "CronManager.sweepStuckEmails")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	stuck, err := cm.emailRepo.ListStuck(ctx, utils.Now().Add(-stuckThreshold), stuckBatchLimit)
	if err != nil {
		tracing.TraceErr(span, err)
		cm.log.Errorf("listing stuck emails failed: %v", err)
		return
	}
	span.SetTag("stuck.count", len(stuck))

	for _, email := range stuck {
		if email.Status != enum.EmailStatusPending {
			previous := email.Status
			email.Status = enum.EmailStatusPending
			email.RecordAction("requeued", "stuck in "+previous.String())
			won, err := cm.emailRepo.UpdateStatusIf(ctx, email, previous)
			if err != nil {
				cm.log.Errorf("requeueing email %s failed: %v", email.ID, err)
				continue
			}
			if !won {
				continue
			}
		}
		if err := cm.publisher.PublishEmailReceived(ctx, dto.EmailReceived{
			TenantID:  email.TenantID,
			AccountID: email.AccountID,
			EmailID:   email.ID,
			MessageID: email.MessageID,
		}); err != nil {
			cm.log.Errorf("re-enqueueing email %s failed: %v", email.ID, err)
		}
	}
}
