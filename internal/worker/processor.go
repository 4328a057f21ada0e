package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/checkfox/go_lead_adapter/internal/client"
	"github.com/checkfox/go_lead_adapter/internal/logger"
	"github.com/checkfox/go_lead_adapter/internal/models"
	"github.com/checkfox/go_lead_adapter/internal/queue"
	"github.com/checkfox/go_lead_adapter/internal/repository"
	"github.com/checkfox/go_lead_adapter/internal/services"
)

// ItemsFetcher loads the items page behind an item notification
type ItemsFetcher interface {
	FetchItemsPage(ctx context.Context, itemID string) (*models.RawItemsPage, error)
}

// MessageSender sends an outreach message to the messaging provider
type MessageSender interface {
	SendMessage(ctx context.Context, payload models.JSONB) (*client.SendResponse, error)
}

// Processor runs process_lead jobs. Each job resumes the lead from its stored
// state: fetch the items page if missing, extract the lead if not yet
// extracted, then deliver the outreach message.
type Processor struct {
	queue               queue.Queue
	leadRepo            repository.LeadRepository
	deliveryAttemptRepo repository.DeliveryAttemptRepository
	statusRepo          repository.MessageStatusRepository
	extractor           *services.Extractor
	mapper              *services.MessageMapper
	fetcher             ItemsFetcher
	sender              MessageSender
	pollInterval        time.Duration
	concurrency         int
	shutdownChan        chan struct{}
	shutdownOnce        sync.Once
	maxAttempts         int
	backoffDelays       []time.Duration
}

// ProcessorConfig holds configuration for the worker processor
type ProcessorConfig struct {
	Queue               queue.Queue
	LeadRepo            repository.LeadRepository
	DeliveryAttemptRepo repository.DeliveryAttemptRepository
	StatusRepo          repository.MessageStatusRepository
	Extractor           *services.Extractor
	Mapper              *services.MessageMapper
	Fetcher             ItemsFetcher
	Sender              MessageSender
	PollInterval        time.Duration
	Concurrency         int
	MaxAttempts         int
	BackoffDelays       []time.Duration
}

// minRetryDelay is the shortest delay a retried job waits
const minRetryDelay = time.Second

// DefaultBackoffDelays doubles from base once per attempt
func DefaultBackoffDelays(base time.Duration, attempts int) []time.Duration {
	if base <= 0 {
		base = 30 * time.Second
	}
	if attempts <= 0 {
		attempts = 5
	}
	delays := make([]time.Duration, attempts)
	for i := range delays {
		delays[i] = base << i
	}
	return delays
}

// NewProcessor creates a new worker processor
func NewProcessor(config ProcessorConfig) *Processor {
	if config.PollInterval == 0 {
		config.PollInterval = 5 * time.Second
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if config.MaxAttempts == 0 {
		config.MaxAttempts = 5
	}
	if len(config.BackoffDelays) == 0 {
		config.BackoffDelays = DefaultBackoffDelays(30*time.Second, config.MaxAttempts)
	}
	delays := make([]time.Duration, len(config.BackoffDelays))
	for i, d := range config.BackoffDelays {
		// a zero delay would read as "done" to handleJob
		delays[i] = max(d, minRetryDelay)
	}
	config.BackoffDelays = delays
	if config.Extractor == nil {
		config.Extractor = services.NewExtractor(services.NamePolicyFirstToken, nil)
	}

	return &Processor{
		queue:               config.Queue,
		leadRepo:            config.LeadRepo,
		deliveryAttemptRepo: config.DeliveryAttemptRepo,
		statusRepo:          config.StatusRepo,
		extractor:           config.Extractor,
		mapper:              config.Mapper,
		fetcher:             config.Fetcher,
		sender:              config.Sender,
		pollInterval:        config.PollInterval,
		concurrency:         config.Concurrency,
		shutdownChan:        make(chan struct{}),
		maxAttempts:         config.MaxAttempts,
		backoffDelays:       config.BackoffDelays,
	}
}

// Start runs the polling loops until the context is cancelled, a signal
// arrives or Shutdown is called. In-flight jobs finish before it returns.
func (p *Processor) Start(ctx context.Context) error {
	logger.Info(ctx, "Starting worker processor",
		"poll_interval", p.pollInterval,
		"concurrency", p.concurrency)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < p.concurrency; i++ {
		wg.Add(1)
		go func(workerNo int) {
			defer wg.Done()
			p.pollLoop(loopCtx, workerNo)
		}(i + 1)
	}

	var err error
	select {
	case <-ctx.Done():
		logger.Info(ctx, "Context cancelled, shutting down gracefully")
		err = ctx.Err()
	case sig := <-sigChan:
		logger.Info(ctx, "Received shutdown signal, shutting down gracefully", "signal", sig.String())
	case <-p.shutdownChan:
		logger.Info(ctx, "Shutdown requested, shutting down gracefully")
	}

	cancel()
	wg.Wait()
	return err
}

func (p *Processor) pollLoop(ctx context.Context, workerNo int) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// drain everything that is due before waiting for the next tick
			for ctx.Err() == nil {
				processed, err := p.pollAndProcess(ctx)
				if err != nil {
					logger.LogError(ctx, "Error polling and processing jobs", err, "worker", workerNo)
				}
				if !processed {
					break
				}
			}
		}
	}
}

// Shutdown signals the worker to stop gracefully. Safe to call more than once.
func (p *Processor) Shutdown() {
	p.shutdownOnce.Do(func() { close(p.shutdownChan) })
}

// pollAndProcess handles at most one job and reports whether one was found
func (p *Processor) pollAndProcess(ctx context.Context) (bool, error) {
	job, err := p.queue.Dequeue(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to dequeue job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	return true, p.handleJob(ctx, job)
}

// handleJob runs one job and settles it on the queue
func (p *Processor) handleJob(ctx context.Context, job *queue.Job) error {
	logger.Info(ctx, "Processing job", "job_id", job.ID, "job_type", job.Type, "attempts", job.Attempts)

	var retryAfter time.Duration
	var processErr error
	switch job.Type {
	case queue.JobTypeProcessLead:
		retryAfter, processErr = p.processLead(ctx, job)
	default:
		processErr = fmt.Errorf("unknown job type: %s", job.Type)
	}

	if processErr != nil {
		logger.LogError(ctx, "Job failed", processErr, "job_id", job.ID)
		if err := p.queue.Fail(ctx, job.ID, processErr.Error()); err != nil {
			logger.LogError(ctx, "Failed to mark job as failed", err, "job_id", job.ID)
		}
		return processErr
	}

	if retryAfter > 0 {
		logger.Info(ctx, "Rescheduling job", "job_id", job.ID, "delay", retryAfter)
		if err := p.queue.Retry(ctx, job.ID, retryAfter); err != nil {
			logger.LogError(ctx, "Failed to reschedule job", err, "job_id", job.ID)
			return err
		}
		return nil
	}

	if err := p.queue.Complete(ctx, job.ID); err != nil {
		logger.LogError(ctx, "Failed to mark job as completed", err, "job_id", job.ID)
		return err
	}

	logger.Info(ctx, "Job completed successfully", "job_id", job.ID)
	return nil
}

// processLead advances a lead as far as it can go. A positive duration asks
// for the job to run again after that delay.
func (p *Processor) processLead(ctx context.Context, job *queue.Job) (time.Duration, error) {
	startTime := time.Now()
	defer func() { logger.LogSlowOperation(ctx, "process_lead", time.Since(startTime)) }()

	leadID, ok := queue.GetLeadID(job.Payload)
	if !ok {
		return 0, fmt.Errorf("invalid job payload: missing lead_id")
	}
	ctx = context.WithValue(ctx, logger.LeadIDKey, leadID)

	lead, err := p.leadRepo.GetLeadByID(ctx, leadID)
	if err != nil {
		return 0, fmt.Errorf("failed to load lead %d: %w", leadID, err)
	}
	logger.Info(ctx, "Loaded lead", "status", lead.Status)

	if lead.Status.IsTerminal() {
		logger.Info(ctx, "Lead already in terminal state, nothing to do")
		return 0, nil
	}

	if lead.ItemsPage == nil {
		retryAfter, err := p.executeFetchStage(ctx, lead, job.Attempts)
		if err != nil || retryAfter > 0 || lead.Status.IsTerminal() {
			return retryAfter, err
		}
	}

	if lead.Details() == nil {
		if err := p.executeExtractionStage(ctx, lead); err != nil || lead.Status.IsTerminal() {
			return 0, err
		}
	}

	retryAfter, err := p.executeDeliveryStage(ctx, lead)
	if err != nil {
		return 0, err
	}

	logger.Info(ctx, "Lead processed", "final_status", lead.Status)
	return retryAfter, nil
}

// transition applies a guarded change to lead, then persists it with store.
// An illegal transition stores nothing; a failed store restores lead.
func (p *Processor) transition(ctx context.Context, lead *models.InboundLead, mark func(*models.InboundLead) error, store func() error) error {
	before := *lead
	if err := mark(lead); err != nil {
		return fmt.Errorf("lead %d: %w", lead.ID, err)
	}
	if err := store(); err != nil {
		*lead = before
		return err
	}
	logger.LogStatusTransition(ctx, lead.ID, string(before.Status), string(lead.Status))
	return nil
}

// markAs returns the InboundLead guard for a plain status change
func markAs(status models.LeadStatus) func(*models.InboundLead) error {
	switch status {
	case models.LeadStatusDelivered:
		return (*models.InboundLead).MarkDelivered
	case models.LeadStatusFailed:
		return (*models.InboundLead).MarkFailed
	case models.LeadStatusPermanentlyFailed:
		return (*models.InboundLead).MarkPermanentlyFailed
	default:
		return func(l *models.InboundLead) error { return l.TransitionTo(status) }
	}
}

// setStatus persists a status change and mirrors it on lead
func (p *Processor) setStatus(ctx context.Context, lead *models.InboundLead, status models.LeadStatus) error {
	return p.transition(ctx, lead, markAs(status), func() error {
		if err := p.leadRepo.UpdateLeadStatus(ctx, lead.ID, status); err != nil {
			return fmt.Errorf("failed to update lead status to %s: %w", status, err)
		}
		return nil
	})
}

// reject stores a rejection derived from a shared adapter error
func (p *Processor) reject(ctx context.Context, lead *models.InboundLead, reason models.RejectionReason, detail string) error {
	logger.Info(ctx, "Lead rejected", "rejection_reason", reason, "rejection_detail", detail)
	mark := func(l *models.InboundLead) error { return l.MarkRejected(reason, detail) }
	return p.transition(ctx, lead, mark, func() error {
		if err := p.leadRepo.UpdateLeadRejection(ctx, lead.ID, reason, detail); err != nil {
			return fmt.Errorf("failed to update lead rejection: %w", err)
		}
		return nil
	})
}

// backoff returns the delay before retry number attempt (1-based)
func (p *Processor) backoff(attempt int) time.Duration {
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(p.backoffDelays) {
		idx = len(p.backoffDelays) - 1
	}
	return p.backoffDelays[idx]
}

// executeFetchStage loads the items page for a lead that arrived as a bare
// item notification
func (p *Processor) executeFetchStage(ctx context.Context, lead *models.InboundLead, attempt int) (time.Duration, error) {
	logger.Info(ctx, "Executing fetch stage")

	if lead.ItemID == nil {
		return 0, p.reject(ctx, lead, models.RejectionReasonMissingField, "items")
	}
	if p.fetcher == nil {
		return 0, fmt.Errorf("no items fetcher configured")
	}

	page, err := p.fetcher.FetchItemsPage(ctx, *lead.ItemID)
	if err != nil {
		if reason, detail, ok := models.RejectionFromError(err); ok {
			return 0, p.reject(ctx, lead, reason, detail)
		}

		retriable := true
		var upstreamErr *models.UpstreamError
		if errors.As(err, &upstreamErr) {
			retriable = upstreamErr.IsRetriable()
		}
		logger.LogError(ctx, "Fetching items page failed", err, "attempt", attempt, "retriable", retriable)

		if !retriable || attempt >= p.maxAttempts {
			return 0, p.setStatus(ctx, lead, models.LeadStatusPermanentlyFailed)
		}
		if err := p.setStatus(ctx, lead, models.LeadStatusFailed); err != nil {
			return 0, err
		}
		return p.backoff(attempt), nil
	}

	itemsPage, err := page.ToJSONB()
	if err != nil {
		return 0, err
	}
	if err := p.leadRepo.UpdateLeadItemsPage(ctx, lead.ID, itemsPage); err != nil {
		return 0, fmt.Errorf("failed to store items page: %w", err)
	}
	lead.ItemsPage = itemsPage

	logger.Info(ctx, "Items page stored", "items", len(page.Items))
	return 0, nil
}

// executeExtractionStage pulls the lead out of the stored items page and
// renders the outreach message
func (p *Processor) executeExtractionStage(ctx context.Context, lead *models.InboundLead) error {
	logger.Info(ctx, "Executing extraction stage", "name_policy", p.extractor.NamePolicy())

	page, err := models.ItemsPageFromJSONB(lead.ItemsPage)
	if err != nil {
		logger.LogError(ctx, "Stored items page is malformed", err)
		return p.reject(ctx, lead, models.RejectionReasonMissingField, "items")
	}

	details, err := p.extractor.ExtractFromPage(page)
	if err != nil {
		reason, detail, ok := models.RejectionFromError(err)
		if !ok {
			return fmt.Errorf("extraction failed: %w", err)
		}
		return p.reject(ctx, lead, reason, detail)
	}

	message, err := p.mapper.BuildOutreachMessage(details)
	if err != nil {
		return fmt.Errorf("failed to build outreach message: %w", err)
	}

	mark := func(l *models.InboundLead) error {
		if err := l.MarkExtracted(details); err != nil {
			return err
		}
		l.MessagePayload = message
		l.RejectionReason = nil
		l.RejectionDetail = nil
		return nil
	}
	return p.transition(ctx, lead, mark, func() error {
		if err := p.leadRepo.UpdateLeadExtraction(ctx, lead.ID, details, message); err != nil {
			return fmt.Errorf("failed to store extracted lead: %w", err)
		}
		return nil
	})
}

// executeDeliveryStage sends the outreach message once. The lead status and
// the delivery attempt are written in one transaction.
func (p *Processor) executeDeliveryStage(ctx context.Context, lead *models.InboundLead) (time.Duration, error) {
	logger.Info(ctx, "Executing delivery stage")

	attemptCount, err := p.deliveryAttemptRepo.CountDeliveryAttempts(ctx, lead.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to count delivery attempts: %w", err)
	}

	if attemptCount >= p.maxAttempts {
		logger.Info(ctx, "Max delivery attempts exhausted",
			"attempt_count", attemptCount,
			"max_attempts", p.maxAttempts)
		return 0, p.setStatus(ctx, lead, models.LeadStatusPermanentlyFailed)
	}

	attemptNo := attemptCount + 1
	logger.Info(ctx, "Attempting delivery", "attempt_no", attemptNo, "max_attempts", p.maxAttempts)

	if p.sender == nil {
		return 0, fmt.Errorf("no message sender configured")
	}
	// nothing is sent for a lead the state machine would not let become DELIVERED
	if !lead.CanTransitionTo(models.LeadStatusDelivered) {
		return 0, fmt.Errorf("lead %d: %w from %s to %s", lead.ID, models.ErrInvalidTransition, lead.Status, models.LeadStatusDelivered)
	}
	response, sendErr := p.sender.SendMessage(ctx, lead.MessagePayload)

	attempt := models.NewDeliveryAttempt(lead.ID, attemptNo)
	next := models.LeadStatusDelivered
	var retryAfter time.Duration

	if sendErr != nil {
		retriable := true
		var statusCode *int
		var upstreamErr *models.UpstreamError
		if errors.As(sendErr, &upstreamErr) {
			retriable = upstreamErr.IsRetriable()
			if upstreamErr.StatusCode != 0 {
				code := upstreamErr.StatusCode
				statusCode = &code
			}
		}
		attempt.MarkFailure(statusCode, sendErr.Error())

		logger.Info(ctx, "Delivery attempt failed",
			"attempt_no", attemptNo,
			"error", sendErr.Error(),
			"retriable", retriable)

		switch {
		case !retriable:
			next = models.LeadStatusPermanentlyFailed
		case attemptNo >= p.maxAttempts:
			logger.Info(ctx, "Max retries exhausted")
			next = models.LeadStatusPermanentlyFailed
		default:
			next = models.LeadStatusFailed
			retryAfter = p.backoff(attemptNo)
		}
	} else {
		attempt.MarkSuccess(response.StatusCode, response.Body, response.MessageID)
		logger.Info(ctx, "Outreach message accepted",
			"status_code", response.StatusCode,
			"message_id", response.MessageID)
	}

	err = p.transition(ctx, lead, markAs(next), func() error {
		tx, err := p.leadRepo.BeginTx(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if err := p.leadRepo.UpdateLeadStatusTx(ctx, tx, lead.ID, next); err != nil {
			return fmt.Errorf("failed to update lead status to %s: %w", next, err)
		}
		if err := p.deliveryAttemptRepo.CreateDeliveryAttemptTx(ctx, tx, attempt); err != nil {
			return fmt.Errorf("failed to create delivery attempt: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if next == models.LeadStatusDelivered {
		p.seedMessageStatus(ctx, lead)
	}

	return retryAfter, nil
}

// seedMessageStatus opens a message_status row for the address the message
// was sent to. Client(Pending) is the lowest possible value so any real
// callback replaces it.
func (p *Processor) seedMessageStatus(ctx context.Context, lead *models.InboundLead) {
	if p.statusRepo == nil {
		return
	}

	recipientID, err := services.RecipientFromPayload(lead.MessagePayload)
	if err != nil {
		logger.LogError(ctx, "Sent message has no recipient address", err)
		return
	}

	update, err := models.NewStatusUpdate(recipientID, models.ClientRecipient(models.MessageStatusPending))
	if err != nil {
		logger.LogError(ctx, "Failed to build initial message status", err)
		return
	}

	leadID := lead.ID
	result, err := p.statusRepo.RecordStatusUpdate(ctx, update, &leadID)
	if err != nil {
		// the message is already out; a missing status row is recovered by the first callback
		logger.LogError(ctx, "Failed to record initial message status", err)
		return
	}

	previous := ""
	if result.Previous != nil {
		previous = result.Previous.String()
	}
	logger.LogRecipientStatus(ctx, update.RecipientID, previous, result.Record.Recipient().String(), result.Replaced)
}
