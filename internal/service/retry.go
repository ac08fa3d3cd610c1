package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"imss/harvester/internal/checkpoint"
	"imss/harvester/internal/domain"
	"imss/harvester/internal/domain/task"
	"imss/harvester/internal/queue"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// RetryResult summarises one retry pass over the failure queue
type RetryResult struct {
	Processed int
	Recovered int
	Requeued  int
}

// retryPass holds the state of one Retry call
type retryPass struct {
	service   *Service
	harvester *Harvester
	indexes   map[string]*checkpoint.Index
	requeue   []task.Task
	result    RetryResult
}

// Retry drains the failure queue once. Leaves are harvested again and
// contracts fetched again, both written to the checkpoint logs. Anything
// that fails again is queued for the next pass.
func (s *Service) Retry(ctx context.Context) (*RetryResult, error) {
	if s.failures == nil {
		return nil, errors.New("retry needs the redis failure queue to be enabled")
	}

	writer := NewWriter(domain.OutputFile, s.store, s.mirror)
	defer writer.Close()

	pass := &retryPass{
		service:   s,
		harvester: NewHarvester(s.source, s.extractor, writer, s.delay),
		indexes:   make(map[string]*checkpoint.Index),
	}

	consumer := fmt.Sprintf("retry-%d", time.Now().UnixNano())
	for _, taskType := range queue.TaskTypes {
		stream := s.failures.StreamName(taskType)
		if err := pass.drain(ctx, consumer, stream); err != nil {
			return &pass.result, err
		}
	}

	for _, t := range pass.requeue {
		if _, err := s.failures.AddTask(ctx, t); err != nil {
			log.Errorf("❌ Failed to requeue %s: %v", t.TaskType(), err)
			continue
		}
		pass.result.Requeued++
	}

	log.Infof("🔁 Retry pass finished: %d processed, %d recovered, %d requeued",
		pass.result.Processed, pass.result.Recovered, pass.result.Requeued)
	return &pass.result, nil
}

func (p *retryPass) drain(ctx context.Context, consumer, stream string) error {
	claimed, err := p.service.failures.AutoClaim(ctx, consumer, stream)
	if err != nil {
		log.Errorf("❌ Failed to auto-claim messages for %s: %v", stream, err)
	}
	if len(claimed) > 0 {
		log.Infof("🔄 Auto-claimed %d messages from %s", len(claimed), stream)
	}
	for i := range claimed {
		if err := p.handle(ctx, stream, &claimed[i]); err != nil {
			return err
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg, err := p.service.failures.GetTask(ctx, consumer, stream)
		if err != nil {
			return err
		}
		if msg == nil {
			return nil
		}
		if err := p.handle(ctx, stream, msg); err != nil {
			return err
		}
	}
}

// handle processes and acks one message; only context errors are returned
func (p *retryPass) handle(ctx context.Context, stream string, msg *redis.XMessage) error {
	if err := p.process(ctx, msg); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Errorf("❌ Failed to process message %s: %v", msg.ID, err)
	}
	p.result.Processed++

	if err := p.service.failures.AckTask(ctx, stream, msg.ID); err != nil {
		log.Errorf("❌ Failed to ack message %s: %v", msg.ID, err)
	}
	return nil
}

func (p *retryPass) process(ctx context.Context, msg *redis.XMessage) error {
	taskType, ok := msg.Values["task_type"].(string)
	if !ok {
		return fmt.Errorf("invalid task type in message %s", msg.ID)
	}

	taskData, ok := msg.Values["task_data"].(string)
	if !ok {
		return fmt.Errorf("invalid task data in message %s", msg.ID)
	}

	switch taskType {
	case task.RecordRetryTaskType:
		retryTask, err := task.UnmarshalTask[*task.RecordRetryTask]([]byte(taskData))
		if err != nil {
			return fmt.Errorf("failed to unmarshal record retry task: %w", err)
		}
		return p.retryRecord(ctx, retryTask)

	case task.LeafRetryTaskType:
		retryTask, err := task.UnmarshalTask[*task.LeafRetryTask]([]byte(taskData))
		if err != nil {
			return fmt.Errorf("failed to unmarshal leaf retry task: %w", err)
		}
		return p.retryLeaf(ctx, retryTask)

	default:
		return fmt.Errorf("unknown task type: %s", taskType)
	}
}

func (p *retryPass) index(periodID string) (*checkpoint.Index, error) {
	if idx, ok := p.indexes[periodID]; ok {
		return idx, nil
	}
	idx, err := p.service.store.Load(periodID)
	if err != nil {
		return nil, err
	}
	p.indexes[periodID] = idx
	return idx, nil
}

func (p *retryPass) retryRecord(ctx context.Context, retryTask *task.RecordRetryTask) error {
	stub := retryTask.Stub
	retryTask.RetryCount++

	idx, err := p.index(stub.Period)
	if err != nil {
		return err
	}
	if idx.Contains(stub.ID) {
		log.Debugf("Contract %s is already harvested", stub.ID)
		return nil
	}

	log.Infof("🔄 Retrying contract %s at %s (attempt %d)", stub.ID, stub.Path(), retryTask.RetryCount)

	if _, err := p.harvester.fetchRecord(ctx, stub); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warnf("🔄 Contract %s failed again, will retry: %v", stub.ID, err)
		retryTask.Error = err.Error()
		p.requeue = append(p.requeue, retryTask)
		return nil
	}

	idx.Add(stub)
	p.result.Recovered++
	log.Infof("✅ Recovered contract %s after %d attempts", stub.ID, retryTask.RetryCount)
	return nil
}

func (p *retryPass) retryLeaf(ctx context.Context, retryTask *task.LeafRetryTask) error {
	leaf := retryTask.Leaf
	retryTask.RetryCount++

	idx, err := p.index(leaf.PeriodID)
	if err != nil {
		return err
	}

	log.Infof("🔄 Retrying leaf %s in %s (attempt %d)", leaf.Path(), leaf.PeriodID, retryTask.RetryCount)

	records, failed, err := p.harvester.Harvest(ctx, leaf, idx)
	for _, r := range records {
		idx.Add(r.RecordStub)
	}
	for _, f := range failed {
		p.requeue = append(p.requeue, &task.RecordRetryTask{Stub: f.Stub, Error: f.Err.Error()})
	}

	if err != nil {
		var leafErr *domain.LeafFetchError
		if !errors.As(err, &leafErr) {
			return err
		}
		log.Warnf("🔄 Leaf %s failed again, will retry: %v", leaf.Path(), leafErr)
		retryTask.Stage = leafErr.Stage
		retryTask.Page = leafErr.Page
		retryTask.Error = leafErr.Err.Error()
		p.requeue = append(p.requeue, retryTask)
		return nil
	}

	p.result.Recovered++
	log.Infof("✅ Recovered leaf %s with %d new contracts", leaf.Path(), len(records))
	return nil
}
