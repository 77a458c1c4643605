package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmalytics/pharmalytics/jobs"
)

type fakeClient struct {
	tasks []*asynq.Task
}

func (f *fakeClient) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "t1", Type: task.Type(), Queue: jobs.QueueDefault}, nil
}

func (f *fakeClient) Close() error { return nil }

type fakeInspector struct{}

func (fakeInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return &asynq.QueueInfo{Queue: queue, Pending: 2, Active: 1, Scheduled: 1}, nil
}

func (fakeInspector) ListScheduledTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return []*asynq.TaskInfo{{Type: jobs.TaskAnalyticsKPIWarmup, NextProcessAt: time.Date(2025, 3, 2, 5, 30, 0, 0, time.UTC)}}, nil
}

func (fakeInspector) Close() error { return nil }

func TestTriggerWarmup(t *testing.T) {
	client := &fakeClient{}
	c := &JobsCLI{client: client, inspector: fakeInspector{}}

	info, err := c.Trigger(context.Background(), jobs.TaskAnalyticsKPIWarmup, TriggerOptions{Year: 2024, PerPharmacy: true})
	require.NoError(t, err)
	assert.Equal(t, jobs.TaskAnalyticsKPIWarmup, info.Type)

	var payload jobs.KPIWarmupPayload
	require.NoError(t, json.Unmarshal(client.tasks[0].Payload(), &payload))
	assert.Equal(t, jobs.KPIWarmupPayload{Year: 2024, PerPharmacy: true}, payload)
}

func TestTriggerRejectsUnknownJob(t *testing.T) {
	c := &JobsCLI{client: &fakeClient{}}
	_, err := c.Trigger(context.Background(), "mail:send", TriggerOptions{})
	assert.Error(t, err)
}

func TestRenderStats(t *testing.T) {
	c := &JobsCLI{client: &fakeClient{}, inspector: fakeInspector{}}
	stats, err := c.InspectQueue()
	require.NoError(t, err)
	scheduled, err := c.ListScheduled(0)
	require.NoError(t, err)

	buf := &bytes.Buffer{}
	require.NoError(t, RenderStats(buf, stats, scheduled))
	assert.Contains(t, buf.String(), "default")
	assert.Contains(t, buf.String(), "2025-03-02 05:30")
}
